// Binary fetchdrivers downloads the WebDriver binaries needed to run
// browser tests locally: ChromeDriver, the Microsoft Edge Driver, and
// optionally a Selenium server JAR for use as a hub.
package main

import (
	"context"
	"flag"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/Amrkhaled5/Parallel-Execution-Selenium/provision"
)

var (
	directory    = flag.String("directory", "", "The directory to download into. Defaults to the current directory.")
	withServer   = flag.Bool("with_server", true, "If true, also download a Selenium server JAR.")
	latestServer = flag.Bool("latest_server", false, "If true, locate the newest Selenium server release on GitHub instead of the pinned one.")
)

func main() {
	flag.Parse()
	ctx := context.Background()

	files := make([]provision.File, 0, 3)

	chrome, err := provision.LatestChromeDriverFile(ctx)
	if err != nil {
		glog.Errorf("Unable to locate the latest ChromeDriver, falling back to the pinned release: %s", err)
		chrome = provision.ChromeDriverFile
	}
	files = append(files, chrome)

	edge, err := provision.LatestEdgeDriverFile(ctx)
	if err != nil {
		glog.Errorf("Unable to locate the latest Edge driver, falling back to the pinned release: %s", err)
		edge = provision.EdgeDriverFile
	}
	files = append(files, edge)

	if *withServer {
		server := provision.SeleniumServerFile
		if *latestServer {
			s, err := provision.LatestServerFile(ctx)
			if err != nil {
				glog.Errorf("Unable to find the latest Selenium server, falling back to the pinned release: %s", err)
			} else {
				server = s
			}
		}
		files = append(files, server)
	}

	var wg errgroup.Group
	for _, file := range files {
		file := file
		wg.Go(func() error {
			return provision.Download(file, *directory)
		})
	}
	if err := wg.Wait(); err != nil {
		glog.Exit(err.Error())
	}
}
