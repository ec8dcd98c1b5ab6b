package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/blang/semver"
	"github.com/google/go-github/v27/github"
)

// serverTagPrefix is the prefix Selenium release tags carry, as in
// "selenium-4.21.0".
const serverTagPrefix = "selenium-"

// LatestServerFile returns a File that describes how to download the newest
// released Selenium server JAR from the SeleniumHQ GitHub releases.
func LatestServerFile(ctx context.Context) (File, error) {
	client := github.NewClient(nil)
	releases, _, err := client.Repositories.ListReleases(ctx, "SeleniumHQ", "selenium", &github.ListOptions{PerPage: 100})
	if err != nil {
		return File{}, fmt.Errorf("cannot list SeleniumHQ/selenium releases: %v", err)
	}
	return pickServerFile(releases)
}

// pickServerFile selects the highest-versioned release that carries a
// server JAR asset. GitHub publishes no hashes for the assets, so the
// download is not verified.
func pickServerFile(releases []*github.RepositoryRelease) (File, error) {
	var (
		best    semver.Version
		bestURL string
		found   bool
	)
	for _, release := range releases {
		if release.GetPrerelease() || release.GetDraft() {
			continue
		}
		tag := release.GetTagName()
		if !strings.HasPrefix(tag, serverTagPrefix) {
			continue
		}
		v, err := semver.ParseTolerant(strings.TrimPrefix(tag, serverTagPrefix))
		if err != nil {
			continue
		}
		url := serverJARAsset(release)
		if url == "" {
			continue
		}
		if !found || v.GT(best) {
			best, bestURL, found = v, url, true
		}
	}
	if !found {
		return File{}, fmt.Errorf("no release with a selenium-server JAR asset")
	}
	return File{url: bestURL, Name: "selenium-server.jar"}, nil
}

func serverJARAsset(release *github.RepositoryRelease) string {
	for _, asset := range release.Assets {
		name := asset.GetName()
		if strings.HasPrefix(name, "selenium-server") && strings.HasSuffix(name, ".jar") {
			return asset.GetBrowserDownloadURL()
		}
	}
	return ""
}
