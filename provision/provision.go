// Package provision downloads the binaries that the parallel package
// drives: the ChromeDriver and Microsoft Edge Driver binaries, and the
// Selenium server JAR for running a local hub.
package provision

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf16"

	"cloud.google.com/go/storage"
	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
)

// File describes how to download a file from the Web.
type File struct {
	url      string
	Name     string
	hash     string
	hashType string // default is sha256
	Rename   []string
	// The directory in which to store the file.
	directory string
}

// Path returns the location the file is stored at once downloaded.
func (f File) Path() string {
	if f.directory != "" {
		return filepath.Join(f.directory, f.Name)
	}
	return f.Name
}

var (
	// SeleniumServerFile describes how to download a known-good Selenium
	// standalone JAR, for running a hub locally. LatestServerFile locates a
	// newer one.
	SeleniumServerFile = File{
		url:  "https://selenium-release.storage.googleapis.com/3.141/selenium-server-standalone-3.141.59.jar",
		Name: "selenium-server.jar",
		hash: "acf71b77d1b66b55db6fb0bed6d8bae2bbd481311bcbedfeff472c0d15e8f3cb",
	}

	// ChromeDriverFile describes how to download a known-good ChromeDriver
	// binary. LatestChromeDriverFile locates a newer one.
	ChromeDriverFile = File{
		url:  "https://chromedriver.storage.googleapis.com/76.0.3809.25/chromedriver_linux64.zip",
		Name: "chromedriver.zip",
		hash: "0a264a8b2fa881edf33657ba88709ae3dbaec72d8b41beebf1c89d5e3bc3e594",
	}

	// EdgeDriverFile describes how to download a known-good Microsoft Edge
	// Driver binary. Microsoft publishes no stable hashes, so the download
	// is not verified. LatestEdgeDriverFile locates a newer one.
	EdgeDriverFile = File{
		url:  edgeDriverURL("114.0.1823.82"),
		Name: "edgedriver.zip",
	}
)

// AllFiles describes the full set of binaries needed to run chrome and edge
// tests locally: the latest released driver for each browser, plus the
// pinned Selenium server JAR.
func AllFiles(ctx context.Context) ([]File, error) {
	chrome, err := LatestChromeDriverFile(ctx)
	if err != nil {
		return nil, err
	}
	edge, err := LatestEdgeDriverFile(ctx)
	if err != nil {
		return nil, err
	}
	return []File{SeleniumServerFile, chrome, edge}, nil
}

// LatestChromeDriverFile returns a File that describes how to download the
// most recent ChromeDriver release, as recorded in the chromedriver release
// bucket.
func LatestChromeDriverFile(ctx context.Context) (File, error) {
	const (
		storageBktName    = "chromedriver"
		latestReleaseFile = "LATEST_RELEASE"
		driverFilename    = "chromedriver_linux64.zip"
	)

	gcsPath := fmt.Sprintf("gs://%s/", storageBktName)
	client, err := storage.NewClient(ctx, option.WithHTTPClient(http.DefaultClient))
	if err != nil {
		return File{}, fmt.Errorf("cannot create a storage client for locating chromedriver: %v", err)
	}

	bkt := client.Bucket(storageBktName)
	r, err := bkt.Object(latestReleaseFile).NewReader(ctx)
	if err != nil {
		return File{}, fmt.Errorf("cannot create a reader for %s%s file: %v", gcsPath, latestReleaseFile, err)
	}
	defer r.Close()

	data, err := ioutil.ReadAll(r)
	if err != nil {
		return File{}, fmt.Errorf("cannot read from %s%s file: %v", gcsPath, latestReleaseFile, err)
	}

	latestRelease := decodeVersionPayload(data)
	latestDriverPackage := path.Join(latestRelease, driverFilename)
	attrs, err := bkt.Object(latestDriverPackage).Attrs(ctx)
	if err != nil {
		return File{}, fmt.Errorf("cannot get the chromedriver package %s%s attrs: %v", gcsPath, latestDriverPackage, err)
	}

	return File{
		Name:     "chromedriver.zip",
		hash:     hex.EncodeToString(attrs.MD5),
		hashType: "md5",
		url:      attrs.MediaLink,
	}, nil
}

const edgeDriverBaseURL = "https://msedgedriver.azureedge.net"

func edgeDriverURL(version string) string {
	return fmt.Sprintf("%s/%s/edgedriver_linux64.zip", edgeDriverBaseURL, version)
}

// LatestEdgeDriverFile returns a File that describes how to download the
// most recent stable Microsoft Edge Driver release, as recorded on the
// msedgedriver CDN.
func LatestEdgeDriverFile(ctx context.Context) (File, error) {
	url := edgeDriverBaseURL + "/LATEST_STABLE"
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return File{}, err
	}
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	if err != nil {
		return File{}, fmt.Errorf("cannot fetch %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return File{}, fmt.Errorf("cannot fetch %s: %s", url, resp.Status)
	}
	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return File{}, fmt.Errorf("cannot read %s: %v", url, err)
	}

	version := decodeVersionPayload(data)
	if version == "" {
		return File{}, fmt.Errorf("%s contained no version", url)
	}
	return File{
		Name: "edgedriver.zip",
		url:  edgeDriverURL(version),
	}, nil
}

// decodeVersionPayload turns a version file's bytes into a trimmed string.
// The msedgedriver CDN serves its version files as UTF-16.
func decodeVersionPayload(data []byte) string {
	if len(data) >= 2 && data[0] == 0xff && data[1] == 0xfe {
		u := make([]uint16, 0, (len(data)-2)/2)
		for i := 2; i+1 < len(data); i += 2 {
			u = append(u, uint16(data[i])|uint16(data[i+1])<<8)
		}
		return strings.TrimSpace(string(utf16.Decode(u)))
	}
	return strings.TrimSpace(string(data))
}

// Download fetches a file if it is not already present with the expected
// hash. If directory is the empty string, the file is downloaded to the
// current directory.
func Download(file File, directory string) error {
	file.directory = directory

	if file.hash != "" && fileSameHash(file) {
		glog.Infof("Skipping file %q which has already been downloaded.", file.Name)
	} else {
		glog.Infof("Downloading %q from %q", file.Name, file.url)
		if err := downloadFile(file); err != nil {
			return err
		}
	}

	if err := unzipArchive(file); err != nil {
		return err
	}

	if rename := file.Rename; len(rename) == 2 {
		from := filepath.Join(file.directory, rename[0])
		to := filepath.Join(file.directory, rename[1])
		glog.Infof("Renaming %q to %q", from, to)
		os.RemoveAll(to) // Ignore error.
		if err := os.Rename(from, to); err != nil {
			glog.Warningf("Error renaming %q to %q: %v", from, to, err)
		}
	}
	return nil
}

// DownloadAll fetches every file in AllFiles into directory, in parallel.
func DownloadAll(ctx context.Context, directory string) error {
	allFiles, err := AllFiles(ctx)
	if err != nil {
		return err
	}

	var wg errgroup.Group
	for _, file := range allFiles {
		file := file
		wg.Go(func() error {
			if err := Download(file, directory); err != nil {
				return fmt.Errorf("error handling %s: %s", file.Name, err)
			}
			return nil
		})
	}
	return wg.Wait()
}

func downloadFile(file File) (err error) {
	f, err := os.Create(file.Path())
	if err != nil {
		return fmt.Errorf("error creating %q: %v", file.Path(), err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("error closing %q: %v", file.Path(), closeErr)
		}
	}()

	resp, err := http.Get(file.url)
	if err != nil {
		return fmt.Errorf("%s: error downloading %q: %v", file.Name, file.url, err)
	}
	defer resp.Body.Close()
	if file.hash != "" {
		h := newHash(file.hashType)
		if _, err := io.Copy(io.MultiWriter(f, h), resp.Body); err != nil {
			return fmt.Errorf("%s: error downloading %q: %v", file.Name, file.url, err)
		}
		if sum := hex.EncodeToString(h.Sum(nil)); sum != file.hash {
			return fmt.Errorf("%s: got %s hash %q, want %q", file.Name, file.hashType, sum, file.hash)
		}
	} else {
		if _, err := io.Copy(f, resp.Body); err != nil {
			return fmt.Errorf("%s: error downloading %q: %v", file.Name, file.url, err)
		}
	}
	return nil
}

func newHash(hashType string) hash.Hash {
	switch strings.ToLower(hashType) {
	case "md5":
		return md5.New()
	case "sha1":
		return sha1.New()
	default:
		return sha256.New()
	}
}

func fileSameHash(file File) bool {
	if _, err := os.Stat(file.Path()); err != nil {
		return false
	}
	h := newHash(file.hashType)
	f, err := os.Open(file.Path())
	if err != nil {
		return false
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return false
	}

	sum := hex.EncodeToString(h.Sum(nil))
	if sum != file.hash {
		glog.Warningf("File %q: got hash %q, expect hash %q", file.Name, sum, file.hash)
		return false
	}
	return true
}

func unzipArchive(file File) error {
	var unzipCmd []string

	dir := "."
	if file.directory != "" {
		dir = file.directory
	}

	switch path.Ext(file.Name) {
	case ".zip":
		unzipCmd = []string{"unzip", "-d", dir, "-o", file.Path()}
	case ".gz":
		unzipCmd = []string{"tar", "-xzf", file.Path(), "-C", dir}
	case ".bz2":
		unzipCmd = []string{"tar", "-xjf", file.Path(), "-C", dir}
	default:
		return nil
	}

	glog.Infof("Unzipping %q", file.Path())
	if err := exec.Command(unzipCmd[0], unzipCmd[1:]...).Run(); err != nil {
		return fmt.Errorf("error unzipping %q: %v", file.Name, err)
	}

	return nil
}
