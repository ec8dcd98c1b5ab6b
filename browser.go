package parallel

import (
	"strings"

	"github.com/tebeka/selenium"
)

// Browser identifies a supported browser kind.
type Browser string

// The supported browsers.
const (
	Chrome Browser = "chrome"
	Edge   Browser = "edge"
)

// ParseBrowser maps a browser name, as supplied by suite configuration, to a
// Browser. Matching is case-insensitive. Both "edge" and the wire protocol's
// "MicrosoftEdge" name the same browser.
func ParseBrowser(name string) (Browser, error) {
	switch strings.ToLower(name) {
	case "chrome":
		return Chrome, nil
	case "edge", "microsoftedge":
		return Edge, nil
	}
	return "", &UnsupportedBrowserError{Name: name}
}

// capabilities returns the capabilities to request a session with.
func (b Browser) capabilities() (selenium.Capabilities, error) {
	switch b {
	case Chrome:
		return selenium.Capabilities{"browserName": "chrome"}, nil
	case Edge:
		// The wire protocol predates the "edge" shorthand.
		return selenium.Capabilities{"browserName": "MicrosoftEdge"}, nil
	}
	return nil, &UnsupportedBrowserError{Name: string(b)}
}
