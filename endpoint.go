package parallel

import (
	"errors"
	"fmt"
	"net/url"
)

// DefaultEndpoint is the session-open target used when Acquire is given an
// empty endpoint: a hub (or a chromium driver started with
// --url-base=wd/hub) on the conventional local port.
const DefaultEndpoint = "http://localhost:4444/wd/hub"

// normalizeEndpoint applies the default and rejects addresses the remote
// client cannot dial.
func normalizeEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return DefaultEndpoint, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", &ConnectionError{Endpoint: endpoint, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &ConnectionError{Endpoint: endpoint, Err: fmt.Errorf("scheme %q is not http or https", u.Scheme)}
	}
	if u.Host == "" {
		return "", &ConnectionError{Endpoint: endpoint, Err: errors.New("missing host")}
	}
	return endpoint, nil
}

// CloudEndpoint returns the hub address for a hosted browser provider that
// authenticates through credentials embedded in the URL, such as
// ondemand.saucelabs.com.
func CloudEndpoint(userName, accessKey, host string) string {
	return fmt.Sprintf("http://%s:%s@%s/wd/hub", userName, accessKey, host)
}
