package parallel

import "fmt"

// UnsupportedBrowserError is returned by ParseBrowser and Acquire for a
// browser kind outside the supported set. It is fatal; retrying with the
// same input cannot succeed.
type UnsupportedBrowserError struct {
	// Name is the browser kind as the caller supplied it.
	Name string
}

func (e *UnsupportedBrowserError) Error() string {
	return fmt.Sprintf("unsupported browser %q, supported browsers are %q and %q", e.Name, Chrome, Edge)
}

// ConnectionError is returned by Acquire when the endpoint is malformed or
// when opening a session against it fails. The failure is surfaced to the
// caller as-is; Acquire does not retry.
type ConnectionError struct {
	// Endpoint is the session-open target, after normalization when the
	// address parsed at all.
	Endpoint string
	// Err is the underlying cause.
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot open session against %q: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
