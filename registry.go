package parallel

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/tebeka/selenium"
)

// DefaultImplicitWait is the implicit wait applied to every new session
// unless overridden with the ImplicitWait option.
const DefaultImplicitWait = 10 * time.Second

// openRemote opens a session against an endpoint. It is a variable so that
// tests can substitute a fake remote.
var openRemote = selenium.NewRemote

// Option configures a Registry.
type Option func(*Registry) error

// ImplicitWait sets the implicit wait bound applied to element lookups on
// every session the Registry opens.
func ImplicitWait(d time.Duration) Option {
	return func(r *Registry) error {
		if d <= 0 {
			return fmt.Errorf("implicit wait must be positive, got %v", d)
		}
		r.implicitWait = d
		return nil
	}
}

// Registry maps worker identities to live WebDriver sessions. Create one at
// suite start, hand it to every worker, and tear it down at suite end with
// ReleaseAll.
//
// Operations on distinct worker identities are safe to call concurrently and
// never block on each other: session opens, the slow part, happen outside
// the registry lock. Calls for the same worker identity must be sequential,
// which they are when the identity belongs to a single goroutine.
type Registry struct {
	implicitWait time.Duration

	mu       sync.Mutex
	sessions map[string]selenium.WebDriver
}

// New returns a Registry with no live sessions.
func New(opts ...Option) (*Registry, error) {
	r := &Registry{
		implicitWait: DefaultImplicitWait,
		sessions:     make(map[string]selenium.WebDriver),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Acquire returns the session owned by workerID, opening one on first use.
// A second Acquire for the same worker returns the stored session unchanged,
// regardless of the browser and endpoint arguments.
//
// New sessions are opened via the remote client, maximized, and given the
// registry's implicit wait. Unknown browsers fail with
// *UnsupportedBrowserError; malformed or unreachable endpoints fail with
// *ConnectionError. An empty endpoint means DefaultEndpoint.
func (r *Registry) Acquire(workerID string, browser Browser, endpoint string) (selenium.WebDriver, error) {
	r.mu.Lock()
	if wd, ok := r.sessions[workerID]; ok {
		r.mu.Unlock()
		return wd, nil
	}
	r.mu.Unlock()

	caps, err := browser.capabilities()
	if err != nil {
		return nil, err
	}
	addr, err := normalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	wd, err := openRemote(caps, addr)
	if err != nil {
		return nil, &ConnectionError{Endpoint: addr, Err: err}
	}
	if err := setUpSession(wd, r.implicitWait); err != nil {
		// Don't leak the half-configured browser.
		if qerr := wd.Quit(); qerr != nil {
			glog.Warningf("Error quitting half-configured session for worker %q: %v", workerID, qerr)
		}
		return nil, err
	}

	r.mu.Lock()
	r.sessions[workerID] = wd
	r.mu.Unlock()
	return wd, nil
}

func setUpSession(wd selenium.WebDriver, implicitWait time.Duration) error {
	if err := wd.MaximizeWindow(""); err != nil {
		return fmt.Errorf("error maximizing window: %v", err)
	}
	if err := wd.SetImplicitWaitTimeout(implicitWait); err != nil {
		return fmt.Errorf("error setting implicit wait to %v: %v", implicitWait, err)
	}
	return nil
}

// Current returns the session owned by workerID without creating one. The
// second return value is false if Acquire was never called for this worker,
// or the session was already released.
func (r *Registry) Current(workerID string) (selenium.WebDriver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wd, ok := r.sessions[workerID]
	return wd, ok
}

// Release quits workerID's session and removes it from the registry. Quit
// failures are logged, never propagated: teardown must not mask the worker's
// own result. Release without a prior Acquire, or called twice, is a no-op.
func (r *Registry) Release(workerID string) {
	r.mu.Lock()
	wd, ok := r.sessions[workerID]
	delete(r.sessions, workerID)
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := wd.Quit(); err != nil {
		glog.Warningf("Error quitting session for worker %q: %v", workerID, err)
	}
}

// Active returns the identities of workers that currently hold a session,
// sorted.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReleaseAll releases every remaining session. Call it at suite end; a
// session left in the registry is a leaked browser process.
func (r *Registry) ReleaseAll() {
	for _, id := range r.Active() {
		r.Release(id)
	}
}
