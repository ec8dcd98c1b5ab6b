package parallel

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tebeka/selenium"
)

// fakeDriver implements the handful of WebDriver methods the registry and
// runner touch. The embedded interface is left nil; calling anything not
// faked here panics, which is what a unit test wants.
type fakeDriver struct {
	selenium.WebDriver

	mu           sync.Mutex
	maximized    bool
	implicitWait time.Duration
	quitCalls    int
	quitErr      error
	currentURL   string
}

func (d *fakeDriver) MaximizeWindow(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maximized = true
	return nil
}

func (d *fakeDriver) SetImplicitWaitTimeout(timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.implicitWait = timeout
	return nil
}

func (d *fakeDriver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quitCalls++
	return d.quitErr
}

func (d *fakeDriver) Get(url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.currentURL = url
	return nil
}

func (d *fakeDriver) CurrentURL() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentURL, nil
}

func (d *fakeDriver) state() (maximized bool, implicitWait time.Duration, quitCalls int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maximized, d.implicitWait, d.quitCalls
}

// fakeRemote is an openRemote stand-in that hands out one fakeDriver per
// call and records what it was asked for.
type fakeRemote struct {
	mu      sync.Mutex
	err     error
	quitErr error
	drivers []*fakeDriver
	caps    []selenium.Capabilities
	addrs   []string
}

func (f *fakeRemote) open(caps selenium.Capabilities, addr string) (selenium.WebDriver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	d := &fakeDriver{quitErr: f.quitErr}
	f.drivers = append(f.drivers, d)
	f.caps = append(f.caps, caps)
	f.addrs = append(f.addrs, addr)
	return d, nil
}

func (f *fakeRemote) opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.drivers)
}

func stubOpenRemote(t *testing.T, f *fakeRemote) {
	t.Helper()
	orig := openRemote
	openRemote = f.open
	t.Cleanup(func() { openRemote = orig })
}

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	r, err := New(opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	return r
}

func TestAcquireIsIdempotentPerWorker(t *testing.T) {
	remote := &fakeRemote{}
	stubOpenRemote(t, remote)
	r := newTestRegistry(t)

	first, err := r.Acquire("w1", Chrome, "")
	if err != nil {
		t.Fatalf("Acquire(w1) returned error: %v", err)
	}
	second, err := r.Acquire("w1", Edge, "http://elsewhere:4444/wd/hub")
	if err != nil {
		t.Fatalf("second Acquire(w1) returned error: %v", err)
	}
	if first != second {
		t.Errorf("second Acquire(w1) returned a different handle")
	}
	if got, want := remote.opened(), 1; got != want {
		t.Errorf("sessions opened = %d, want %d", got, want)
	}
}

func TestAcquireDistinctWorkersGetDistinctHandles(t *testing.T) {
	remote := &fakeRemote{}
	stubOpenRemote(t, remote)
	r := newTestRegistry(t)

	w1, err := r.Acquire("w1", Chrome, "")
	if err != nil {
		t.Fatalf("Acquire(w1) returned error: %v", err)
	}
	w2, err := r.Acquire("w2", Chrome, "")
	if err != nil {
		t.Fatalf("Acquire(w2) returned error: %v", err)
	}
	if w1 == w2 {
		t.Errorf("Acquire(w1) and Acquire(w2) returned the same handle")
	}
	if got, want := remote.opened(), 2; got != want {
		t.Errorf("sessions opened = %d, want %d", got, want)
	}
}

func TestAcquireSetsUpSession(t *testing.T) {
	tests := []struct {
		desc string
		opts []Option
		want time.Duration
	}{
		{
			desc: "default implicit wait",
			want: 10 * time.Second,
		},
		{
			desc: "overridden implicit wait",
			opts: []Option{ImplicitWait(2 * time.Second)},
			want: 2 * time.Second,
		},
	}

	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			remote := &fakeRemote{}
			stubOpenRemote(t, remote)
			r := newTestRegistry(t, test.opts...)

			if _, err := r.Acquire("w1", Chrome, ""); err != nil {
				t.Fatalf("Acquire(w1) returned error: %v", err)
			}
			maximized, implicitWait, _ := remote.drivers[0].state()
			if !maximized {
				t.Errorf("session was not maximized")
			}
			if implicitWait != test.want {
				t.Errorf("implicit wait = %v, want %v", implicitWait, test.want)
			}
		})
	}
}

func TestAcquireRequestsBrowserCapabilities(t *testing.T) {
	remote := &fakeRemote{}
	stubOpenRemote(t, remote)
	r := newTestRegistry(t)

	if _, err := r.Acquire("w1", Chrome, ""); err != nil {
		t.Fatalf("Acquire(w1, chrome) returned error: %v", err)
	}
	if _, err := r.Acquire("w2", Edge, ""); err != nil {
		t.Fatalf("Acquire(w2, edge) returned error: %v", err)
	}

	want := []selenium.Capabilities{
		{"browserName": "chrome"},
		{"browserName": "MicrosoftEdge"},
	}
	if diff := cmp.Diff(want, remote.caps); diff != "" {
		t.Errorf("requested capabilities diff (-want +got):\n%s", diff)
	}
	if got, want := remote.addrs[0], DefaultEndpoint; got != want {
		t.Errorf("empty endpoint dialed %q, want %q", got, want)
	}
}

func TestAcquireUnsupportedBrowser(t *testing.T) {
	remote := &fakeRemote{}
	stubOpenRemote(t, remote)
	r := newTestRegistry(t)

	_, err := r.Acquire("w1", Browser("firefox"), "")
	var ube *UnsupportedBrowserError
	if !errors.As(err, &ube) {
		t.Fatalf("Acquire(w1, firefox) returned %v, want *UnsupportedBrowserError", err)
	}
	if ube.Name != "firefox" {
		t.Errorf("UnsupportedBrowserError.Name = %q, want %q", ube.Name, "firefox")
	}
	if got := remote.opened(); got != 0 {
		t.Errorf("sessions opened = %d, want 0", got)
	}
	if _, ok := r.Current("w1"); ok {
		t.Errorf("Current(w1) found a session after a failed Acquire")
	}
}

func TestAcquireConnectionError(t *testing.T) {
	cause := errors.New("connection refused")
	remote := &fakeRemote{err: cause}
	stubOpenRemote(t, remote)
	r := newTestRegistry(t)

	_, err := r.Acquire("w1", Chrome, "http://localhost:9515")
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("Acquire against a failing endpoint returned %v, want *ConnectionError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("ConnectionError does not wrap the underlying cause")
	}
	if _, ok := r.Current("w1"); ok {
		t.Errorf("Current(w1) found a session after a failed Acquire")
	}
}

func TestAcquireMalformedEndpoint(t *testing.T) {
	tests := []struct {
		desc, endpoint string
	}{
		{"no scheme", "localhost:4444"},
		{"bad scheme", "ftp://localhost:4444"},
		{"missing host", "http://"},
		{"unparseable", "http://host :4444"},
	}

	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			remote := &fakeRemote{}
			stubOpenRemote(t, remote)
			r := newTestRegistry(t)

			_, err := r.Acquire("w1", Chrome, test.endpoint)
			var ce *ConnectionError
			if !errors.As(err, &ce) {
				t.Fatalf("Acquire(w1, chrome, %q) returned %v, want *ConnectionError", test.endpoint, err)
			}
			if got := remote.opened(); got != 0 {
				t.Errorf("sessions opened = %d, want 0", got)
			}
		})
	}
}

func TestCurrentDoesNotCreate(t *testing.T) {
	remote := &fakeRemote{}
	stubOpenRemote(t, remote)
	r := newTestRegistry(t)

	if _, ok := r.Current("w1"); ok {
		t.Fatalf("Current(w1) = ok before any Acquire")
	}
	wd, err := r.Acquire("w1", Chrome, "")
	if err != nil {
		t.Fatalf("Acquire(w1) returned error: %v", err)
	}
	got, ok := r.Current("w1")
	if !ok || got != wd {
		t.Errorf("Current(w1) = %v, %t, want the acquired handle", got, ok)
	}
	r.Release("w1")
	if _, ok := r.Current("w1"); ok {
		t.Errorf("Current(w1) = ok after Release")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	remote := &fakeRemote{}
	stubOpenRemote(t, remote)
	r := newTestRegistry(t)

	// Release with no prior Acquire is a no-op.
	r.Release("w1")

	if _, err := r.Acquire("w1", Chrome, ""); err != nil {
		t.Fatalf("Acquire(w1) returned error: %v", err)
	}
	r.Release("w1")
	r.Release("w1")

	if _, _, quitCalls := remote.drivers[0].state(); quitCalls != 1 {
		t.Errorf("Quit called %d times, want 1", quitCalls)
	}
}

func TestReleaseSwallowsQuitFailure(t *testing.T) {
	remote := &fakeRemote{quitErr: errors.New("session already gone")}
	stubOpenRemote(t, remote)
	r := newTestRegistry(t)

	if _, err := r.Acquire("w1", Chrome, ""); err != nil {
		t.Fatalf("Acquire(w1) returned error: %v", err)
	}
	r.Release("w1")
	if _, ok := r.Current("w1"); ok {
		t.Errorf("Current(w1) = ok after Release with a failing Quit")
	}
}

func TestActiveAndReleaseAll(t *testing.T) {
	remote := &fakeRemote{}
	stubOpenRemote(t, remote)
	r := newTestRegistry(t)

	for _, id := range []string{"w3", "w1", "w2"} {
		if _, err := r.Acquire(id, Chrome, ""); err != nil {
			t.Fatalf("Acquire(%s) returned error: %v", id, err)
		}
	}
	if diff := cmp.Diff([]string{"w1", "w2", "w3"}, r.Active()); diff != "" {
		t.Errorf("Active() diff (-want +got):\n%s", diff)
	}

	r.ReleaseAll()
	if got := r.Active(); len(got) != 0 {
		t.Errorf("Active() after ReleaseAll = %v, want empty", got)
	}
	for i, d := range remote.drivers {
		if _, _, quitCalls := d.state(); quitCalls != 1 {
			t.Errorf("driver %d: Quit called %d times, want 1", i, quitCalls)
		}
	}
}

func TestConcurrentAcquire(t *testing.T) {
	const workers = 4

	remote := &fakeRemote{}
	stubOpenRemote(t, remote)
	r := newTestRegistry(t)

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("w%d", i)
			wd, err := r.Acquire(id, Chrome, "")
			if err != nil {
				errs[i] = err
				return
			}
			// Stamp the session with a per-worker marker and read it back;
			// a shared or swapped handle would surface another worker's
			// marker here.
			marker := fmt.Sprintf("http://example.com/%s", id)
			if err := wd.Get(marker); err != nil {
				errs[i] = err
				return
			}
			got, err := wd.CurrentURL()
			if err != nil {
				errs[i] = err
				return
			}
			if got != marker {
				errs[i] = fmt.Errorf("worker %s read marker %q, want %q", id, got, marker)
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("worker %d: %v", i, err)
		}
	}
	if got, want := remote.opened(), workers; got != want {
		t.Errorf("sessions opened = %d, want %d", got, want)
	}
	seen := make(map[selenium.WebDriver]string)
	for i := 0; i < workers; i++ {
		id := fmt.Sprintf("w%d", i)
		wd, ok := r.Current(id)
		if !ok {
			t.Errorf("Current(%s) = absent after concurrent Acquire", id)
			continue
		}
		if other, dup := seen[wd]; dup {
			t.Errorf("workers %s and %s share a handle", other, id)
		}
		seen[wd] = id
	}
}
