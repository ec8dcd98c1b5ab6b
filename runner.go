package parallel

import (
	"context"
	"fmt"

	"github.com/tebeka/selenium"
	"golang.org/x/sync/errgroup"
)

// Case is one entry in a Runner table: a browser to drive and the test body
// to run against it.
type Case struct {
	// Name identifies the case in results and, combined with the case's
	// position, forms its worker identity.
	Name string
	// Browser is the browser kind to open the session with.
	Browser Browser
	// Run drives the session. The session belongs to the runner; Run must
	// not quit it.
	Run func(wd selenium.WebDriver) error
}

// Result records the outcome of a single case.
type Result struct {
	Name string
	Err  error
}

// Runner fans a table of cases out across goroutines, one worker identity
// and one browser session per case.
type Runner struct {
	Registry *Registry
	// Endpoint is passed through to Acquire. Empty means DefaultEndpoint.
	Endpoint string
	// MaxParallel bounds the number of in-flight cases. Zero or negative
	// means no bound.
	MaxParallel int
}

// Run executes every case and returns one Result per case, in input order.
// A failing case does not stop the others; the returned error is the first
// case failure, if any. Cancelling ctx prevents unstarted cases from
// running. A case's session is released on every exit path, including
// failure, so Run never leaks a browser process.
func (r *Runner) Run(ctx context.Context, cases []Case) ([]Result, error) {
	results := make([]Result, len(cases))

	var sem chan struct{}
	if r.MaxParallel > 0 {
		sem = make(chan struct{}, r.MaxParallel)
	}

	group := new(errgroup.Group)
	for i, c := range cases {
		i, c := i, c
		group.Go(func() error {
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			err := r.runCase(ctx, i, c)
			results[i] = Result{Name: c.Name, Err: err}
			return err
		})
	}
	err := group.Wait()
	return results, err
}

func (r *Runner) runCase(ctx context.Context, i int, c Case) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	workerID := fmt.Sprintf("%s#%d", c.Name, i)
	wd, err := r.Registry.Acquire(workerID, c.Browser, r.Endpoint)
	if err != nil {
		return err
	}
	defer r.Registry.Release(workerID)
	return c.Run(wd)
}
