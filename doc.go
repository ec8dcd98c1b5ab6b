/*
Package parallel runs browser UI tests concurrently, one WebDriver session
per worker.

The heart of the package is the Registry: an explicit map from a worker
identity to a live remote browser session. Each worker acquires its session
lazily on first use, keeps it for the worker's lifetime, and releases it
exactly once on the way out. Sessions are opened through the
github.com/tebeka/selenium remote client against either a locally-running
driver binary (see Service) or a remote hub.

A Runner fans a table of cases out across goroutines, giving each case its
own worker identity and guaranteeing the session is released on every exit
path:

	reg, err := parallel.New()
	if err != nil {
		// ...
	}
	defer reg.ReleaseAll()

	runner := parallel.Runner{Registry: reg, MaxParallel: 4}
	results, err := runner.Run(ctx, []parallel.Case{
		{Name: "login-chrome", Browser: parallel.Chrome, Run: loginTest},
		{Name: "login-edge", Browser: parallel.Edge, Run: loginTest},
	})

The driver binaries themselves can be fetched with the provision subpackage
and supervised with NewChromeDriverService or NewEdgeDriverService.
*/
package parallel
