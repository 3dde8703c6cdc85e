// Package interop runs WebRTC interoperability scenarios against a peer server
// across a matrix of headless browsers.
//
// A run checks that the peer server answers on /status, then drives each
// browser in matrix order: launch, navigate to the scenario page, poll the
// page for the result object the in-page test logic writes, and tear the
// browser down. Every requested browser yields exactly one Result, which the
// report aggregator turns into a summary and a process exit code.
//
// # Quick Start
//
//	drivers := interop.Drivers{
//	    interop.Chromium: rodriver.New(),
//	}
//	sessions := interop.NewSessionManager(drivers)
//	coord, err := interop.NewCoordinator(sessions)
//	if err != nil {
//	    return err
//	}
//	scenario, _ := interop.LookupScenario("datachannel")
//	matrix, _ := interop.ResolveMatrix("chrome")
//	results, err := coord.Run(ctx, matrix, interop.RunTarget{
//	    BaseURL:  "http://localhost:8080",
//	    Scenario: scenario,
//	})
//	if err != nil {
//	    return err // peer server not reachable
//	}
//	summary := interop.Summarize(results)
//	interop.Render(os.Stdout, summary, scenario)
//	os.Exit(summary.ExitCode)
//
// # Page Result Contract
//
// The in-page test logic assigns an object to window.testResult when it
// finishes. The only required field is the boolean "success"; "error" is an
// optional string and every other field is carried through to the report as
// a scenario metric.
package interop
