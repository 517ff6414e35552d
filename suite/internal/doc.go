// Package internal provides the scenario orchestrator behind the ircconform
// command.
//
// A TestOrchestrator runs a list of named scenarios against one target
// server. Every scenario gets its own ircconform.Harness, so a failing
// scenario cannot leave clients or backlog behind for the next one. Results
// are collected per scenario in TestResults and summarised in the log.
//
// Example orchestrator usage:
//
//	config := internal.DefaultTestConfig()
//	config.Target = "ircs://irc.example.org"
//	config.Scenarios = []string{"registration", "cap-ls"}
//
//	orchestrator, err := internal.NewTestOrchestrator(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer orchestrator.Cleanup()
//
//	results, err := orchestrator.RunTests(ctx)
//
// # Scenarios
//
// Scenarios are plain functions over a harness. A scenario that cannot run
// against the server (for example cap-req when no known capability is
// advertised) returns an error wrapping ErrScenarioSkipped. Wait timeouts are
// reported as TIMEOUT rather than FAILED so slow servers are easy to spot.
package internal
