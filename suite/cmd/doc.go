// Package main provides the ircconform command-line runner.
//
// # Overview
//
// The ircconform command runs the built-in conformance scenarios against one
// IRC server and exits non-zero if any of them fails or times out.
//
// # Usage
//
// Run against a plain-text server:
//
//	go run ./suite/cmd -target irc://irc.example.org:6667
//
// Run selected scenarios over WebSocket:
//
//	go run ./suite/cmd -target wss://irc.example.org/webirc -scenarios registration,cap-ls
//
// Check the harness itself against the bundled fake server:
//
//	go run ./suite/cmd -self-test
//
// # Configuration Options
//
// Server configuration:
//   - -target: server URL (default: $IRCCONFORM_TARGET or localhost:6667)
//   - -insecure: skip TLS certificate verification
//   - -self-test: start the fake server and target it
//
// Timeout configuration:
//   - -overall-timeout: overall test timeout (default: 5m)
//   - -connection-timeout: dial and handshake timeout (default: 10s)
//   - -await-timeout: default wait for an expected reply (default: 5s)
//   - -registration-timeout: wait for RPL_WELCOME (default: 10s)
//
// Scenario selection:
//   - -scenarios: comma-separated names (default: all)
//   - -list: print the available scenarios
//   - -nick-prefix: prefix for generated nicknames and channels
//
// Logging configuration:
//   - -log-level: DEBUG, INFO, WARN or ERROR (default: INFO)
//   - -log-file: write the log to a file instead of stdout
//   - -verbose: print the configuration before running
//
// The IRCCONFORM_* environment variables supply flag defaults.
package main
