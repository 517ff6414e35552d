package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/opd-ai/ircconform"
	"github.com/opd-ai/ircconform/internal/ircfake"
	"github.com/opd-ai/ircconform/suite/internal"
	"github.com/sirupsen/logrus"
)

// CLI configuration
type CLIConfig struct {
	target              string
	insecure            bool
	selfTest            bool
	overallTimeout      time.Duration
	connectionTimeout   time.Duration
	awaitTimeout        time.Duration
	registrationTimeout time.Duration
	scenarios           string
	nickPrefix          string
	logLevel            string
	logFile             string
	verbose             bool
	list                bool
	help                bool
}

// parseCLIFlags parses args into a CLIConfig. Defaults come from the
// IRCCONFORM_* environment where set.
func parseCLIFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	config := &CLIConfig{}
	defaults := ircconform.NewOptions()
	if env, err := ircconform.LoadOptionsFromEnv(defaults); err == nil {
		defaults = env
	}

	// Server configuration
	fs.StringVar(&config.target, "target", defaults.Target, "Server URL (irc://, ircs://, ws://, wss:// or host:port)")
	fs.BoolVar(&config.insecure, "insecure", defaults.Transport.InsecureSkipVerify, "Skip TLS certificate verification")
	fs.BoolVar(&config.selfTest, "self-test", false, "Run against a built-in fake server instead of -target")

	// Timeout configuration
	fs.DurationVar(&config.overallTimeout, "overall-timeout", 5*time.Minute, "Overall test timeout")
	fs.DurationVar(&config.connectionTimeout, "connection-timeout", defaults.Transport.DialTimeout, "Connection timeout")
	fs.DurationVar(&config.awaitTimeout, "await-timeout", defaults.AwaitTimeout, "Default wait for an expected reply")
	fs.DurationVar(&config.registrationTimeout, "registration-timeout", defaults.RegistrationTimeout, "Wait for RPL_WELCOME")

	// Scenario selection
	fs.StringVar(&config.scenarios, "scenarios", "", "Comma-separated scenarios to run (default: all)")
	fs.StringVar(&config.nickPrefix, "nick-prefix", defaults.NickPrefix, "Prefix for generated nicknames and channels")
	fs.BoolVar(&config.list, "list", false, "List available scenarios and exit")

	// Logging configuration
	fs.StringVar(&config.logLevel, "log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	fs.StringVar(&config.logFile, "log-file", "", "Log file path (default: stdout)")
	fs.BoolVar(&config.verbose, "verbose", true, "Enable verbose output")

	// Help
	fs.BoolVar(&config.help, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config, nil
}

// printUsage prints the usage information.
func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "IRC Conformance Test Suite")
	fmt.Fprintln(w, "==========================")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Runs protocol scenarios against an IRC server over TCP, TLS or WebSocket.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s [options]\n", os.Args[0])
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintf(w, "  %s -target ircs://irc.example.org\n", os.Args[0])
	fmt.Fprintf(w, "  %s -target wss://irc.example.org/webirc -scenarios registration,cap-ls\n", os.Args[0])
	fmt.Fprintf(w, "  %s -self-test -log-level DEBUG\n", os.Args[0])
}

// printScenarios lists the built-in scenarios.
func printScenarios(w io.Writer) {
	for _, s := range internal.Scenarios() {
		fmt.Fprintf(w, "  %-16s %s\n", s.Name, s.Description)
	}
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(config *CLIConfig) error {
	if !config.selfTest && strings.TrimSpace(config.target) == "" {
		return fmt.Errorf("target cannot be empty")
	}
	if config.overallTimeout <= 0 {
		return fmt.Errorf("overall timeout must be positive")
	}
	if config.connectionTimeout <= 0 {
		return fmt.Errorf("connection timeout must be positive")
	}
	if config.awaitTimeout <= 0 {
		return fmt.Errorf("await timeout must be positive")
	}
	if config.registrationTimeout <= 0 {
		return fmt.Errorf("registration timeout must be positive")
	}
	if _, err := internal.SelectScenarios(splitList(config.scenarios)); err != nil {
		return err
	}
	return nil
}

// createTestConfig converts CLI configuration to internal test configuration.
func createTestConfig(cliConfig *CLIConfig) *internal.TestConfig {
	return &internal.TestConfig{
		Target:              cliConfig.target,
		Insecure:            cliConfig.insecure,
		OverallTimeout:      cliConfig.overallTimeout,
		ConnectionTimeout:   cliConfig.connectionTimeout,
		AwaitTimeout:        cliConfig.awaitTimeout,
		RegistrationTimeout: cliConfig.registrationTimeout,
		Scenarios:           splitList(cliConfig.scenarios),
		NickPrefix:          cliConfig.nickPrefix,
		LogLevel:            cliConfig.logLevel,
		LogFile:             cliConfig.logFile,
		VerboseOutput:       cliConfig.verbose,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// startSelfTest starts the fake server and points config at it.
func startSelfTest(config *internal.TestConfig) (*ircfake.Server, error) {
	srv, err := ircfake.Start(nil)
	if err != nil {
		return nil, fmt.Errorf("start fake server: %w", err)
	}
	config.Target = srv.URL()
	return srv, nil
}

// setupSignalHandling sets up graceful shutdown on interrupt signals.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	go func() {
		sig := <-sigChan
		fmt.Printf("\n🛑 Received signal %v, initiating graceful shutdown...\n", sig)
		cancel()
	}()
}

// lockedWriter serialises writes from the suite logger, the library logger
// and the runner itself.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// run executes the suite and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	stdout = &lockedWriter{w: stdout}
	fs := flag.NewFlagSet("ircconform", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cliConfig, err := parseCLIFlags(fs, args)
	if err != nil {
		return 2
	}

	if cliConfig.help {
		printUsage(stdout, fs)
		return 0
	}
	if cliConfig.list {
		printScenarios(stdout)
		return 0
	}

	if err := validateCLIConfig(cliConfig); err != nil {
		fmt.Fprintf(stderr, "❌ Configuration error: %v\n", err)
		fmt.Fprintf(stderr, "Use -help for usage information.\n")
		return 1
	}

	testConfig := createTestConfig(cliConfig)
	if cliConfig.selfTest {
		srv, err := startSelfTest(testConfig)
		if err != nil {
			fmt.Fprintf(stderr, "❌ %v\n", err)
			return 1
		}
		defer srv.Close()
		fmt.Fprintf(stdout, "🧰 Self-test server listening on %s\n", testConfig.Target)
	}

	orchestrator, err := internal.NewTestOrchestrator(testConfig)
	if err != nil {
		fmt.Fprintf(stderr, "❌ Failed to create test orchestrator: %v\n", err)
		return 1
	}
	defer orchestrator.Cleanup()
	if testConfig.LogFile == "" {
		orchestrator.SetLogOutput(stdout)
	}
	// Library logging follows the suite's level and destination.
	logrus.SetLevel(orchestrator.Logger().GetLevel())
	logrus.SetOutput(orchestrator.Logger().Out)

	if err := orchestrator.ValidateConfiguration(); err != nil {
		fmt.Fprintf(stderr, "❌ Invalid configuration: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "🚀 Starting IRC Conformance Test Suite...")
	fmt.Fprintln(stdout)

	results, err := orchestrator.RunTests(ctx)

	exitCode := 0
	if err != nil {
		fmt.Fprintf(stderr, "\n❌ Test execution failed: %v\n", err)
		exitCode = 1
	} else if results.FinalStatus != internal.TestStatusPassed {
		fmt.Fprintf(stderr, "\n❌ Test suite completed with failures\n")
		exitCode = 1
	} else {
		fmt.Fprintln(stdout, "\n🎉 Test suite completed successfully!")
	}

	if results != nil {
		fmt.Fprintf(stdout, "\n📊 Summary: %d tests, %d passed, %d failed, %d skipped (execution time: %v)\n",
			results.TotalTests, results.PassedTests, results.FailedTests, results.SkippedTests, results.ExecutionTime)
	}
	return exitCode
}

// main is the entry point for the test suite.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	setupSignalHandling(cancel)

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
