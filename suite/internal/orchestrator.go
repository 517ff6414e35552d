package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/opd-ai/ircconform"
	"github.com/opd-ai/ircconform/matcher"
	"github.com/sirupsen/logrus"
)

// TestOrchestrator runs the selected scenarios and collects their results.
type TestOrchestrator struct {
	config    *TestConfig
	logger    *logrus.Logger
	logFile   *os.File
	scenarios []Scenario
	startTime time.Time
	results   *TestResults
}

// TestConfig holds configuration for the entire test suite.
type TestConfig struct {
	// Server configuration
	Target   string
	Insecure bool

	// Timeout configuration
	OverallTimeout      time.Duration
	ConnectionTimeout   time.Duration
	AwaitTimeout        time.Duration
	RegistrationTimeout time.Duration

	// Scenario selection; empty runs every scenario
	Scenarios  []string
	NickPrefix string

	// Logging configuration
	LogLevel      string
	LogFile       string
	VerboseOutput bool
}

// TestResults holds the outcomes of test execution.
type TestResults struct {
	TotalTests    int
	PassedTests   int
	FailedTests   int
	SkippedTests  int
	ExecutionTime time.Duration
	TestSteps     []TestStepResult
	FinalStatus   TestStatus
	ErrorDetails  string
}

// TestStepResult represents the result of one scenario.
type TestStepResult struct {
	StepName      string
	Status        TestStatus
	ExecutionTime time.Duration
	ErrorMessage  string
	Metrics       map[string]interface{}
}

// TestStatus represents the status of a test or test step.
type TestStatus int

const (
	TestStatusPending TestStatus = iota
	TestStatusRunning
	TestStatusPassed
	TestStatusFailed
	TestStatusSkipped
	TestStatusTimeout
)

// String returns a string representation of the test status.
func (ts TestStatus) String() string {
	switch ts {
	case TestStatusPending:
		return "PENDING"
	case TestStatusRunning:
		return "RUNNING"
	case TestStatusPassed:
		return "PASSED"
	case TestStatusFailed:
		return "FAILED"
	case TestStatusSkipped:
		return "SKIPPED"
	case TestStatusTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// DefaultTestConfig returns a default configuration for the test suite.
func DefaultTestConfig() *TestConfig {
	return &TestConfig{
		Target:              "localhost:6667",
		OverallTimeout:      5 * time.Minute,
		ConnectionTimeout:   10 * time.Second,
		AwaitTimeout:        5 * time.Second,
		RegistrationTimeout: 10 * time.Second,
		NickPrefix:          "cf",
		LogLevel:            "INFO",
		VerboseOutput:       true,
	}
}

// NewTestOrchestrator creates a new test orchestrator.
func NewTestOrchestrator(config *TestConfig) (*TestOrchestrator, error) {
	if config == nil {
		config = DefaultTestConfig()
	}

	scenarios, err := SelectScenarios(config.Scenarios)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if config.LogLevel != "" {
		level, err := logrus.ParseLevel(config.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		logger.SetLevel(level)
	}

	to := &TestOrchestrator{
		config:    config,
		logger:    logger,
		scenarios: scenarios,
		results: &TestResults{
			TestSteps:   make([]TestStepResult, 0, len(scenarios)),
			FinalStatus: TestStatusPending,
		},
	}

	if config.LogFile != "" {
		logFile, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		to.logFile = logFile
		logger.SetOutput(logFile)
	}
	return to, nil
}

// Logger returns the orchestrator's logger.
func (to *TestOrchestrator) Logger() *logrus.Logger {
	return to.logger
}

// RunTests executes every selected scenario, each with its own harness.
func (to *TestOrchestrator) RunTests(ctx context.Context) (*TestResults, error) {
	to.startTime = time.Now()
	to.results.FinalStatus = TestStatusRunning

	to.logger.Info("🧪 IRC Conformance Test Suite")
	to.logger.Info(strings.Repeat("=", 37))
	to.logger.Infof("⏰ Test execution started at %s", to.startTime.Format(time.RFC3339))

	if to.config.VerboseOutput {
		to.logConfiguration()
	}

	testCtx, cancel := context.WithTimeout(ctx, to.config.OverallTimeout)
	defer cancel()

	options := to.clientOptions()
	for _, s := range to.scenarios {
		if testCtx.Err() != nil {
			to.recordSkipped(s.Name, testCtx.Err())
			continue
		}
		to.executeWithStepTracking(testCtx, s, options)
	}

	to.results.ExecutionTime = time.Since(to.startTime)
	to.results.TotalTests = len(to.scenarios)

	var err error
	if to.results.FailedTests > 0 {
		to.results.FinalStatus = TestStatusFailed
		err = fmt.Errorf("%d of %d scenarios failed", to.results.FailedTests, to.results.TotalTests)
		to.results.ErrorDetails = err.Error()
	} else {
		to.results.FinalStatus = TestStatusPassed
	}

	to.generateFinalReport()
	return to.results, err
}

// clientOptions translates the suite configuration into harness options.
func (to *TestOrchestrator) clientOptions() *ircconform.Options {
	options := ircconform.NewOptions()
	options.Target = to.config.Target
	options.Transport.InsecureSkipVerify = to.config.Insecure
	if to.config.ConnectionTimeout > 0 {
		options.Transport.DialTimeout = to.config.ConnectionTimeout
	}
	if to.config.AwaitTimeout > 0 {
		options.AwaitTimeout = to.config.AwaitTimeout
	}
	if to.config.RegistrationTimeout > 0 {
		options.RegistrationTimeout = to.config.RegistrationTimeout
	}
	if to.config.NickPrefix != "" {
		options.NickPrefix = to.config.NickPrefix
	}
	return options
}

// executeWithStepTracking runs one scenario in a fresh harness and records
// its outcome.
func (to *TestOrchestrator) executeWithStepTracking(ctx context.Context, s Scenario, options *ircconform.Options) {
	stepStart := time.Now()
	to.logger.Infof("🎯 Executing: %s", s.Name)

	stepResult := TestStepResult{
		StepName: s.Name,
		Status:   TestStatusRunning,
		Metrics:  make(map[string]interface{}),
	}

	h := ircconform.NewHarness(options)
	err := s.Run(ctx, h, stepResult.Metrics)
	h.Close()

	stepResult.ExecutionTime = time.Since(stepStart)
	stepResult.Status = classify(err)

	entry := to.logger.WithFields(logrus.Fields{
		"scenario": s.Name,
		"elapsed":  stepResult.ExecutionTime,
	})
	for k, v := range stepResult.Metrics {
		entry = entry.WithField(k, v)
	}

	switch stepResult.Status {
	case TestStatusPassed:
		to.results.PassedTests++
		entry.Infof("✅ %s completed in %v", s.Name, stepResult.ExecutionTime)
	case TestStatusSkipped:
		to.results.SkippedTests++
		stepResult.ErrorMessage = err.Error()
		entry.Infof("⏭️  %s skipped: %v", s.Name, err)
	default:
		to.results.FailedTests++
		stepResult.ErrorMessage = err.Error()
		entry.Errorf("❌ %s failed: %v", s.Name, err)
	}

	to.results.TestSteps = append(to.results.TestSteps, stepResult)
}

func (to *TestOrchestrator) recordSkipped(name string, cause error) {
	to.results.SkippedTests++
	to.results.TestSteps = append(to.results.TestSteps, TestStepResult{
		StepName:     name,
		Status:       TestStatusSkipped,
		ErrorMessage: cause.Error(),
		Metrics:      map[string]interface{}{},
	})
	to.logger.WithField("scenario", name).Warnf("⏭️  %s not run: %v", name, cause)
}

// classify maps a scenario error onto a status.
func classify(err error) TestStatus {
	switch {
	case err == nil:
		return TestStatusPassed
	case errors.Is(err, ErrScenarioSkipped):
		return TestStatusSkipped
	case matcher.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return TestStatusTimeout
	default:
		return TestStatusFailed
	}
}

// logConfiguration prints the current test configuration.
func (to *TestOrchestrator) logConfiguration() {
	to.logger.Info("📋 Test Configuration:")
	to.logger.Infof("   Target: %s", to.config.Target)
	to.logger.Infof("   Overall timeout: %v", to.config.OverallTimeout)
	to.logger.Infof("   Connection timeout: %v", to.config.ConnectionTimeout)
	to.logger.Infof("   Await timeout: %v", to.config.AwaitTimeout)
	to.logger.Infof("   Registration timeout: %v", to.config.RegistrationTimeout)
	to.logger.Infof("   Insecure TLS: %v", to.config.Insecure)
	names := make([]string, 0, len(to.scenarios))
	for _, s := range to.scenarios {
		names = append(names, s.Name)
	}
	to.logger.Infof("   Scenarios: %s", strings.Join(names, ", "))
}

// generateFinalReport creates and logs the final test report.
func (to *TestOrchestrator) generateFinalReport() {
	to.logger.Info("📊 Test Execution Summary")
	to.logger.Infof("🎯 Overall Status: %s", to.results.FinalStatus)
	to.logger.Infof("⏱️  Total Execution Time: %v", to.results.ExecutionTime)
	to.logger.Infof("📈 Tests: %d total, %d passed, %d failed, %d skipped",
		to.results.TotalTests, to.results.PassedTests, to.results.FailedTests, to.results.SkippedTests)

	for _, step := range to.results.TestSteps {
		to.logger.Infof("   %s %s (%v)", getStatusIcon(step.Status), step.StepName, step.ExecutionTime)
		if step.ErrorMessage != "" {
			to.logger.Infof("      Error: %s", step.ErrorMessage)
		}
	}

	if to.results.FinalStatus == TestStatusPassed {
		to.logger.Info("🎉 All scenarios completed successfully!")
	} else {
		to.logger.Warn("⚠️  Test execution completed with failures")
	}
	to.logger.Infof("🏁 Test run completed at %s", time.Now().Format(time.RFC3339))
}

// getStatusIcon returns the appropriate icon for a test status.
func getStatusIcon(status TestStatus) string {
	switch status {
	case TestStatusFailed:
		return "❌"
	case TestStatusTimeout:
		return "⏰"
	case TestStatusSkipped:
		return "⏭️"
	default:
		return "✅"
	}
}

// GetResults returns the current test results.
func (to *TestOrchestrator) GetResults() *TestResults {
	return to.results
}

// ValidateConfiguration validates the test configuration.
func (to *TestOrchestrator) ValidateConfiguration() error {
	if strings.TrimSpace(to.config.Target) == "" {
		return fmt.Errorf("target cannot be empty")
	}
	if to.config.OverallTimeout <= 0 {
		return fmt.Errorf("overall timeout must be positive")
	}
	if to.config.ConnectionTimeout <= 0 {
		return fmt.Errorf("connection timeout must be positive")
	}
	if to.config.AwaitTimeout <= 0 {
		return fmt.Errorf("await timeout must be positive")
	}
	return to.clientOptions().Validate()
}

// SetLogOutput configures the logger output destination.
func (to *TestOrchestrator) SetLogOutput(output io.Writer) {
	to.logger.SetOutput(output)
}

// SetVerbose enables or disables verbose logging.
func (to *TestOrchestrator) SetVerbose(verbose bool) {
	to.config.VerboseOutput = verbose
}

// Cleanup releases the log file, if one was opened.
func (to *TestOrchestrator) Cleanup() error {
	if to.logFile == nil {
		return nil
	}
	err := to.logFile.Close()
	to.logFile = nil
	return err
}
