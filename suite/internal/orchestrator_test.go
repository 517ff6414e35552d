package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opd-ai/ircconform"
	"github.com/opd-ai/ircconform/internal/ircfake"
	"github.com/opd-ai/ircconform/matcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestStatusString(t *testing.T) {
	tests := []struct {
		status   TestStatus
		expected string
	}{
		{TestStatusPending, "PENDING"},
		{TestStatusRunning, "RUNNING"},
		{TestStatusPassed, "PASSED"},
		{TestStatusFailed, "FAILED"},
		{TestStatusSkipped, "SKIPPED"},
		{TestStatusTimeout, "TIMEOUT"},
		{TestStatus(999), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.String())
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want TestStatus
	}{
		{"nil", nil, TestStatusPassed},
		{"skipped", fmt.Errorf("%w: nothing to do", ErrScenarioSkipped), TestStatusSkipped},
		{"wait timeout", &matcher.WaitError{Err: matcher.ErrTimeout}, TestStatusTimeout},
		{"deadline", context.DeadlineExceeded, TestStatusTimeout},
		{"other", errors.New("boom"), TestStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestNewTestOrchestratorDefaults(t *testing.T) {
	orchestrator, err := NewTestOrchestrator(nil)
	require.NoError(t, err)
	defer orchestrator.Cleanup()

	assert.Equal(t, "localhost:6667", orchestrator.config.Target)
	assert.Len(t, orchestrator.scenarios, len(Scenarios()))
	assert.NoError(t, orchestrator.ValidateConfiguration())
}

func TestNewTestOrchestratorRejectsBadConfig(t *testing.T) {
	config := DefaultTestConfig()
	config.Scenarios = []string{"registration", "nonsense"}
	_, err := NewTestOrchestrator(config)
	assert.ErrorIs(t, err, ErrUnknownScenario)

	config = DefaultTestConfig()
	config.LogLevel = "LOUD"
	_, err = NewTestOrchestrator(config)
	assert.Error(t, err)
}

func TestValidateConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TestConfig)
	}{
		{"empty target", func(c *TestConfig) { c.Target = "" }},
		{"bad scheme", func(c *TestConfig) { c.Target = "http://example.org" }},
		{"zero overall timeout", func(c *TestConfig) { c.OverallTimeout = 0 }},
		{"zero connection timeout", func(c *TestConfig) { c.ConnectionTimeout = 0 }},
		{"zero await timeout", func(c *TestConfig) { c.AwaitTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultTestConfig()
			tt.mutate(config)
			orchestrator, err := NewTestOrchestrator(config)
			require.NoError(t, err)
			defer orchestrator.Cleanup()
			assert.Error(t, orchestrator.ValidateConfiguration())
		})
	}
}

func TestLogFileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "suite.log")
	config := DefaultTestConfig()
	config.LogFile = logFile
	config.Scenarios = []string{"registration"}
	config.Target = "127.0.0.1:1"
	config.ConnectionTimeout = 200 * time.Millisecond

	orchestrator, err := NewTestOrchestrator(config)
	require.NoError(t, err)

	results, err := orchestrator.RunTests(context.Background())
	require.Error(t, err)
	assert.Equal(t, TestStatusFailed, results.FinalStatus)
	require.NoError(t, orchestrator.Cleanup())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "IRC Conformance Test Suite")
	assert.Contains(t, string(data), "registration failed")
}

func TestRunTestsAgainstFakeServer(t *testing.T) {
	for _, transport := range []string{"tcp", "websocket"} {
		t.Run(transport, func(t *testing.T) {
			srv, err := ircfake.Start(nil)
			require.NoError(t, err)
			defer srv.Close()

			config := DefaultTestConfig()
			config.Target = srv.URL()
			if transport == "websocket" {
				config.Target = srv.WebSocketURL()
			}
			config.AwaitTimeout = 2 * time.Second
			config.RegistrationTimeout = 2 * time.Second

			orchestrator, err := NewTestOrchestrator(config)
			require.NoError(t, err)
			defer orchestrator.Cleanup()
			var buf bytes.Buffer
			orchestrator.SetLogOutput(&buf)

			results, err := orchestrator.RunTests(context.Background())
			require.NoError(t, err, buf.String())
			assert.Equal(t, TestStatusPassed, results.FinalStatus)
			assert.Equal(t, len(Scenarios()), results.TotalTests)
			assert.Equal(t, results.TotalTests, results.PassedTests)
			for _, step := range results.TestSteps {
				assert.Equal(t, TestStatusPassed, step.Status, "%s: %s", step.StepName, step.ErrorMessage)
			}
			assert.Eventually(t, func() bool { return srv.ConnCount() == 0 }, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestRunTestsSkipsWhenContextDone(t *testing.T) {
	srv, err := ircfake.Start(nil)
	require.NoError(t, err)
	defer srv.Close()

	config := DefaultTestConfig()
	config.Target = srv.URL()
	config.Scenarios = []string{"registration", "ping"}
	orchestrator, err := NewTestOrchestrator(config)
	require.NoError(t, err)
	orchestrator.SetLogOutput(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := orchestrator.RunTests(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, results.SkippedTests)
	assert.Equal(t, TestStatusPassed, results.FinalStatus)
}

func TestScenarioTimeoutStatus(t *testing.T) {
	config := ircfake.DefaultConfig()
	config.Silent = true
	srv, err := ircfake.Start(config)
	require.NoError(t, err)
	defer srv.Close()

	suite := DefaultTestConfig()
	suite.Target = srv.URL()
	suite.Scenarios = []string{"registration"}
	suite.RegistrationTimeout = 200 * time.Millisecond
	orchestrator, err := NewTestOrchestrator(suite)
	require.NoError(t, err)
	orchestrator.SetLogOutput(&bytes.Buffer{})

	results, err := orchestrator.RunTests(context.Background())
	require.Error(t, err)
	require.Len(t, results.TestSteps, 1)
	assert.Equal(t, TestStatusTimeout, results.TestSteps[0].Status)
	assert.Equal(t, 1, results.FailedTests)
}

func TestSelectScenarios(t *testing.T) {
	all, err := SelectScenarios(nil)
	require.NoError(t, err)
	assert.Len(t, all, 10)

	picked, err := SelectScenarios([]string{"privmsg", " registration "})
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "registration", picked[0].Name)
	assert.Equal(t, "privmsg", picked[1].Name)

	_, err = SelectScenarios([]string{"bogus"})
	assert.ErrorIs(t, err, ErrUnknownScenario)
	assert.Contains(t, err.Error(), "no-self-echo")
}

func TestCapReqSkipsWithoutKnownCaps(t *testing.T) {
	config := ircfake.DefaultConfig()
	config.Caps = []string{"sasl=PLAIN"}
	srv, err := ircfake.Start(config)
	require.NoError(t, err)
	defer srv.Close()

	options := ircconform.NewOptionsForTesting()
	options.Target = srv.URL()
	h := ircconform.NewHarness(options)
	defer h.Close()

	err = runCapReq(context.Background(), h, map[string]interface{}{})
	assert.ErrorIs(t, err, ErrScenarioSkipped)
}
