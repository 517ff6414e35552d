package registration

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/ircconform/matcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedConn answers sent lines by feeding canned replies into a matcher.
type scriptedConn struct {
	*matcher.Matcher

	mu      sync.Mutex
	sent    []string
	replies map[string][]string
}

func newScriptedConn(replies map[string][]string) *scriptedConn {
	return &scriptedConn{Matcher: matcher.New(nil), replies: replies}
}

func (c *scriptedConn) Send(line string) error {
	c.mu.Lock()
	c.sent = append(c.sent, line)
	replies := c.replies[line]
	c.mu.Unlock()

	for _, r := range replies {
		c.Feed(r)
	}
	return nil
}

func (c *scriptedConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

var alice = Identity{Nick: "alice", User: "alice", RealName: "Alice Example"}

func shortConfig() *Config {
	return &Config{Timeout: 100 * time.Millisecond, AnswerPing: true}
}

func TestRegisterWelcome(t *testing.T) {
	conn := newScriptedConn(map[string][]string{
		"USER alice 0 * :Alice Example": {
			":irc.example NOTICE * :*** Looking up your hostname",
			":irc.example 001 alice :Welcome to the network alice",
		},
	})

	result, err := Register(context.Background(), conn, alice, shortConfig())
	require.NoError(t, err)
	assert.Equal(t, "alice", result.Nick)
	assert.Equal(t, "irc.example", result.Server)
	assert.Equal(t, "001", result.Welcome.Command)
	assert.Equal(t, []string{"NICK alice", "USER alice 0 * :Alice Example"}, conn.Sent())
}

func TestRegisterSendsPassword(t *testing.T) {
	id := alice
	id.Password = "hunter2"
	conn := newScriptedConn(map[string][]string{
		"USER alice 0 * :Alice Example": {":irc.example 001 alice :Welcome"},
	})

	_, err := Register(context.Background(), conn, id, shortConfig())
	require.NoError(t, err)
	assert.Equal(t, "PASS hunter2", conn.Sent()[0])
}

func TestRegisterAnswersPing(t *testing.T) {
	conn := newScriptedConn(map[string][]string{
		"USER alice 0 * :Alice Example": {"PING :cookie123"},
		"PONG cookie123":                {":irc.example 001 alice :Welcome"},
	})

	result, err := Register(context.Background(), conn, alice, shortConfig())
	require.NoError(t, err)
	assert.Equal(t, "alice", result.Nick)
	assert.Contains(t, conn.Sent(), "PONG cookie123")
}

func TestRegisterRejected(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		wantCode string
		wantMsg  string
	}{
		{"nick in use", ":irc.example 433 * alice :Nickname is already in use", "433", "Nickname is already in use"},
		{"erroneous nick", ":irc.example 432 * 1bad :Erroneous nickname", "432", "Erroneous nickname"},
		{"bad password", ":irc.example 464 * :Password incorrect", "464", "Password incorrect"},
		{"banned", ":irc.example 465 * :You are banned", "465", "You are banned"},
		{"error", "ERROR :Closing link: (alice@host) [Throttled]", "ERROR", "Closing link: (alice@host) [Throttled]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newScriptedConn(map[string][]string{
				"USER alice 0 * :Alice Example": {tt.reply},
			})

			_, err := Register(context.Background(), conn, alice, shortConfig())
			var regErr *Error
			require.True(t, errors.As(err, &regErr), "got %v", err)
			assert.Equal(t, tt.wantCode, regErr.Code)
			assert.Equal(t, tt.wantMsg, regErr.Message)
			assert.Equal(t, tt.reply, regErr.Line)
			assert.NotErrorIs(t, err, ErrRegistrationTimeout)
		})
	}
}

func TestRegisterTimeout(t *testing.T) {
	conn := newScriptedConn(nil)

	start := time.Now()
	_, err := Register(context.Background(), conn, alice, shortConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistrationTimeout)
	assert.ErrorIs(t, err, matcher.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestRegisterConnectionClosed(t *testing.T) {
	conn := newScriptedConn(nil)

	done := make(chan error, 1)
	go func() {
		_, err := Register(context.Background(), conn, alice, &Config{Timeout: 5 * time.Second})
		done <- err
	}()
	require.Eventually(t, func() bool {
		_, parsed := conn.Pending()
		return parsed == 1
	}, time.Second, time.Millisecond)

	conn.Close(io.EOF)
	err := <-done
	assert.ErrorIs(t, err, matcher.ErrConnectionClosed)
	assert.NotErrorIs(t, err, ErrRegistrationTimeout)
}

func TestAwaitWelcomeWithoutPingAnswer(t *testing.T) {
	conn := newScriptedConn(nil)
	conn.Feed("PING :x")
	conn.Feed(":irc.example 001 alice :Welcome")

	_, err := AwaitWelcome(context.Background(), conn, &Config{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.Empty(t, conn.Sent())

	raw, parsed := conn.Backlog()
	assert.Len(t, raw, 2)
	require.Len(t, parsed, 1)
	assert.Equal(t, "PING", parsed[0].Command)
}
