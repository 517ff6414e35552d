package sasl

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
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

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

var shortConfig = &Config{Timeout: 100 * time.Millisecond}

func TestAuthenticatePlain(t *testing.T) {
	conn := newScriptedConn(map[string][]string{
		"AUTHENTICATE PLAIN": {"AUTHENTICATE +"},
		"AUTHENTICATE " + b64("\x00alice\x00secret"): {
			":srv 900 alice alice!a@host alice :You are now logged in as alice",
			":srv 903 alice :SASL authentication successful",
		},
	})

	result, err := Authenticate(context.Background(), conn, Plain("alice", "secret"), shortConfig)
	require.NoError(t, err)
	assert.Equal(t, "alice", result.Account)
	assert.Len(t, conn.Sent(), 2)
}

func TestAuthenticateExternal(t *testing.T) {
	conn := newScriptedConn(map[string][]string{
		"AUTHENTICATE EXTERNAL": {"AUTHENTICATE +"},
		"AUTHENTICATE +":        {":srv 903 * :SASL authentication successful"},
	})

	_, err := Authenticate(context.Background(), conn, External(), shortConfig)
	require.NoError(t, err)
	assert.Equal(t, []string{"AUTHENTICATE EXTERNAL", "AUTHENTICATE +"}, conn.Sent())
}

func TestAuthenticateScram(t *testing.T) {
	conn := newScriptedConn(map[string][]string{
		"AUTHENTICATE SCRAM-SHA-256":          {"AUTHENTICATE +"},
		"AUTHENTICATE " + b64(rfcClientFirst): {"AUTHENTICATE " + b64(rfcServerFirst)},
		"AUTHENTICATE " + b64(rfcClientFinal): {"AUTHENTICATE " + b64(rfcServerFinal)},
		"AUTHENTICATE +": {
			":srv 900 * *!*@* user :You are now logged in as user",
			":srv 903 * :SASL authentication successful",
		},
	})

	result, err := Authenticate(context.Background(), conn, newScram("user", "pencil", rfcNonceGen), shortConfig)
	require.NoError(t, err)
	assert.Equal(t, "user", result.Account)
}

func TestAuthenticateFailure(t *testing.T) {
	conn := newScriptedConn(map[string][]string{
		"AUTHENTICATE PLAIN": {"AUTHENTICATE +"},
		"AUTHENTICATE " + b64("\x00alice\x00wrong"): {
			":srv 908 alice PLAIN,EXTERNAL :are available SASL mechanisms",
			":srv 904 alice :SASL authentication failed",
		},
	})

	_, err := Authenticate(context.Background(), conn, Plain("alice", "wrong"), shortConfig)
	var saslErr *Error
	require.True(t, errors.As(err, &saslErr), "got %v", err)
	assert.Equal(t, "904", saslErr.Code)
	assert.Equal(t, "SASL authentication failed", saslErr.Message)
	assert.Equal(t, []string{"PLAIN", "EXTERNAL"}, saslErr.Mechanisms)
}

func TestAuthenticateAbortsOnMechanismError(t *testing.T) {
	conn := newScriptedConn(map[string][]string{
		"AUTHENTICATE SCRAM-SHA-256":          {"AUTHENTICATE +"},
		"AUTHENTICATE " + b64(rfcClientFirst): {"AUTHENTICATE " + b64("r=bogus,s=AAAA,i=4096")},
	})

	_, err := Authenticate(context.Background(), conn, newScram("user", "pencil", rfcNonceGen), shortConfig)
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, ErrNonceMismatch)
	sent := conn.Sent()
	assert.Equal(t, "AUTHENTICATE *", sent[len(sent)-1])
}

func TestAuthenticateTimeout(t *testing.T) {
	conn := newScriptedConn(nil)
	_, err := Authenticate(context.Background(), conn, Plain("a", "b"), shortConfig)
	assert.ErrorIs(t, err, matcher.ErrTimeout)
}

func TestSendResponseChunking(t *testing.T) {
	tests := []struct {
		name       string
		payloadLen int
		wantChunks []int
	}{
		{"empty", 0, []int{1}},
		{"short", 30, []int{40}},
		{"exactly one chunk", 300, []int{400, 1}},
		{"two chunks", 450, []int{400, 200}},
		{"exactly two chunks", 600, []int{400, 400, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newScriptedConn(nil)
			payload := []byte(strings.Repeat("x", tt.payloadLen))
			require.NoError(t, sendResponse(conn, payload))

			var lengths []int
			var joined strings.Builder
			for _, line := range conn.Sent() {
				chunk := strings.TrimPrefix(line, "AUTHENTICATE ")
				lengths = append(lengths, len(chunk))
				if chunk != "+" {
					joined.WriteString(chunk)
				}
			}
			assert.Equal(t, tt.wantChunks, lengths)

			decoded, err := base64.StdEncoding.DecodeString(joined.String())
			require.NoError(t, err)
			assert.Equal(t, payload, decoded)
		})
	}
}

func TestAuthenticateReassemblesChunkedChallenge(t *testing.T) {
	challenge := strings.Repeat("c", 300)
	encoded := b64(challenge)
	require.Len(t, encoded, 400)

	var seen []byte
	mech := &recordingMech{next: func(c []byte) ([]byte, error) {
		seen = append([]byte(nil), c...)
		return nil, nil
	}}
	conn := newScriptedConn(map[string][]string{
		"AUTHENTICATE X-TEST": {"AUTHENTICATE " + encoded, "AUTHENTICATE +"},
		"AUTHENTICATE +":      {":srv 903 * :SASL authentication successful"},
	})

	_, err := Authenticate(context.Background(), conn, mech, shortConfig)
	require.NoError(t, err)
	assert.Equal(t, challenge, string(seen))
}

type recordingMech struct {
	next func([]byte) ([]byte, error)
}

func (m *recordingMech) Name() string                  { return "X-TEST" }
func (m *recordingMech) Next(c []byte) ([]byte, error) { return m.next(c) }
