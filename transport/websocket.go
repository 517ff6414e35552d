package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/opd-ai/ircconform/limits"
	"github.com/sirupsen/logrus"
)

// WebSocketTransport carries one IRC line per WebSocket message, without a
// delimiter, as the IRCv3 WebSocket binding requires.
type WebSocketTransport struct {
	conn         *websocket.Conn
	maxLine      int
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewWebSocketTransport wraps an established WebSocket connection.
func NewWebSocketTransport(conn *websocket.Conn, config *Config) *WebSocketTransport {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxLineLength > 0 {
		conn.SetReadLimit(int64(config.MaxLineLength) + 2)
	}
	return &WebSocketTransport{
		conn:         conn,
		maxLine:      config.MaxLineLength,
		writeTimeout: config.WriteTimeout,
		closed:       make(chan struct{}),
	}
}

func dialWebSocket(ctx context.Context, target string, host string, secure bool, config *Config) (*WebSocketTransport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: config.DialTimeout,
		Subprotocols:     config.Subprotocols,
	}
	if secure {
		dialer.TLSClientConfig = config.tlsConfig(host)
	}
	if config.Proxy != nil {
		proxyDial, err := config.Proxy.dialContext()
		if err != nil {
			return nil, err
		}
		dialer.NetDialContext = proxyDial
	}

	header := http.Header{}
	if config.Origin != "" {
		header.Set("Origin", config.Origin)
	}

	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, &Error{Op: "websocket handshake", Addr: target, Err: errors.New(resp.Status)}
		}
		return nil, &Error{Op: "websocket dial", Addr: target, Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"function":    "dialWebSocket",
		"target":      target,
		"subprotocol": conn.Subprotocol(),
	}).Info("WebSocket connection established")

	return NewWebSocketTransport(conn, config), nil
}

// Send writes line as a single text message.
func (t *WebSocketTransport) Send(line string) error {
	if t.isClosed() {
		return ErrClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return &Error{Op: "send", Addr: t.addr(), Err: err}
		}
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(limits.TrimDelimiter(line))); err != nil {
		if t.isClosed() {
			return ErrClosed
		}
		return &Error{Op: "send", Addr: t.addr(), Err: err}
	}
	return nil
}

// ReadLines delivers each message as a line. A message carrying embedded
// delimiters is split so that servers sending "\r\n"-terminated payloads
// are still framed correctly. A normal close frame ends with io.EOF.
func (t *WebSocketTransport) ReadLines(handler LineHandler) error {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if t.isClosed() {
				return ErrClosed
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return io.EOF
			}
			return err
		}

		for _, line := range splitPayload(data) {
			if t.maxLine > 0 && len(line) > t.maxLine {
				t.Close()
				return fmt.Errorf("%w: %d bytes", ErrLineTooLong, len(line))
			}
			handler(line)
		}
	}
}

// splitPayload breaks one message into lines on "\n", dropping a single
// trailing "\r" from each. A trailing delimiter does not start another line
// and an empty message is one empty line.
func splitPayload(data []byte) []string {
	text := strings.TrimSuffix(string(data), "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// Close sends a close frame and closes the connection. Subsequent calls are
// no-ops.
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)

		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := t.conn.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "WebSocketTransport.Close",
				"remote":   t.addr(),
				"error":    werr.Error(),
			}).Debug("Close frame not sent")
		}

		err = t.conn.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}

// RemoteAddr returns the peer address.
func (t *WebSocketTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// Subprotocol returns the subprotocol the server selected.
func (t *WebSocketTransport) Subprotocol() string {
	return t.conn.Subprotocol()
}

func (t *WebSocketTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *WebSocketTransport) addr() string {
	if a := t.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
