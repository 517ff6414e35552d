package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircreader"
	"github.com/opd-ai/ircconform/limits"
	"github.com/sirupsen/logrus"
)

const readInitialSize = 512

// TCPTransport carries "\r\n"-delimited lines over a stream connection. It
// serves plain TCP, TLS and proxied connections alike.
type TCPTransport struct {
	conn         net.Conn
	maxLine      int
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewTCPTransport wraps an established connection. A nil config uses
// DefaultConfig.
func NewTCPTransport(conn net.Conn, config *Config) *TCPTransport {
	if config == nil {
		config = DefaultConfig()
	}
	return &TCPTransport{
		conn:         conn,
		maxLine:      config.MaxLineLength,
		writeTimeout: config.WriteTimeout,
		closed:       make(chan struct{}),
	}
}

// Send writes line followed by "\r\n". A trailing delimiter already present
// on line is replaced rather than doubled.
func (t *TCPTransport) Send(line string) error {
	if t.isClosed() {
		return ErrClosed
	}
	data := []byte(limits.TrimDelimiter(line) + "\r\n")

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return &Error{Op: "send", Addr: t.addr(), Err: err}
		}
	}
	if _, err := t.conn.Write(data); err != nil {
		if t.isClosed() {
			return ErrClosed
		}
		return &Error{Op: "send", Addr: t.addr(), Err: err}
	}
	return nil
}

// ReadLines reads until the connection ends. Only delimiter-terminated lines
// are delivered; an unterminated fragment left at end of stream, or when the
// transport is closed locally, is dropped.
func (t *TCPTransport) ReadLines(handler LineHandler) error {
	var reader ircreader.Reader
	size := readBufferSize(t.maxLine)
	reader.Initialize(t.conn, min(readInitialSize, size), size)

	for {
		line, err := reader.ReadLine()
		if err == nil && (t.maxLine <= 0 || len(line) <= t.maxLine) {
			handler(string(line))
			continue
		}
		if t.isClosed() {
			return ErrClosed
		}
		if err == nil || errors.Is(err, ircreader.ErrReadQ) {
			logrus.WithFields(logrus.Fields{
				"function": "TCPTransport.ReadLines",
				"remote":   t.addr(),
				"limit":    t.maxLine,
			}).Warn("Terminating connection on oversized line")
			t.Close()
			return fmt.Errorf("%w: limit is %d bytes", ErrLineTooLong, t.maxLine)
		}
		return err
	}
}

// readBufferSize is the most ircreader may buffer: one line of maxLine
// bytes plus its "\r\n".
func readBufferSize(maxLine int) int {
	if maxLine <= 0 {
		maxLine = limits.MaxReadBuffer
	}
	return maxLine + 2
}

// Close closes the connection. Subsequent calls are no-ops.
func (t *TCPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.conn.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
		logrus.WithFields(logrus.Fields{
			"function": "TCPTransport.Close",
			"remote":   t.addr(),
		}).Debug("Transport closed")
	})
	return err
}

// RemoteAddr returns the peer address.
func (t *TCPTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

func (t *TCPTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *TCPTransport) addr() string {
	if a := t.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
