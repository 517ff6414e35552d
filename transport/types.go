package transport

import (
	"errors"
	"fmt"
	"net"
)

// Transport carries IRC lines over a single connection.
//
// Send writes one line and returns without waiting for any reply. ReadLines
// blocks, handing each framed line to the handler in arrival order, and
// returns the terminal cause when the connection ends. Close is idempotent
// and unblocks ReadLines.
type Transport interface {
	Send(line string) error
	ReadLines(handler LineHandler) error
	Close() error
	RemoteAddr() net.Addr
}

// LineHandler receives one framed line without its delimiter.
type LineHandler func(line string)

var (
	// ErrClosed is returned by Send and ReadLines after Close.
	ErrClosed = errors.New("transport closed")

	// ErrLineTooLong is returned when an inbound line exceeds the configured maximum.
	ErrLineTooLong = errors.New("inbound line too long")

	// ErrUnsupportedScheme is returned by Dial for unknown target schemes.
	ErrUnsupportedScheme = errors.New("unsupported target scheme")
)

// Error records a failed transport operation and the address involved.
type Error struct {
	Op   string
	Addr string
	Err  error
}

func (e *Error) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
