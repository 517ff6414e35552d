package ircconform

import (
	"errors"
	"fmt"
)

// Common errors for clients and harnesses
var (
	// ErrClientClosed indicates an operation on a client that is closing or closed
	ErrClientClosed = errors.New("client closed")

	// ErrHarnessClosed indicates a connection was requested after Harness.Close
	ErrHarnessClosed = errors.New("harness closed")

	// ErrSASLNotAcked indicates SASL was requested but the server did not acknowledge the sasl capability
	ErrSASLNotAcked = errors.New("sasl capability not acknowledged")
)

// ClientError provides context about a failed client operation.
type ClientError struct {
	Op  string
	ID  string
	Err error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("client %s: %s: %v", e.ID, e.Op, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}
