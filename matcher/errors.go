package matcher

import (
	"errors"
	"fmt"
	"time"
)

// Common errors for waits
var (
	// ErrTimeout indicates no matching record arrived within the deadline
	ErrTimeout = errors.New("wait timed out")

	// ErrConnectionClosed indicates the transport ended while a wait was pending
	ErrConnectionClosed = errors.New("connection closed")

	// ErrBacklogOverflow indicates a backlog exceeded its configured limit
	ErrBacklogOverflow = errors.New("backlog overflow")

	// ErrUnexpectedMatch indicates a negative assertion observed a matching record
	ErrUnexpectedMatch = errors.New("unexpected match")
)

// Kind identifies which stream a waiter observes.
type Kind uint8

const (
	// KindRaw waiters observe every framed line.
	KindRaw Kind = iota
	// KindParsed waiters observe only lines that parsed into a message.
	KindParsed
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindParsed:
		return "parsed"
	default:
		return "unknown"
	}
}

// WaitError reports a failed wait together with the kind of wait, the
// predicate it was waiting on and how long it waited.
type WaitError struct {
	Kind      Kind
	Predicate string
	Elapsed   time.Duration
	// Record is the offending line for ErrUnexpectedMatch failures.
	Record string
	Err    error
}

func (e *WaitError) Error() string {
	if e.Record != "" {
		return fmt.Sprintf("await %s %s: %v after %v: %q", e.Kind, e.Predicate, e.Err, e.Elapsed, e.Record)
	}
	return fmt.Sprintf("await %s %s: %v after %v", e.Kind, e.Predicate, e.Err, e.Elapsed)
}

func (e *WaitError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a wait that expired without a match.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsClosed reports whether err is a wait cancelled by connection close.
func IsClosed(err error) bool {
	return errors.Is(err, ErrConnectionClosed)
}
