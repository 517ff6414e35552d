// Package limits provides centralized line size limits for the IRC wire format.
// This ensures consistent validation across the transport, client and helpers.
package limits

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxLineBody is the RFC 1459 limit for a line body including the trailing CRLF.
	MaxLineBody = 512

	// MaxTagData is the IRCv3 message-tags limit for the tag section,
	// including the leading '@' and the trailing space.
	MaxTagData = 8191

	// MaxInboundLine is the largest inbound line a compliant server may send:
	// a full tag section followed by a full line body.
	MaxInboundLine = MaxTagData + MaxLineBody

	// MaxReadBuffer is the absolute maximum buffered for a single unterminated
	// fragment before the line reader gives up on the stream (64KB).
	MaxReadBuffer = 64 * 1024

	// DefaultBacklogLimit caps each per-connection backlog kind.
	DefaultBacklogLimit = 4096

	// SASLChunkSize is the maximum payload length of one AUTHENTICATE line.
	SASLChunkSize = 400
)

var (
	// ErrLineEmpty indicates an empty outbound line was provided
	ErrLineEmpty = errors.New("empty line")

	// ErrLineTooLong indicates a line exceeds its maximum size
	ErrLineTooLong = errors.New("line too long")

	// ErrLineHasDelimiter indicates an outbound line embeds CR, LF or NUL
	ErrLineHasDelimiter = errors.New("line contains CR, LF or NUL")
)

// ValidateLineSize validates a line against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateLineSize(line string, maxSize int) error {
	if len(line) == 0 {
		return ErrLineEmpty
	}
	if maxSize > 0 && len(line) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrLineTooLong, len(line), maxSize)
	}
	return nil
}

// ValidateOutboundLine checks a line a client is about to send. A single
// trailing CRLF or LF is tolerated and ignored; any other CR, LF or NUL would
// smuggle a second line onto the wire and is rejected.
func ValidateOutboundLine(line string) error {
	body := TrimDelimiter(line)
	if len(body) == 0 {
		return ErrLineEmpty
	}
	if strings.ContainsAny(body, "\r\n\x00") {
		return ErrLineHasDelimiter
	}
	// Client lines may carry client-only tags; allow the tag section on top of the body.
	return ValidateLineSize(body, MaxInboundLine-2)
}

// TrimDelimiter removes one trailing "\r\n" or "\n" from line.
func TrimDelimiter(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
