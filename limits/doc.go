// Package limits provides centralized line size constants and validation functions
// for the IRC wire format. This package ensures consistent size enforcement across
// the line reader, the client send path and the SASL helper.
//
// # Line Size Hierarchy
//
//   - MaxLineBody (512 bytes): the RFC 1459 body limit including CRLF.
//
//   - MaxTagData (8191 bytes): the IRCv3 message-tags section limit.
//
//   - MaxInboundLine: a tag section plus a body; the largest line a compliant
//     server may emit.
//
//   - MaxReadBuffer (64KB): the absolute maximum for an unterminated fragment.
//     Servers under test are not trusted to terminate their lines.
//
// # Validation Functions
//
//	err := limits.ValidateOutboundLine("PRIVMSG #chan :hello")
//	if err != nil {
//	    // ErrLineEmpty, ErrLineTooLong or ErrLineHasDelimiter
//	}
//
// For custom limits, use ValidateLineSize:
//
//	err := limits.ValidateLineSize(line, 4096)
package limits
