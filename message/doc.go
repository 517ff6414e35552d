// Package message provides the IRC message model used by the conformance harness.
//
// # Overview
//
// A framed line from the server is turned into a [Message] by [Parse]. The
// grammar is the IRCv3 wire format:
//
//	[@tags ][:prefix ]COMMAND [params...] [:trailing]
//
// Tokenising and tag unescaping are delegated to
// github.com/ergochat/irc-go/ircmsg. Parse never fails loudly: a line that
// cannot be parsed is reported as unparsed (ok == false) and the caller keeps
// the raw text. Some conformance checks deliberately look at malformed-looking
// lines, so a parse failure is never an error.
//
// # Building Lines
//
// [Build] serialises an outbound line and takes care of the trailing-parameter
// colon:
//
//	line, err := message.Build("PRIVMSG", "#chan", "hello world")
//	// line == "PRIVMSG #chan :hello world"
//
// # Tags
//
// IRCv3 treats a valueless tag and an empty-valued tag as identical, so both
// are stored as "". Use [Message.Tag] to distinguish presence from absence.
package message
