package message

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ergochat/irc-go/ircmsg"
)

// Message is the structured decomposition of one protocol line.
type Message struct {
	// Tags holds unescaped IRCv3 message tags. Nil when the line had none.
	Tags map[string]string
	// Prefix is the source without its leading ':'; empty when absent.
	Prefix string
	// Command is the upper-cased command or three-digit numeric.
	Command string
	// Params holds the middle parameters followed by the trailing one.
	Params []string
	// Raw is the line exactly as framed.
	Raw string
	// Seq is the arrival sequence number of the raw line this was parsed from.
	Seq uint64
}

// Parse converts a framed line into a Message. It reports false for empty
// lines, lines without a command, commands that are not valid UTF-8 and
// anything else the grammar rejects. Parameters may carry any bytes.
func Parse(raw string) (*Message, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}

	parsed, err := ircmsg.ParseLine(raw)
	if err != nil || !validCommand(parsed.Command) {
		return nil, false
	}

	msg := &Message{
		Prefix:  parsed.Source,
		Command: parsed.Command,
		Params:  parsed.Params,
		Raw:     raw,
	}
	if tags := parsed.AllTags(); len(tags) > 0 {
		msg.Tags = tags
	}
	return msg, true
}

// validCommand rejects empty and non-UTF-8 commands. ircmsg uppercases the
// command, which turns invalid bytes into U+FFFD, so that rune is refused too.
func validCommand(cmd string) bool {
	return cmd != "" && utf8.ValidString(cmd) && !strings.ContainsRune(cmd, utf8.RuneError)
}

// Build serialises an outbound line without its trailing delimiter.
func Build(command string, params ...string) (string, error) {
	return BuildTagged(nil, command, params...)
}

// BuildTagged serialises an outbound line carrying client tags.
func BuildTagged(tags map[string]string, command string, params ...string) (string, error) {
	if command == "" {
		return "", fmt.Errorf("build line: empty command")
	}
	msg := ircmsg.MakeMessage(tags, "", command, params...)
	line, err := msg.Line()
	if err != nil {
		return "", fmt.Errorf("build %s line: %w", command, err)
	}
	return strings.TrimSuffix(line, "\r\n"), nil
}

// Nick returns the nickname part of the prefix, or the whole prefix when it
// names a server.
func (m *Message) Nick() string {
	if m == nil {
		return ""
	}
	nick := m.Prefix
	if i := strings.IndexAny(nick, "!@"); i >= 0 {
		nick = nick[:i]
	}
	return nick
}

// Param returns the i-th parameter or "" when out of range.
func (m *Message) Param(i int) string {
	if m == nil || i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// Trailing returns the last parameter or "" when there are none.
func (m *Message) Trailing() string {
	if m == nil || len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// Tag returns the value of a tag and whether it was present.
func (m *Message) Tag(name string) (string, bool) {
	if m == nil || m.Tags == nil {
		return "", false
	}
	value, ok := m.Tags[name]
	return value, ok
}

// IsNumeric reports whether the command is a three-digit numeric reply.
func (m *Message) IsNumeric() bool {
	if m == nil || len(m.Command) != 3 {
		return false
	}
	for _, c := range m.Command {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// String returns the raw line.
func (m *Message) String() string {
	if m == nil {
		return "<nil>"
	}
	return m.Raw
}
