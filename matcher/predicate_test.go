package matcher

import (
	"regexp"
	"testing"

	"github.com/opd-ai/ircconform/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, line string) *message.Message {
	t.Helper()
	msg, ok := message.Parse(line)
	require.True(t, ok, "line %q did not parse", line)
	return msg
}

func TestRawPredicates(t *testing.T) {
	line := RawLine{Seq: 1, Text: ":srv PING :token"}

	tests := []struct {
		name string
		pred RawPredicate
		want bool
	}{
		{"regexp match", Regexp(regexp.MustCompile(`PING :\w+$`)), true},
		{"regexp miss", MatchRegexp(`^PONG`), false},
		{"contains", Contains("PING"), true},
		{"contains miss", Contains("PONG"), false},
		{"equals", Equals(":srv PING :token"), true},
		{"equals miss", Equals("PING :token"), false},
		{"any", AnyRaw(), true},
		{"zero predicate", RawPredicate{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred.Match(line))
		})
	}
}

func TestMessagePredicates(t *testing.T) {
	privmsg := mustParse(t, "@msgid=42;+draft/reply :Alice!a@host PRIVMSG #chan :hello")
	welcome := mustParse(t, ":irc.example 001 alice :Welcome")

	tests := []struct {
		name string
		pred MessagePredicate
		msg  *message.Message
		want bool
	}{
		{"command", Command("PRIVMSG"), privmsg, true},
		{"command lower case", Command("privmsg"), privmsg, true},
		{"command with target", Command("PRIVMSG", "#chan"), privmsg, true},
		{"command wrong target", Command("PRIVMSG", "#other"), privmsg, false},
		{"command wildcard", Command("PRIVMSG", "", "hello"), privmsg, true},
		{"command too many params", Command("PRIVMSG", "#chan", "hello", "x"), privmsg, false},
		{"numeric", Numeric("001"), welcome, true},
		{"numeric set", Numeric("432", "433"), welcome, false},
		{"from nick", FromNick("alice"), privmsg, true},
		{"from server", FromNick("irc.example"), welcome, true},
		{"has tag", HasTag("msgid"), privmsg, true},
		{"has valueless tag", HasTag("+draft/reply"), privmsg, true},
		{"missing tag", HasTag("time"), welcome, false},
		{"any", AnyMessage(), welcome, true},
		{"nil message", Command("PRIVMSG"), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred.Match(tt.msg))
		})
	}
}

func TestCombinators(t *testing.T) {
	msg := mustParse(t, ":bob!b@h NOTICE alice :hi")

	and := And(Command("NOTICE"), FromNick("bob"))
	assert.True(t, and.Match(msg))
	assert.Equal(t, "and(NOTICE, from bob)", and.String())

	or := Or(Numeric("001"), Command("NOTICE"))
	assert.True(t, or.Match(msg))

	not := Not(FromNick("bob"))
	assert.False(t, not.Match(msg))
	assert.Equal(t, "not(from bob)", not.String())

	described := Describe("bob's notice", and)
	assert.True(t, described.Match(msg))
	assert.Equal(t, "bob's notice", described.String())

	assert.Equal(t, "<predicate>", MessagePredicate{}.String())
	assert.Equal(t, `PRIVMSG #chan *`, Command("privmsg", "#chan", "").String())
}
