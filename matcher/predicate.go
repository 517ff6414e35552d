package matcher

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/opd-ai/ircconform/message"
)

// RawLine is one framed line as it arrived, tagged with its position in the
// connection's arrival order.
type RawLine struct {
	Seq  uint64
	Text string
}

// Predicate is a described match function over records of type T. The
// description is what appears in wait errors and logs.
type Predicate[T any] struct {
	desc  string
	match func(T) bool
}

// RawPredicate matches raw framed lines.
type RawPredicate = Predicate[RawLine]

// MessagePredicate matches parsed messages.
type MessagePredicate = Predicate[*message.Message]

// NewPredicate wraps fn with a description.
func NewPredicate[T any](desc string, fn func(T) bool) Predicate[T] {
	return Predicate[T]{desc: desc, match: fn}
}

// Match reports whether v satisfies the predicate. A zero Predicate matches
// nothing.
func (p Predicate[T]) Match(v T) bool {
	if p.match == nil {
		return false
	}
	return p.match(v)
}

// String returns the description.
func (p Predicate[T]) String() string {
	if p.desc == "" {
		return "<predicate>"
	}
	return p.desc
}

// Describe returns p with its description replaced.
func Describe[T any](desc string, p Predicate[T]) Predicate[T] {
	return Predicate[T]{desc: desc, match: p.match}
}

// And matches when every predicate matches.
func And[T any](ps ...Predicate[T]) Predicate[T] {
	return Predicate[T]{
		desc: join("and", ps),
		match: func(v T) bool {
			for _, p := range ps {
				if !p.Match(v) {
					return false
				}
			}
			return true
		},
	}
}

// Or matches when any predicate matches.
func Or[T any](ps ...Predicate[T]) Predicate[T] {
	return Predicate[T]{
		desc: join("or", ps),
		match: func(v T) bool {
			for _, p := range ps {
				if p.Match(v) {
					return true
				}
			}
			return false
		},
	}
}

// Not inverts p.
func Not[T any](p Predicate[T]) Predicate[T] {
	return Predicate[T]{
		desc:  "not(" + p.String() + ")",
		match: func(v T) bool { return !p.Match(v) },
	}
}

func join[T any](op string, ps []Predicate[T]) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return op + "(" + strings.Join(parts, ", ") + ")"
}

// Regexp matches raw lines against a compiled pattern.
func Regexp(re *regexp.Regexp) RawPredicate {
	return NewPredicate("raw =~ /"+re.String()+"/", func(l RawLine) bool {
		return re.MatchString(l.Text)
	})
}

// MatchRegexp compiles pattern and returns a raw predicate. It panics on an
// invalid pattern, like regexp.MustCompile.
func MatchRegexp(pattern string) RawPredicate {
	return Regexp(regexp.MustCompile(pattern))
}

// Contains matches raw lines containing substr.
func Contains(substr string) RawPredicate {
	return NewPredicate(fmt.Sprintf("raw contains %q", substr), func(l RawLine) bool {
		return strings.Contains(l.Text, substr)
	})
}

// Equals matches raw lines equal to text.
func Equals(text string) RawPredicate {
	return NewPredicate(fmt.Sprintf("raw == %q", text), func(l RawLine) bool {
		return l.Text == text
	})
}

// AnyRaw matches every raw line.
func AnyRaw() RawPredicate {
	return NewPredicate("any raw", func(RawLine) bool { return true })
}

// AnyMessage matches every parsed message.
func AnyMessage() MessagePredicate {
	return NewPredicate("any message", func(*message.Message) bool { return true })
}

// Command matches messages whose command equals cmd (case-insensitively) and
// whose leading params equal params. An empty string in params matches any
// value at that position, but the position must exist.
func Command(cmd string, params ...string) MessagePredicate {
	cmd = strings.ToUpper(cmd)
	desc := cmd
	if len(params) > 0 {
		desc += " " + strings.Join(wildcards(params), " ")
	}
	return NewPredicate(desc, func(m *message.Message) bool {
		if m == nil || m.Command != cmd || len(m.Params) < len(params) {
			return false
		}
		for i, want := range params {
			if want != "" && m.Params[i] != want {
				return false
			}
		}
		return true
	})
}

// Numeric matches messages carrying any of the given numeric replies.
func Numeric(codes ...string) MessagePredicate {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return NewPredicate("numeric "+strings.Join(codes, "|"), func(m *message.Message) bool {
		if m == nil {
			return false
		}
		_, ok := set[m.Command]
		return ok
	})
}

// FromNick matches messages whose prefix nick equals nick, ignoring ASCII case.
func FromNick(nick string) MessagePredicate {
	return NewPredicate("from "+nick, func(m *message.Message) bool {
		return m != nil && strings.EqualFold(m.Nick(), nick)
	})
}

// HasTag matches messages carrying the named tag, valued or not.
func HasTag(name string) MessagePredicate {
	return NewPredicate("has tag "+name, func(m *message.Message) bool {
		_, ok := m.Tag(name)
		return ok
	})
}

func wildcards(params []string) []string {
	out := make([]string, len(params))
	for i, p := range params {
		if p == "" {
			out[i] = "*"
			continue
		}
		out[i] = p
	}
	return out
}
