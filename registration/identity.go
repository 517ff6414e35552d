package registration

import (
	"encoding/binary"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// MaxNickLen is the default nickname length generated identities fit in.
const MaxNickLen = 16

// maxChannelLen keeps generated channel names well inside common CHANNELLEN.
const maxChannelLen = 32

// identityCounter makes generated names unique within the process.
var identityCounter atomic.Uint64

// Identity is the set of names a client registers with.
type Identity struct {
	Nick     string
	User     string
	RealName string
	// Password is sent with PASS when set.
	Password string
}

// Generator produces unique nicknames, usernames and channel names so that
// concurrent tests against one server never collide.
type Generator struct {
	prefix     string
	maxNickLen int
}

// NewGenerator creates a Generator whose names start with prefix. An empty
// prefix defaults to "cf".
func NewGenerator(prefix string) *Generator {
	prefix = sanitize(prefix)
	if prefix == "" || !isLetter(prefix[0]) {
		prefix = "cf" + prefix
	}
	return &Generator{prefix: prefix, maxNickLen: MaxNickLen}
}

// WithMaxNickLen returns a copy of g that fits nicknames in n bytes.
func (g *Generator) WithMaxNickLen(n int) *Generator {
	cp := *g
	cp.maxNickLen = n
	return &cp
}

// Nick returns a fresh nickname that includes tag when space allows.
func (g *Generator) Nick(tag string) string {
	return g.compose(g.prefix+sanitize(tag), g.maxNickLen)
}

// Channel returns a fresh channel name.
func (g *Generator) Channel(tag string) string {
	return "#" + g.compose(g.prefix+"-"+sanitize(tag), maxChannelLen-1)
}

// Identity returns a fresh identity whose username matches its nickname.
func (g *Generator) Identity(tag string) Identity {
	nick := g.Nick(tag)
	user := strings.ToLower(nick)
	if len(user) > 10 {
		user = user[:10]
	}
	realName := "ircconform"
	if tag != "" {
		realName += " " + tag
	}
	return Identity{Nick: nick, User: user, RealName: realName}
}

// compose appends a unique suffix to base, truncating base so the result
// fits in limit bytes.
func (g *Generator) compose(base string, limit int) string {
	suffix := strconv.FormatUint(identityCounter.Add(1), 36) + randomSuffix()
	room := limit - len(suffix)
	if room < 1 {
		room = 1
	}
	if len(base) > room {
		base = base[:room]
	}
	return base + suffix
}

// randomSuffix returns three base36 characters drawn from a random UUID, so
// names from separate processes differ too.
func randomSuffix() string {
	id := uuid.New()
	s := strconv.FormatUint(uint64(binary.BigEndian.Uint32(id[:4])), 36)
	for len(s) < 3 {
		s = "0" + s
	}
	return s[len(s)-3:]
}

func sanitize(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isLetter(c) || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
