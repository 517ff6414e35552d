package registration

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneratorNickUnique(t *testing.T) {
	g := NewGenerator("cf")

	const workers, perWorker = 8, 50
	var mu sync.Mutex
	seen := make(map[string]struct{})
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				nick := g.Nick("client")
				mu.Lock()
				seen[nick] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
	for nick := range seen {
		assert.LessOrEqual(t, len(nick), MaxNickLen)
		assert.True(t, strings.HasPrefix(nick, "cf"), nick)
	}
}

func TestGeneratorNames(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		tag    string
		want   string
	}{
		{"default prefix", "", "a", "cfa"},
		{"digit prefix gets letter", "9x", "", "cf9x"},
		{"tag sanitised", "t", "b-o b!", "tbob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nick := NewGenerator(tt.prefix).Nick(tt.tag)
			assert.True(t, strings.HasPrefix(nick, tt.want), nick)
		})
	}
}

func TestGeneratorTruncates(t *testing.T) {
	g := NewGenerator("conformance").WithMaxNickLen(9)
	nick := g.Nick("averyveryverylongtag")
	assert.LessOrEqual(t, len(nick), 9)
	assert.True(t, strings.HasPrefix(nick, "c"))
}

func TestGeneratorChannelAndIdentity(t *testing.T) {
	g := NewGenerator("cf")

	ch := g.Channel("topic")
	assert.True(t, strings.HasPrefix(ch, "#cf-topic"), ch)
	assert.LessOrEqual(t, len(ch), maxChannelLen)
	assert.NotEqual(t, ch, g.Channel("topic"))

	id := g.Identity("bob")
	assert.True(t, strings.HasPrefix(id.Nick, "cfbob"))
	assert.Equal(t, strings.ToLower(id.Nick)[:len(id.User)], id.User)
	assert.LessOrEqual(t, len(id.User), 10)
	assert.Equal(t, "ircconform bob", id.RealName)
	assert.Empty(t, id.Password)
}
