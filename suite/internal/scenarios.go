package internal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opd-ai/ircconform"
	"github.com/opd-ai/ircconform/matcher"
	"github.com/opd-ai/ircconform/registration"
)

var (
	// ErrScenarioSkipped is returned by a scenario the server cannot exercise.
	ErrScenarioSkipped = errors.New("scenario skipped")

	// ErrUnknownScenario indicates a scenario name that is not registered.
	ErrUnknownScenario = errors.New("unknown scenario")
)

// ScenarioFunc runs one scenario against a fresh harness. It may record
// observations in metrics.
type ScenarioFunc func(ctx context.Context, h *ircconform.Harness, metrics map[string]interface{}) error

// Scenario is a named conformance check.
type Scenario struct {
	Name        string
	Description string
	Run         ScenarioFunc
}

// negativeWindow bounds negative assertions.
const negativeWindow = 500 * time.Millisecond

// preferredCaps are requested by the cap-req scenario when advertised.
var preferredCaps = []string{"multi-prefix", "server-time", "message-tags", "echo-message", "away-notify"}

// Scenarios returns every built-in scenario in execution order.
func Scenarios() []Scenario {
	return []Scenario{
		{"registration", "NICK/USER registration reaches RPL_WELCOME", runRegistration},
		{"ping", "client PING is answered with a matching PONG", runPing},
		{"cap-ls", "CAP LS 302 returns the capability list", runCapLS},
		{"cap-req", "CAP REQ is answered with ACK or NAK for every capability", runCapReq},
		{"join-part", "JOIN and PART are relayed to channel members", runJoinPart},
		{"privmsg", "PRIVMSG between two clients is delivered", runPrivmsg},
		{"topic", "TOPIC changes are broadcast and reported on join", runTopic},
		{"nick-in-use", "registering a taken nickname yields ERR_NICKNAMEINUSE", runNickInUse},
		{"unknown-command", "unknown commands yield ERR_UNKNOWNCOMMAND", runUnknownCommand},
		{"no-self-echo", "without echo-message the sender does not see its own PRIVMSG", runNoSelfEcho},
	}
}

// ScenarioNames returns the names of all built-in scenarios, sorted.
func ScenarioNames() []string {
	names := make([]string, 0, len(Scenarios()))
	for _, s := range Scenarios() {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// SelectScenarios returns the named scenarios in built-in order. No names
// selects all of them.
func SelectScenarios(names []string) ([]Scenario, error) {
	all := Scenarios()
	if len(names) == 0 {
		return all, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		wanted[n] = true
	}

	selected := make([]Scenario, 0, len(wanted))
	for _, s := range all {
		if wanted[s.Name] {
			selected = append(selected, s)
			delete(wanted, s.Name)
		}
	}
	if len(wanted) > 0 {
		unknown := make([]string, 0, len(wanted))
		for n := range wanted {
			unknown = append(unknown, n)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s (known: %s)", ErrUnknownScenario,
			strings.Join(unknown, ", "), strings.Join(ScenarioNames(), ", "))
	}
	return selected, nil
}

func runRegistration(ctx context.Context, h *ircconform.Harness, metrics map[string]interface{}) error {
	start := time.Now()
	c, err := h.ConnectAndRegister(ctx, "reg", nil)
	if err != nil {
		return err
	}
	metrics["nick"] = c.Nick()
	metrics["registration_time"] = time.Since(start)
	if !c.Registered() {
		return fmt.Errorf("client not marked registered after RPL_WELCOME")
	}
	return nil
}

func runPing(ctx context.Context, h *ircconform.Harness, metrics map[string]interface{}) error {
	c, err := h.ConnectAndRegister(ctx, "ping", nil)
	if err != nil {
		return err
	}
	token := "ircconform-" + c.ID()[:8]
	start := time.Now()
	if err := c.SendMessage("PING", token); err != nil {
		return err
	}
	if _, err := c.AwaitMessage(ctx, matcher.Command("PONG", "", token), 0); err != nil {
		return err
	}
	metrics["round_trip"] = time.Since(start)
	return nil
}

func runCapLS(ctx context.Context, h *ircconform.Harness, metrics map[string]interface{}) error {
	c, err := h.Connect(ctx)
	if err != nil {
		return err
	}
	caps, err := c.Negotiator().List(ctx)
	if err != nil {
		return err
	}
	metrics["capabilities"] = caps.String()
	metrics["count"] = len(caps)
	return c.Negotiator().End()
}

func runCapReq(ctx context.Context, h *ircconform.Harness, metrics map[string]interface{}) error {
	c, err := h.Connect(ctx)
	if err != nil {
		return err
	}
	caps, err := c.Negotiator().List(ctx)
	if err != nil {
		return err
	}
	wanted := caps.Intersect(preferredCaps...)
	if len(wanted) == 0 {
		return fmt.Errorf("%w: server advertises none of %v", ErrScenarioSkipped, preferredCaps)
	}

	result, err := c.Negotiator().Request(ctx, wanted...)
	if err != nil {
		return err
	}
	metrics["acked"] = result.Acked
	metrics["naked"] = result.Naked
	if !result.AllAcked() {
		return fmt.Errorf("advertised capabilities were refused: %v", result.Naked)
	}

	enabled, err := c.Negotiator().Enabled(ctx)
	if err != nil {
		return err
	}
	for _, name := range result.Acked {
		if !enabled.Has(name) {
			return fmt.Errorf("CAP LIST omits acknowledged capability %s", name)
		}
	}
	return c.Negotiator().End()
}

func runJoinPart(ctx context.Context, h *ircconform.Harness, metrics map[string]interface{}) error {
	a, b, channel, err := joinPair(ctx, h, "jp")
	if err != nil {
		return err
	}
	metrics["channel"] = channel

	if err := b.SendMessage("PART", channel, "leaving"); err != nil {
		return err
	}
	_, err = a.AwaitMessage(ctx, matcher.And(matcher.Command("PART", channel), matcher.FromNick(b.Nick())), 0)
	return err
}

func runPrivmsg(ctx context.Context, h *ircconform.Harness, metrics map[string]interface{}) error {
	a, err := h.ConnectAndRegister(ctx, "pa", nil)
	if err != nil {
		return err
	}
	b, err := h.ConnectAndRegister(ctx, "pb", nil)
	if err != nil {
		return err
	}

	text := "conformance check " + a.ID()[:8]
	if err := a.SendMessage("PRIVMSG", b.Nick(), text); err != nil {
		return err
	}
	msg, err := b.AwaitMessage(ctx, matcher.And(matcher.Command("PRIVMSG", b.Nick()), matcher.FromNick(a.Nick())), 0)
	if err != nil {
		return err
	}
	if msg.Trailing() != text {
		return fmt.Errorf("PRIVMSG text = %q, want %q", msg.Trailing(), text)
	}
	metrics["tags"] = len(msg.Tags)
	return nil
}

func runTopic(ctx context.Context, h *ircconform.Harness, metrics map[string]interface{}) error {
	a, err := h.ConnectAndRegister(ctx, "ta", nil)
	if err != nil {
		return err
	}
	channel := h.Identities().Channel("topic")
	if err := a.SendMessage("JOIN", channel); err != nil {
		return err
	}
	if _, err := a.AwaitMessage(ctx, matcher.Command("366", "", channel), 0); err != nil {
		return err
	}

	topic := "ircconform topic " + a.ID()[:8]
	if err := a.SendMessage("TOPIC", channel, topic); err != nil {
		return err
	}
	if _, err := a.AwaitMessage(ctx, matcher.Command("TOPIC", channel, topic), 0); err != nil {
		return err
	}

	b, err := h.ConnectAndRegister(ctx, "tb", nil)
	if err != nil {
		return err
	}
	if err := b.SendMessage("JOIN", channel); err != nil {
		return err
	}
	reply, err := b.AwaitMessage(ctx, matcher.Command("332", "", channel), 0)
	if err != nil {
		return err
	}
	if reply.Trailing() != topic {
		return fmt.Errorf("RPL_TOPIC = %q, want %q", reply.Trailing(), topic)
	}
	metrics["channel"] = channel
	return nil
}

func runNickInUse(ctx context.Context, h *ircconform.Harness, metrics map[string]interface{}) error {
	a, err := h.ConnectAndRegister(ctx, "taken", nil)
	if err != nil {
		return err
	}
	b, err := h.Connect(ctx)
	if err != nil {
		return err
	}

	id := h.Identities().Identity("second")
	id.Nick = a.Nick()
	_, err = b.Register(ctx, id, nil)
	if err == nil {
		return fmt.Errorf("registration as %s succeeded twice", a.Nick())
	}
	var regErr *registration.Error
	if !errors.As(err, &regErr) {
		return err
	}
	metrics["code"] = regErr.Code
	if regErr.Code != "433" {
		return fmt.Errorf("got %s, want 433", regErr.Code)
	}
	return nil
}

func runUnknownCommand(ctx context.Context, h *ircconform.Harness, metrics map[string]interface{}) error {
	c, err := h.ConnectAndRegister(ctx, "unk", nil)
	if err != nil {
		return err
	}
	if err := c.Send("IRCCONFORMBOGUS arg"); err != nil {
		return err
	}
	_, err = c.AwaitMessage(ctx, matcher.Command("421", "", "IRCCONFORMBOGUS"), 0)
	return err
}

func runNoSelfEcho(ctx context.Context, h *ircconform.Harness, metrics map[string]interface{}) error {
	a, b, channel, err := joinPair(ctx, h, "echo")
	if err != nil {
		return err
	}

	if err := a.SendMessage("PRIVMSG", channel, "no echo expected"); err != nil {
		return err
	}
	if _, err := b.AwaitMessage(ctx, matcher.And(matcher.Command("PRIVMSG", channel), matcher.FromNick(a.Nick())), 0); err != nil {
		return err
	}
	metrics["window"] = negativeWindow
	return a.ExpectNoMessage(ctx, matcher.Command("PRIVMSG", channel), negativeWindow)
}

// joinPair registers two clients and joins both to a fresh channel. It
// returns once the first has seen the second join.
func joinPair(ctx context.Context, h *ircconform.Harness, tag string) (*ircconform.Client, *ircconform.Client, string, error) {
	a, err := h.ConnectAndRegister(ctx, tag+"a", nil)
	if err != nil {
		return nil, nil, "", err
	}
	b, err := h.ConnectAndRegister(ctx, tag+"b", nil)
	if err != nil {
		return nil, nil, "", err
	}

	channel := h.Identities().Channel(tag)
	for _, c := range []*ircconform.Client{a, b} {
		if err := c.SendMessage("JOIN", channel); err != nil {
			return nil, nil, "", err
		}
		if _, err := c.AwaitMessage(ctx, matcher.Command("366", "", channel), 0); err != nil {
			return nil, nil, "", err
		}
	}
	if _, err := a.AwaitMessage(ctx, matcher.And(matcher.Command("JOIN", channel), matcher.FromNick(b.Nick())), 0); err != nil {
		return nil, nil, "", err
	}
	return a, b, channel, nil
}
