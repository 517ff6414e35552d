package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/opd-ai/ircconform/matcher"
	"github.com/opd-ai/ircconform/message"
	"github.com/sirupsen/logrus"
)

// DefaultIdleWindow is how long to wait for a further continuation line
// before treating a multi-line reply as complete.
const DefaultIdleWindow = 300 * time.Millisecond

// Conn is the part of a client connection the negotiator needs.
type Conn interface {
	Send(line string) error
	AwaitMessage(ctx context.Context, p matcher.MessagePredicate, timeout time.Duration) (*message.Message, error)
}

// Config controls negotiation timing.
type Config struct {
	// Timeout bounds the wait for the first reply to each request.
	Timeout time.Duration

	// IdleWindow bounds the wait for each continuation line after the first.
	IdleWindow time.Duration

	// Version is sent with CAP LS. Zero omits it.
	Version int
}

// DefaultConfig returns the default negotiation timing.
func DefaultConfig() *Config {
	return &Config{
		Timeout:    5 * time.Second,
		IdleWindow: DefaultIdleWindow,
		Version:    302,
	}
}

// Result is the server's answer to a CAP REQ.
type Result struct {
	Acked []string
	Naked []string
}

// AllAcked reports whether the server acknowledged every requested capability.
func (r *Result) AllAcked() bool {
	return len(r.Naked) == 0
}

// Negotiator drives CAP exchanges on one connection and tracks which
// capabilities are available and enabled.
type Negotiator struct {
	conn   Conn
	config *Config

	mu        sync.Mutex
	available Set
	enabled   Set
}

// New creates a Negotiator. A nil config uses DefaultConfig.
func New(conn Conn, config *Config) *Negotiator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Negotiator{
		conn:      conn,
		config:    config,
		available: make(Set),
		enabled:   make(Set),
	}
}

// List sends CAP LS and collects the advertised capabilities, following
// "*" continuation lines until the idle window passes without one.
func (n *Negotiator) List(ctx context.Context) (Set, error) {
	line := "CAP LS"
	if n.config.Version > 0 {
		line = fmt.Sprintf("CAP LS %d", n.config.Version)
	}
	set, err := n.collect(ctx, line, "LS")
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.available = set.Clone()
	n.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "List",
		"caps":     set.String(),
	}).Debug("Capabilities advertised")
	return set, nil
}

// Enabled sends CAP LIST and returns the capabilities the server reports as
// enabled for this connection.
func (n *Negotiator) Enabled(ctx context.Context) (Set, error) {
	set, err := n.collect(ctx, "CAP LIST", "LIST")
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.enabled = set.Clone()
	n.mu.Unlock()
	return set, nil
}

func (n *Negotiator) collect(ctx context.Context, line, sub string) (Set, error) {
	if err := n.conn.Send(line); err != nil {
		return nil, fmt.Errorf("cap %s: %w", strings.ToLower(sub), err)
	}

	pred := matcher.Command("CAP", "", sub)
	msg, err := n.conn.AwaitMessage(ctx, pred, n.config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("cap %s: %w", strings.ToLower(sub), err)
	}

	set := make(Set)
	for {
		set.add(msg.Trailing())
		if !isContinuation(msg) {
			return set, nil
		}
		msg, err = n.conn.AwaitMessage(ctx, pred, n.config.IdleWindow)
		if errors.Is(err, matcher.ErrTimeout) {
			logrus.WithFields(logrus.Fields{
				"function": "collect",
				"sub":      sub,
			}).Debug("Continuation idle window expired")
			return set, nil
		}
		if err != nil {
			return nil, fmt.Errorf("cap %s: %w", strings.ToLower(sub), err)
		}
	}
}

// isContinuation reports whether a CAP LS/LIST/ACK line announces more
// lines: "CAP <target> <sub> * :caps".
func isContinuation(msg *message.Message) bool {
	return len(msg.Params) >= 4 && msg.Params[2] == "*"
}

// Request sends CAP REQ for caps and gathers ACK and NAK replies until every
// requested capability is accounted for or the idle window passes. A name
// prefixed with "-" requests disabling.
func (n *Negotiator) Request(ctx context.Context, caps ...string) (*Result, error) {
	if len(caps) == 0 {
		return &Result{}, nil
	}
	line, err := message.Build("CAP", "REQ", strings.Join(caps, " "))
	if err != nil {
		return nil, fmt.Errorf("cap req: %w", err)
	}
	if err := n.conn.Send(line); err != nil {
		return nil, fmt.Errorf("cap req: %w", err)
	}

	outstanding := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		outstanding[strings.TrimPrefix(c, "-")] = struct{}{}
	}

	pred := matcher.Or(matcher.Command("CAP", "", "ACK"), matcher.Command("CAP", "", "NAK"))
	result := &Result{}
	timeout := n.config.Timeout
	for first := true; len(outstanding) > 0; first = false {
		msg, err := n.conn.AwaitMessage(ctx, pred, timeout)
		if err != nil {
			if !first && errors.Is(err, matcher.ErrTimeout) {
				break
			}
			return nil, fmt.Errorf("cap req: %w", err)
		}
		timeout = n.config.IdleWindow

		acked := msg.Param(1) == "ACK"
		for _, token := range strings.Fields(msg.Trailing()) {
			delete(outstanding, strings.TrimPrefix(token, "-"))
			if acked {
				result.Acked = append(result.Acked, token)
			} else {
				result.Naked = append(result.Naked, token)
			}
		}
		if acked {
			n.applyAck(msg.Trailing())
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Request",
		"acked":    result.Acked,
		"naked":    result.Naked,
	}).Debug("Capability request answered")
	return result, nil
}

// End sends CAP END without waiting for a reply.
func (n *Negotiator) End() error {
	if err := n.conn.Send("CAP END"); err != nil {
		return fmt.Errorf("cap end: %w", err)
	}
	return nil
}

// Negotiate lists the server's capabilities, requests those in wanted that
// are available, and ends negotiation.
func (n *Negotiator) Negotiate(ctx context.Context, wanted ...string) (*Result, error) {
	available, err := n.List(ctx)
	if err != nil {
		return nil, err
	}
	result := &Result{}
	if req := available.Intersect(wanted...); len(req) > 0 {
		result, err = n.Request(ctx, req...)
		if err != nil {
			return nil, err
		}
	}
	if err := n.End(); err != nil {
		return nil, err
	}
	return result, nil
}

// Apply updates the tracked state from an unsolicited CAP NEW, DEL or ACK
// message. It reports whether msg was a CAP message it understood.
func (n *Negotiator) Apply(msg *message.Message) bool {
	if msg == nil || msg.Command != "CAP" {
		return false
	}
	switch msg.Param(1) {
	case "NEW":
		n.mu.Lock()
		n.available.add(msg.Trailing())
		n.mu.Unlock()
	case "DEL":
		n.mu.Lock()
		for _, name := range strings.Fields(msg.Trailing()) {
			delete(n.available, name)
			delete(n.enabled, name)
		}
		n.mu.Unlock()
	case "ACK":
		n.applyAck(msg.Trailing())
	default:
		return false
	}
	return true
}

func (n *Negotiator) applyAck(list string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, token := range strings.Fields(list) {
		if name, ok := strings.CutPrefix(token, "-"); ok {
			delete(n.enabled, name)
			continue
		}
		name, _, _ := strings.Cut(token, "=")
		n.enabled[name] = n.available[name]
	}
}

// Available returns the capabilities last advertised by the server.
func (n *Negotiator) Available() Set {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.available.Clone()
}

// Active returns the capabilities enabled so far on this connection.
func (n *Negotiator) Active() Set {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.enabled.Clone()
}
