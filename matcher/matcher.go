package matcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/ircconform/limits"
	"github.com/opd-ai/ircconform/message"
	"github.com/sirupsen/logrus"
)

// Config configures a Matcher.
type Config struct {
	// BacklogLimit bounds each backlog (raw and parsed). Zero means unbounded.
	BacklogLimit int

	// TimeProvider measures wait durations. Nil uses the system clock.
	TimeProvider TimeProvider

	// Name identifies the matcher in logs, usually the client id.
	Name string
}

// DefaultConfig returns a Config with the default backlog limit.
func DefaultConfig() *Config {
	return &Config{BacklogLimit: limits.DefaultBacklogLimit}
}

// Matcher multiplexes the ordered stream of lines from one connection into
// any number of concurrent predicate waits.
//
// Every record is delivered at most once: either to the first live waiter
// that accepts it, or to the backlog where a later waiter may claim it.
type Matcher struct {
	mu    sync.Mutex
	name  string
	limit int
	tp    TimeProvider

	seq    uint64
	raw    queue[RawLine]
	parsed queue[*message.Message]

	// closeErr is set once by Close and never cleared.
	closeErr error
}

// New creates a Matcher. A nil config uses DefaultConfig.
func New(config *Config) *Matcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &Matcher{
		name:   config.Name,
		limit:  config.BacklogLimit,
		tp:     clockOrSystem(config.TimeProvider),
		raw:    queue[RawLine]{kind: KindRaw},
		parsed: queue[*message.Message]{kind: KindParsed},
	}
}

// Feed records one framed line. The raw record is offered to raw waiters,
// then the parsed record (if the line parses) to parsed waiters. Lines fed
// after Close are ignored.
func (m *Matcher) Feed(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closeErr != nil {
		return
	}
	m.seq++
	line := RawLine{Seq: m.seq, Text: text}

	if m.raw.failErr == nil {
		if !m.raw.offer(line, m.name) {
			m.raw.backlog = append(m.raw.backlog, line)
		}
		overflow(m, &m.raw)
	}

	if m.parsed.failErr == nil {
		if msg, ok := message.Parse(text); ok {
			msg.Seq = line.Seq
			if !m.parsed.offer(msg, m.name) {
				m.parsed.backlog = append(m.parsed.backlog, msg)
			}
			overflow(m, &m.parsed)
		}
	}

	if m.raw.failErr != nil || m.parsed.failErr != nil {
		logrus.WithFields(logrus.Fields{
			"function":      "Feed",
			"matcher":       m.name,
			"seq":           line.Seq,
			"raw_failed":    m.raw.failErr != nil,
			"parsed_failed": m.parsed.failErr != nil,
		}).Debug("Discarding records for an overflowed backlog")
	}
}

// overflow fails q once its backlog outgrows the limit. Waits on the other
// queue are unaffected.
func overflow[T any](m *Matcher, q *queue[T]) {
	if m.limit <= 0 || len(q.backlog) <= m.limit {
		return
	}
	q.failErr = fmt.Errorf("%w: more than %d unclaimed %s records", ErrBacklogOverflow, m.limit, q.kind)
	q.backlog = nil
	logrus.WithFields(logrus.Fields{
		"function": "Feed",
		"matcher":  m.name,
		"kind":     q.kind.String(),
		"limit":    m.limit,
	}).Warn("Backlog overflow, failing pending and future waits until cleared")

	q.rejectAll(stateCancelled, func(w *waiter[T]) error {
		return m.waitError(q.kind, w.pred.String(), w.started, q.failErr)
	})
}

// AwaitRaw waits until a raw line matching p is available and returns it.
// A non-positive timeout waits until ctx is done.
func (m *Matcher) AwaitRaw(ctx context.Context, p RawPredicate, timeout time.Duration) (RawLine, error) {
	return await(ctx, m, &m.raw, p, timeout)
}

// AwaitMessage waits until a parsed message matching p is available and
// returns it. A non-positive timeout waits until ctx is done.
func (m *Matcher) AwaitMessage(ctx context.Context, p MessagePredicate, timeout time.Duration) (*message.Message, error) {
	return await(ctx, m, &m.parsed, p, timeout)
}

// ExpectNoRaw asserts that no raw line matching p is available within
// window. It returns nil when the window passes quietly.
func (m *Matcher) ExpectNoRaw(ctx context.Context, p RawPredicate, window time.Duration) error {
	line, err := await(ctx, m, &m.raw, p, window)
	return m.expectNone(KindRaw, p.String(), line.Text, err)
}

// ExpectNoMessage asserts that no parsed message matching p is available
// within window. It returns nil when the window passes quietly.
func (m *Matcher) ExpectNoMessage(ctx context.Context, p MessagePredicate, window time.Duration) error {
	msg, err := await(ctx, m, &m.parsed, p, window)
	return m.expectNone(KindParsed, p.String(), msg.String(), err)
}

func (m *Matcher) expectNone(kind Kind, desc, record string, err error) error {
	switch {
	case err == nil:
		return &WaitError{Kind: kind, Predicate: desc, Record: record, Err: ErrUnexpectedMatch}
	case errors.Is(err, ErrTimeout):
		return nil
	default:
		return err
	}
}

// await implements the shared wait protocol: claim from the backlog first,
// otherwise go live and race the outcome against the deadline.
func await[T any](ctx context.Context, m *Matcher, q *queue[T], p Predicate[T], timeout time.Duration) (T, error) {
	var zero T
	start := m.tp.Now()

	m.mu.Lock()
	if err := terminalLocked(m, q); err != nil {
		m.mu.Unlock()
		return zero, m.waitError(q.kind, p.String(), start, err)
	}
	if v, ok := q.claim(p, m.name); ok {
		m.mu.Unlock()
		return v, nil
	}
	w := &waiter[T]{pred: p, started: start, result: make(chan outcome[T], 1)}
	q.waiters = append(q.waiters, w)
	m.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case o := <-w.result:
		return o.value, o.err
	case <-expired:
		return abandon(m, q, w, stateTimedOut, ErrTimeout)
	case <-ctx.Done():
		return abandon(m, q, w, stateCancelled, ctx.Err())
	}
}

// abandon withdraws a waiter whose deadline passed. If the waiter was
// resolved concurrently, the delivered outcome wins.
func abandon[T any](m *Matcher, q *queue[T], w *waiter[T], state waiterState, cause error) (T, error) {
	m.mu.Lock()
	if w.state != statePending {
		m.mu.Unlock()
		o := <-w.result
		return o.value, o.err
	}
	q.remove(w)
	w.state = state
	m.mu.Unlock()

	err := m.waitError(q.kind, w.pred.String(), w.started, cause)
	logrus.WithFields(logrus.Fields{
		"function":  "await",
		"matcher":   m.name,
		"kind":      q.kind.String(),
		"predicate": w.pred.String(),
		"state":     state.String(),
	}).Debug("Wait ended without a match")
	var zero T
	return zero, err
}

func terminalLocked[T any](m *Matcher, q *queue[T]) error {
	if m.closeErr != nil {
		return m.closeErr
	}
	return q.failErr
}

func (m *Matcher) waitError(kind Kind, desc string, started time.Time, err error) error {
	return &WaitError{Kind: kind, Predicate: desc, Elapsed: m.tp.Since(started), Err: err}
}

// ClearBacklog discards every unclaimed record and resets an overflow.
func (m *Matcher) ClearBacklog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw.backlog = nil
	m.parsed.backlog = nil
	m.raw.failErr = nil
	m.parsed.failErr = nil
}

// Backlog returns a snapshot of the unclaimed records in arrival order.
func (m *Matcher) Backlog() ([]RawLine, []*message.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw := make([]RawLine, len(m.raw.backlog))
	copy(raw, m.raw.backlog)
	parsed := make([]*message.Message, len(m.parsed.backlog))
	copy(parsed, m.parsed.backlog)
	return raw, parsed
}

// Pending returns the number of live raw and parsed waiters.
func (m *Matcher) Pending() (raw, parsed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.raw.waiters), len(m.parsed.waiters)
}

// Seq returns the sequence number of the most recently fed line.
func (m *Matcher) Seq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

// Err returns the close error, else the first backlog overflow (raw before
// parsed), or nil while the matcher is healthy.
func (m *Matcher) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeErr != nil {
		return m.closeErr
	}
	if m.raw.failErr != nil {
		return m.raw.failErr
	}
	return m.parsed.failErr
}

// Close cancels every pending waiter with ErrConnectionClosed wrapping cause.
// Later waits fail immediately with the same error. Close is idempotent; only
// the first cause is kept.
func (m *Matcher) Close(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeErr != nil {
		return
	}
	if cause != nil {
		m.closeErr = fmt.Errorf("%w: %w", ErrConnectionClosed, cause)
	} else {
		m.closeErr = ErrConnectionClosed
	}

	rawPending, parsedPending := len(m.raw.waiters), len(m.parsed.waiters)
	m.raw.rejectAll(stateCancelled, func(w *waiter[RawLine]) error {
		return m.waitError(KindRaw, w.pred.String(), w.started, m.closeErr)
	})
	m.parsed.rejectAll(stateCancelled, func(w *waiter[*message.Message]) error {
		return m.waitError(KindParsed, w.pred.String(), w.started, m.closeErr)
	})

	logrus.WithFields(logrus.Fields{
		"function":  "Close",
		"matcher":   m.name,
		"cause":     cause,
		"cancelled": rawPending + parsedPending,
	}).Debug("Matcher closed")
}
