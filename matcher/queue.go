package matcher

import (
	"time"

	"github.com/sirupsen/logrus"
)

// waiterState is the lifecycle of a single wait. Transitions happen only
// under the owning matcher's mutex.
type waiterState uint8

const (
	statePending waiterState = iota
	stateResolved
	stateTimedOut
	stateCancelled
)

func (s waiterState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateResolved:
		return "resolved"
	case stateTimedOut:
		return "timed-out"
	case stateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type outcome[T any] struct {
	value T
	err   error
}

type waiter[T any] struct {
	pred    Predicate[T]
	started time.Time
	state   waiterState
	// result has capacity one and receives exactly one outcome.
	result chan outcome[T]
}

// queue holds the live waiters and the unclaimed backlog for one stream.
type queue[T any] struct {
	kind    Kind
	waiters []*waiter[T]
	backlog []T
	// failErr is set when backlog outgrows the limit and cleared by
	// ClearBacklog. It fails waits on this queue only.
	failErr error
}

// offer hands v to the first live waiter that accepts it. It reports whether
// v was consumed.
func (q *queue[T]) offer(v T, name string) bool {
	for i, w := range q.waiters {
		if !safeMatch(w.pred, v, name) {
			continue
		}
		q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
		w.state = stateResolved
		w.result <- outcome[T]{value: v}
		return true
	}
	return false
}

// claim removes and returns the oldest backlog record accepted by p.
func (q *queue[T]) claim(p Predicate[T], name string) (T, bool) {
	for i, v := range q.backlog {
		if safeMatch(p, v, name) {
			q.backlog = append(q.backlog[:i], q.backlog[i+1:]...)
			return v, true
		}
	}
	var zero T
	return zero, false
}

// remove drops w from the live waiters. It reports whether w was still there.
func (q *queue[T]) remove(w *waiter[T]) bool {
	for i, cur := range q.waiters {
		if cur == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// rejectAll fails every live waiter with an error built by errFor.
func (q *queue[T]) rejectAll(state waiterState, errFor func(w *waiter[T]) error) {
	for _, w := range q.waiters {
		w.state = state
		w.result <- outcome[T]{err: errFor(w)}
	}
	q.waiters = nil
}

// safeMatch evaluates p, treating a panicking predicate as a non-match.
func safeMatch[T any](p Predicate[T], v T, name string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "safeMatch",
				"matcher":   name,
				"predicate": p.String(),
				"panic":     r,
			}).Warn("Predicate panicked, treating as no match")
			ok = false
		}
	}()
	return p.Match(v)
}
