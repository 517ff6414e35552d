// Package matcher multiplexes the ordered line stream of one IRC connection
// into many concurrent predicate waits.
//
// # Overview
//
// A Matcher receives every framed line through Feed. Each line is wrapped in
// a RawLine with a per-connection sequence number and, when it parses, also
// as a message.Message. Both records are offered to the live waiters of their
// kind in registration order; the first waiter whose predicate accepts a
// record consumes it. Records nobody accepts go to a backlog.
//
// A new wait first scans the backlog in arrival order and claims the oldest
// matching record. Only when nothing matches does it go live:
//
//	m := matcher.New(nil)
//	m.Feed(":srv 001 alice :Welcome")
//	msg, err := m.AwaitMessage(ctx, matcher.Numeric("001"), time.Second)
//
// # Failure Modes
//
// Waits fail with a *WaitError that wraps one of:
//
//   - ErrTimeout when the deadline passes
//   - ErrConnectionClosed when Close is called, wrapping the close cause
//   - ErrBacklogOverflow when the backlog of the same kind exceeded
//     Config.BacklogLimit; the other kind keeps working
//
// A record that resolves a waiter at the moment its deadline fires is always
// returned to the caller. ExpectNoRaw and ExpectNoMessage invert the result:
// a quiet window is success and a match fails with ErrUnexpectedMatch.
//
// # Predicates
//
// Predicates carry a description for error messages. Raw predicates
// (Regexp, Contains, Equals, AnyRaw) inspect line text; message predicates
// (Command, Numeric, FromNick, HasTag, AnyMessage) inspect parsed fields.
// And, Or, Not and Describe compose either kind.
package matcher
