// Package capability implements the client side of IRCv3 capability
// negotiation (CAP LS, REQ, ACK/NAK, LIST, END) on top of a matcher-backed
// connection.
//
// Multi-line replies are collected by following the "*" continuation marker.
// Because the protocol gives no other end-of-batch signal for late ACK/NAK
// lines, a reply is also treated as complete once Config.IdleWindow passes
// with no further line (300ms by default).
//
//	n := capability.New(client, nil)
//	caps, err := n.List(ctx)
//	result, err := n.Request(ctx, caps.Intersect("sasl", "server-time")...)
//	err = n.End()
package capability
