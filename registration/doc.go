// Package registration generates collision-free test identities and performs
// the NICK/USER connection registration handshake.
//
// Register sends the commands and waits for RPL_WELCOME (001). It answers
// PING while waiting and fails fast with *Error on 432, 433, 436, 437, 464,
// 465 or ERROR. A missing welcome fails with ErrRegistrationTimeout, which
// callers can tell apart from an ordinary wait timeout.
//
// When capability negotiation or SASL must happen before the welcome, split
// the handshake:
//
//	registration.Begin(conn, id)
//	// CAP REQ, AUTHENTICATE, CAP END ...
//	result, err := registration.AwaitWelcome(ctx, conn, nil)
package registration
