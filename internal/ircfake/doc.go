// Package ircfake is a small in-process IRC server used to exercise the
// harness in tests and in self-test runs of the conformance suite.
//
// It implements enough of the client protocol for registration, CAP 302
// negotiation, SASL PLAIN, channels, PRIVMSG/NOTICE with echo-message and
// client tags, and TOPIC. It is not a conformant server and should never be
// used as a reference for server behaviour.
package ircfake
