// Package sasl authenticates an IRC connection with the AUTHENTICATE
// command. It supports PLAIN, EXTERNAL and SCRAM-SHA-256.
//
// Payloads are base64-encoded and split into 400-byte AUTHENTICATE lines; a
// payload that is empty, or whose final chunk is exactly 400 bytes, ends with
// "AUTHENTICATE +". Server challenges are reassembled the same way.
//
// The sasl capability must be acknowledged before Authenticate is called,
// and CAP END sent after it returns.
package sasl
