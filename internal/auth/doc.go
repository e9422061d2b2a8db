// Package auth supplies authentication state and short-lived tokens for
// the gateway handshake.
//
// The connection manager asks a TokenProvider two things: whether a
// connect attempt may proceed at all, and for a fresh credential to put
// on the connection URI. Tokens are fetched per connection attempt, not
// cached across them.
package auth
