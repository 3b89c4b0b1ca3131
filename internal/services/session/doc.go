// Package session owns the messaging session's lifecycle.
//
// The Service is the single writer of session state. It consumes typed
// lifecycle events from the connection client on one goroutine (Run) and
// applies operator commands (logout, restart, reconnect, delete-session)
// through methods that funnel into the same state fields. Every state
// transition happens under the state mutex with no I/O in the middle, so
// readers never observe a half-applied transition (e.g. a stale pairing
// image alongside a ready status).
//
// Invariants
//
// The pairing image is present if and only if the status is awaiting a
// scan. ConnectedAt and the account number are set only while ready (the
// number may lag the ready transition briefly; it is resolved by a
// best-effort fetch that does not block the transition).
package session
