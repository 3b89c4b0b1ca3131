package session

import (
	"errors"
	"time"
)

// Status is the connection state as reported to operators. The wire
// strings are part of the HTTP API.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusAwaitingScan Status = "qr"
	StatusReady        Status = "ready"
	StatusDisconnected Status = "disconnected"
	StatusAuthFailure  Status = "auth_failure"
)

// ErrNotReady is returned by commands and dispatch guards that require a
// connected session.
var ErrNotReady = errors.New("session: not connected")

// Snapshot is a point-in-time copy of the session state.
type Snapshot struct {
	Status      Status
	QR          string    // data URL; non-empty iff Status == StatusAwaitingScan
	ConnectedAt time.Time // zero unless Status == StatusReady
	Number      string    // paired account address; may lag the ready transition
}

// Ready reports whether the session can send.
func (s Snapshot) Ready() bool { return s.Status == StatusReady }

// Uptime is the time since the ready transition, 0 when not connected.
func (s Snapshot) Uptime() time.Duration {
	if s.ConnectedAt.IsZero() {
		return 0
	}
	return time.Since(s.ConnectedAt)
}

type Config struct {
	// SettleDelay is the wait between tearing the client down and
	// re-initializing it. Immediate re-initialization against a
	// not-yet-released backend session is unreliable.
	SettleDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.SettleDelay <= 0 {
		c.SettleDelay = 2 * time.Second
	}
	return c
}
