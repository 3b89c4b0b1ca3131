package session

import (
	"context"
	"fmt"

	logx "wagate/pkg/logx"
)

// Logout invalidates the session server-side. Valid only while ready;
// otherwise ErrNotReady is returned and no state changes.
func (s *Service) Logout(ctx context.Context) error {
	if !s.Ready() {
		return ErrNotReady
	}
	if err := s.client.Logout(ctx); err != nil {
		// A failed logout leaves the prior status intact; if the backend
		// dropped the connection anyway it will say so with its own
		// disconnected event.
		return fmt.Errorf("logout: %w", err)
	}
	s.mu.Lock()
	s.st = Snapshot{Status: StatusDisconnected}
	s.mu.Unlock()
	s.cache.Clear()
	s.log.Info("logged out")
	return nil
}

// Restart tears the client down and schedules a re-initialization after
// the settling delay. Stored credentials survive, so the session may
// reconnect without a new pairing.
func (s *Service) Restart(ctx context.Context) error {
	if err := s.client.Destroy(ctx); err != nil {
		return fmt.Errorf("restart: teardown: %w", err)
	}
	s.mu.Lock()
	s.st = Snapshot{Status: StatusInitializing}
	s.mu.Unlock()
	s.scheduleReinit()
	s.log.Info("restart scheduled", logx.Duration("settle", s.cfg.SettleDelay))
	return nil
}

// Reconnect re-initializes a dropped session in place. Anything other
// than disconnected/auth-failure is already connected or connecting, so
// the call is an idempotent no-op.
func (s *Service) Reconnect(ctx context.Context) error {
	st := s.Snapshot().Status
	if st != StatusDisconnected && st != StatusAuthFailure {
		s.log.Debug("reconnect ignored", logx.String("status", string(st)))
		return nil
	}
	if err := s.client.Initialize(ctx); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	s.log.Info("reconnect started")
	return nil
}

// DeleteSession tears everything down: client, stored credentials, session
// fields, contact snapshot. The next initialization starts a fresh pairing.
// Teardown errors are logged but do not stop the wipe or the reset.
func (s *Service) DeleteSession(ctx context.Context) error {
	if err := s.client.Destroy(ctx); err != nil {
		s.log.Warn("teardown failed during session delete", logx.Err(err))
	}

	wipeErr := s.creds.Wipe()
	if wipeErr == nil {
		// Recreate the directory so the scheduled re-initialize can open
		// a fresh device store inside it.
		wipeErr = s.creds.Ensure()
	}

	s.mu.Lock()
	s.st = Snapshot{Status: StatusInitializing}
	s.mu.Unlock()
	s.cache.Clear()
	s.scheduleReinit()

	if wipeErr != nil {
		return fmt.Errorf("delete session: %w", wipeErr)
	}
	s.log.Info("session deleted, fresh pairing required", logx.Duration("settle", s.cfg.SettleDelay))
	return nil
}
