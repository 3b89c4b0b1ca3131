package session

import (
	"context"
	"sync"
	"time"

	"wagate/internal/services/contacts"
	"wagate/internal/storage"
	"wagate/internal/transport"
	logx "wagate/pkg/logx"
	"wagate/pkg/qrimg"
)

type Service struct {
	cfg    Config
	client transport.Client
	creds  *storage.CredentialStore
	cache  *contacts.Cache
	log    logx.Logger

	mu sync.Mutex
	st Snapshot

	// pending delayed re-initialization; replaced, never stacked
	reinitMu sync.Mutex
	reinit   *time.Timer

	renderQR func(token string) (string, error)
}

func New(cfg Config, client transport.Client, creds *storage.CredentialStore, cache *contacts.Cache, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		client:   client,
		creds:    creds,
		cache:    cache,
		log:      log,
		st:       Snapshot{Status: StatusInitializing},
		renderQR: qrimg.DataURL,
	}
}

// Snapshot returns a copy of the current session state.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// Ready reports whether the session can send right now.
func (s *Service) Ready() bool { return s.Snapshot().Ready() }

// Run consumes lifecycle events until ctx is cancelled or the channel
// closes. It is the only goroutine that applies event-driven transitions.
func (s *Service) Run(ctx context.Context, events <-chan transport.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.handle(ctx, ev)
		}
	}
}

// Close cancels any pending delayed re-initialization.
func (s *Service) Close() {
	s.reinitMu.Lock()
	if s.reinit != nil {
		s.reinit.Stop()
		s.reinit = nil
	}
	s.reinitMu.Unlock()
}

func (s *Service) handle(ctx context.Context, ev transport.Event) {
	switch ev.Kind {
	case transport.EventQR:
		// Render before touching state so the status flip and the image
		// land together.
		img, err := s.renderQR(ev.Code)
		if err != nil {
			s.log.Error("pairing token render failed", logx.Err(err))
			return
		}
		s.mu.Lock()
		s.st = Snapshot{Status: StatusAwaitingScan, QR: img}
		s.mu.Unlock()
		s.log.Info("pairing token issued, awaiting scan")

	case transport.EventReady:
		s.enterReady()
		// Secondary work must not block the transition: the account
		// number and the contact snapshot resolve in the background.
		go s.afterReady(ctx)

	case transport.EventAuthenticated:
		// Some backends emit authenticated alongside ready. Entering
		// ready twice is harmless; the first transition wins.
		s.log.Info("authenticated")
		s.enterReady()

	case transport.EventDisconnected:
		s.mu.Lock()
		s.st = Snapshot{Status: StatusDisconnected}
		s.mu.Unlock()
		s.cache.Clear()
		s.log.Warn("disconnected", logx.String("reason", ev.Reason))

	case transport.EventAuthFailure:
		s.mu.Lock()
		s.st = Snapshot{Status: StatusAuthFailure}
		s.mu.Unlock()
		s.cache.Clear()
		s.log.Error("authentication failed", logx.String("reason", ev.Reason))

	case transport.EventLoading:
		s.log.Debug("loading", logx.Int("percent", ev.Percent))

	default:
		s.log.Debug("unhandled lifecycle event", logx.String("kind", string(ev.Kind)))
	}
}

func (s *Service) enterReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.Status == StatusReady {
		return
	}
	s.st = Snapshot{Status: StatusReady, ConnectedAt: time.Now()}
	s.log.Info("session ready")
}

// afterReady resolves the paired account number and refreshes the contact
// snapshot. Both are best-effort: failures are logged and the ready state
// stands.
func (s *Service) afterReady(ctx context.Context) {
	if number, err := s.client.Self(ctx); err != nil {
		s.log.Warn("account number lookup failed", logx.Err(err))
	} else {
		s.mu.Lock()
		// The session may have dropped while we were fetching.
		if s.st.Status == StatusReady {
			s.st.Number = number
		}
		s.mu.Unlock()
	}

	if err := s.cache.Refresh(ctx); err != nil {
		s.log.Warn("contact refresh failed", logx.Err(err))
	}
}

// scheduleReinit arms the settling-delay timer for a fresh Initialize.
// A pending timer is replaced, not stacked, so rapid restarts cannot race
// two concurrent initializations.
func (s *Service) scheduleReinit() {
	s.reinitMu.Lock()
	defer s.reinitMu.Unlock()
	if s.reinit != nil {
		s.reinit.Stop()
	}
	s.reinit = time.AfterFunc(s.cfg.SettleDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.client.Initialize(ctx); err != nil {
			// Surfaces through status polling only; the command that
			// scheduled this already reported success.
			s.log.Error("re-initialize failed", logx.Err(err))
		}
	})
}
