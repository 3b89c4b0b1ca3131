// Package gateway exposes the session controller, contact cache, and
// dispatch engine over HTTP.
//
// Handlers validate and translate; all state lives in the services they
// call into. Responses are JSON with permissive CORS, matching what the
// web frontends expect.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"wagate/internal/services/dispatch"
	"wagate/internal/services/session"
	"wagate/internal/transport"
	logx "wagate/pkg/logx"
)

type Config struct {
	Address     string
	AllowOrigin string
}

func (c Config) withDefaults() Config {
	if c.Address == "" {
		c.Address = ":3000"
	}
	if c.AllowOrigin == "" {
		c.AllowOrigin = "*"
	}
	return c
}

// SessionController is the slice of the session service the handlers
// need. *session.Service satisfies it.
type SessionController interface {
	Snapshot() session.Snapshot
	Logout(ctx context.Context) error
	Restart(ctx context.Context) error
	Reconnect(ctx context.Context) error
	DeleteSession(ctx context.Context) error
}

// Dispatcher fans a payload out to recipients. *dispatch.Engine
// satisfies it.
type Dispatcher interface {
	SendText(ctx context.Context, numbers []string, message string) ([]dispatch.Result, error)
	SendMedia(ctx context.Context, numbers []string, media transport.Media, caption string) ([]dispatch.Result, error)
}

// ContactLister serves the cached snapshot. *contacts.Cache satisfies it.
type ContactLister interface {
	All() []transport.Contact
}

// Stager stages uploaded files for media dispatch. *uploads.Service
// satisfies it.
type Stager interface {
	Stage(name, mimeType string, r io.Reader) (transport.Media, error)
	Discard(m transport.Media)
	Dir() string
}

type Server struct {
	cfg      Config
	log      logx.Logger
	sessions SessionController
	engine   Dispatcher
	cache    ContactLister
	uploads  Stager
	started  time.Time

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	addr string
}

func New(cfg Config, sessions SessionController, engine Dispatcher, cache ContactLister, uploads Stager, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		cfg:      cfg.withDefaults(),
		log:      log,
		sessions: sessions,
		engine:   engine,
		cache:    cache,
		uploads:  uploads,
		started:  time.Now(),
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /qr-status", s.handleQRStatus)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /session-info", s.handleSessionInfo)
	mux.HandleFunc("GET /contacts", s.handleContacts)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("POST /restart", s.handleRestart)
	mux.HandleFunc("POST /reconnect", s.handleReconnect)
	mux.HandleFunc("POST /delete-session", s.handleDeleteSession)

	mux.HandleFunc("POST /send-bulk", s.handleSendBulk)
	mux.HandleFunc("POST /send-bulk-media", s.handleSendBulkMedia)

	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(s.uploads.Dir()))))

	return s.cors(mux)
}

// cors applies permissive CORS and short-circuits preflight.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.cfg.AllowOrigin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.srv = srv
	s.ln = ln
	s.addr = ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", logx.String("addr", s.addr), logx.Err(err))
		}
	}()
	s.log.Info("http server listening", logx.String("addr", s.addr))
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	ln := s.ln
	addr := s.addr
	s.srv = nil
	s.ln = nil
	s.addr = ""
	s.mu.Unlock()

	if srv == nil {
		return
	}
	shutdownCtx := ctx
	if shutdownCtx == nil {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("http shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	if ln != nil {
		_ = ln.Close()
	}
}

// Addr reports the actual listen address if running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
