// Package uploads stages attachment files for dispatch.
//
// The gateway writes each uploaded file here before the dispatch engine
// runs; the engine removes it when the batch completes. A cron sweep
// removes stale leftovers (files orphaned by a crash mid-dispatch).
package uploads

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"wagate/internal/transport"
	logx "wagate/pkg/logx"
)

type Config struct {
	Dir           string
	SweepSchedule string        // cron spec or @every descriptor; empty disables the sweep
	MaxAge        time.Duration // staged files older than this are swept
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Dir) == "" {
		c.Dir = "./uploads"
	}
	if c.MaxAge <= 0 {
		c.MaxAge = time.Hour
	}
	return c
}

type Service struct {
	log logx.Logger

	mu  sync.Mutex
	cfg Config
	c   *cron.Cron
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg.withDefaults(), log: log}
}

// Dir returns the staging directory.
func (s *Service) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Dir
}

// Stage writes r to a unique file in the staging dir and returns a Media
// handle for the dispatch engine. The original filename survives (sanitized)
// as the suffix so the backend can present it; the random prefix keeps
// concurrent uploads of the same name from colliding.
func (s *Service) Stage(name, mimeType string, r io.Reader) (transport.Media, error) {
	s.mu.Lock()
	dir := s.cfg.Dir
	s.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return transport.Media{}, fmt.Errorf("uploads: mkdir: %w", err)
	}

	name = sanitizeName(name)
	f, err := os.CreateTemp(dir, "*-"+name)
	if err != nil {
		return transport.Media{}, fmt.Errorf("uploads: create: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return transport.Media{}, fmt.Errorf("uploads: write: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return transport.Media{}, fmt.Errorf("uploads: close: %w", err)
	}

	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(name))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return transport.Media{Path: f.Name(), MimeType: mimeType, FileName: name}, nil
}

// Discard removes a staged file that will not be dispatched.
func (s *Service) Discard(m transport.Media) {
	if m.Path == "" {
		return
	}
	if err := os.Remove(m.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("discard failed", logx.String("path", m.Path), logx.Err(err))
	}
}

// Start ensures the staging dir exists and schedules the sweep.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("uploads: mkdir: %w", err)
	}
	return s.startSweepLocked()
}

// Stop halts the sweep scheduler.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopSweepLocked()
}

// Apply reconfigures the service at runtime.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()

	restart := cfg.SweepSchedule != s.cfg.SweepSchedule
	s.cfg = cfg
	if restart {
		s.stopSweepLocked()
		if err := s.startSweepLocked(); err != nil {
			s.log.Warn("sweep reschedule failed", logx.Err(err))
		}
	}
}

func (s *Service) startSweepLocked() error {
	spec := strings.TrimSpace(s.cfg.SweepSchedule)
	if spec == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("uploads: sweep schedule %q: %w", spec, err)
	}
	c.Start()
	s.c = c
	s.log.Info("upload sweep scheduled", logx.String("spec", spec), logx.Duration("max_age", s.cfg.MaxAge))
	return nil
}

func (s *Service) stopSweepLocked() {
	if s.c == nil {
		return
	}
	ctx := s.c.Stop()
	<-ctx.Done()
	s.c = nil
}

// Sweep removes staged files older than MaxAge and reports how many went.
func (s *Service) Sweep() int {
	s.mu.Lock()
	dir := s.cfg.Dir
	maxAge := s.cfg.MaxAge
	s.mu.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("sweep readdir failed", logx.Err(err))
		}
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		s.log.Info("stale uploads swept", logx.Int("removed", removed))
	}
	return removed
}

// sanitizeName strips path separators and anything else that could walk
// out of the staging dir.
func sanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." || name == ".." {
		name = "upload.bin"
	}
	return name
}
