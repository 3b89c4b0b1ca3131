package uploads

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "wagate/pkg/logx"
)

func TestStageWritesUniqueFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := New(Config{Dir: dir}, logx.Nop())

	m1, err := s.Stage("pic.jpg", "image/jpeg", strings.NewReader("one"))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	m2, err := s.Stage("pic.jpg", "", strings.NewReader("two"))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if m1.Path == m2.Path {
		t.Fatalf("same staged path for two uploads: %s", m1.Path)
	}
	if m1.MimeType != "image/jpeg" {
		t.Fatalf("mime = %s", m1.MimeType)
	}
	// Sniffed from the extension when the client did not send one.
	if m2.MimeType != "image/jpeg" {
		t.Fatalf("sniffed mime = %s, want image/jpeg", m2.MimeType)
	}
	if m1.FileName != "pic.jpg" {
		t.Fatalf("filename = %s", m1.FileName)
	}
	b, err := os.ReadFile(m1.Path)
	if err != nil || string(b) != "one" {
		t.Fatalf("staged content = %q err=%v", b, err)
	}
}

func TestSanitizeName(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"../../etc/passwd", "passwd"},
		{"pic name (1).jpg", "pic_name__1_.jpg"},
		{"  ", "upload.bin"},
		{"..", "upload.bin"},
		{"report-2024_final.pdf", "report-2024_final.pdf"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Fatalf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSweepRemovesOnlyStaleFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := New(Config{Dir: dir, MaxAge: time.Hour}, logx.Nop())

	stale := filepath.Join(dir, "old-upload.bin")
	fresh := filepath.Join(dir, "new-upload.bin")
	for _, p := range []string{stale, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if removed := s.Sweep(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale file survived sweep")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file swept: %v", err)
	}
}

func TestSweepMissingDir(t *testing.T) {
	t.Parallel()
	s := New(Config{Dir: filepath.Join(t.TempDir(), "nope")}, logx.Nop())
	if removed := s.Sweep(); removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
}

func TestStartStopSweepSchedule(t *testing.T) {
	t.Parallel()
	s := New(Config{Dir: t.TempDir(), SweepSchedule: "@every 1h"}, logx.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	s := New(Config{Dir: t.TempDir(), SweepSchedule: "every day at noon"}, logx.Nop())
	if err := s.Start(); err == nil {
		t.Fatal("expected schedule parse error")
	}
}
