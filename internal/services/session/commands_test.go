package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wagate/internal/transport"
)

func TestLogoutRequiresReady(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{}
	svc, _ := newTestService(t, fc)

	err := svc.Logout(context.Background())
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if st := svc.Snapshot(); st.Status != StatusInitializing {
		t.Fatalf("status changed by refused logout: %s", st.Status)
	}
}

func TestLogoutSuccess(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{book: []transport.Contact{{ID: "1@c.us", Name: "A", Number: "111"}}}
	svc, _ := newTestService(t, fc)
	svc.enterReady()
	_ = svc.cache.Refresh(context.Background())

	if err := svc.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	st := svc.Snapshot()
	if st.Status != StatusDisconnected || !st.ConnectedAt.IsZero() || st.Number != "" {
		t.Fatalf("after logout: %+v", st)
	}
	if svc.cache.Count() != 0 {
		t.Fatal("contacts should be cleared after logout")
	}
}

func TestLogoutBackendErrorKeepsStatus(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{logoutErr: errors.New("stream closed")}
	svc, _ := newTestService(t, fc)
	svc.enterReady()

	if err := svc.Logout(context.Background()); err == nil {
		t.Fatal("expected logout error")
	}
	if st := svc.Snapshot(); st.Status != StatusReady {
		t.Fatalf("status = %s, want ready (failed logout must not mutate)", st.Status)
	}
}

func TestRestartSchedulesSingleReinit(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{}
	svc, _ := newTestService(t, fc)
	svc.enterReady()

	// Rapid repeats: each replaces the pending timer, so exactly one
	// initialize fires.
	for i := 0; i < 5; i++ {
		if err := svc.Restart(context.Background()); err != nil {
			t.Fatalf("Restart #%d: %v", i, err)
		}
	}
	if st := svc.Snapshot(); st.Status != StatusInitializing || st.QR != "" {
		t.Fatalf("after restart: %+v", st)
	}

	waitFor(t, func() bool { return fc.initCount() >= 1 })
	time.Sleep(50 * time.Millisecond)
	if n := fc.initCount(); n != 1 {
		t.Fatalf("initialize fired %d times, want 1", n)
	}
}

func TestRestartTeardownError(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{destroyErr: errors.New("browser gone")}
	svc, _ := newTestService(t, fc)
	svc.enterReady()

	if err := svc.Restart(context.Background()); err == nil {
		t.Fatal("expected restart error")
	}
	if st := svc.Snapshot(); st.Status != StatusReady {
		t.Fatalf("status = %s, want ready after failed teardown", st.Status)
	}
}

func TestReconnectOnlyWhenDropped(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{}
	svc, _ := newTestService(t, fc)

	// Connecting: no-op, still success.
	if err := svc.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect (initializing): %v", err)
	}
	if n := fc.initCount(); n != 0 {
		t.Fatalf("initialize called %d times for no-op reconnect", n)
	}

	svc.handle(context.Background(), transport.Event{Kind: transport.EventDisconnected})
	if err := svc.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect (disconnected): %v", err)
	}
	if n := fc.initCount(); n != 1 {
		t.Fatalf("initialize called %d times, want 1", n)
	}
}

func TestDeleteSessionResetsEvenWhenTeardownFails(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{
		destroyErr: errors.New("browser gone"),
		book:       []transport.Contact{{ID: "1@c.us", Name: "A", Number: "111"}},
	}
	svc, creds := newTestService(t, fc)
	svc.enterReady()
	_ = svc.cache.Refresh(context.Background())

	if err := creds.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := os.WriteFile(filepath.Join(creds.Dir(), "device.db"), []byte("x"), 0o600); err != nil {
		t.Fatalf("seed device db: %v", err)
	}

	if err := svc.DeleteSession(context.Background()); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	// Stored credentials are gone, but the directory must be back so the
	// scheduled re-initialize can open a fresh device store.
	if !creds.Exists() {
		t.Fatal("credential dir must exist for the next pairing")
	}
	entries, err := os.ReadDir(creds.Dir())
	if err != nil {
		t.Fatalf("read credential dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("credential dir still holds %d entries after delete", len(entries))
	}
	if st := svc.Snapshot(); st.Status != StatusInitializing || st.QR != "" || st.Number != "" {
		t.Fatalf("after delete: %+v", st)
	}
	if svc.cache.Count() != 0 {
		t.Fatal("contacts should be cleared")
	}

	// Re-initialization was scheduled despite the teardown failure.
	waitFor(t, func() bool { return fc.initCount() >= 1 })
}
