package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCredentialStoreLifecycle(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "session")

	st, err := NewCredentialStore(dir)
	if err != nil {
		t.Fatalf("NewCredentialStore: %v", err)
	}
	if st.Exists() {
		t.Fatal("store should not exist before Ensure")
	}
	if err := st.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !st.Exists() {
		t.Fatal("store should exist after Ensure")
	}

	// Populate and wipe.
	if err := os.WriteFile(filepath.Join(dir, "device.db"), []byte("x"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if err := st.Wipe(); err != nil {
		t.Fatalf("Wipe: %v", err)
	}
	if st.Exists() {
		t.Fatal("store should be gone after Wipe")
	}

	// Wiping a missing directory is fine.
	if err := st.Wipe(); err != nil {
		t.Fatalf("Wipe (missing): %v", err)
	}
}

func TestCredentialStoreEmptyDir(t *testing.T) {
	t.Parallel()
	if _, err := NewCredentialStore("  "); err == nil {
		t.Fatal("expected error for empty dir")
	}
}
