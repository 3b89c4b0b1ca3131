// Package storage manages the on-disk credential directory for the
// messaging session.
//
// The directory's contents are opaque to the rest of the gateway (the
// connection adapter owns the schema inside it); this package only knows
// how to check for it, create it, and wipe it to force a fresh pairing.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CredentialStore is a handle to the persisted-session directory.
type CredentialStore struct {
	dir string
}

func NewCredentialStore(dir string) (*CredentialStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("storage: credential dir is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve credential dir: %w", err)
	}
	return &CredentialStore{dir: abs}, nil
}

// Dir returns the absolute credential directory path.
func (s *CredentialStore) Dir() string { return s.dir }

// Ensure creates the directory if it does not exist yet.
func (s *CredentialStore) Ensure() error {
	return os.MkdirAll(s.dir, 0o700)
}

// Exists reports whether the credential directory is present on disk.
func (s *CredentialStore) Exists() bool {
	fi, err := os.Stat(s.dir)
	return err == nil && fi.IsDir()
}

// Wipe recursively deletes the credential directory. A missing directory
// is not an error: the post-condition (no stored credentials) holds.
func (s *CredentialStore) Wipe() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("storage: wipe credentials: %w", err)
	}
	return nil
}
