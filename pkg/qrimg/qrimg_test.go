package qrimg

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestDataURLShape(t *testing.T) {
	t.Parallel()
	got, err := DataURL("2@abcdef0123456789")
	if err != nil {
		t.Fatalf("DataURL: %v", err)
	}
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(got, prefix) {
		t.Fatalf("missing data URL prefix: %.40s", got)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got, prefix))
	if err != nil {
		t.Fatalf("payload is not base64: %v", err)
	}
	// PNG magic bytes.
	if len(raw) < 8 || raw[0] != 0x89 || string(raw[1:4]) != "PNG" {
		t.Fatalf("payload is not a PNG (first bytes % x)", raw[:min(8, len(raw))])
	}
}

func TestDataURLEmptyToken(t *testing.T) {
	t.Parallel()
	if _, err := DataURL(""); err == nil {
		t.Fatal("expected error for empty token")
	}
}
