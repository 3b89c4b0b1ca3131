package contacts

import (
	"context"
	"errors"
	"testing"

	"wagate/internal/transport"
	logx "wagate/pkg/logx"
)

type fakeClient struct {
	transport.Client
	contacts func(ctx context.Context) ([]transport.Contact, error)
}

func (f *fakeClient) Contacts(ctx context.Context) ([]transport.Contact, error) {
	return f.contacts(ctx)
}

func TestRefreshFiltersAndReplaces(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{contacts: func(context.Context) ([]transport.Contact, error) {
		return []transport.Contact{
			{ID: "1@c.us", Name: "Alice", Number: "111"},
			{ID: "2@c.us", Name: "NoNumber", Number: ""},
			{ID: "3@c.us", Name: "", Number: "333"},
		}, nil
	}}
	c := New(fc, logx.Nop())

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	got := c.All()
	if len(got) != 2 {
		t.Fatalf("kept %d contacts, want 2", len(got))
	}
	if got[0].Number != "111" || got[1].Number != "333" {
		t.Fatalf("unexpected order/content: %+v", got)
	}
	if got[1].Name != fallbackName {
		t.Fatalf("missing name fallback, got %q", got[1].Name)
	}

	// Second refresh fully replaces.
	fc.contacts = func(context.Context) ([]transport.Contact, error) {
		return []transport.Contact{{ID: "9@c.us", Name: "Zed", Number: "999"}}, nil
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n := c.Count(); n != 1 {
		t.Fatalf("snapshot size after replace = %d, want 1", n)
	}
}

func TestRefreshErrorKeepsPrevious(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{contacts: func(context.Context) ([]transport.Contact, error) {
		return []transport.Contact{{ID: "1@c.us", Name: "Alice", Number: "111"}}, nil
	}}
	c := New(fc, logx.Nop())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	fc.contacts = func(context.Context) ([]transport.Contact, error) {
		return nil, errors.New("socket closed")
	}
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if n := c.Count(); n != 1 {
		t.Fatalf("snapshot clobbered on error, size = %d", n)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{contacts: func(context.Context) ([]transport.Contact, error) {
		return []transport.Contact{{ID: "1@c.us", Name: "Alice", Number: "111"}}, nil
	}}
	c := New(fc, logx.Nop())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	c.Clear()
	if n := c.Count(); n != 0 {
		t.Fatalf("Count after Clear = %d, want 0", n)
	}
}
