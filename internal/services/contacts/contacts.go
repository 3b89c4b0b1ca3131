// Package contacts caches the backend address book.
//
// The snapshot is refreshed once per successful connection (the session
// controller triggers it on the ready transition) and wholly replaced on
// each refresh: readers always see either the previous complete snapshot
// or the new one, never a partial merge.
package contacts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wagate/internal/transport"
	logx "wagate/pkg/logx"
)

const fallbackName = "(unnamed)"

type Cache struct {
	client transport.Client
	log    logx.Logger

	mu    sync.RWMutex
	items []transport.Contact
}

func New(client transport.Client, log logx.Logger) *Cache {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cache{client: client, log: log}
}

// Refresh fetches the full contact list and atomically replaces the
// snapshot. Entries without a resolvable number are dropped. On fetch
// error the previous snapshot is left untouched.
func (c *Cache) Refresh(ctx context.Context) error {
	start := time.Now()
	all, err := c.client.Contacts(ctx)
	if err != nil {
		return fmt.Errorf("contacts: fetch: %w", err)
	}

	kept := make([]transport.Contact, 0, len(all))
	for _, ct := range all {
		if ct.Number == "" {
			continue
		}
		if ct.Name == "" {
			ct.Name = fallbackName
		}
		kept = append(kept, ct)
	}

	c.mu.Lock()
	c.items = kept
	c.mu.Unlock()

	c.log.Info("contact snapshot refreshed",
		logx.Int("total", len(all)),
		logx.Int("kept", len(kept)),
		logx.Duration("took", time.Since(start)))
	return nil
}

// All returns a copy of the current snapshot in backend order.
func (c *Cache) All() []transport.Contact {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]transport.Contact, len(c.items))
	copy(out, c.items)
	return out
}

// Count reports the snapshot size.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear empties the snapshot. Called when the session drops so stale
// contacts are never served as current.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}
