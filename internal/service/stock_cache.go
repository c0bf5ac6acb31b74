package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/decks/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CachedStockReader serves advisory stock readings from a short-lived
// in-process cache. Concurrent misses for the same products share one read.
type CachedStockReader struct {
	source StockReader
	ttl    time.Duration
	now    func() time.Time

	sfg     singleflight.Group // collapses concurrent misses
	mu      sync.RWMutex
	entries map[string]cachedSnapshot
}

type cachedSnapshot struct {
	snap      domain.StockSnapshot
	known     bool
	expiresAt time.Time
}

// NewCachedStockReader wraps source. A ttl of zero disables caching but keeps
// request collapsing.
func NewCachedStockReader(source StockReader, ttl time.Duration) *CachedStockReader {
	return &CachedStockReader{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedSnapshot),
	}
}

// Snapshots returns cached readings where fresh and reads the rest from the source.
func (c *CachedStockReader) Snapshots(ctx context.Context, productIDs []string) (map[string]domain.StockSnapshot, error) {
	out := make(map[string]domain.StockSnapshot, len(productIDs))
	var missing []string

	now := c.now()
	c.mu.RLock()
	for _, id := range productIDs {
		e, ok := c.entries[id]
		if ok && now.Before(e.expiresAt) {
			if e.known {
				out[id] = e.snap
			}
			continue
		}
		missing = append(missing, id)
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	v, err, _ := c.sfg.Do(strings.Join(missing, ","), func() (interface{}, error) {
		snaps, err := c.source.Snapshots(ctx, missing)
		if err != nil {
			return nil, err
		}
		c.store(missing, snaps)
		return snaps, nil
	})
	if err != nil {
		return nil, err
	}

	for id, snap := range v.(map[string]domain.StockSnapshot) {
		out[id] = snap
	}
	return out, nil
}

// Invalidate drops cached readings for the given products.
func (c *CachedStockReader) Invalidate(productIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range productIDs {
		delete(c.entries, id)
	}
}

func (c *CachedStockReader) store(ids []string, snaps map[string]domain.StockSnapshot) {
	if c.ttl <= 0 {
		return
	}
	expiresAt := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		snap, ok := snaps[id]
		c.entries[id] = cachedSnapshot{snap: snap, known: ok, expiresAt: expiresAt}
	}
}
