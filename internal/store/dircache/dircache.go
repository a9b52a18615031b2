package dircache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/undercity-games/presence-server/internal/store"
)

// Directory caches player lookups in front of a slower directory. Entries
// expire so directory edits become visible without a restart.
type Directory struct {
	inner store.PlayerDirectory
	cache *expirable.LRU[string, *store.Player]
}

// New wraps inner with an expiring LRU of the given size and TTL.
func New(inner store.PlayerDirectory, size int, ttl time.Duration) *Directory {
	return &Directory{
		inner: inner,
		cache: expirable.NewLRU[string, *store.Player](size, nil, ttl),
	}
}

// GetPlayerInfo returns the cached record or falls through to the inner
// directory. Lookup errors are never cached.
func (d *Directory) GetPlayerInfo(ctx context.Context, userID string) (*store.Player, error) {
	if p, ok := d.cache.Get(userID); ok {
		return p, nil
	}

	p, err := d.inner.GetPlayerInfo(ctx, userID)
	if err != nil {
		return nil, err
	}

	d.cache.Add(userID, p)
	return p, nil
}

// Invalidate drops a cached record. Called when district or crew state
// changes through the internal API.
func (d *Directory) Invalidate(userID string) {
	d.cache.Remove(userID)
}

var _ store.PlayerDirectory = (*Directory)(nil)
