// Package tier resolves a user's subscription tier with a short-TTL
// in-memory cache.
package tier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/proxima-health/oracle/pkg/models"
)

// CacheTTL is how long a resolved tier is trusted before re-reading the
// subscription store.
const CacheTTL = 5 * time.Minute

// SubscriptionReader is the subset of the store the resolver needs.
type SubscriptionReader interface {
	GetSubscription(ctx context.Context, userID string) (*models.Subscription, error)
}

type cacheEntry struct {
	tier      models.Tier
	fetchedAt time.Time
}

// Resolver resolves tiers. Safe for concurrent use; expired entries are
// cleaned up lazily on Resolve, no background goroutine.
type Resolver struct {
	store SubscriptionReader

	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewResolver creates a Resolver with the standard TTL.
func NewResolver(store SubscriptionReader) *Resolver {
	return &Resolver{
		store:   store,
		entries: make(map[string]*cacheEntry),
		ttl:     CacheTTL,
		now:     time.Now,
	}
}

// Resolve returns the user's tier. Absent, inactive, or expired
// subscriptions resolve to free. Store errors are logged and treated as
// free rather than failing the request.
func (r *Resolver) Resolve(ctx context.Context, userID string) models.Tier {
	if userID == "" {
		return models.TierFree
	}

	r.mu.RLock()
	entry, ok := r.entries[userID]
	r.mu.RUnlock()
	if ok && r.now().Sub(entry.fetchedAt) <= r.ttl {
		return entry.tier
	}

	tier := r.lookup(ctx, userID)

	r.mu.Lock()
	r.entries[userID] = &cacheEntry{tier: tier, fetchedAt: r.now()}
	r.mu.Unlock()
	return tier
}

// Invalidate clears the cached entry after a subscription change.
func (r *Resolver) Invalidate(userID string) {
	r.mu.Lock()
	delete(r.entries, userID)
	r.mu.Unlock()
}

func (r *Resolver) lookup(ctx context.Context, userID string) models.Tier {
	sub, err := r.store.GetSubscription(ctx, userID)
	if err != nil {
		slog.Error("Subscription lookup failed, defaulting to free", "user_id", userID, "error", err)
		return models.TierFree
	}
	if sub == nil || !sub.Active(r.now()) || !sub.Tier.Valid() {
		return models.TierFree
	}
	return sub.Tier
}
