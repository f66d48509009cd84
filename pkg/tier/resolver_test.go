package tier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/proxima-health/oracle/pkg/models"
)

type fakeSubStore struct {
	sub   *models.Subscription
	err   error
	calls int
}

func (f *fakeSubStore) GetSubscription(context.Context, string) (*models.Subscription, error) {
	f.calls++
	return f.sub, f.err
}

func activeSub(tier models.Tier) *models.Subscription {
	end := time.Now().Add(30 * 24 * time.Hour)
	return &models.Subscription{UserID: "u1", Tier: tier, Status: "active", PeriodEnd: &end}
}

func TestResolve_ActiveSubscription(t *testing.T) {
	r := NewResolver(&fakeSubStore{sub: activeSub(models.TierPro)})
	assert.Equal(t, models.TierPro, r.Resolve(context.Background(), "u1"))
}

func TestResolve_CachesWithinTTL(t *testing.T) {
	store := &fakeSubStore{sub: activeSub(models.TierMax)}
	r := NewResolver(store)

	for i := 0; i < 5; i++ {
		r.Resolve(context.Background(), "u1")
	}
	assert.Equal(t, 1, store.calls)
}

func TestResolve_ExpiredEntryRefetches(t *testing.T) {
	store := &fakeSubStore{sub: activeSub(models.TierPro)}
	r := NewResolver(store)

	now := time.Now()
	r.now = func() time.Time { return now }
	r.Resolve(context.Background(), "u1")

	r.now = func() time.Time { return now.Add(CacheTTL + time.Second) }
	r.Resolve(context.Background(), "u1")
	assert.Equal(t, 2, store.calls)
}

func TestResolve_InvalidateForcesRefetch(t *testing.T) {
	store := &fakeSubStore{sub: activeSub(models.TierBasic)}
	r := NewResolver(store)

	r.Resolve(context.Background(), "u1")
	store.sub = activeSub(models.TierMax)
	r.Invalidate("u1")
	assert.Equal(t, models.TierMax, r.Resolve(context.Background(), "u1"))
}

func TestResolve_DefaultsToFree(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeSubStore
	}{
		{"no subscription", &fakeSubStore{}},
		{"store error", &fakeSubStore{err: errors.New("connection refused")}},
		{"canceled status", &fakeSubStore{sub: &models.Subscription{Tier: models.TierPro, Status: "canceled"}}},
		{"unknown tier", &fakeSubStore{sub: &models.Subscription{Tier: "vip", Status: "active"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.store)
			assert.Equal(t, models.TierFree, r.Resolve(context.Background(), "u1"))
		})
	}
}

func TestResolve_LapsedPeriodIsFree(t *testing.T) {
	end := time.Now().Add(-time.Hour)
	store := &fakeSubStore{sub: &models.Subscription{Tier: models.TierPro, Status: "active", PeriodEnd: &end}}
	r := NewResolver(store)
	assert.Equal(t, models.TierFree, r.Resolve(context.Background(), "u1"))
}

func TestResolve_EmptyUserIsFree(t *testing.T) {
	store := &fakeSubStore{sub: activeSub(models.TierPro)}
	r := NewResolver(store)
	assert.Equal(t, models.TierFree, r.Resolve(context.Background(), ""))
	assert.Equal(t, 0, store.calls)
}
