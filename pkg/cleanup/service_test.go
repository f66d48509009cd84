package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu sync.Mutex

	purgeCalls   int
	analysisCall int
	shareCalls   int
	purgeErr     error
	lastNow      time.Time
}

func (m *memStore) PurgeExpiredTemporaryData(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeCalls++
	m.lastNow = now
	return 2, m.purgeErr
}

func (m *memStore) DeleteExpiredPhotoAnalyses(_ context.Context, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analysisCall++
	return 1, nil
}

func (m *memStore) DeleteExpiredReportShares(_ context.Context, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shareCalls++
	return 0, nil
}

func (m *memStore) counts() (int, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeCalls, m.analysisCall, m.shareCalls
}

func TestRunAll_CoversEveryPolicy(t *testing.T) {
	st := &memStore{}
	svc := NewService(st, time.Hour)
	svc.now = func() time.Time { return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC) }

	svc.RunAll(context.Background())

	purges, analyses, shares := st.counts()
	assert.Equal(t, 1, purges)
	assert.Equal(t, 1, analyses)
	assert.Equal(t, 1, shares)
	assert.Equal(t, time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC), st.lastNow)
}

func TestRunAll_PolicyFailureDoesNotStopOthers(t *testing.T) {
	st := &memStore{purgeErr: errors.New("connection reset")}
	svc := NewService(st, time.Hour)

	svc.RunAll(context.Background())

	_, analyses, shares := st.counts()
	assert.Equal(t, 1, analyses)
	assert.Equal(t, 1, shares)
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	st := &memStore{}
	svc := NewService(st, time.Hour)

	svc.Start(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		purges, _, _ := st.counts()
		return purges >= 1
	}, time.Second, 10*time.Millisecond)

	svc.Stop()
	purges, _, _ := st.counts()
	assert.Equal(t, 1, purges, "hourly ticker must not have fired during the test")
}

func TestNewService_DefaultInterval(t *testing.T) {
	svc := NewService(&memStore{}, 0)
	assert.Equal(t, time.Hour, svc.interval)
}
