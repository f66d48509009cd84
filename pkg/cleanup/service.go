// Package cleanup enforces data retention policies in the background.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

const defaultInterval = time.Hour

// Store is the retention surface of the persistence layer. All three
// operations are idempotent and safe to run from multiple replicas.
type Store interface {
	PurgeExpiredTemporaryData(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredPhotoAnalyses(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredReportShares(ctx context.Context, now time.Time) (int64, error)
}

// Service periodically enforces retention:
//   - Scrubs inline sensitive photo bytes past their 24h TTL
//   - Deletes temporary photo analyses past their TTL
//   - Deletes expired report share links
type Service struct {
	store    Store
	interval time.Duration

	now    func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a retention service. Zero interval uses the
// hourly default.
func NewService(store Store, interval time.Duration) *Service {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		store:    store,
		interval: interval,
		now:      time.Now,
	}
}

// Start launches the background retention loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Retention service started", "interval", s.interval)
}

// Stop signals the retention loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Retention service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.RunAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunAll(ctx)
		}
	}
}

// RunAll executes one retention pass.
func (s *Service) RunAll(ctx context.Context) {
	now := s.now().UTC()

	if count, err := s.store.PurgeExpiredTemporaryData(ctx, now); err != nil {
		slog.Error("Retention: temporary photo data purge failed", "error", err)
	} else if count > 0 {
		slog.Info("Retention: scrubbed expired photo bytes", "count", count)
	}

	if count, err := s.store.DeleteExpiredPhotoAnalyses(ctx, now); err != nil {
		slog.Error("Retention: photo analysis cleanup failed", "error", err)
	} else if count > 0 {
		slog.Info("Retention: deleted expired photo analyses", "count", count)
	}

	if count, err := s.store.DeleteExpiredReportShares(ctx, now); err != nil {
		slog.Error("Retention: report share cleanup failed", "error", err)
	} else if count > 0 {
		slog.Info("Retention: deleted expired report shares", "count", count)
	}
}
