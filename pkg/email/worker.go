package email

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

const (
	defaultPollInterval = 15 * time.Second
	defaultBatchSize    = 10
)

// Worker polls the queue and delivers claimed items. Multiple workers
// can run against the same table; FOR UPDATE SKIP LOCKED keeps them
// from double-claiming.
type Worker struct {
	id       string
	service  *Service
	interval time.Duration
	batch    int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker builds a worker. Zero interval and batch use the defaults.
func NewWorker(id string, service *Service, interval time.Duration, batch int) *Worker {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Worker{
		id:       id,
		service:  service,
		interval: interval,
		batch:    batch,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker and waits for it to finish. Safe to call
// more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Email worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Email worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, email worker shutting down")
			return
		default:
			n, err := w.service.ProcessDue(ctx, w.batch)
			if err != nil {
				log.Error("Email queue poll failed", "error", err)
				w.sleep(time.Second)
				continue
			}
			if n == 0 {
				w.sleep(w.pollInterval())
			}
		}
	}
}

// pollInterval jitters the base interval so workers spread their polls.
func (w *Worker) pollInterval() time.Duration {
	return w.interval + time.Duration(rand.Intn(250))*time.Millisecond
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}
