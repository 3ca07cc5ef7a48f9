// Package trigger drives the orchestrator's periodic scans. Scans are the
// only producers of work: they read the record store, decide what is
// eligible, and enqueue jobs. Dedup keys on the queue make a scan firing
// while its previous work is still in flight harmless.
package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs one function on a fixed interval. Runs never overlap: a
// tick arriving while the previous run is still going is skipped, not
// queued.
type Scheduler struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
	logger   *slog.Logger

	running sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler creates a scheduler for one named scan.
func NewScheduler(name string, interval time.Duration, fn func(ctx context.Context) error, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the tick loop. The first run fires immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		defer close(s.done)

		s.RunOnce(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce executes the scan unless a previous run is still in progress.
// Returns false when the run was skipped.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if !s.running.TryLock() {
		s.logger.Debug("scan still running, skipping tick", "scan", s.name)
		return false
	}
	defer s.running.Unlock()

	start := time.Now()
	if err := s.fn(ctx); err != nil {
		// Scans are retried by the next tick; an error here is logged and
		// never escalates.
		s.logger.Error("scan failed", "scan", s.name, "error", err)
		return true
	}
	s.logger.Debug("scan complete", "scan", s.name, "took", time.Since(start))
	return true
}

// Stop terminates the tick loop and waits for an in-progress run to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
	s.running.Lock()
	s.running.Unlock()
}
