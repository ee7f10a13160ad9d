package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PeriodicRunner invokes fn every interval until stopped. Each run gets its
// own timeout so a slow run cannot stall the next tick indefinitely.
type PeriodicRunner struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	fn       func(ctx context.Context) error
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPeriodicRunner creates a runner. A timeout of zero defaults to the interval.
func NewPeriodicRunner(
	name string,
	interval, timeout time.Duration,
	fn func(ctx context.Context) error,
	logger *slog.Logger,
) *PeriodicRunner {
	if timeout <= 0 {
		timeout = interval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodicRunner{
		name:     name,
		interval: interval,
		timeout:  timeout,
		fn:       fn,
		logger:   logger.With("component", "periodic_runner", "runner", name),
	}
}

// Start runs fn once immediately and then on every tick.
func (r *PeriodicRunner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.runOnce(ctx)
			}
		}
	}()
	r.logger.Info("periodic runner started", "interval", r.interval.String())
}

// Stop halts the runner and waits for an in-progress run to return.
func (r *PeriodicRunner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *PeriodicRunner) runOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	start := time.Now()
	if err := r.fn(ctx); err != nil {
		r.logger.Error("periodic run failed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return
	}
	r.logger.Debug("periodic run finished", "duration_ms", time.Since(start).Milliseconds())
}
