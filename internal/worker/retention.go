package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner deletes history older than a retention window.
type Pruner interface {
	Prune(ctx context.Context, now time.Time, retention time.Duration) (int64, error)
}

// Retention prunes the event log once at start and then on every interval.
type Retention struct {
	pruner   Pruner
	window   time.Duration
	interval time.Duration
	logger   *zap.Logger
	done     chan struct{}
}

func NewRetention(pruner Pruner, window, interval time.Duration, logger *zap.Logger) *Retention {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retention{pruner: pruner, window: window, interval: interval, logger: logger, done: make(chan struct{})}
}

// Start runs the pruner in the background until ctx is done.
func (r *Retention) Start(ctx context.Context) {
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			r.RunOnce(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	r.logger.Info("event log retention started",
		zap.Duration("window", r.window),
		zap.Duration("interval", r.interval),
	)
}

// Wait blocks until the background loop has returned.
func (r *Retention) Wait() {
	<-r.done
}

// RunOnce prunes a single time. Failures are logged and retried on the next tick.
func (r *Retention) RunOnce(ctx context.Context) {
	n, err := r.pruner.Prune(ctx, time.Now().UTC(), r.window)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("event log pruning failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		r.logger.Info("pruned event log", zap.Int64("deleted", n), zap.Duration("window", r.window))
	}
}
