package scheduler

import (
	"context"
	"time"

	"github.com/x402hub/paygate/internal/logger"
)

const (
	// DefaultUsageRetention is how long usage log records are kept.
	DefaultUsageRetention = 90 * 24 * time.Hour
)

// UsagePruner deletes usage records older than a cutoff.
type UsagePruner interface {
	PruneUsageLogs(ctx context.Context, olderThan time.Time) (int64, error)
}

// UsageGC periodically prunes usage logs past the retention window so the
// append-only table does not grow without bound.
type UsageGC struct {
	store     UsagePruner
	logger    logger.Logger
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
}

// NewUsageGC creates a new usage log garbage collector.
func NewUsageGC(store UsagePruner, log logger.Logger, interval, retention time.Duration) *UsageGC {
	if retention <= 0 {
		retention = DefaultUsageRetention
	}

	return &UsageGC{
		store:     store,
		logger:    log,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic collection process
func (gc *UsageGC) Start(ctx context.Context) error {
	// Run immediately on start
	if err := gc.Collect(ctx); err != nil {
		gc.logger.Warn("initial usage log pruning failed",
			logger.Error(err))
	}

	// Start periodic collection
	ticker := time.NewTicker(gc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := gc.Collect(ctx); err != nil {
					gc.logger.Error("usage log pruning failed",
						logger.Error(err))
				}
			case <-gc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the garbage collector
func (gc *UsageGC) Stop() {
	close(gc.stopCh)
}

// Collect deletes usage records older than the retention window.
func (gc *UsageGC) Collect(ctx context.Context) error {
	cutoff := time.Now().Add(-gc.retention)

	deleted, err := gc.store.PruneUsageLogs(ctx, cutoff)
	if err != nil {
		return err
	}

	if deleted > 0 {
		gc.logger.Info("pruned usage logs",
			logger.Int("deleted", int(deleted)),
			logger.String("older_than", cutoff.Format(time.RFC3339)))
	} else {
		gc.logger.Debug("no usage logs to prune")
	}

	return nil
}
