package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/x402hub/paygate/internal/logger"
	"github.com/x402hub/paygate/internal/sources/patterns"
)

// PatternsReloader periodically reloads the single-tenant protected-patterns
// file so price or rule edits apply without a restart.
type PatternsReloader struct {
	loader   *patterns.Loader
	set      *patterns.Set
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewPatternsReloader creates a new patterns reloader.
func NewPatternsReloader(
	patternsFile string,
	set *patterns.Set,
	log logger.Logger,
	interval time.Duration,
) *PatternsReloader {
	return &PatternsReloader{
		loader:   patterns.NewLoader(patternsFile),
		set:      set,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic reload process
func (pr *PatternsReloader) Start(ctx context.Context) error {
	// Load immediately on start
	if err := pr.Reload(ctx); err != nil {
		return fmt.Errorf("initial reload failed: %w", err)
	}

	// Start periodic reload
	ticker := time.NewTicker(pr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := pr.Reload(ctx); err != nil {
					pr.logger.Error("failed to reload protected patterns",
						logger.Error(err))
				}
			case <-pr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (pr *PatternsReloader) Stop() {
	close(pr.stopCh)
}

// Reload loads the patterns file and replaces the active rule set. A broken
// file leaves the previous rules in place.
func (pr *PatternsReloader) Reload(_ context.Context) error {
	rules, err := pr.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load patterns: %w", err)
	}

	pr.set.Replace(rules)
	pr.logger.Info("loaded protected patterns",
		logger.Int("count", len(rules)))

	return nil
}
