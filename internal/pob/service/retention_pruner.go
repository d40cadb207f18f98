// Package service holds background services that run alongside the engine.
package service

import (
	"context"
	"log"
	"time"

	"pobchecker/internal/pob/store"
)

// RetentionPruner periodically deletes check and movement records older
// than a configurable retention period.  It runs as a background goroutine
// and is safe to stop via its context or the Stop method.
//
// A retention of 0 disables pruning entirely.
type RetentionPruner struct {
	ledger    store.LedgerStore
	retention time.Duration
	interval  time.Duration
	logger    *log.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// PrunerConfig holds the parameters for NewRetentionPruner.
type PrunerConfig struct {
	// RetentionDays is how many days of ledger history to keep.
	// 0 means keep everything (pruner will not start).
	RetentionDays int

	// IntervalHours is how often the pruner runs.  Defaults to 24.
	IntervalHours int
}

// NewRetentionPruner creates a pruner but does not start it.
// Call Start to begin the background loop.
func NewRetentionPruner(ledger store.LedgerStore, cfg PrunerConfig, logger *log.Logger) *RetentionPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	return &RetentionPruner{
		ledger:    ledger,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start prunes once synchronously, so stale rows are gone before the
// caller begins serving, then begins the background loop repeating on the
// configured interval.  The loop exits when ctx is cancelled or Stop is
// called.
func (p *RetentionPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Printf("retention pruner disabled (retention=0)")
		close(p.done)
		return
	}

	p.prune(ctx)

	ctx, p.cancel = context.WithCancel(ctx)

	go p.loop(ctx)

	p.logger.Printf("retention pruner started (retention=%dd, interval=%dh)",
		int(p.retention.Hours()/24), int(p.interval.Hours()))
}

// Stop signals the pruner to exit and waits for it to finish.
func (p *RetentionPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *RetentionPruner) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *RetentionPruner) prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.retention)
	deleted, err := p.ledger.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Printf("ledger prune error: %v", err)
		return
	}
	if deleted > 0 {
		p.logger.Printf("ledger prune: deleted %d rows older than %s",
			deleted, cutoff.Format(time.RFC3339))
	}
}
