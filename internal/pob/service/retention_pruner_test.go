package service_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"pobchecker/internal/pob/service"
	"pobchecker/internal/pob/store"
	"pobchecker/internal/pob/store/memory"
)

func silentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestRetentionPruner_DisabledWhenRetentionZero(t *testing.T) {
	ledger := memory.NewLedgerStore()
	pruner := service.NewRetentionPruner(ledger, service.PrunerConfig{
		RetentionDays: 0,
		IntervalHours: 1,
	}, silentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pruner.Start(ctx)
	// Stop should return immediately without error.
	pruner.Stop()
}

func TestRetentionPruner_PrunesOldRecords(t *testing.T) {
	ledger := memory.NewLedgerStore()
	ctx := context.Background()

	if err := ledger.RecordMovement(ctx, "11122233344", "Ana Souza", store.DirectionIn); err != nil {
		t.Fatalf("record movement: %v", err)
	}

	// Everything just written is newer than a 30-day cutoff.
	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	deleted, err := ledger.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected 0 pruned, got %d", deleted)
	}

	// A future cutoff sweeps the record (same operation the pruner calls).
	deleted, err = ledger.PurgeOlderThan(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 pruned, got %d", deleted)
	}
}

func TestRetentionPruner_StopIsIdempotent(t *testing.T) {
	ledger := memory.NewLedgerStore()
	pruner := service.NewRetentionPruner(ledger, service.PrunerConfig{
		RetentionDays: 30,
		IntervalHours: 1,
	}, silentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	pruner.Start(ctx)

	cancel()
	// Multiple stops should not panic.
	pruner.Stop()
	pruner.Stop()
}
