package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeedDev inserts a small fixed roster for local development.  Idempotent:
// existing rows are left alone.
func SeedDev(ctx context.Context, db *sql.DB) error {
	now := time.Now().UTC().UnixMilli()

	people := []struct {
		identifier string
		name       string
		group      int
	}{
		{"11122233344", "Ana Souza", 1},
		{"55566677788", "Bruno Lima", 1},
		{"99988877766", "Carla Mendes", 2},
		{"12345678901", "Diego Alves", 2},
	}

	for _, p := range people {
		if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO people(identifier, name, group_no, on_platform, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, 0, ?, ?);`, p.identifier, p.name, p.group, now, now); err != nil {
			return fmt.Errorf("seed person %s: %w", p.identifier, err)
		}
	}

	return nil
}
