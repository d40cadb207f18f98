package db

import (
	"context"
	"database/sql"
	"fmt"
)

// ClearChecks wipes all check and movement records and marks everyone as
// off-platform.  People and session history are kept.  Used by the
// clear-checks maintenance command between shifts or drills.
func ClearChecks(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		"DELETE FROM check_records;",
		"DELETE FROM movement_records;",
		"UPDATE people SET on_platform = 0;",
		"DELETE FROM sqlite_sequence WHERE name IN ('check_records', 'movement_records');",
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("clear checks: %w", err)
		}
	}

	return tx.Commit()
}
