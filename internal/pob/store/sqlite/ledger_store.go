package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "pobchecker/internal/db"
	"pobchecker/internal/pob/store"
)

type LedgerStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewLedgerStore(db *sql.DB, writer *dbpkg.Worker) *LedgerStore {
	return &LedgerStore{db: db, writer: writer}
}

func (s *LedgerStore) OpenSession(ctx context.Context) (int64, error) {
	now := time.Now().UTC().UnixMilli()

	var id int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var open int64
		err := tx.QueryRowContext(ctx, "SELECT id FROM sessions WHERE closed = 0;").Scan(&open)
		if err == nil {
			return store.ErrSessionOpen
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("OpenSession check: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			"INSERT INTO sessions(opened_at_ms, closed) VALUES (?, 0);", now)
		if err != nil {
			return fmt.Errorf("OpenSession insert: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("OpenSession id: %w", err)
		}
		return nil
	})
	return id, err
}

func (s *LedgerStore) CloseSession(ctx context.Context, id int64) error {
	now := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE sessions SET closed = 1, closed_at_ms = ? WHERE id = ? AND closed = 0;`, now, id)
		if err != nil {
			return fmt.Errorf("CloseSession: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("CloseSession: session %d not open", id)
		}
		return nil
	})
}

func (s *LedgerStore) ActiveSessionID(ctx context.Context) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM sessions WHERE closed = 0;").Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("ActiveSessionID: %w", err)
	}
	return id, true, nil
}

// RecordCheck is idempotent by construction: the UNIQUE(identifier,
// session_id) constraint plus INSERT OR IGNORE makes a duplicate a no-op,
// and the whole call runs as one worker transaction.
func (s *LedgerStore) RecordCheck(ctx context.Context, identifier, name string, sessionID int64) (bool, error) {
	now := time.Now().UTC().UnixMilli()

	var inserted bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO check_records(identifier, name, checked_at_ms, session_id)
VALUES (?, ?, ?, ?);`, identifier, name, now, sessionID)
		if err != nil {
			return fmt.Errorf("RecordCheck: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted = n > 0
		return nil
	})
	return inserted, err
}

func (s *LedgerStore) RemoveCheck(ctx context.Context, identifier string, sessionID int64) (bool, error) {
	var removed bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM check_records WHERE identifier = ? AND session_id = ?;", identifier, sessionID)
		if err != nil {
			return fmt.Errorf("RemoveCheck: %w", err)
		}
		n, _ := res.RowsAffected()
		removed = n > 0
		return nil
	})
	return removed, err
}

func (s *LedgerStore) IsChecked(ctx context.Context, identifier string, sessionID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM check_records WHERE identifier = ? AND session_id = ?;", identifier, sessionID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("IsChecked: %w", err)
	}
	return true, nil
}

func (s *LedgerStore) CheckedIdentifiers(ctx context.Context, sessionID int64) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT identifier FROM check_records WHERE session_id = ?;", sessionID)
	if err != nil {
		return nil, fmt.Errorf("CheckedIdentifiers query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("CheckedIdentifiers scan: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("CheckedIdentifiers iterate: %w", err)
	}
	return out, nil
}

func (s *LedgerStore) RecordMovement(ctx context.Context, identifier, name string, dir store.Direction) error {
	now := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO movement_records(identifier, name, direction, moved_at_ms)
VALUES (?, ?, ?, ?);`, identifier, name, string(dir), now); err != nil {
			return fmt.Errorf("RecordMovement: %w", err)
		}
		return nil
	})
}

func (s *LedgerStore) Movements(ctx context.Context, identifier string) ([]store.MovementRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT identifier, name, direction, moved_at_ms
FROM movement_records WHERE identifier = ? ORDER BY moved_at_ms, id;`, identifier)
	if err != nil {
		return nil, fmt.Errorf("Movements query: %w", err)
	}
	defer rows.Close()

	var out []store.MovementRecord
	for rows.Next() {
		var (
			m       store.MovementRecord
			dir     string
			movedMs int64
		)
		if err := rows.Scan(&m.Identifier, &m.Name, &dir, &movedMs); err != nil {
			return nil, fmt.Errorf("Movements scan: %w", err)
		}
		m.Direction = store.Direction(dir)
		m.MovedAt = time.UnixMilli(movedMs).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Movements iterate: %w", err)
	}
	return out, nil
}

// PurgeOlderThan deletes check and movement rows before the cutoff.
// People and sessions are never touched.
func (s *LedgerStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM check_records WHERE checked_at_ms < ?;", cutoffMs)
		if err != nil {
			return fmt.Errorf("PurgeOlderThan checks: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n

		res, err = tx.ExecContext(ctx, "DELETE FROM movement_records WHERE moved_at_ms < ?;", cutoffMs)
		if err != nil {
			return fmt.Errorf("PurgeOlderThan movements: %w", err)
		}
		n, _ = res.RowsAffected()
		deleted += n
		return nil
	})
	return deleted, err
}
