package store

import (
	"context"
	"errors"
	"time"
)

// ErrSessionOpen is returned by OpenSession while another session is open.
var ErrSessionOpen = errors.New("a session is already open")

// Direction of a platform movement.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Session is a bounded period during which presence confirmations are
// collected.  At most one session is open at a time.
type Session struct {
	ID       int64
	OpenedAt time.Time
	Closed   bool
	ClosedAt *time.Time
}

// CheckRecord is one presence confirmation within a session.  Name is a
// snapshot of the display name at check time.
type CheckRecord struct {
	Identifier string
	Name       string
	CheckedAt  time.Time
	SessionID  int64
}

// MovementRecord is one platform entry or exit.  Append-only; removed only
// by retention purging.
type MovementRecord struct {
	Identifier string
	Name       string
	Direction  Direction
	MovedAt    time.Time
}

// LedgerStore is the append-mostly log of sessions, presence checks and
// platform movements.
type LedgerStore interface {
	// OpenSession creates a new open session and returns its id.  Fails
	// with ErrSessionOpen if one is already open; callers check
	// ActiveSessionID first.
	OpenSession(ctx context.Context) (int64, error)
	CloseSession(ctx context.Context, id int64) error
	ActiveSessionID(ctx context.Context) (int64, bool, error)

	// RecordCheck inserts a check for (identifier, session) and reports
	// whether a row was inserted.  A duplicate is a no-op, not an error.
	RecordCheck(ctx context.Context, identifier, name string, sessionID int64) (bool, error)

	// RemoveCheck deletes the check for (identifier, session) and reports
	// whether a row existed.
	RemoveCheck(ctx context.Context, identifier string, sessionID int64) (bool, error)

	IsChecked(ctx context.Context, identifier string, sessionID int64) (bool, error)
	CheckedIdentifiers(ctx context.Context, sessionID int64) (map[string]struct{}, error)

	RecordMovement(ctx context.Context, identifier, name string, dir Direction) error

	// Movements returns the audit trail for one identifier, oldest first.
	Movements(ctx context.Context, identifier string) ([]MovementRecord, error)

	// PurgeOlderThan deletes check and movement rows whose timestamp
	// predates the cutoff.  People and sessions are never touched.
	// Returns the number of rows deleted.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
