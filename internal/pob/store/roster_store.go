package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that require the person to exist.
var ErrNotFound = errors.New("person not found")

// Person is a roster entry.  Identifier is the normalized 11-digit string
// and is immutable once created; Name and Group may be edited.
type Person struct {
	Identifier string
	Name       string
	Group      int
	OnPlatform bool
	EmployeeNo *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RosterStore is the persistent table of known people.
//
// FindByIdentifier fails closed: a syntactically invalid identifier and an
// absent one both report ok=false.  Callers that need to distinguish must
// validate through the codec first.
type RosterStore interface {
	// UpsertPerson inserts or updates identity fields (name, group,
	// employee number).  For an existing person the on-platform flag is
	// left untouched; presence transitions go through SetOnPlatform so
	// the flag never moves without a movement record.
	UpsertPerson(ctx context.Context, p Person) error
	FindByIdentifier(ctx context.Context, identifier string) (Person, bool, error)
	ExistsByIdentifier(ctx context.Context, identifier string) (bool, error)

	// ListByGroup returns people ordered by display name.
	ListByGroup(ctx context.Context, group int) ([]Person, error)

	// Search matches the term case-insensitively against names and, when
	// the term is numeric-looking, against normalized identifiers.
	// The result is ordered by display name and may be empty.
	Search(ctx context.Context, term string) ([]Person, error)

	// UpdatePerson edits name, group and employee number of an existing
	// entry.  Returns ErrNotFound if the identifier is unknown.
	UpdatePerson(ctx context.Context, p Person) error

	// DeletePerson removes the person and cascades to their check and
	// movement records.  Reports whether a row was removed.
	DeletePerson(ctx context.Context, identifier string) (bool, error)

	SetOnPlatform(ctx context.Context, identifier string, onPlatform bool) error
}
