package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "pobchecker/internal/db"
	"pobchecker/internal/pob/codec"
	"pobchecker/internal/pob/store"
)

type RosterStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewRosterStore(db *sql.DB, writer *dbpkg.Worker) *RosterStore {
	return &RosterStore{db: db, writer: writer}
}

func (s *RosterStore) UpsertPerson(ctx context.Context, p store.Person) error {
	now := time.Now().UTC().UnixMilli()

	var empNo any
	if p.EmployeeNo != nil {
		empNo = *p.EmployeeNo
	}

	onPlatform := 0
	if p.OnPlatform {
		onPlatform = 1
	}

	// On conflict the presence flag is kept as is: re-registering someone
	// must not fake a platform exit.  Flag transitions go through
	// SetOnPlatform, paired with a movement record.
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO people(identifier, name, group_no, on_platform, employee_no, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(identifier) DO UPDATE SET
  name          = excluded.name,
  group_no      = excluded.group_no,
  on_platform   = people.on_platform,
  employee_no   = COALESCE(excluded.employee_no, people.employee_no),
  updated_at_ms = excluded.updated_at_ms;
`, p.Identifier, p.Name, p.Group, onPlatform, empNo, now, now); err != nil {
			return fmt.Errorf("UpsertPerson: %w", err)
		}
		return nil
	})
}

func (s *RosterStore) FindByIdentifier(ctx context.Context, identifier string) (store.Person, bool, error) {
	// Fails closed: an invalid identifier is reported as not found, the
	// same as an absent one.
	id := codec.Normalize(identifier)
	if !codec.Valid(id) {
		return store.Person{}, false, nil
	}

	p, err := scanPerson(s.db.QueryRowContext(ctx, `
SELECT identifier, name, group_no, on_platform, employee_no, created_at_ms, updated_at_ms
FROM people WHERE identifier = ?;`, id))
	if err == sql.ErrNoRows {
		return store.Person{}, false, nil
	}
	if err != nil {
		return store.Person{}, false, fmt.Errorf("FindByIdentifier: %w", err)
	}
	return p, true, nil
}

func (s *RosterStore) ExistsByIdentifier(ctx context.Context, identifier string) (bool, error) {
	id := codec.Normalize(identifier)
	if !codec.Valid(id) {
		return false, nil
	}

	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM people WHERE identifier = ?;", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ExistsByIdentifier: %w", err)
	}
	return true, nil
}

func (s *RosterStore) ListByGroup(ctx context.Context, group int) ([]store.Person, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT identifier, name, group_no, on_platform, employee_no, created_at_ms, updated_at_ms
FROM people WHERE group_no = ? ORDER BY name, identifier;`, group)
	if err != nil {
		return nil, fmt.Errorf("ListByGroup query: %w", err)
	}
	defer rows.Close()
	return collectPeople(rows)
}

func (s *RosterStore) Search(ctx context.Context, term string) ([]store.Person, error) {
	nameLike := "%" + term + "%"

	var (
		rows *sql.Rows
		err  error
	)
	if codec.Numeric(term) {
		idLike := "%" + codec.Normalize(term) + "%"
		rows, err = s.db.QueryContext(ctx, `
SELECT identifier, name, group_no, on_platform, employee_no, created_at_ms, updated_at_ms
FROM people WHERE name LIKE ? COLLATE NOCASE OR identifier LIKE ?
ORDER BY name, identifier;`, nameLike, idLike)
	} else {
		rows, err = s.db.QueryContext(ctx, `
SELECT identifier, name, group_no, on_platform, employee_no, created_at_ms, updated_at_ms
FROM people WHERE name LIKE ? COLLATE NOCASE
ORDER BY name, identifier;`, nameLike)
	}
	if err != nil {
		return nil, fmt.Errorf("Search query: %w", err)
	}
	defer rows.Close()
	return collectPeople(rows)
}

func (s *RosterStore) UpdatePerson(ctx context.Context, p store.Person) error {
	now := time.Now().UTC().UnixMilli()

	var empNo any
	if p.EmployeeNo != nil {
		empNo = *p.EmployeeNo
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE people
SET name = ?, group_no = ?, employee_no = ?, updated_at_ms = ?
WHERE identifier = ?;`, p.Name, p.Group, empNo, now, p.Identifier)
		if err != nil {
			return fmt.Errorf("UpdatePerson: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

// DeletePerson cascades by hand: check and movement records go first, then
// the roster row.  Referential integrity is the engine's job, not the
// storage engine's.
func (s *RosterStore) DeletePerson(ctx context.Context, identifier string) (bool, error) {
	var removed bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM check_records WHERE identifier = ?;", identifier); err != nil {
			return fmt.Errorf("DeletePerson checks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM movement_records WHERE identifier = ?;", identifier); err != nil {
			return fmt.Errorf("DeletePerson movements: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM people WHERE identifier = ?;", identifier)
		if err != nil {
			return fmt.Errorf("DeletePerson: %w", err)
		}
		n, _ := res.RowsAffected()
		removed = n > 0
		return nil
	})
	return removed, err
}

func (s *RosterStore) SetOnPlatform(ctx context.Context, identifier string, onPlatform bool) error {
	now := time.Now().UTC().UnixMilli()

	v := 0
	if onPlatform {
		v = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE people SET on_platform = ?, updated_at_ms = ? WHERE identifier = ?;`, v, now, identifier)
		if err != nil {
			return fmt.Errorf("SetOnPlatform: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(r rowScanner) (store.Person, error) {
	var (
		p          store.Person
		onPlatform int
		empNo      sql.NullInt64
		createdMs  int64
		updatedMs  int64
	)
	if err := r.Scan(&p.Identifier, &p.Name, &p.Group, &onPlatform, &empNo, &createdMs, &updatedMs); err != nil {
		return store.Person{}, err
	}
	p.OnPlatform = onPlatform == 1
	if empNo.Valid {
		v := empNo.Int64
		p.EmployeeNo = &v
	}
	p.CreatedAt = time.UnixMilli(createdMs).UTC()
	p.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return p, nil
}

func collectPeople(rows *sql.Rows) ([]store.Person, error) {
	var out []store.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}
	return out, nil
}
