package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pobchecker/internal/pob/store"
)

type checkKey struct {
	identifier string
	sessionID  int64
}

// LedgerStore is an in-memory ledger for tests and dev environments.
type LedgerStore struct {
	mu        sync.Mutex
	nextID    int64
	sessions  map[int64]*store.Session
	checks    map[checkKey]store.CheckRecord
	movements []store.MovementRecord
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		sessions: make(map[int64]*store.Session),
		checks:   make(map[checkKey]store.CheckRecord),
	}
}

func (s *LedgerStore) OpenSession(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if !sess.Closed {
			return 0, store.ErrSessionOpen
		}
	}

	s.nextID++
	id := s.nextID
	s.sessions[id] = &store.Session{ID: id, OpenedAt: time.Now().UTC()}
	return id, nil
}

func (s *LedgerStore) CloseSession(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Closed {
		return fmt.Errorf("CloseSession: session %d not open", id)
	}
	now := time.Now().UTC()
	sess.Closed = true
	sess.ClosedAt = &now
	return nil
}

func (s *LedgerStore) ActiveSessionID(_ context.Context) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if !sess.Closed {
			return sess.ID, true, nil
		}
	}
	return 0, false, nil
}

// Session returns a copy of the session with the given id.  Test-only helper.
func (s *LedgerStore) Session(id int64) (store.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return store.Session{}, false
	}
	return *sess, true
}

func (s *LedgerStore) RecordCheck(_ context.Context, identifier, name string, sessionID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := checkKey{identifier, sessionID}
	if _, ok := s.checks[k]; ok {
		return false, nil
	}
	s.checks[k] = store.CheckRecord{
		Identifier: identifier,
		Name:       name,
		CheckedAt:  time.Now().UTC(),
		SessionID:  sessionID,
	}
	return true, nil
}

func (s *LedgerStore) RemoveCheck(_ context.Context, identifier string, sessionID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := checkKey{identifier, sessionID}
	if _, ok := s.checks[k]; !ok {
		return false, nil
	}
	delete(s.checks, k)
	return true, nil
}

func (s *LedgerStore) IsChecked(_ context.Context, identifier string, sessionID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.checks[checkKey{identifier, sessionID}]
	return ok, nil
}

func (s *LedgerStore) CheckedIdentifiers(_ context.Context, sessionID int64) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]struct{})
	for k := range s.checks {
		if k.sessionID == sessionID {
			out[k.identifier] = struct{}{}
		}
	}
	return out, nil
}

func (s *LedgerStore) RecordMovement(_ context.Context, identifier, name string, dir store.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.movements = append(s.movements, store.MovementRecord{
		Identifier: identifier,
		Name:       name,
		Direction:  dir,
		MovedAt:    time.Now().UTC(),
	})
	return nil
}

func (s *LedgerStore) Movements(_ context.Context, identifier string) ([]store.MovementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.MovementRecord
	for _, m := range s.movements {
		if m.Identifier == identifier {
			out = append(out, m)
		}
	}
	return out, nil
}

// AllMovements returns a copy of the full audit trail.  Test-only helper.
func (s *LedgerStore) AllMovements() []store.MovementRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.MovementRecord, len(s.movements))
	copy(out, s.movements)
	return out
}

func (s *LedgerStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for k, c := range s.checks {
		if c.CheckedAt.Before(cutoff) {
			delete(s.checks, k)
			deleted++
		}
	}
	kept := s.movements[:0]
	for _, m := range s.movements {
		if m.MovedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	s.movements = kept
	return deleted, nil
}

func (s *LedgerStore) deleteFor(identifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.checks {
		if k.identifier == identifier {
			delete(s.checks, k)
		}
	}
	kept := s.movements[:0]
	for _, m := range s.movements {
		if m.Identifier != identifier {
			kept = append(kept, m)
		}
	}
	s.movements = kept
}
