package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"pobchecker/internal/pob/codec"
	"pobchecker/internal/pob/store"
)

// RosterStore is an in-memory roster for tests and dev environments.
type RosterStore struct {
	mu     sync.RWMutex
	people map[string]store.Person

	// ledger lets DeletePerson cascade to check/movement records, the
	// same way the sqlite store does inside one transaction.
	ledger *LedgerStore
}

func NewRosterStore() *RosterStore {
	return &RosterStore{people: make(map[string]store.Person)}
}

// AttachLedger wires the ledger used for DeletePerson cascades.
func (s *RosterStore) AttachLedger(l *LedgerStore) { s.ledger = l }

func (s *RosterStore) UpsertPerson(_ context.Context, p store.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if prev, ok := s.people[p.Identifier]; ok {
		p.CreatedAt = prev.CreatedAt
		// Re-registering must not fake a platform exit; the flag only
		// moves through SetOnPlatform.
		p.OnPlatform = prev.OnPlatform
		if p.EmployeeNo == nil {
			p.EmployeeNo = prev.EmployeeNo
		}
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.people[p.Identifier] = p
	return nil
}

func (s *RosterStore) FindByIdentifier(_ context.Context, identifier string) (store.Person, bool, error) {
	id := codec.Normalize(identifier)
	if !codec.Valid(id) {
		return store.Person{}, false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.people[id]
	return p, ok, nil
}

func (s *RosterStore) ExistsByIdentifier(ctx context.Context, identifier string) (bool, error) {
	_, ok, err := s.FindByIdentifier(ctx, identifier)
	return ok, err
}

func (s *RosterStore) ListByGroup(_ context.Context, group int) ([]store.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Person
	for _, p := range s.people {
		if p.Group == group {
			out = append(out, p)
		}
	}
	sortPeople(out)
	return out, nil
}

func (s *RosterStore) Search(_ context.Context, term string) ([]store.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := strings.ToLower(term)
	numeric := codec.Numeric(term)
	digits := codec.Normalize(term)

	var out []store.Person
	for _, p := range s.people {
		if strings.Contains(strings.ToLower(p.Name), lower) {
			out = append(out, p)
			continue
		}
		if numeric && strings.Contains(p.Identifier, digits) {
			out = append(out, p)
		}
	}
	sortPeople(out)
	return out, nil
}

func (s *RosterStore) UpdatePerson(_ context.Context, p store.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.people[p.Identifier]
	if !ok {
		return store.ErrNotFound
	}
	prev.Name = p.Name
	prev.Group = p.Group
	prev.EmployeeNo = p.EmployeeNo
	prev.UpdatedAt = time.Now().UTC()
	s.people[p.Identifier] = prev
	return nil
}

func (s *RosterStore) DeletePerson(_ context.Context, identifier string) (bool, error) {
	s.mu.Lock()
	_, ok := s.people[identifier]
	delete(s.people, identifier)
	s.mu.Unlock()

	if ok && s.ledger != nil {
		s.ledger.deleteFor(identifier)
	}
	return ok, nil
}

func (s *RosterStore) SetOnPlatform(_ context.Context, identifier string, onPlatform bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.people[identifier]
	if !ok {
		return store.ErrNotFound
	}
	p.OnPlatform = onPlatform
	p.UpdatedAt = time.Now().UTC()
	s.people[identifier] = p
	return nil
}

func sortPeople(people []store.Person) {
	sort.Slice(people, func(i, j int) bool {
		if people[i].Name != people[j].Name {
			return people[i].Name < people[j].Name
		}
		return people[i].Identifier < people[j].Identifier
	})
}
