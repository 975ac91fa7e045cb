package acl

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-process [Store]. Its state is lost on restart, so it is
// used when no database is configured and in tests.
type MemStore struct {
	mu  sync.RWMutex
	ops map[string]Operator
	now func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates a [MemStore] holding the seed IDs as config-granted
// operators. Blank IDs are skipped.
func NewMemStore(seed ...string) *MemStore {
	s := &MemStore{ops: make(map[string]Operator, len(seed)), now: time.Now}
	for _, id := range seed {
		if id = strings.TrimSpace(id); id != "" {
			s.ops[id] = Operator{UserID: id, GrantedBy: SeedGrantor, GrantedAt: s.now()}
		}
	}
	return s
}

// IsOperator implements [Store].
func (s *MemStore) IsOperator(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ops[userID]
	return ok, nil
}

// Grant implements [Store].
func (s *MemStore) Grant(_ context.Context, userID, grantedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[userID]; ok {
		return nil
	}
	s.ops[userID] = Operator{UserID: userID, GrantedBy: grantedBy, GrantedAt: s.now()}
	return nil
}

// Revoke implements [Store].
func (s *MemStore) Revoke(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[userID]; !ok {
		return ErrNotFound
	}
	delete(s.ops, userID)
	return nil
}

// List implements [Store].
func (s *MemStore) List(_ context.Context) ([]Operator, error) {
	s.mu.RLock()
	out := make([]Operator, 0, len(s.ops))
	for _, op := range s.ops {
		out = append(out, op)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Operator) int { return strings.Compare(a.UserID, b.UserID) })
	return out, nil
}
