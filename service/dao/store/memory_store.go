// Package store provides a generic in-memory dao.Service implementation.
package store

import (
	"context"
	"sync"

	"github.com/chunkgrid/chunkgrid/service/dao"
)

// MemoryStore keeps entities of type *T mapped by a comparable key K obtained
// through keySelector. An optional fieldSelector enables List filtering by
// dao.Parameter. Concrete stores embed it to avoid rewriting identical
// Save/Load/Delete/List logic per entity type.
type MemoryStore[K comparable, T any] struct {
	mu            sync.RWMutex
	records       map[K]*T
	keySelector   func(*T) K
	fieldSelector func(*T, string) interface{}
}

// NewMemoryStore creates a MemoryStore. keySelector extracts the entity key;
// fieldSelector (may be nil) extracts a named field for List filtering.
func NewMemoryStore[K comparable, T any](keySelector func(*T) K, fieldSelector func(*T, string) interface{}) *MemoryStore[K, T] {
	return &MemoryStore[K, T]{
		records:       make(map[K]*T),
		keySelector:   keySelector,
		fieldSelector: fieldSelector,
	}
}

// Save stores or overwrites a record.
func (s *MemoryStore[K, T]) Save(_ context.Context, v *T) error {
	if v == nil {
		return nil
	}
	key := s.keySelector(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = v
	return nil
}

// Load returns a record by key, or nil when absent.
func (s *MemoryStore[K, T]) Load(_ context.Context, key K) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[key], nil
}

// Delete removes a record.
func (s *MemoryStore[K, T]) Delete(_ context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// List returns stored records matching every supplied parameter.
func (s *MemoryStore[K, T]) List(_ context.Context, parameters ...*dao.Parameter) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*T, 0, len(s.records))
outer:
	for _, v := range s.records {
		if s.fieldSelector != nil {
			for _, p := range parameters {
				if !p.Matches(s.fieldSelector(v, p.Name)) {
					continue outer
				}
			}
		}
		out = append(out, v)
	}
	return out, nil
}

var _ dao.Service[string, any] = (*MemoryStore[string, any])(nil)
