// Package memory provides an in-memory checkpoint store for tests and
// single-process runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/chunkgrid/chunkgrid/internal/clock"
	"github.com/chunkgrid/chunkgrid/service/checkpoint"
)

// Service keeps checkpointed values in a map.
type Service struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// New creates an empty in-memory checkpoint store.
func New() *Service {
	return &Service{values: make(map[string]interface{})}
}

// Persist stores the value under key.
func (s *Service) Persist(_ context.Context, key string, value interface{}) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return fmt.Sprintf("%s@%d", key, clock.Now().UnixNano()), nil
}

// Restore returns the value stored under key.
func (s *Service) Restore(_ context.Context, key string) (interface{}, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok, nil
}

var _ checkpoint.Service = (*Service)(nil)
