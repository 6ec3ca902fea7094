// Package memory keeps session state in process memory.
package memory

import (
	"context"
	"errors"
	"maps"
	"sync"

	apperrors "github.com/iamdevroyal/blocpoint-client/internal/errors"
	"github.com/iamdevroyal/blocpoint-client/internal/ports"
)

var _ ports.StateStore = (*Store)(nil)

// Store is a StateStore whose contents die with the process.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{values: make(map[string]string)}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", apperrors.NotFound("state key not found: " + key)
	}
	return v, nil
}

func (s *Store) Set(_ context.Context, values map[string]string) error {
	if _, ok := values[""]; ok {
		return errors.New("state key cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.values, values)
	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}
