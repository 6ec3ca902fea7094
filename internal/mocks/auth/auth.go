package auth

// Package auth contains simple hand-written test doubles for session ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"sync"

	apperrors "github.com/iamdevroyal/blocpoint-client/internal/errors"
	"github.com/iamdevroyal/blocpoint-client/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.StateStore = (*MemoryStateStore)(nil)
	_ ports.Navigator  = (*RecordingNavigator)(nil)
)

// MemoryStateStore is an in-memory state store for unit tests.
// SetErr and DeleteErr, when non-nil, make the corresponding call fail without mutating state.
type MemoryStateStore struct {
	mu     sync.Mutex
	values map[string]string

	SetErr    error
	DeleteErr error
}

// NewMemoryStateStore creates a new in-memory state store, optionally pre-seeded.
func NewMemoryStateStore(seed map[string]string) *MemoryStateStore {
	values := make(map[string]string, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &MemoryStateStore{values: values}
}

func (m *MemoryStateStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", apperrors.NotFound("state key not found: " + key)
	}
	return v, nil
}

func (m *MemoryStateStore) Set(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	if _, ok := values[""]; ok {
		return errors.New("state key cannot be empty")
	}
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *MemoryStateStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// Snapshot returns a copy of the current contents.
func (m *MemoryStateStore) Snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// RecordingNavigator records every navigation target in order.
type RecordingNavigator struct {
	mu      sync.Mutex
	targets []string
}

func (n *RecordingNavigator) Navigate(_ context.Context, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.targets = append(n.targets, target)
	return nil
}

// Targets returns the recorded navigation targets.
func (n *RecordingNavigator) Targets() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.targets...)
}
