// Package ports defines interfaces (hexagonal ports) for session state and navigation.
// Implementations live in internal/adapters; orchestration in internal/service.
package ports

import "context"

// StateStore persists the client's durable key/value state (the local-storage equivalent).
// Implementations must apply a single Set or Delete call atomically across all keys.
type StateStore interface {
	// Get returns the value for key, or an error satisfying errors.IsNotFound when absent.
	Get(ctx context.Context, key string) (string, error)
	// Set writes all values in one atomic step.
	Set(ctx context.Context, values map[string]string) error
	// Delete removes the given keys; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

// Navigator moves the user to another screen, e.g. the login route after session expiry.
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}
