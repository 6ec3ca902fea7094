// Package redis provides a Redis-backed durable state store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/iamdevroyal/blocpoint-client/internal/errors"
	"github.com/iamdevroyal/blocpoint-client/internal/ports"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix prefixes every installation hash.
const DefaultKeyPrefix = "blocpoint:state:"

var _ ports.StateStore = (*StateStore)(nil)

// StateStore keeps one installation's session state in a single Redis hash so that
// multi-key writes and deletes are applied atomically.
type StateStore struct {
	client redis.UniversalClient
	key    string
}

// NewStateStore creates a store for the given installation namespace.
func NewStateStore(client redis.UniversalClient, namespace string) *StateStore {
	return NewStateStoreWithPrefix(client, DefaultKeyPrefix, namespace)
}

// NewStateStoreWithPrefix creates a store with a custom key prefix.
func NewStateStoreWithPrefix(client redis.UniversalClient, prefix, namespace string) *StateStore {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = "default"
	}
	return &StateStore{client: client, key: prefix + namespace}
}

func (s *StateStore) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", apperrors.NotFound("state key is empty")
	}
	v, err := s.client.HGet(ctx, s.key, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperrors.NotFound("state key not found: " + key)
		}
		return "", fmt.Errorf("redis hget: %w", err)
	}
	return v, nil
}

func (s *StateStore) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, 0, len(values)*2)
	for k, v := range values {
		if k == "" {
			return errors.New("state key cannot be empty")
		}
		args = append(args, k, v)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key, args...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (s *StateStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, s.key, keys...).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}
