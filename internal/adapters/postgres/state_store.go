// Package postgres provides a PostgreSQL-backed durable state store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/iamdevroyal/blocpoint-client/internal/errors"
	"github.com/iamdevroyal/blocpoint-client/internal/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS client_state (
	namespace  TEXT        NOT NULL,
	key        TEXT        NOT NULL CHECK (key <> ''),
	value      TEXT        NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, key)
)`

const upsertSQL = `
INSERT INTO client_state (namespace, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

// DB is the subset of pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ ports.StateStore = (*StateStore)(nil)

// StateStore keeps session state as (namespace, key, value) rows.
type StateStore struct {
	db        DB
	namespace string
}

// NewStateStore creates a store for one installation namespace.
func NewStateStore(db DB, namespace string) *StateStore {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = "default"
	}
	return &StateStore{db: db, namespace: namespace}
}

// EnsureSchema creates the state table when it does not exist.
func (s *StateStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure state schema: %w", apperrors.MapDBError(err))
	}
	return nil
}

func (s *StateStore) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRow(ctx,
		`SELECT value FROM client_state WHERE namespace = $1 AND key = $2`,
		s.namespace, key,
	).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.NotFound("state key not found: " + key)
		}
		return "", fmt.Errorf("get state %s: %w", key, apperrors.MapDBError(err))
	}
	return v, nil
}

// Set upserts all values in one transaction.
func (s *StateStore) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	for k := range values {
		if k == "" {
			return errors.New("state key cannot be empty")
		}
	}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for k, v := range values {
			batch.Queue(upsertSQL, s.namespace, k, v)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("set state: %w", apperrors.MapDBError(err))
	}
	return nil
}

func (s *StateStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`DELETE FROM client_state WHERE namespace = $1 AND key = ANY($2)`,
		s.namespace, keys,
	)
	if err != nil {
		return fmt.Errorf("delete state: %w", apperrors.MapDBError(err))
	}
	return nil
}
