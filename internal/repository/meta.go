package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"boxoffice/backend/internal/meta"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MetaStore keeps per-entity JSON documents in entity_meta.
type MetaStore struct {
	repo *Repository
}

var _ meta.Store = (*MetaStore)(nil)

func (s *MetaStore) Get(ctx context.Context, entityID int64, key string) (json.RawMessage, error) {
	var raw []byte
	err := s.repo.pool.QueryRow(ctx, `SELECT meta_value FROM entity_meta WHERE entity_id = $1 AND meta_key = $2`, entityID, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, meta.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func (s *MetaStore) Set(ctx context.Context, entityID int64, key string, value json.RawMessage) error {
	return setMeta(ctx, s.repo.pool, entityID, key, value)
}

func (s *MetaStore) Delete(ctx context.Context, entityID int64, key string) error {
	_, err := s.repo.pool.Exec(ctx, `DELETE FROM entity_meta WHERE entity_id = $1 AND meta_key = $2`, entityID, key)
	return err
}

// Update runs fn under a transaction-scoped advisory lock on (entityID, key),
// so concurrent updates of the same document are serialized even when the
// row does not exist yet.
func (s *MetaStore) Update(ctx context.Context, entityID int64, key string, fn meta.UpdateFunc) error {
	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		lockKey := fmt.Sprintf("entity_meta:%d:%s", entityID, key)
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
			return fmt.Errorf("lock meta %s: %w", key, err)
		}

		var raw []byte
		found := true
		err := tx.QueryRow(ctx, `SELECT meta_value FROM entity_meta WHERE entity_id = $1 AND meta_key = $2 FOR UPDATE`, entityID, key).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			found = false
		} else if err != nil {
			return err
		}

		next, err := fn(json.RawMessage(raw), found)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		return setMeta(ctx, tx, entityID, key, next)
	})
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func setMeta(ctx context.Context, db execer, entityID int64, key string, value json.RawMessage) error {
	_, err := db.Exec(ctx, `
INSERT INTO entity_meta (entity_id, meta_key, meta_value)
VALUES ($1, $2, $3::jsonb)
ON CONFLICT (entity_id, meta_key) DO UPDATE SET
	meta_value = EXCLUDED.meta_value,
	updated_at = now();`, entityID, key, string(value))
	return err
}
