package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("meta not found")

// UpdateFunc receives the current value (found=false when the key is absent)
// and returns the value to store. A nil result leaves the stored value as is.
type UpdateFunc func(current json.RawMessage, found bool) (json.RawMessage, error)

// Store is per-entity key/value persistence for JSON documents.
// Update must run fn while holding an exclusive lock on (entityID, key).
type Store interface {
	Get(ctx context.Context, entityID int64, key string) (json.RawMessage, error)
	Set(ctx context.Context, entityID int64, key string, value json.RawMessage) error
	Delete(ctx context.Context, entityID int64, key string) error
	Update(ctx context.Context, entityID int64, key string, fn UpdateFunc) error
}

// GetJSON decodes the stored value into dst. It returns false when the key is
// missing.
func GetJSON(ctx context.Context, store Store, entityID int64, key string, dst any) (bool, error) {
	raw, err := store.Get(ctx, entityID, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode meta %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes value and stores it under key.
func SetJSON(ctx context.Context, store Store, entityID int64, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode meta %s: %w", key, err)
	}
	return store.Set(ctx, entityID, key, raw)
}
