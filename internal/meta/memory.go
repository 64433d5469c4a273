package meta

import (
	"context"
	"encoding/json"
	"sync"
)

type entryKey struct {
	entityID int64
	key      string
}

// Memory is an in-process Store. Writes to the same key are serialized by a
// per-key mutex so Update is linearizable.
type Memory struct {
	mu     sync.RWMutex
	values map[entryKey]json.RawMessage

	locksMu sync.Mutex
	locks   map[entryKey]*sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		values: make(map[entryKey]json.RawMessage),
		locks:  make(map[entryKey]*sync.Mutex),
	}
}

func (m *Memory) Get(ctx context.Context, entityID int64, key string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	value, ok := m.values[entryKey{entityID, key}]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRaw(value), nil
}

func (m *Memory) Set(ctx context.Context, entityID int64, key string, value json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := entryKey{entityID, key}
	lock := m.lockFor(k)
	lock.Lock()
	defer lock.Unlock()
	m.put(k, value)
	return nil
}

func (m *Memory) Delete(ctx context.Context, entityID int64, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := entryKey{entityID, key}
	lock := m.lockFor(k)
	lock.Lock()
	defer lock.Unlock()
	m.mu.Lock()
	delete(m.values, k)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Update(ctx context.Context, entityID int64, key string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := entryKey{entityID, key}
	lock := m.lockFor(k)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	current, found := m.values[k]
	m.mu.RUnlock()

	next, err := fn(cloneRaw(current), found)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	m.put(k, next)
	return nil
}

func (m *Memory) put(k entryKey, value json.RawMessage) {
	m.mu.Lock()
	m.values[k] = cloneRaw(value)
	m.mu.Unlock()
}

func (m *Memory) lockFor(k entryKey) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	lock, ok := m.locks[k]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[k] = lock
	}
	return lock
}

func cloneRaw(value json.RawMessage) json.RawMessage {
	if value == nil {
		return nil
	}
	return append(json.RawMessage(nil), value...)
}
