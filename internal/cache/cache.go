package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Cache stores JSON-encoded values with a fixed TTL.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Memory is a process-local TTL cache.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	now   func() time.Time
}

type memoryEntry struct {
	expiresAt time.Time
	payload   []byte
}

func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]memoryEntry),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (c *Memory) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || key == "" {
		return false, nil
	}
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(entry.payload, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (c *Memory) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || key == "" || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", key, err)
	}
	c.mu.Lock()
	c.items[key] = memoryEntry{
		expiresAt: c.now().Add(ttl),
		payload:   payload,
	}
	c.mu.Unlock()
	return nil
}

// Redis keeps cached values in Redis under a common prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if client == nil {
		return nil
	}
	return &Redis{client: client, prefix: prefix}
}

// Dial parses a redis:// URL and verifies the connection.
func Dial(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (c *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	payload, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (c *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || c.client == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", key, err)
	}
	return c.client.Set(ctx, c.prefix+key, payload, ttl).Err()
}
