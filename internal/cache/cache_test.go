package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", payload{Name: "a", Count: 2}, time.Minute))

	var out payload
	found, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, payload{Name: "a", Count: 2}, out)

	now = now.Add(2 * time.Minute)
	found, err = c.Get(ctx, "k", &out)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, c.Set(ctx, "zero", payload{}, 0))
	found, _ = c.Get(ctx, "zero", &out)
	require.False(t, found)
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := Dial(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	c := NewRedis(client, "boxoffice_test:")
	key := "cache_test_" + time.Now().Format("150405.000000")
	t.Cleanup(func() {
		_ = client.Del(ctx, "boxoffice_test:"+key).Err()
	})

	var out payload
	found, err := c.Get(ctx, key, &out)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, c.Set(ctx, key, payload{Name: "r", Count: 1}, time.Minute))
	found, err = c.Get(ctx, key, &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "r", out.Name)
}
