package meta

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryGetSetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	_, err := store.Get(ctx, 1, "k")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, SetJSON(ctx, store, 1, "k", map[string]int{"a": 1}))
	var out map[string]int
	found, err := GetJSON(ctx, store, 1, "k", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1, out["a"])

	found, err = GetJSON(ctx, store, 2, "k", &out)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Delete(ctx, 1, "k"))
	_, err = store.Get(ctx, 1, "k")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryUpdateNilLeavesValue(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.Set(ctx, 1, "k", json.RawMessage(`"v"`)))

	err := store.Update(ctx, 1, "k", func(current json.RawMessage, found bool) (json.RawMessage, error) {
		require.True(t, found)
		require.JSONEq(t, `"v"`, string(current))
		return nil, nil
	})
	require.NoError(t, err)

	raw, err := store.Get(ctx, 1, "k")
	require.NoError(t, err)
	require.JSONEq(t, `"v"`, string(raw))
}

func TestMemoryUpdateIsLinearizable(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.Set(ctx, 7, "counter", json.RawMessage(`0`)))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Update(ctx, 7, "counter", func(current json.RawMessage, found bool) (json.RawMessage, error) {
				n, _ := strconv.Atoi(string(current))
				return json.RawMessage(strconv.Itoa(n + 1)), nil
			})
		}()
	}
	wg.Wait()

	raw, err := store.Get(ctx, 7, "counter")
	require.NoError(t, err)
	require.Equal(t, "50", string(raw))
}
