package cache

import (
	"context"
	"testing"
	"time"

	"github.com/recordstack/entitystore/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *MemoryCache {
	t.Helper()
	c := NewMemoryCache(logger.New("error", "json"))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestEntityKeys(t *testing.T) {
	assert.Equal(t, "acme/objects/task/42", EntityKey("acme", "task", "42"))
	assert.Equal(t, "acme/objects/guid/abc", EntityGUIDKey("acme", "abc"))
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "acme/objects/task/1", []byte(`{"name":"x"}`), time.Minute))

	val, found, err := c.Get(ctx, "acme/objects/task/1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte(`{"name":"x"}`), val)

	_, found, err = c.Get(ctx, "acme/objects/task/2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), -time.Second))

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCache_Delete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting a missing key is a no-op
	assert.NoError(t, c.Delete(ctx, "k"))
}

func TestMemoryCache_Overwrite(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("a"), time.Minute))
	require.NoError(t, c.Set(ctx, "k", []byte("b"), time.Minute))

	val, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("b"), val)
}

func TestMemoryCache_Stats(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))

	stats := c.Stats()
	assert.Equal(t, 2, stats["entries"])
	assert.Equal(t, "memory", stats["type"])
}
