package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	var got map[string]int
	hit, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))
	hit, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, got["a"])

	now = now.Add(time.Minute)
	hit, _ = c.Get(ctx, "k", &got)
	assert.False(t, hit, "expired entries are dropped")

	require.NoError(t, c.Set(ctx, "forever", "v", 0))
	require.NoError(t, c.Delete(ctx, "forever", "missing"))
	var s string
	hit, _ = c.Get(ctx, "forever", &s)
	assert.False(t, hit)
}
