package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetOrCompute_ComputesOnceThenHitsCache(t *testing.T) {
	c := New[int]()
	calls := 0

	v := c.GetOrCompute("k", func() int { calls++; return 42 })
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)

	v = c.GetOrCompute("k", func() int { calls++; return 99 })
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestCache_DeleteRemovesEntry(t *testing.T) {
	c := New[string]()
	c.Set("a", "1")
	assert.Equal(t, 1, c.Size())

	c.Delete("a")
	assert.Equal(t, 0, c.Size())

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCache_StatsTrackHitsAndMisses(t *testing.T) {
	c := New[int]()
	c.Set("a", 1)

	_, ok := c.Get("a")
	require.True(t, ok)
	_, ok = c.Get("missing")
	require.False(t, ok)

	summary := c.Stats()
	assert.Equal(t, int64(1), summary.Hits)
	assert.Equal(t, int64(1), summary.Misses)
	assert.Equal(t, int64(1), summary.Sets)
	assert.Equal(t, 0.5, summary.HitRatio)
}
