package cache

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestLRU_BasicGetPut(t *testing.T) {
	c := New[string](3, 0, nil)

	c.Put("a", "A")
	c.Put("b", "B")

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRU_Eviction(t *testing.T) {
	c := New[string](2, 0, nil)

	c.Put("a", "A")
	c.Put("b", "B")
	c.Put("c", "C") // evicts "a"

	_, ok := c.Get("a")
	assert.False(t, ok, "a should have been evicted")

	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "B", v)

	v, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", v)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_AccessPromotesEntry(t *testing.T) {
	c := New[string](2, 0, nil)

	c.Put("a", "A")
	c.Put("b", "B")

	// Access "a" to promote it
	c.Get("a")

	// Insert "c", which should evict "b" (LRU), not "a"
	c.Put("c", "C")

	_, ok := c.Get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.Get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRU_UpdateExisting(t *testing.T) {
	c := New[string](2, 0, nil)

	c.Put("a", "A1")
	c.Put("a", "A2")

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", v)
	assert.Equal(t, 1, c.Len())
}

func TestLRU_Expiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	c := New[int](10, 10*time.Minute, clock)

	c.Put("nairobi", 42)

	clock.Advance(9*time.Minute + 59*time.Second)
	v, ok := c.Get("nairobi")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	clock.Advance(time.Second)
	_, ok = c.Get("nairobi")
	assert.False(t, ok, "entry expires exactly at its deadline")
	assert.Equal(t, 0, c.Len(), "expired entry is removed on lookup")
}

func TestLRU_PutResetsExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[int](10, time.Minute, clock)

	c.Put("k", 1)
	clock.Advance(50 * time.Second)
	c.Put("k", 2)
	clock.Advance(50 * time.Second)

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestLRU_ZeroTTLNeverExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[int](10, 0, clock)

	c.Put("k", 1)
	clock.Advance(24 * 365 * time.Hour)

	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestLRU_NonPositiveSize(t *testing.T) {
	c := New[int](0, 0, nil)
	c.Put("a", 1)
	c.Put("b", 2)
	assert.Equal(t, 1, c.Len())
}
