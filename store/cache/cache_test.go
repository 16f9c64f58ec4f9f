package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	c := New(Config{DefaultTTL: time.Minute, CleanupInterval: time.Minute, MaxItems: 10})
	defer c.Close()

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	c.Delete("a")
	_, ok = c.Get("a")
	require.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c := New(Config{DefaultTTL: time.Minute, CleanupInterval: time.Minute, MaxItems: 10})
	defer c.Close()

	c.SetWithTTL("a", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("a")
	require.False(t, ok)
}

func TestEvictionAtCapacity(t *testing.T) {
	evicted := make(map[string]bool)
	c := New(Config{
		DefaultTTL:      time.Minute,
		CleanupInterval: time.Minute,
		MaxItems:        2,
		OnEviction:      func(key string, _ any) { evicted[key] = true },
	})
	defer c.Close()

	c.SetWithTTL("first", 1, time.Second)
	c.SetWithTTL("second", 2, time.Hour)
	c.SetWithTTL("third", 3, time.Hour)

	// The entry closest to expiry goes first.
	require.True(t, evicted["first"])
	_, ok := c.Get("second")
	require.True(t, ok)
	_, ok = c.Get("third")
	require.True(t, ok)
}
