package discover

import (
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastGoodPutGet(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	cache := NewLastGood(15*time.Minute, clk)

	_, ok := cache.Get("garage")
	assert.False(t, ok)

	cache.Put("garage", "192.168.4.20")
	addr, ok := cache.Get("garage")
	require.True(t, ok)
	assert.Equal(t, "192.168.4.20", addr)
	assert.Equal(t, 1, cache.Size())
}

func TestLastGoodExpiry(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	cache := NewLastGood(15*time.Minute, clk)
	cache.Put("garage", "192.168.4.20")

	clk.Advance(14 * time.Minute)
	_, ok := cache.Get("garage")
	assert.True(t, ok)

	clk.Advance(2 * time.Minute)
	_, ok = cache.Get("garage")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Size())
}

func TestLastGoodPutRefreshesExpiry(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	cache := NewLastGood(15*time.Minute, clk)
	cache.Put("garage", "192.168.4.20")

	clk.Advance(10 * time.Minute)
	cache.Put("garage", "192.168.4.21")

	clk.Advance(10 * time.Minute)
	addr, ok := cache.Get("garage")
	require.True(t, ok)
	assert.Equal(t, "192.168.4.21", addr)
}

func TestLastGoodForget(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	cache := NewLastGood(15*time.Minute, clk)
	cache.Put("garage", "192.168.4.20")
	cache.Put("attic", "192.168.4.21")

	cache.Forget("garage")
	_, ok := cache.Get("garage")
	assert.False(t, ok)
	_, ok = cache.Get("attic")
	assert.True(t, ok)
}

func TestLastGoodDefaultTTL(t *testing.T) {
	cache := NewLastGood(0, testclock.NewClock(time.Now()))
	cache.Put("garage", "192.168.4.20")
	_, ok := cache.Get("garage")
	assert.True(t, ok)
}
