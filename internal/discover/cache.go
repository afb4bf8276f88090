package discover

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

// DefaultLastGoodTTL is how long a confirmed address stays trusted. Boards
// on home networks keep DHCP leases far longer than this.
const DefaultLastGoodTTL = 15 * time.Minute

// LastGood remembers which address most recently answered for each logical
// target, so the next resolution tries it first instead of rescanning.
// Thread-safe; entries expire after the TTL.
type LastGood struct {
	mu      sync.Mutex
	clock   clock.Clock
	ttl     time.Duration
	entries map[string]lastGoodEntry
}

type lastGoodEntry struct {
	address string
	seen    time.Time
}

// NewLastGood creates a cache with the given TTL. Pass clock.WallClock
// outside of tests.
func NewLastGood(ttl time.Duration, clk clock.Clock) *LastGood {
	if ttl <= 0 {
		ttl = DefaultLastGoodTTL
	}
	return &LastGood{
		clock:   clk,
		ttl:     ttl,
		entries: make(map[string]lastGoodEntry),
	}
}

// Get returns the remembered address for a target, if it hasn't expired.
func (c *LastGood) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.clock.Now().Sub(entry.seen) > c.ttl {
		delete(c.entries, key)
		return "", false
	}
	return entry.address, true
}

// Put records that an address just answered for a target.
func (c *LastGood) Put(key, address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = lastGoodEntry{address: address, seen: c.clock.Now()}
}

// Forget drops the entry for a target, e.g. after the address stopped
// answering.
func (c *LastGood) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Size returns the number of live entries, counting expired ones until they
// are next touched.
func (c *LastGood) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
