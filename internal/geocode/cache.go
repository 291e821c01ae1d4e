package geocode

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	candidates []Candidate
	exp        time.Time
}

// MemoryCache is the in-process default used when no shared cache is configured.
type MemoryCache struct {
	TTL        time.Duration
	MaxEntries int

	mu    sync.Mutex
	items map[string]memoryEntry
	now   func() time.Time
}

func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	return &MemoryCache{TTL: ttl, MaxEntries: maxEntries}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]Candidate, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && c.clock().After(e.exp) {
		delete(c.items, key)
		return nil, false, nil
	}
	return e.candidates, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, candidates []Candidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = map[string]memoryEntry{}
	}
	if c.MaxEntries > 0 && len(c.items) >= c.MaxEntries {
		if _, exists := c.items[key]; !exists {
			c.evictLocked()
		}
	}
	var exp time.Time
	if c.TTL > 0 {
		exp = c.clock().Add(c.TTL)
	}
	c.items[key] = memoryEntry{candidates: candidates, exp: exp}
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictLocked drops expired entries, or the one closest to expiry when none are.
func (c *MemoryCache) evictLocked() {
	now := c.clock()
	var (
		victim    string
		victimExp time.Time
	)
	for k, e := range c.items {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(c.items, k)
			continue
		}
		if victim == "" || e.exp.Before(victimExp) {
			victim, victimExp = k, e.exp
		}
	}
	if len(c.items) >= c.MaxEntries && victim != "" {
		delete(c.items, victim)
	}
}

func (c *MemoryCache) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}
