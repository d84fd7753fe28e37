package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/clock"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/store"
)

// PreferenceCache is a bounded LRU with TTL in front of a PreferenceStore.
// It is explicit, injectable state: entries are evicted by capacity or age,
// and Invalidate drops a user after a preference update.
type PreferenceCache struct {
	backend  store.PreferenceStore
	clock    clock.Clock
	capacity int
	ttl      time.Duration

	mu      sync.Mutex
	order   *list.List // front = most recently used
	entries map[string]*list.Element
}

type cacheEntry struct {
	userID   string
	prefs    *domain.Preferences
	loadedAt time.Time
}

func NewPreferenceCache(backend store.PreferenceStore, clk clock.Clock, capacity int, ttl time.Duration) *PreferenceCache {
	if capacity < 1 {
		capacity = 1
	}
	return &PreferenceCache{
		backend:  backend,
		clock:    clk,
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (c *PreferenceCache) Get(ctx context.Context, userID string) (*domain.Preferences, error) {
	c.mu.Lock()
	if el, ok := c.entries[userID]; ok {
		entry := el.Value.(*cacheEntry)
		if c.clock.Now().Sub(entry.loadedAt) < c.ttl {
			c.order.MoveToFront(el)
			c.mu.Unlock()
			return entry.prefs, nil
		}
		c.evict(el)
	}
	c.mu.Unlock()

	prefs, err := c.backend.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[userID]; ok {
		c.evict(el)
	}
	el := c.order.PushFront(&cacheEntry{userID: userID, prefs: prefs, loadedAt: c.clock.Now()})
	c.entries[userID] = el
	for c.order.Len() > c.capacity {
		c.evict(c.order.Back())
	}
	return prefs, nil
}

func (c *PreferenceCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[userID]; ok {
		c.evict(el)
	}
}

func (c *PreferenceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *PreferenceCache) evict(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	delete(c.entries, entry.userID)
	c.order.Remove(el)
}
