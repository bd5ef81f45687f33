// Package countcache is the single owner of the cached per-user product
// count. Exactly one Cache instance exists per process; every reader and
// every mutator goes through it, and subscribers are notified on each
// change so no component can hold a stale copy after another component's
// mutation.
package countcache

import (
	"context"
	"sync"
	"time"

	"github.com/unimart/unimart/internal/domain"
)

// Cache policy. One policy, fixed here: earlier revisions of the product
// disagreed on these numbers, so they are named constants in one place.
const (
	// TTL is how long a fetched count stays valid for passive reads.
	TTL = 90 * time.Second
	// MinFetchInterval throttles backend calls across all users; reads
	// inside the window return the last known value.
	MinFetchInterval = 30 * time.Second
	// ManualRefreshInterval is the shorter floor applied to user-initiated
	// refreshes so refresh feels responsive without permitting spam.
	ManualRefreshInterval = 10 * time.Second
)

// FetchFunc loads the authoritative count for a user from the backend.
type FetchFunc func(ctx context.Context, userID string) (int, error)

// Listener observes count changes.
type Listener func(userID string, count int)

type entry struct {
	count     int
	fetchedAt time.Time
}

// Cache caches per-user product counts with TTL, a global fetch throttle,
// and explicit invalidation.
type Cache struct {
	mu        sync.Mutex
	fetch     FetchFunc
	entries   map[string]entry
	lastFetch time.Time
	listeners map[int]Listener
	nextID    int
	observe   func(outcome string)

	now func() time.Time
}

// New creates a Cache that loads counts through fetch.
func New(fetch FetchFunc) *Cache {
	return &Cache{
		fetch:     fetch,
		entries:   make(map[string]entry),
		listeners: make(map[int]Listener),
		observe:   func(string) {},
		now:       time.Now,
	}
}

// SetObserver registers a callback receiving the outcome of each read
// ("hit", "throttled", "fetch" or "error"), e.g. for metrics.
func (c *Cache) SetObserver(observe func(outcome string)) {
	c.mu.Lock()
	c.observe = observe
	c.mu.Unlock()
}

// Get returns the user's product count, from cache when the entry is
// within TTL. When the global throttle suppresses a fetch, the last known
// value is returned (zero if none). Fetch failures also degrade to the
// last known value so the limit check never blocks the UI on an error.
func (c *Cache) Get(ctx context.Context, userID string) (int, error) {
	c.mu.Lock()
	now := c.now()
	if e, ok := c.entries[userID]; ok && now.Sub(e.fetchedAt) < TTL {
		c.observe("hit")
		c.mu.Unlock()
		return e.count, nil
	}
	if !c.lastFetch.IsZero() && now.Sub(c.lastFetch) < MinFetchInterval {
		count := c.entries[userID].count
		c.observe("throttled")
		c.mu.Unlock()
		return count, nil
	}
	c.lastFetch = now
	c.mu.Unlock()

	return c.refetch(ctx, userID)
}

// Refresh is a user-initiated reload. It bypasses the TTL but is held to
// ManualRefreshInterval; inside that window the cached value is returned.
func (c *Cache) Refresh(ctx context.Context, userID string) (int, error) {
	c.mu.Lock()
	now := c.now()
	if !c.lastFetch.IsZero() && now.Sub(c.lastFetch) < ManualRefreshInterval {
		count := c.entries[userID].count
		c.mu.Unlock()
		return count, nil
	}
	c.lastFetch = now
	c.mu.Unlock()

	return c.refetch(ctx, userID)
}

func (c *Cache) refetch(ctx context.Context, userID string) (int, error) {
	count, err := c.fetch(ctx, userID)

	c.mu.Lock()
	if err != nil {
		count = c.entries[userID].count
		c.observe("error")
		c.mu.Unlock()
		return count, err
	}
	c.entries[userID] = entry{count: count, fetchedAt: c.now()}
	c.observe("fetch")
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	for _, l := range listeners {
		l(userID, count)
	}
	return count, nil
}

// Invalidate drops the user's entry and lifts the global throttle so the
// next read goes to the backend regardless of timing. Every mutation that
// changes the underlying count (create, delete, deal completion) must
// call this before its caller reads again.
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.lastFetch = time.Time{}
	c.mu.Unlock()
}

// Reset clears all cached state, e.g. on sign-out.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.lastFetch = time.Time{}
	c.mu.Unlock()
}

// LimitReached reports whether the user is at the listing cap.
func (c *Cache) LimitReached(ctx context.Context, userID string) (bool, error) {
	count, err := c.Get(ctx, userID)
	return domain.LimitReached(count), err
}

// Subscribe registers a listener for count changes and returns its
// unsubscribe function.
func (c *Cache) Subscribe(l Listener) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = l
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// snapshotListeners copies listeners for notification outside the lock;
// caller holds c.mu.
func (c *Cache) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		out = append(out, l)
	}
	return out
}
