package rbac

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// assignmentCache is the read-through cache behind the Evaluator. It stores
// the resolved assignment set per (user, normalized scope) so that every
// permission query for the same context is answered from one storage
// round-trip per TTL window.
type assignmentCache struct {
	mu     sync.Mutex
	lru    *lru.LRU[string, cacheEntry]
	byUser map[int64]map[string]struct{}

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	userID      int64
	assignments []RoleAssignment
}

func newAssignmentCache(maxEntries int, ttl time.Duration) *assignmentCache {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &assignmentCache{
		lru:    lru.NewLRU[string, cacheEntry](maxEntries, nil, ttl),
		byUser: make(map[int64]map[string]struct{}),
	}
}

func cacheKey(userID int64, scope Scope) string {
	return fmt.Sprintf("u%d|%s", userID, scope.Key())
}

func (c *assignmentCache) get(key string) ([]RoleAssignment, bool) {
	c.mu.Lock()
	entry, ok := c.lru.Get(key)
	c.mu.Unlock()
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return entry.assignments, true
}

func (c *assignmentCache) put(userID int64, key string, assignments []RoleAssignment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, cacheEntry{userID: userID, assignments: assignments})
	keys, ok := c.byUser[userID]
	if !ok {
		keys = make(map[string]struct{})
		c.byUser[userID] = keys
	}
	keys[key] = struct{}{}
}

// invalidateUser synchronously drops every cached entry for the user. Called
// on any assignment write so that a subsequent check observes the new state
// immediately.
func (c *assignmentCache) invalidateUser(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.byUser[userID] {
		c.lru.Remove(key)
	}
	delete(c.byUser, userID)
}

func (c *assignmentCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.byUser = make(map[int64]map[string]struct{})
}

func (c *assignmentCache) stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
