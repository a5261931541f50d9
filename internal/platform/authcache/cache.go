// Package authcache holds authorization decisions behind a bounded,
// TTL-expiring cache. It is constructed in main and passed as a dependency;
// nothing here is ambient module state. Invalidation is explicit: role
// mutations must call the hooks, they cannot wait out the TTL.
package authcache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache memoizes per-user project role sets.
type Cache struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, []domain.ApproverRole]
}

// New creates a cache bounded to size entries with the given TTL.
func New(size int, ttl time.Duration) *Cache {
	return &Cache{
		lru: expirable.NewLRU[string, []domain.ApproverRole](size, nil, ttl),
	}
}

func key(userID, projectID string) string {
	return fmt.Sprintf("%s/%s", userID, projectID)
}

// Get returns the cached role set for the user within the project.
func (c *Cache) Get(userID, projectID string) ([]domain.ApproverRole, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key(userID, projectID))
}

// Put stores the role set for the user within the project.
func (c *Cache) Put(userID, projectID string, roles []domain.ApproverRole) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key(userID, projectID), roles)
}

// Invalidate drops the cached decision for one user/project pair.
func (c *Cache) Invalidate(userID, projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key(userID, projectID))
}

// InvalidateProject drops every cached decision for a project, for use when
// project role assignments change wholesale.
func (c *Cache) InvalidateProject(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	suffix := "/" + projectID
	for _, k := range c.lru.Keys() {
		if strings.HasSuffix(k, suffix) {
			c.lru.Remove(k)
		}
	}
}

// Len returns the number of live entries, for health reporting.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
