package generate

import (
	"sync"
	"time"
)

// InMemoryTemplateCache is a simple in-memory implementation of
// TemplateCache. Thread-safe for concurrent access.
type InMemoryTemplateCache struct {
	templates []*Template
	cachedAt  time.Time
	config    CacheConfig
	mu        sync.RWMutex
	isValid   bool
}

// NewInMemoryTemplateCache creates a new in-memory template cache
func NewInMemoryTemplateCache(config CacheConfig) *InMemoryTemplateCache {
	return &InMemoryTemplateCache{
		config:  config,
		isValid: false,
	}
}

// Get retrieves cached templates.
// Returns nil if cache is invalid or expired.
func (c *InMemoryTemplateCache) Get() []*Template {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return nil
	}

	if c.config.TTL > 0 {
		if time.Since(c.cachedAt) > c.config.TTL {
			return nil
		}
	}

	// Return copy to prevent external modifications
	out := make([]*Template, len(c.templates))
	copy(out, c.templates)
	return out
}

// Set stores templates in cache
func (c *InMemoryTemplateCache) Set(templates []*Template) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.templates = make([]*Template, len(templates))
	copy(c.templates, templates)
	c.cachedAt = time.Now()
	c.isValid = true
}

// Invalidate clears the cache
func (c *InMemoryTemplateCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.templates = nil
}

// IsValid returns true if cache contains valid data
func (c *InMemoryTemplateCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return false
	}

	if c.config.TTL > 0 {
		return time.Since(c.cachedAt) <= c.config.TTL
	}

	return true
}
