package generate

import "time"

// TemplateCache provides an abstraction for caching the active
// templates list. This allows swapping between in-memory, Redis, or
// other caching implementations.
type TemplateCache interface {
	// Get retrieves cached templates, returns nil if cache miss or expired
	Get() []*Template

	// Set stores templates in cache
	Set(templates []*Template)

	// Invalidate clears the cache, forcing a refresh on next Get
	Invalidate()

	// IsValid returns true if cache has valid data
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries
	// Set to 0 for no expiration (manual invalidation only)
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults for template caching
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL: 0, // No TTL - only invalidate on mutations
	}
}
