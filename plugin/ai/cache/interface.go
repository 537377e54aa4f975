// Package cache provides TTL-bounded LRU caches for embeddings and session state.
package cache

import (
	"context"
	"time"
)

// CacheService is a byte cache placed in front of a slower store.
// Implementations must be safe for concurrent use.
type CacheService interface {
	// Get returns a copy of the cached value.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value for ttl; zero means the default TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Stats reports cache effectiveness.
type Stats struct {
	Size      int   `json:"size"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Expired   int64 `json:"expired"`
}

// HitRate returns hits / (hits + misses), or 0 when the cache was never read.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
