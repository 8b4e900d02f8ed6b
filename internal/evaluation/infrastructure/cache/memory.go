package cache

import (
	"context"
	"sync"

	evaluation "falldetect/internal/evaluation/domain"
)

// MemoryCache keeps matrices in process memory.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]evaluation.ConfusionMatrix
}

// NewMemoryCache constructs a MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]evaluation.ConfusionMatrix)}
}

// Get returns a cached matrix.
func (c *MemoryCache) Get(_ context.Context, key string) (evaluation.ConfusionMatrix, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.data[key]
	return m, ok, nil
}

// Set stores a matrix.
func (c *MemoryCache) Set(_ context.Context, key string, m evaluation.ConfusionMatrix) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = m
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
