package clients

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

var ErrCacheMiss = errors.New("cache miss")

type cacheItem struct {
	value     string
	expiresAt time.Time
}

// MemoryCache mirrors the subset of RedisClient used for export bookkeeping when
// redis is disabled. State lives in this process only.
type MemoryCache struct {
	mu     sync.Mutex
	values map[string]cacheItem
	sets   map[string][]string
	now    func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		values: make(map[string]cacheItem),
		sets:   make(map[string][]string),
		now:    time.Now,
	}
}

func (c *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := cacheItem{value: fmt.Sprint(value)}
	if ttl > 0 {
		item.expiresAt = c.now().Add(ttl)
	}
	c.values[key] = item
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.values[key]
	if !ok {
		return "", ErrCacheMiss
	}
	if !item.expiresAt.IsZero() && c.now().After(item.expiresAt) {
		delete(c.values, key)
		return "", ErrCacheMiss
	}
	return item.value, nil
}

func (c *MemoryCache) SAdd(_ context.Context, key string, members ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range members {
		s := fmt.Sprint(m)
		if !slices.Contains(c.sets[key], s) {
			c.sets[key] = append(c.sets[key], s)
		}
	}
	return nil
}

func (c *MemoryCache) SMembers(_ context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.sets[key]), nil
}

func (c *MemoryCache) SRem(_ context.Context, key string, members ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range members {
		s := fmt.Sprint(m)
		c.sets[key] = slices.DeleteFunc(c.sets[key], func(v string) bool { return v == s })
	}
	return nil
}
