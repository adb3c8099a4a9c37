package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/walrusgate/contentgate/common/logger"
)

// Cache stores opaque values with an expiry. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

const sweepInterval = time.Minute

type entry struct {
	value   []byte
	expires time.Time
}

// MemoryCache keeps entries in a map. Expired entries are dropped on read
// and by a background sweep.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	log     *logger.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryCache(log *logger.Logger) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]entry),
		log:     log,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !time.Now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expires: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len counts entries, including expired ones not yet swept
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the sweep and empties the cache. The cache stays usable.
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			if n := c.sweep(now); n > 0 {
				c.log.Debug("swept expired cache entries", "count", n)
			}
		}
	}
}

func (c *MemoryCache) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// RedisCache stores entries as plain Redis strings under a namespace
type RedisCache struct {
	redis     *redis.Client
	namespace string
	log       *logger.Logger
}

// NewRedisCache namespaces keys with namespace followed by ":". The client
// belongs to the caller and is not closed by Close.
func NewRedisCache(client *redis.Client, namespace string, log *logger.Logger) *RedisCache {
	return &RedisCache{
		redis:     client,
		namespace: strings.TrimSuffix(namespace, ":"),
		log:       log,
	}
}

func (c *RedisCache) key(k string) string {
	if c.namespace == "" {
		return k
	}
	return c.namespace + ":" + k
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.redis.Get(ctx, c.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.redis.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return nil
}
