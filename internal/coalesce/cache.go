// Package coalesce provides a cache that deduplicates concurrent identical
// lookups and memoizes successful results for the lifetime of the process.
package coalesce

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache coalesces calls keyed by K. The first caller for a key starts the
// lookup; concurrent callers wait on the same call. A successful result is
// kept until Forget, a failed one is not kept so the next call retries.
type Cache[K comparable, V any] struct {
	group singleflight.Group

	mu   sync.Mutex
	memo map[K]V
	gen  uint64
}

// New creates an empty cache.
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{memo: make(map[K]V)}
}

// Do returns the cached value for key or runs fn to obtain it.
//
// fn runs detached from the caller's cancellation so that one impatient
// caller cannot fail the lookup for everyone else waiting on it; each caller
// still stops waiting when its own ctx is done.
func (c *Cache[K, V]) Do(ctx context.Context, key K, fn func(ctx context.Context) (V, error)) (V, error) {
	c.mu.Lock()
	if c.memo == nil {
		c.memo = make(map[K]V)
	}
	if v, ok := c.memo[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	gen := c.gen
	c.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(groupKey(key), func() (any, error) {
		v, err := fn(detached)
		if err == nil {
			c.mu.Lock()
			// A Forget during the lookup wins over its result.
			if c.gen == gen {
				c.memo[key] = v
			}
			c.mu.Unlock()
		}
		return v, err
	})

	select {
	case r := <-ch:
		v, _ := r.Val.(V)
		return v, r.Err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Forget drops the memoized value for key and detaches any in-flight
// lookup from later callers. Callers already waiting on it still receive
// its result.
func (c *Cache[K, V]) Forget(key K) {
	c.mu.Lock()
	delete(c.memo, key)
	c.gen++
	c.mu.Unlock()
	c.group.Forget(groupKey(key))
}

// Len returns the number of memoized entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.memo)
}

func groupKey[K comparable](key K) string {
	return fmt.Sprintf("%T:%#v", key, key)
}
