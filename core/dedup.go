package core

import (
	"context"
	"sync"
)

type dedupEntry struct {
	done   chan struct{}
	result *Result
}

// DedupCache coalesces identical calls within a chain. The first caller for a
// key becomes the leader and executes; later callers wait for the leader and
// share its result. Only successful results stay cached.
type DedupCache struct {
	mu      sync.Mutex
	entries map[string]*dedupEntry
}

// NewDedupCache creates an empty cache.
func NewDedupCache() *DedupCache {
	return &DedupCache{entries: map[string]*dedupEntry{}}
}

// Acquire returns leader=true when the caller must execute the call and later
// Release the key. Otherwise the returned wait function blocks until the
// leader finishes and yields its result, or nil when the leader failed.
func (c *DedupCache) Acquire(key string) (leader bool, wait func(ctx context.Context) (*Result, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return false, func(ctx context.Context) (*Result, error) {
			select {
			case <-e.done:
				return e.result, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	c.entries[key] = &dedupEntry{done: make(chan struct{})}

	return true, nil
}

// Release completes the leader's call. Failed or nil results evict the key so
// a later call can retry.
func (c *DedupCache) Release(key string, res *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return
	}

	if res != nil && res.Success {
		e.result = res
	} else {
		delete(c.entries, key)
	}

	close(e.done)
}

// Len returns the number of cached or in-flight keys.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
