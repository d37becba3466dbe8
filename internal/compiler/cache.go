package compiler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// CacheConfig bounds a CachingCompiler.
type CacheConfig struct {
	// MaxBytes is the total size of cached output. Zero disables caching.
	MaxBytes int64
	// TTL expires entries; zero keeps them until evicted.
	TTL time.Duration
	// MaxConcurrent caps compilations running at once. Zero means one per
	// CPU.
	MaxConcurrent int64
}

// CacheStats is a snapshot of cache and compile counters.
type CacheStats struct {
	Entries         int           `json:"entries"`
	Bytes           int64         `json:"bytes"`
	Hits            int64         `json:"hits"`
	Misses          int64         `json:"misses"`
	Evictions       int64         `json:"evictions"`
	Compiles        int64         `json:"compiles"`
	Failures        int64         `json:"failures"`
	AverageDuration time.Duration `json:"average_duration"`
}

// CachingCompiler wraps a Compiler with an LRU result cache keyed by the
// source hash, collapses concurrent compiles of the same source into one
// and limits how many compiles run at once.
//
// Cached results are shared between callers and must not be modified.
type CachingCompiler struct {
	next  Compiler
	sem   *semaphore.Weighted
	group singleflight.Group
	now   func() time.Time

	mu       sync.Mutex
	entries  map[string]*cacheEntry
	head     *cacheEntry
	tail     *cacheEntry
	size     int64
	maxBytes int64
	ttl      time.Duration

	hits       atomic.Int64
	misses     atomic.Int64
	evictions  atomic.Int64
	compiles   atomic.Int64
	failures   atomic.Int64
	totalNanos atomic.Int64
}

type cacheEntry struct {
	key       string
	result    *Result
	size      int64
	createdAt time.Time
	prev      *cacheEntry
	next      *cacheEntry
}

// NewCachingCompiler wraps next.
func NewCachingCompiler(next Compiler, cfg CacheConfig) *CachingCompiler {
	concurrent := cfg.MaxConcurrent
	if concurrent <= 0 {
		concurrent = int64(runtime.NumCPU())
	}

	c := &CachingCompiler{
		next:     next,
		sem:      semaphore.NewWeighted(concurrent),
		now:      time.Now,
		entries:  make(map[string]*cacheEntry),
		head:     &cacheEntry{},
		tail:     &cacheEntry{},
		maxBytes: cfg.MaxBytes,
		ttl:      cfg.TTL,
	}
	c.head.next = c.tail
	c.tail.prev = c.head

	return c
}

// Compile implements Compiler.
func (c *CachingCompiler) Compile(ctx context.Context, source string) (*Result, error) {
	key := cacheKey(source)
	if result, ok := c.get(key); ok {
		c.hits.Add(1)
		return result, nil
	}
	c.misses.Add(1)

	// The shared compile outlives any one caller; each caller still stops
	// waiting when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.compile(shared, key, source)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Result), nil
	}
}

func (c *CachingCompiler) compile(ctx context.Context, key, source string) (*Result, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	start := c.now()
	result, err := c.next.Compile(ctx, source)
	c.compiles.Add(1)
	c.totalNanos.Add(int64(c.now().Sub(start)))

	if err != nil {
		c.failures.Add(1)
		return nil, err
	}

	c.set(key, result)
	return result, nil
}

// Stats returns a snapshot of the counters.
func (c *CachingCompiler) Stats() CacheStats {
	c.mu.Lock()
	entries, size := len(c.entries), c.size
	c.mu.Unlock()

	stats := CacheStats{
		Entries:   entries,
		Bytes:     size,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Compiles:  c.compiles.Load(),
		Failures:  c.failures.Load(),
	}
	if stats.Compiles > 0 {
		stats.AverageDuration = time.Duration(c.totalNanos.Load() / stats.Compiles)
	}
	return stats
}

func (c *CachingCompiler) get(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(entry.createdAt) > c.ttl {
		c.remove(entry)
		return nil, false
	}

	c.moveToFront(entry)
	return entry.result, true
}

func (c *CachingCompiler) set(key string, result *Result) {
	size := resultSize(result)
	if c.maxBytes <= 0 || size > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.remove(existing)
	}

	for c.size+size > c.maxBytes && c.tail.prev != c.head {
		c.remove(c.tail.prev)
		c.evictions.Add(1)
	}

	entry := &cacheEntry{key: key, result: result, size: size, createdAt: c.now()}
	c.entries[key] = entry
	c.size += size
	c.addToFront(entry)
}

func (c *CachingCompiler) remove(entry *cacheEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(c.entries, entry.key)
	c.size -= entry.size
}

func (c *CachingCompiler) addToFront(entry *cacheEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *CachingCompiler) moveToFront(entry *cacheEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	c.addToFront(entry)
}

func cacheKey(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// resultSize approximates the memory held by a result.
func resultSize(r *Result) int64 {
	size := int64(len(r.Lua) + len(r.SourceMap))
	for _, d := range r.Diagnostics {
		size += int64(len(d.File)+len(d.Code)+len(d.Message)) + 48
	}
	return size
}
