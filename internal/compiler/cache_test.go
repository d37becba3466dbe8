package compiler

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingCompiler echoes the source as Lua and counts invocations.
type countingCompiler struct {
	calls   atomic.Int64
	delay   time.Duration
	fail    bool
	running atomic.Int64
	peak    atomic.Int64
}

func (c *countingCompiler) Compile(ctx context.Context, source string) (*Result, error) {
	c.calls.Add(1)
	n := c.running.Add(1)
	defer c.running.Add(-1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.fail {
		return nil, stderrors.New("compiler crashed")
	}
	return &Result{Lua: "-- " + source, Diagnostics: []Diagnostic{}}, nil
}

func TestCachingCompilerHitsAndMisses(t *testing.T) {
	next := &countingCompiler{}
	c := NewCachingCompiler(next, CacheConfig{MaxBytes: 1 << 20})
	ctx := context.Background()

	first, err := c.Compile(ctx, "print(1)")
	require.NoError(t, err)
	second, err := c.Compile(ctx, "print(1)")
	require.NoError(t, err)
	_, err = c.Compile(ctx, "print(2)")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(2), next.calls.Load())

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(2), stats.Compiles)
}

func TestCachingCompilerEvictsLeastRecentlyUsed(t *testing.T) {
	next := &countingCompiler{}
	// Each result is "-- " plus a 5 byte source.
	c := NewCachingCompiler(next, CacheConfig{MaxBytes: 16})
	ctx := context.Background()

	for _, src := range []string{"aaaaa", "bbbbb", "aaaaa", "ccccc"} {
		_, err := c.Compile(ctx, src)
		require.NoError(t, err)
	}

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(1), stats.Evictions)
	assert.LessOrEqual(t, stats.Bytes, int64(16))

	// "bbbbb" was least recently used.
	_, err := c.Compile(ctx, "aaaaa")
	require.NoError(t, err)
	assert.Equal(t, int64(3), next.calls.Load())
	_, err = c.Compile(ctx, "bbbbb")
	require.NoError(t, err)
	assert.Equal(t, int64(4), next.calls.Load())
}

func TestCachingCompilerSkipsOversizedResults(t *testing.T) {
	next := &countingCompiler{}
	c := NewCachingCompiler(next, CacheConfig{MaxBytes: 8})

	_, err := c.Compile(context.Background(), strings.Repeat("x", 64))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestCachingCompilerDisabled(t *testing.T) {
	next := &countingCompiler{}
	c := NewCachingCompiler(next, CacheConfig{})

	for i := 0; i < 3; i++ {
		_, err := c.Compile(context.Background(), "")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), next.calls.Load())
}

func TestCachingCompilerTTL(t *testing.T) {
	next := &countingCompiler{}
	c := NewCachingCompiler(next, CacheConfig{MaxBytes: 1 << 10, TTL: time.Minute})
	now := time.Unix(0, 0)
	c.now = func() time.Time { return now }

	_, err := c.Compile(context.Background(), "print(1)")
	require.NoError(t, err)
	now = now.Add(30 * time.Second)
	_, err = c.Compile(context.Background(), "print(1)")
	require.NoError(t, err)
	assert.Equal(t, int64(1), next.calls.Load())

	now = now.Add(time.Minute)
	_, err = c.Compile(context.Background(), "print(1)")
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.calls.Load())
}

func TestCachingCompilerDoesNotCacheFailures(t *testing.T) {
	next := &countingCompiler{fail: true}
	c := NewCachingCompiler(next, CacheConfig{MaxBytes: 1 << 10})

	for i := 0; i < 2; i++ {
		_, err := c.Compile(context.Background(), "print(1)")
		assert.EqualError(t, err, "compiler crashed")
	}
	assert.Equal(t, int64(2), next.calls.Load())
	assert.Equal(t, int64(2), c.Stats().Failures)
}

func TestCachingCompilerCollapsesConcurrentCompiles(t *testing.T) {
	next := &countingCompiler{delay: 100 * time.Millisecond}
	c := NewCachingCompiler(next, CacheConfig{MaxBytes: 1 << 10})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Compile(context.Background(), "print(1)")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), next.calls.Load())
}

func TestCachingCompilerLimitsConcurrency(t *testing.T) {
	next := &countingCompiler{delay: 50 * time.Millisecond}
	c := NewCachingCompiler(next, CacheConfig{MaxConcurrent: 2})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Compile(context.Background(), strings.Repeat("x", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(6), next.calls.Load())
	assert.LessOrEqual(t, next.peak.Load(), int64(2))
}

func TestCachingCompilerHonorsContext(t *testing.T) {
	next := &countingCompiler{delay: time.Second}
	c := NewCachingCompiler(next, CacheConfig{MaxBytes: 1 << 10})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Compile(ctx, "print(1)")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCachingCompilerSharedCompileSurvivesCallerCancel(t *testing.T) {
	next := &countingCompiler{delay: 100 * time.Millisecond}
	c := NewCachingCompiler(next, CacheConfig{MaxBytes: 1 << 10})

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Compile(ctx, "print(1)")
		firstErr <- err
	}()

	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, time.Millisecond)

	secondResult := make(chan *Result, 1)
	secondErr := make(chan error, 1)
	go func() {
		result, err := c.Compile(context.Background(), "print(1)")
		secondResult <- result
		secondErr <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-firstErr, context.Canceled)
	require.NoError(t, <-secondErr)
	assert.Equal(t, "-- print(1)", (<-secondResult).Lua)
	assert.Equal(t, int64(1), next.calls.Load())

	_, err := c.Compile(context.Background(), "print(1)")
	require.NoError(t, err)
	assert.Equal(t, int64(1), next.calls.Load())
}
