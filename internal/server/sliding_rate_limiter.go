package server

import (
	"sync"
	"time"
)

// ViolationInfo tracks rate limit violations for exponential backoff.
type ViolationInfo struct {
	Count         int
	LastViolation time.Time
	BackoffUntil  time.Time
}

// SlidingWindowRateLimiter limits compilations per client using a sliding
// window, with exponential backoff for clients that keep hammering it.
type SlidingWindowRateLimiter struct {
	maxRequests    int
	windowDuration time.Duration
	timestamps     []time.Time
	violations     ViolationInfo
	mutex          sync.Mutex

	baseBackoff       time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64

	now func() time.Time
}

// NewSlidingWindowRateLimiter creates a limiter allowing maxRequests per
// windowDuration.
func NewSlidingWindowRateLimiter(maxRequests int, windowDuration time.Duration) *SlidingWindowRateLimiter {
	return &SlidingWindowRateLimiter{
		maxRequests:       maxRequests,
		windowDuration:    windowDuration,
		timestamps:        make([]time.Time, 0, maxRequests),
		baseBackoff:       time.Second,
		maxBackoff:        time.Minute,
		backoffMultiplier: 2.0,
		now:               time.Now,
	}
}

// IsAllowed records a request and reports whether it fits the limit.
func (rl *SlidingWindowRateLimiter) IsAllowed() bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()

	if now.Before(rl.violations.BackoffUntil) {
		rl.recordViolation(now)
		return false
	}

	rl.cleanOldTimestamps(now)

	if len(rl.timestamps) >= rl.maxRequests {
		rl.recordViolation(now)
		return false
	}

	rl.resetViolationsIfExpired(now)
	rl.timestamps = append(rl.timestamps, now)

	return true
}

// RetryAfter returns how long the client should wait before the next
// request can succeed.
func (rl *SlidingWindowRateLimiter) RetryAfter() time.Duration {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	var wait time.Duration
	if now.Before(rl.violations.BackoffUntil) {
		wait = rl.violations.BackoffUntil.Sub(now)
	}

	rl.cleanOldTimestamps(now)
	if len(rl.timestamps) >= rl.maxRequests {
		if w := rl.timestamps[0].Add(rl.windowDuration).Sub(now); w > wait {
			wait = w
		}
	}

	return wait
}

// GetCurrentCount returns the current number of requests in the sliding window.
func (rl *SlidingWindowRateLimiter) GetCurrentCount() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.cleanOldTimestamps(rl.now())

	return len(rl.timestamps)
}

// lastActivity returns the most recent request or violation.
func (rl *SlidingWindowRateLimiter) lastActivity() time.Time {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	last := rl.violations.LastViolation
	if n := len(rl.timestamps); n > 0 && rl.timestamps[n-1].After(last) {
		last = rl.timestamps[n-1]
	}
	return last
}

// recordViolation must be called with the mutex held.
func (rl *SlidingWindowRateLimiter) recordViolation(now time.Time) {
	rl.violations.Count++
	rl.violations.LastViolation = now

	backoff := rl.baseBackoff
	for i := 1; i < rl.violations.Count; i++ {
		backoff = time.Duration(float64(backoff) * rl.backoffMultiplier)
		if backoff > rl.maxBackoff {
			backoff = rl.maxBackoff
			break
		}
	}

	rl.violations.BackoffUntil = now.Add(backoff)
}

// resetViolationsIfExpired forgives clients that stayed quiet for two
// windows. Must be called with the mutex held.
func (rl *SlidingWindowRateLimiter) resetViolationsIfExpired(now time.Time) {
	if rl.violations.Count > 0 && now.Sub(rl.violations.LastViolation) > rl.windowDuration*2 {
		rl.violations = ViolationInfo{}
	}
}

// cleanOldTimestamps must be called with the mutex held.
func (rl *SlidingWindowRateLimiter) cleanOldTimestamps(now time.Time) {
	cutoff := now.Add(-rl.windowDuration)

	validIndex := 0
	for validIndex < len(rl.timestamps) && !rl.timestamps[validIndex].After(cutoff) {
		validIndex++
	}

	if validIndex > 0 {
		copy(rl.timestamps, rl.timestamps[validIndex:])
		rl.timestamps = rl.timestamps[:len(rl.timestamps)-validIndex]
	}
}

// limiterSet hands out one limiter per client key, typically the client IP.
type limiterSet struct {
	maxRequests int
	window      time.Duration
	limiters    map[string]*SlidingWindowRateLimiter
	mutex       sync.Mutex
	now         func() time.Time
}

func newLimiterSet(maxRequests int, window time.Duration) *limiterSet {
	return &limiterSet{
		maxRequests: maxRequests,
		window:      window,
		limiters:    make(map[string]*SlidingWindowRateLimiter),
		now:         time.Now,
	}
}

func (s *limiterSet) get(key string) *SlidingWindowRateLimiter {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rl, ok := s.limiters[key]
	if !ok {
		rl = NewSlidingWindowRateLimiter(s.maxRequests, s.window)
		rl.now = s.now
		s.limiters[key] = rl
	}
	return rl
}

// prune drops limiters idle for longer than the backoff could last.
func (s *limiterSet) prune() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := s.now().Add(-(2*s.window + time.Minute))
	removed := 0
	for key, rl := range s.limiters {
		if rl.lastActivity().Before(cutoff) {
			delete(s.limiters, key)
			removed++
		}
	}
	return removed
}

func (s *limiterSet) size() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.limiters)
}
