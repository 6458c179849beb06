package gemini

import (
	"context"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - Token Bucket implementation
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter implements the Token Bucket algorithm. The free tier of the
// Gemini API allows a handful of requests per minute per key, and a burst of
// report card views must not exhaust it.
type RateLimiter struct {
	mu sync.Mutex

	maxTokens   float64
	refillRate  float64 // tokens per second
	baseRate    float64
	tokens      float64
	lastRefill  time.Time
	waitTimeout time.Duration
	cooldown    time.Time // no tokens are handed out before this instant

	now func() time.Time
}

// RateLimiterConfig contains configuration for the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerMinute is the sustained request rate
	RequestsPerMinute float64

	// BurstSize is the maximum number of requests that can be made in a burst
	BurstSize int

	// WaitTimeout is the maximum time to wait for a token
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig matches the free tier quota of flash models.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerMinute: 15,
		BurstSize:         5,
		WaitTimeout:       20 * time.Second,
	}
}

// NewRateLimiter creates a new RateLimiter with a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.BurstSize < 1 {
		config.BurstSize = 1
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	rate := config.RequestsPerMinute / 60
	return &RateLimiter{
		maxTokens:   float64(config.BurstSize),
		refillRate:  rate,
		baseRate:    rate,
		tokens:      float64(config.BurstSize),
		lastRefill:  time.Now(),
		waitTimeout: config.WaitTimeout,
		now:         time.Now,
	}
}

// RateLimitError is returned when no token became available in time.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return "gemini: local rate limit exceeded, retry after " + e.RetryAfter.String()
}

// Wait blocks until a token is available, ctx is done, or the wait timeout
// would be exceeded.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	deadline := rl.now().Add(rl.waitTimeout)

	for {
		wait, ok := rl.tryAcquire()
		if ok {
			return nil
		}
		if rl.waitTimeout > 0 && rl.now().Add(wait).After(deadline) {
			return &RateLimitError{RetryAfter: wait}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAllow takes a token without blocking.
func (rl *RateLimiter) TryAllow() bool {
	_, ok := rl.tryAcquire()
	return ok
}

func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.refill(now)

	if now.Before(rl.cooldown) {
		return rl.cooldown.Sub(now), false
	}
	if rl.tokens < 1 {
		need := 1 - rl.tokens
		return time.Duration(need / rl.refillRate * float64(time.Second)), false
	}
	rl.tokens--
	return 0, true
}

// refill must be called with the lock held.
func (rl *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens = min(rl.maxTokens, rl.tokens+elapsed*rl.refillRate)
	rl.lastRefill = now
}

// RecordRateLimitHit drains the bucket after the API answered 429 and slows
// the refill until Reset.
func (rl *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = 0
	rl.refillRate = max(rl.baseRate/4, rl.refillRate*0.8)
	if retryAfter > 0 {
		rl.cooldown = rl.now().Add(retryAfter)
	}
}

// Reset restores the initial state.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = rl.maxTokens
	rl.refillRate = rl.baseRate
	rl.lastRefill = rl.now()
	rl.cooldown = time.Time{}
}

// RateLimiterStatus is a snapshot for health output.
type RateLimiterStatus struct {
	AvailableTokens float64 `json:"available_tokens"`
	MaxTokens       float64 `json:"max_tokens"`
	RefillPerMinute float64 `json:"refill_per_minute"`
	CooldownUntil   string  `json:"cooldown_until,omitempty"`
}

// Status returns the current status of the rate limiter.
func (rl *RateLimiter) Status() RateLimiterStatus {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.refill(now)
	st := RateLimiterStatus{
		AvailableTokens: rl.tokens,
		MaxTokens:       rl.maxTokens,
		RefillPerMinute: rl.refillRate * 60,
	}
	if now.Before(rl.cooldown) {
		st.CooldownUntil = rl.cooldown.UTC().Format(time.RFC3339)
	}
	return st
}
