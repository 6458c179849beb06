// Package retry repeats Gemini calls with exponential backoff and jitter.
//
// An operation steers the loop by how it wraps its error: Permanent stops
// at once, After asks for a specific pause (the provider's retryDelay hint),
// anything else is retried only if the RetryIf predicate says so.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MARKERS
// ══════════════════════════════════════════════════════════════════════════════

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying (bad request, blocked prompt).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

type afterError struct {
	err   error
	after time.Duration
}

func (e *afterError) Error() string { return e.err.Error() }
func (e *afterError) Unwrap() error { return e.err }

// After marks err as retryable after at least d. Quota errors from Gemini
// carry such a hint.
func After(err error, d time.Duration) error {
	if err == nil {
		return nil
	}
	return &afterError{err: err, after: d}
}

func hintedDelay(err error) (time.Duration, bool) {
	var ae *afterError
	if errors.As(err, &ae) && ae.after > 0 {
		return ae.after, true
	}
	return 0, false
}

// strip removes the markers so callers see the error the operation produced.
func strip(err error) error {
	for {
		switch e := err.(type) {
		case *permanentError:
			err = e.err
		case *afterError:
			err = e.err
		default:
			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Policy configures a Retrier.
type Policy struct {
	MaxAttempts  int           // including the first call
	InitialDelay time.Duration // pause before the second attempt
	MaxDelay     time.Duration // ceiling for computed and hinted pauses
	Multiplier   float64
	Jitter       float64 // 0 = none, 0.2 = ±20%

	RetryIf func(error) bool
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Option adjusts a Policy.
type Option func(*Policy)

func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.MaxAttempts = n
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.InitialDelay = d
		}
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.MaxDelay = d
		}
	}
}

// WithJitter sets the jitter fraction; values outside [0,1] are ignored.
func WithJitter(j float64) Option {
	return func(p *Policy) {
		if j >= 0 && j <= 1 {
			p.Jitter = j
		}
	}
}

func WithRetryIf(fn func(error) bool) Option {
	return func(p *Policy) { p.RetryIf = fn }
}

// WithOnRetry registers a hook called before every pause.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(p *Policy) { p.OnRetry = fn }
}

// Backoff returns the un-jittered pause after the given failed attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	return time.Duration(min(d, float64(p.MaxDelay)))
}

func (p Policy) jittered(attempt int) time.Duration {
	d := float64(p.Backoff(attempt))
	if p.Jitter > 0 {
		d += d * p.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(max(d, 0))
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Retrier runs operations under a Policy.
type Retrier struct {
	policy Policy
}

// New creates a Retrier: 3 attempts, 100ms doubling up to 30s, 10% jitter.
func New(opts ...Option) *Retrier {
	p := Policy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		Jitter:       0.1,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return &Retrier{policy: p}
}

// GeminiRetrier returns the Retrier for Gemini REST calls. Free-tier quotas
// reset per minute, so pauses may grow to 20s. opts override the preset.
func GeminiRetrier(retryIf func(error) bool, opts ...Option) *Retrier {
	preset := []Option{
		WithInitialDelay(time.Second),
		WithMaxDelay(20 * time.Second),
		WithJitter(0.2),
		WithRetryIf(retryIf),
	}
	return New(append(preset, opts...)...)
}

// Policy returns the effective policy.
func (r *Retrier) Policy() Policy { return r.policy }

// Do calls op until it succeeds, the error is not retryable, attempts run
// out or ctx ends. The returned error never carries retry markers.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return strip(last)
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		last = err

		delay, ok := r.next(attempt, err)
		if !ok {
			return strip(err)
		}
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return strip(last)
		case <-timer.C:
		}
	}
}

// next decides whether to retry after a failed attempt and for how long to wait.
func (r *Retrier) next(attempt int, err error) (time.Duration, bool) {
	if attempt >= r.policy.MaxAttempts || IsPermanent(err) {
		return 0, false
	}
	if d, ok := hintedDelay(err); ok {
		return min(d, r.policy.MaxDelay), true
	}
	if r.policy.RetryIf == nil || !r.policy.RetryIf(err) {
		return 0, false
	}
	return r.policy.jittered(attempt), true
}
