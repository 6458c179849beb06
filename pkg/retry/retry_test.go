package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func always(error) bool { return true }

func fast(extra ...Option) *Retrier {
	return New(append([]Option{
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(5 * time.Millisecond),
		WithJitter(0),
	}, extra...)...)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := fast(WithRetryIf(always)).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	err := fast(WithMaxAttempts(4), WithRetryIf(always)).Do(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	})

	assert.Same(t, errBoom, err)
	assert.Equal(t, 4, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := fast(WithRetryIf(always)).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errBoom)
	})

	assert.Same(t, errBoom, err)
	assert.Equal(t, 1, calls)
}

func TestDo_NoRetryWithoutPredicate(t *testing.T) {
	calls := 0
	err := fast().Do(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestDo_AfterUsesHintedDelay(t *testing.T) {
	var delays []time.Duration
	calls := 0
	r := fast(WithOnRetry(func(_ int, _ error, d time.Duration) { delays = append(delays, d) }))
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return After(errBoom, 2*time.Millisecond)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Millisecond}, delays)
}

func TestDo_AfterIsCappedByMaxDelay(t *testing.T) {
	var delays []time.Duration
	r := fast(WithMaxAttempts(2), WithOnRetry(func(_ int, _ error, d time.Duration) { delays = append(delays, d) }))
	err := r.Do(context.Background(), func(context.Context) error {
		return After(errBoom, time.Hour)
	})

	assert.Same(t, errBoom, err)
	assert.Equal(t, []time.Duration{5 * time.Millisecond}, delays)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicy_Backoff(t *testing.T) {
	p := New(WithInitialDelay(time.Second), WithMaxDelay(5*time.Second)).Policy()

	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(4))
}

func TestGeminiRetrier_Preset(t *testing.T) {
	p := GeminiRetrier(always, WithMaxAttempts(5)).Policy()

	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, time.Second, p.InitialDelay)
	assert.Equal(t, 20*time.Second, p.MaxDelay)
	assert.NotNil(t, p.RetryIf)
}
