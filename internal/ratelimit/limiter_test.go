package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives a limiter deterministically: sleeps advance the clock
// instead of blocking
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func instrument(l *Limiter, clk *fakeClock) {
	l.now = func() time.Time { return clk.now }
	l.sleep = clk.sleep
}

func TestWaitBlocksAtRequestCeiling(t *testing.T) {
	clk := newFakeClock()
	l := NewLimiter(0, 0, 15)
	instrument(l, clk)

	ctx := context.Background()

	// 15 calls with negligible processing time fill the window
	for i := 0; i < 15; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	assert.Equal(t, 15, l.RequestsInWindow())

	// The 16th call must block until the oldest timestamp leaves the window
	start := clk.now
	require.NoError(t, l.Wait(ctx))
	blocked := clk.now.Sub(start)
	assert.GreaterOrEqual(t, blocked, 59*time.Second)
}

func TestWaitJitterWithinBounds(t *testing.T) {
	clk := newFakeClock()
	l := NewLimiter(2*time.Second, 5*time.Second, 100)
	instrument(l, clk)

	for i := 0; i < 20; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}

	for _, d := range clk.sleeps {
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 5*time.Second)
	}
}

func TestAdaptiveWaitExponentialAndCapped(t *testing.T) {
	clk := newFakeClock()
	l := NewLimiter(time.Second, 10*time.Second, 100)
	instrument(l, clk)

	ctx := context.Background()

	require.NoError(t, l.AdaptiveWait(ctx, 1))
	assert.Equal(t, 20*time.Second, clk.sleeps[0]) // maxDelay * 2^1

	require.NoError(t, l.AdaptiveWait(ctx, 2))
	assert.Equal(t, 40*time.Second, clk.sleeps[1])

	// 10s * 2^10 would be ~2.8h; capped at 300s
	require.NoError(t, l.AdaptiveWait(ctx, 10))
	assert.Equal(t, 300*time.Second, clk.sleeps[2])
}

func TestAdaptiveWaitZeroErrorsFallsBackToWait(t *testing.T) {
	clk := newFakeClock()
	l := NewLimiter(time.Second, time.Second, 100)
	instrument(l, clk)

	require.NoError(t, l.AdaptiveWait(context.Background(), 0))
	require.Len(t, clk.sleeps, 1)
	assert.Equal(t, time.Second, clk.sleeps[0])
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	l := NewLimiter(time.Hour, time.Hour, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

func TestCaptchaLimiterEscalation(t *testing.T) {
	c := NewCaptchaLimiter(2*time.Second, 6*time.Second)

	base := 4 * time.Second // (2+6)/2

	// No captchas: mean stays at base
	for i := 0; i < 10; i++ {
		c.RecordRequest()
	}
	assert.Equal(t, base, c.Mean())

	// Push ratio past 30%
	for i := 0; i < 6; i++ {
		c.RecordCaptcha()
	}
	assert.InDelta(t, 0.375, c.Ratio(), 0.001)
	assert.Equal(t, time.Duration(float64(base)*1.5), c.Mean())

	// Push ratio past 50%
	for i := 0; i < 10; i++ {
		c.RecordCaptcha()
	}
	assert.Greater(t, c.Ratio(), 0.5)
	assert.Equal(t, time.Duration(float64(base)*2.5), c.Mean())
}

func TestCaptchaLimiterJitterClamped(t *testing.T) {
	c := NewCaptchaLimiter(2*time.Second, 6*time.Second)

	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	for i := 0; i < 50; i++ {
		require.NoError(t, c.Wait(context.Background()))
	}

	mean := float64(c.Mean())
	for _, d := range sleeps {
		assert.GreaterOrEqual(t, float64(d), mean*0.5)
		assert.LessOrEqual(t, float64(d), mean*1.5)
	}
}

func TestRetryExhaustsAndReturnsLastError(t *testing.T) {
	attempts := 0
	var sleeps []time.Duration

	cfg := RetryConfig{
		MaxAttempts: 3,
		BackoffBase: 2,
		Sleep: func(_ context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		},
	}

	errBoom := errors.New("boom")
	err := Retry(context.Background(), cfg, "fetch", func() error {
		attempts++
		return errBoom
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, attempts)
	// backoffBase^attempt seconds between attempts
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps)
}

func TestRetryStopsOnSuccess(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{
		MaxAttempts: 5,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}

	err := Retry(context.Background(), cfg, "fetch", func() error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryRespectsShouldRetry(t *testing.T) {
	attempts := 0
	fatal := errors.New("fatal")

	cfg := RetryConfig{
		MaxAttempts: 5,
		ShouldRetry: func(err error) bool { return !errors.Is(err, fatal) },
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}

	err := Retry(context.Background(), cfg, "fetch", func() error {
		attempts++
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
}

func TestRetryVal(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 3,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}

	calls := 0
	got, err := RetryVal(context.Background(), cfg, "fetch", func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "payload", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "payload", got)
}
