package ratelimit

import (
	"context"
	"math"
	mathrand "math/rand"
	"time"

	"mkettler/groceryworker/logger"
)

const maxAdaptiveDelay = 300 * time.Second

// Limiter schedules polite request pacing: a uniformly jittered delay per
// request plus a sliding 60-second window capped at a requests-per-minute
// ceiling.
type Limiter struct {
	minDelay time.Duration
	maxDelay time.Duration
	rpm      int

	window     time.Duration
	timestamps []time.Time

	rnd   *mathrand.Rand
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
	log   *logger.Logger
}

// NewLimiter creates a limiter with the given delay bounds and per-minute
// ceiling
func NewLimiter(minDelay, maxDelay time.Duration, requestsPerMinute int) *Limiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 15
	}
	return &Limiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		rpm:      requestsPerMinute,
		window:   time.Minute,
		rnd:      mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		sleep:    sleepCtx,
		log:      logger.Default,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wait sleeps a jittered delay in [min, max], then blocks further until the
// trailing 60-second window has a free request slot.
func (l *Limiter) Wait(ctx context.Context) error {
	jitter := l.minDelay
	if l.maxDelay > l.minDelay {
		jitter += time.Duration(l.rnd.Int63n(int64(l.maxDelay - l.minDelay)))
	}
	if err := l.sleep(ctx, jitter); err != nil {
		return err
	}

	l.prune()
	if len(l.timestamps) >= l.rpm {
		oldest := l.timestamps[0]
		wait := l.window - l.now().Sub(oldest)
		if wait > 0 {
			if l.log != nil {
				l.log.Debug().
					Dur("wait", wait).
					Int("window_requests", len(l.timestamps)).
					Msg("Request ceiling reached, waiting for window slot")
			}
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
		l.prune()
	}

	l.timestamps = append(l.timestamps, l.now())
	return nil
}

// AdaptiveWait replaces the normal jittered wait with exponential backoff
// after consecutive failures: min(maxDelay * 2^errCount, 300s).
func (l *Limiter) AdaptiveWait(ctx context.Context, errCount int) error {
	if errCount <= 0 {
		return l.Wait(ctx)
	}

	delay := time.Duration(float64(l.maxDelay) * math.Pow(2, float64(errCount)))
	if delay > maxAdaptiveDelay {
		delay = maxAdaptiveDelay
	}

	if l.log != nil {
		l.log.Warn().
			Int("error_count", errCount).
			Dur("delay", delay).
			Msg("Adaptive backoff engaged")
	}

	if err := l.sleep(ctx, delay); err != nil {
		return err
	}

	l.prune()
	l.timestamps = append(l.timestamps, l.now())
	return nil
}

// RequestsInWindow reports how many requests fall inside the trailing window
func (l *Limiter) RequestsInWindow() int {
	l.prune()
	return len(l.timestamps)
}

func (l *Limiter) prune() {
	cutoff := l.now().Add(-l.window)
	i := 0
	for i < len(l.timestamps) && l.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[i:]...)
	}
}
