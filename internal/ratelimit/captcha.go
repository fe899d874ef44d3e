package ratelimit

import (
	"context"
	mathrand "math/rand"
	"time"

	"mkettler/groceryworker/logger"
)

const (
	captchaHistorySize = 50

	escalateRatio     = 0.30
	escalateHardRatio = 0.50

	escalateFactor     = 1.5
	escalateHardFactor = 2.5
)

// CaptchaLimiter escalates pacing when the rolling captcha-to-request ratio
// climbs. The mean delay grows 1.5x past 30% and 2.5x past 50%, with
// Gaussian jitter clamped to [mean*0.5, mean*1.5].
type CaptchaLimiter struct {
	minDelay time.Duration
	maxDelay time.Duration

	// Ring of recent request outcomes; true marks a captcha hit
	history []bool

	rnd   *mathrand.Rand
	sleep func(context.Context, time.Duration) error
	log   *logger.Logger
}

// NewCaptchaLimiter creates a captcha-aware limiter with the given base
// delay bounds
func NewCaptchaLimiter(minDelay, maxDelay time.Duration) *CaptchaLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &CaptchaLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		rnd:      mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
		sleep:    sleepCtx,
		log:      logger.Default,
	}
}

// RecordRequest records a normal request outcome
func (c *CaptchaLimiter) RecordRequest() {
	c.record(false)
}

// RecordCaptcha records a captcha hit
func (c *CaptchaLimiter) RecordCaptcha() {
	c.record(true)
	if c.log != nil {
		c.log.Warn().
			Float64("captcha_ratio", c.Ratio()).
			Msg("Captcha recorded")
	}
}

func (c *CaptchaLimiter) record(captcha bool) {
	c.history = append(c.history, captcha)
	if len(c.history) > captchaHistorySize {
		c.history = c.history[len(c.history)-captchaHistorySize:]
	}
}

// Ratio returns the rolling captcha-to-request ratio
func (c *CaptchaLimiter) Ratio() float64 {
	if len(c.history) == 0 {
		return 0
	}
	hits := 0
	for _, captcha := range c.history {
		if captcha {
			hits++
		}
	}
	return float64(hits) / float64(len(c.history))
}

// Mean returns the escalated mean delay for the current ratio
func (c *CaptchaLimiter) Mean() time.Duration {
	mean := (c.minDelay + c.maxDelay) / 2
	ratio := c.Ratio()
	switch {
	case ratio > escalateHardRatio:
		return time.Duration(float64(mean) * escalateHardFactor)
	case ratio > escalateRatio:
		return time.Duration(float64(mean) * escalateFactor)
	default:
		return mean
	}
}

// Wait sleeps a Gaussian-jittered delay around the escalated mean, clamped
// to [mean*0.5, mean*1.5]
func (c *CaptchaLimiter) Wait(ctx context.Context) error {
	mean := float64(c.Mean())

	delay := time.Duration(mean + c.rnd.NormFloat64()*mean*0.25)
	lo, hi := time.Duration(mean*0.5), time.Duration(mean*1.5)
	if delay < lo {
		delay = lo
	}
	if delay > hi {
		delay = hi
	}

	return c.sleep(ctx, delay)
}
