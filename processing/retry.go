package processing

import (
	"math"
	"math/rand"
	"time"

	"github.com/goliatone/go-courier-gateway/core"
)

// RetryPolicy computes backoff delays for transient failures. Delays grow
// geometrically from BaseDelay with additive jitter so synchronized
// failures do not retry in lockstep.
type RetryPolicy struct {
	BaseDelay     time.Duration
	Multiplier    float64
	JitterPercent int
	MaxAttempts   int
}

func NewRetryPolicy(cfg core.RetryConfig) RetryPolicy {
	return RetryPolicy{
		BaseDelay:     time.Duration(cfg.BaseDelayMS) * time.Millisecond,
		Multiplier:    cfg.Multiplier,
		JitterPercent: cfg.JitterPercent,
		MaxAttempts:   cfg.MaxAttempts,
	}
}

// BackoffDelay returns the delay before the next attempt after a failure
// on the given attempt number. randomFactor must be in [0, 1); values
// outside are clamped. The second return is false once the retry budget
// is exhausted (attempt > MaxAttempts).
func (p RetryPolicy) BackoffDelay(attempt int, randomFactor float64) (time.Duration, bool) {
	if p.MaxAttempts > 0 && attempt > p.MaxAttempts {
		return 0, false
	}
	if attempt < 1 {
		attempt = 1
	}
	if randomFactor < 0 {
		randomFactor = 0
	}
	if randomFactor >= 1 {
		randomFactor = math.Nextafter(1, 0)
	}

	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	base := float64(p.BaseDelay.Milliseconds()) * math.Pow(multiplier, float64(attempt-1))
	jitter := base * (float64(p.JitterPercent) / 100) * randomFactor
	delayMS := math.Round(base + jitter)
	if delayMS < 0 {
		delayMS = 0
	}
	return time.Duration(delayMS) * time.Millisecond, true
}

// NextDelay is BackoffDelay with a process-local random factor.
func (p RetryPolicy) NextDelay(attempt int) (time.Duration, bool) {
	return p.BackoffDelay(attempt, rand.Float64())
}

// ShouldRetry reports whether a failure on the given attempt warrants
// another try. Permanent failures never retry.
func (p RetryPolicy) ShouldRetry(attempt int, classification Classification) bool {
	if !classification.Transient() {
		return false
	}
	return attempt < p.MaxAttempts
}
