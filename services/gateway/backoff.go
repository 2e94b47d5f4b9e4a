package gateway

import (
	"context"
	"time"
)

// Backoff is the retry policy applied to a single candidate. Attempts are
// capped; the delay grows geometrically up to MaxDelay.
type Backoff struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultBackoff returns the default retry policy.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    5 * time.Second,
	}
}

func (b Backoff) normalized() Backoff {
	def := DefaultBackoff()
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = def.MaxAttempts
	}
	if b.BaseDelay <= 0 {
		b.BaseDelay = def.BaseDelay
	}
	if b.Multiplier < 1 {
		b.Multiplier = def.Multiplier
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = def.MaxDelay
	}
	return b
}

// Delay returns the pause before retry number attempt, where the first retry
// is attempt 1.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= b.Multiplier
	}
	delay := time.Duration(d)
	if delay > b.MaxDelay {
		delay = b.MaxDelay
	}
	return delay
}

// Sleep waits for the attempt's delay or until ctx is done, whichever comes
// first.
func (b Backoff) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(b.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
