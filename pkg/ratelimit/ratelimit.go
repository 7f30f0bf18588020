package ratelimit

import (
	"context"
	"math/rand"
	"time"
)

// Pacer blocks between sequential operations.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Pause sleeps a fixed delay, plus optional jitter, every time Wait is called.
// Unlike a ticker it always waits the full delay after the previous operation
// finished, however long that operation took.
type Pause struct {
	delay  time.Duration
	jitter float64 // 0.0 to 1.0
}

// NewPause creates a pause of delay with a jitter factor clamped to [0, 1].
// Jitter only ever lengthens the pause. A delay <= 0 never blocks.
func NewPause(delay time.Duration, jitter float64) *Pause {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	return &Pause{delay: delay, jitter: jitter}
}

// Delay returns the configured base delay.
func (p *Pause) Delay() time.Duration {
	return p.delay
}

// Wait sleeps for the pause duration or until ctx is canceled.
func (p *Pause) Wait(ctx context.Context) error {
	if p == nil || p.delay <= 0 {
		return ctx.Err()
	}

	d := p.delay
	if p.jitter > 0 {
		d += time.Duration(float64(p.delay) * p.jitter * rand.Float64())
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
