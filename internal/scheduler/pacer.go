package scheduler

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces outbound provider calls.
type Pacer interface {
	// Wait blocks until the next call may be made or ctx is done.
	Wait(ctx context.Context) error
}

// IntervalPacer admits one call per interval. The first call is admitted
// immediately.
type IntervalPacer struct {
	limiter *rate.Limiter
}

// NewIntervalPacer returns a Pacer admitting one call per interval. A
// non-positive interval yields NoopPacer.
func NewIntervalPacer(interval time.Duration) Pacer {
	if interval <= 0 {
		return NoopPacer{}
	}
	return &IntervalPacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait implements Pacer.
func (p *IntervalPacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// NoopPacer never blocks.
type NoopPacer struct{}

// Wait implements Pacer.
func (NoopPacer) Wait(ctx context.Context) error {
	return ctx.Err()
}
