package probe

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces payloads at least interval apart. A nil Pacer never waits.
type Pacer struct {
	limiter *rate.Limiter
}

func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return nil
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}
