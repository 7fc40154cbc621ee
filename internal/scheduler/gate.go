package scheduler

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate spaces out provider calls so that consecutive Wait returns are at least interval apart.
// The first call passes immediately.
type Gate struct {
	limiter *rate.Limiter
}

func NewGate(interval time.Duration) *Gate {
	return &Gate{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call is allowed or ctx is done.
// It fails fast when ctx expires before the next slot.
func (g *Gate) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}
