package fetch

import (
	"context"
	"math/rand"
	"time"
)

// Waiter pauses before a request. Implementations must return early with ctx.Err() on cancellation.
type Waiter interface {
	Wait(ctx context.Context) error
}

// RandomDelay sleeps for a duration drawn uniformly from [Min, Max]
type RandomDelay struct {
	Min time.Duration
	Max time.Duration
}

// Next draws the next delay. A degenerate range (Max <= Min) yields Min.
func (d RandomDelay) Next() time.Duration {
	if d.Max <= d.Min {
		if d.Min < 0 {
			return 0
		}
		return d.Min
	}
	return d.Min + time.Duration(rand.Int63n(int64(d.Max-d.Min)+1))
}

// Wait sleeps for Next(), or until ctx is done
func (d RandomDelay) Wait(ctx context.Context) error {
	delay := d.Next()
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
