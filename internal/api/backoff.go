package api

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff returns an exponential delay with jitter for a zero-based retry
// attempt. The delay before jitter doubles from initial and is capped by
// ceiling when ceiling is positive. The result lies in [d/2, d).
func Backoff(attempt int, initial, ceiling time.Duration) time.Duration {
	delay := float64(initial) * math.Pow(2, float64(attempt))
	if ceiling > 0 && delay > float64(ceiling) {
		delay = float64(ceiling)
	}
	half := time.Duration(delay / 2)
	if half <= 0 {
		return time.Duration(delay)
	}
	return half + rand.N(half)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
