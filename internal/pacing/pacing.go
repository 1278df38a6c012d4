// Package pacing adds human-looking randomness to the pauses between UI
// interactions.
package pacing

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	spread = time.Second
	floor  = 500 * time.Millisecond
)

// randFloat is swapped in tests.
var randFloat = rand.Float64

// Jitter returns d perturbed by up to one second. The perturbation is shifted
// down by up to half a second for longer pauses, so requests at or below the
// floor only ever grow while longer ones move both ways.
func Jitter(d time.Duration) time.Duration {
	return jitter(d, randFloat())
}

func jitter(d time.Duration, r float64) time.Duration {
	shift := min(max(d-floor, 0), floor)
	return d + time.Duration(r*float64(spread)) - shift
}

// Sleep blocks for a jittered d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(Jitter(d))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Seconds converts a fractional second count, the unit the UI pauses are
// tuned in, to a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
