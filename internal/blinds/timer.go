package blinds

import (
	"context"
	"runtime"
	"time"
)

// maxCorrectionIterations bounds the adaptive sleep loop so a clock
// anomaly can never spin forever.
const maxCorrectionIterations = 10000

// SleepUntil sleeps with drift correction until target: sleep 90% of
// the remaining window while it is
// long, tighten to 50% in the 10–100 ms band, and busy-yield the last
// few milliseconds. Returns the achieved drift (positive = woke late).
// Honors ctx cancellation, returning early with whatever drift stands.
func SleepUntil(ctx context.Context, target time.Time) time.Duration {
	for i := 0; i < maxCorrectionIterations; i++ {
		remaining := time.Until(target)
		if remaining <= 0 {
			break
		}

		var step time.Duration
		switch {
		case remaining > 100*time.Millisecond:
			step = remaining * 9 / 10
		case remaining > 10*time.Millisecond:
			step = remaining / 2
		case remaining > time.Millisecond:
			step = 500 * time.Microsecond
		default:
			runtime.Gosched()
			continue
		}

		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return time.Since(target)
		case <-timer.C:
		}
	}
	return time.Since(target)
}
