package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck flags goroutine leaks: it fails once the live
// goroutine count passes threshold.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when the most recent GC stop-the-world pause exceeds
// threshold, which usually signals heap pressure.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)

		// Pause is ordered most recent first.
		if len(stats.Pause) > 0 && stats.Pause[0] > threshold {
			return errors.Errorf("GC pause %s exceeds threshold %s", stats.Pause[0], threshold)
		}
		return nil
	}
}
