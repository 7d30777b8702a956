// Package async provides small scheduling and fan-out helpers shared by the
// core's background loops: heartbeat/timeout tickers, debounced event
// handling, bounded parallel fan-out, and cross-goroutine multi-key locking.
package async

import (
	"context"
	"time"
)

// RunEvery runs the given function on the provided interval, stopping when
// ctx is cancelled. The first invocation comes once interval has elapsed,
// then once per interval after that. Callers typically launch this with
// `go async.RunEvery(...)`.
func RunEvery(ctx context.Context, interval time.Duration, f func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f()
		case <-ctx.Done():
			return
		}
	}
}
