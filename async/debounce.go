package async

import (
	"context"
	"time"
)

// Debounce reads events off eventsChan and invokes handler with the most
// recently received event once no new events have arrived for `interval`.
// It returns when ctx is cancelled. A burst of events collapses into a
// single handler call.
func Debounce(ctx context.Context, interval time.Duration, eventsChan <-chan interface{}, handler func(event interface{})) {
	var timer *time.Timer
	var timerC <-chan time.Time
	var pending interface{}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-eventsChan:
			pending = ev
			if timer == nil {
				timer = time.NewTimer(interval)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timerC:
					default:
					}
				}
				timer.Reset(interval)
			}
		case <-timerC:
			handler(pending)
			pending = nil
			timer = nil
			timerC = nil
		}
	}
}
