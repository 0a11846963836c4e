package playback

import (
	"context"
	"time"
)

// Clock schedules callbacks. The returned cancel func must be safe to call
// more than once and after the callback ran.
type Clock interface {
	AfterFunc(d time.Duration, f func()) (cancel func())
}

// WallClock runs callbacks on real time.
type WallClock struct{}

// AfterFunc runs f after d unless cancelled first.
// A cancel racing with expiry may still let f run; callbacks must check
// their own staleness.
func (WallClock) AfterFunc(d time.Duration, f func()) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if ctx.Err() == nil {
				f()
			}
		}
	}()

	return cancel
}
