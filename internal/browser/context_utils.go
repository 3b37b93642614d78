// internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext returns a context that carries the values and deadline of
// session (the chromedp tab context) and is also canceled when op is done.
// The caller must call the returned cancel function.
func CombineContext(session, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(session)
	if deadline, ok := op.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		combined, cancelDeadline = context.WithDeadline(combined, deadline)
		inner := cancel
		cancel = func() {
			cancelDeadline()
			inner()
		}
	}

	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// detachedContext keeps the values of its parent but none of its deadline or
// cancellation.
type detachedContext struct {
	context.Context
}

func (detachedContext) Deadline() (deadline time.Time, ok bool) { return }
func (detachedContext) Done() <-chan struct{}                   { return nil }
func (detachedContext) Err() error                              { return nil }

// Detach returns a context that is never canceled by ctx. Browser actions run
// under it so that cancelling a run never interrupts an input sequence midway.
func Detach(ctx context.Context) context.Context {
	return detachedContext{ctx}
}
