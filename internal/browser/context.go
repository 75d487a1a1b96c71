// internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from primary that is also cancelled when
// secondary is. Values come from primary only: chromedp keeps the target
// connection there, while the operation deadline usually lives in secondary.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// detachedContext keeps the values of its parent but none of its deadline or
// cancellation.
type detachedContext struct {
	context.Context
}

func (detachedContext) Deadline() (deadline time.Time, ok bool) { return }
func (detachedContext) Done() <-chan struct{}                   { return nil }
func (detachedContext) Err() error                              { return nil }

// Detach returns a context that outlives ctx but still carries its values,
// for cleanup that has to reach the tab after the caller gave up.
func Detach(ctx context.Context) context.Context {
	return detachedContext{ctx}
}
