package ctxutil

import (
	"context"
	"time"
)

// WithDelayedTimeout returns a context that outlives its parent by delay.
// Used to grant an in-flight download a grace period after interruption
// so an almost-complete file can still be validated and written.
func WithDelayedTimeout(parent context.Context, delay time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-parent.Done()
		time.AfterFunc(delay, cancel)
	}()
	return ctx, cancel
}
