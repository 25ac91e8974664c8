package ctxutil_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tfmlabs/tfmd/ctxutil"
)

func TestWithDelayedTimeout(t *testing.T) {
	t.Parallel()

	t.Run("initially_active", func(t *testing.T) {
		t.Parallel()

		parentCtx, parentCancel := context.WithCancel(t.Context())
		defer parentCancel()

		ctx, cancel := ctxutil.WithDelayedTimeout(parentCtx, time.Second)
		defer cancel()

		select {
		case <-ctx.Done():
			assert.Fail(t, "expected returned context to be active initially")
		default:
		}
	})

	t.Run("survives_parent_cancellation_until_delay", func(t *testing.T) {
		t.Parallel()

		parentCtx, parentCancel := context.WithCancel(t.Context())
		defer parentCancel()

		delay := time.Second

		ctx, cancel := ctxutil.WithDelayedTimeout(parentCtx, delay)
		defer cancel()

		parentCancel()

		select {
		case <-ctx.Done():
			assert.Fail(t, "expected returned context to remain active immediately after parent cancellation")
		default:
		}

		select {
		case <-ctx.Done():
		case <-time.After(delay + 500*time.Millisecond):
			assert.Fail(t, "expected returned context to be canceled shortly after the delay")
		}
	})
}
