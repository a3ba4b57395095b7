// Package recovery provides counted retries with panic recovery.
package recovery

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultBackoff is the unit for the quadratic wait: attempt n waits
// n*n*DefaultBackoff.
const DefaultBackoff = time.Second

// WithRetry calls fn until it succeeds, retrying up to maxRetries times.
// Before retry n it waits n²·backoff, returning early with ctx.Err() if ctx
// is cancelled. A panic in fn is recovered and treated as a failed attempt.
// A nil log is allowed.
func WithRetry(ctx context.Context, log *logrus.Entry, name string, maxRetries int, backoff time.Duration, fn func(ctx context.Context) error) error {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt > 0 {
			wait := time.Duration(attempt*attempt) * backoff
			if log != nil {
				log.WithFields(logrus.Fields{
					"operation":  name,
					"attempt":    attempt,
					"backoff":    wait.String(),
					"last_error": lastErr,
				}).Warn("retrying after backoff")
			}
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		}

		err := call(ctx, log, name, fn)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("%s failed after %d retries: %w", name, maxRetries, lastErr)
}

func call(ctx context.Context, log *logrus.Entry, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if log != nil {
				log.WithFields(logrus.Fields{
					"operation": name,
					"panic":     fmt.Sprintf("%v", r),
					"stack":     string(debug.Stack()),
				}).Error("panic recovered")
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
