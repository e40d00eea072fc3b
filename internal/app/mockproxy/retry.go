package mockproxy

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/avast/retry-go/v4"
)

var errNotYet = errors.New("retry")

// retryFor calls do until it reports success, the duration elapses or ctx is done.
// do receives the time left so it can block on a notification instead of spinning.
func retryFor(ctx context.Context, do func(time.Duration) bool, delay, duration time.Duration) bool {
	start := time.Now()
	err := retry.Do(func() error {
		timeLeft := duration - time.Since(start)
		if !do(timeLeft) {
			return errNotYet
		}
		return nil
	},
		retry.Context(ctx),
		// Attempts(0) ignores RetryIf, so the duration would never bound the loop.
		retry.Attempts(math.MaxUint),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return err != nil && time.Since(start) <= duration
		}))
	return err == nil
}
