package weather

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrTransient marks an error as a transient-external failure (network
// timeout, 5xx) eligible for retry.
var ErrTransient = errors.New("weather: transient fetch failure")

// retryPolicy returns the three-retry, 1s/2s/4s exponential backoff
// schedule, bounded to the supplied context.
func retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not wall-clock
	return backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx)
}

// fetchWithRetry runs fn under the standard retry policy. A caller whose
// fn returns an error wrapped in ErrTransient is retried up to three
// times (1s, 2s, 4s waits); any other error is returned immediately
// without retry, following a "skip this unit of work" policy — the
// caller is responsible for logging and skipping, never aborting the rest
// of the cycle.
func fetchWithRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var result T
	operation := func() error {
		v, err := fn()
		if err != nil {
			result = v
			if errors.Is(err, ErrTransient) {
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		result = v
		return nil
	}

	err := backoff.Retry(operation, retryPolicy(ctx))
	return result, err
}
