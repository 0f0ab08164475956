package core

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryOptions controls RetryWithBackoff.
type RetryOptions struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryOptions = RetryOptions{
	MaxRetries: 3,
	BaseDelay:  time.Second,
	MaxDelay:   30 * time.Second,
}

// RetryWithBackoff runs op until it succeeds, it fails with an error retryable rejects,
// opts.MaxRetries retries were made or ctx is done.
// Waits grow exponentially from opts.BaseDelay, with random jitter.
// notify, when given, is called before every wait.
func RetryWithBackoff(
	ctx context.Context,
	opts RetryOptions,
	retryable func(error) bool,
	op func(ctx context.Context) error,
	notify ...func(err error, wait time.Duration),
) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = opts.BaseDelay
	expo.Multiplier = 2
	expo.RandomizationFactor = 0.5
	expo.MaxElapsedTime = 0
	if opts.MaxDelay > 0 {
		expo.MaxInterval = opts.MaxDelay
	}

	var b backoff.BackOff = expo
	if opts.MaxRetries >= 0 {
		b = backoff.WithMaxRetries(b, uint64(opts.MaxRetries))
	}
	b = backoff.WithContext(b, ctx)

	operation := func() error {
		err := op(ctx)
		if err != nil && (retryable == nil || !retryable(err)) {
			return backoff.Permanent(err)
		}
		return err
	}

	var notifyFn backoff.Notify
	if len(notify) > 0 && notify[0] != nil {
		notifyFn = notify[0]
	}
	return backoff.RetryNotify(operation, b, notifyFn)
}
