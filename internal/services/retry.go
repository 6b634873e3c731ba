package services

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoffStep = 2 * time.Second
)

// RetryPolicy bounds how often a request is re-sent.
//
// MaxAttempts counts every attempt including the first. Backoff receives the number
// of the attempt that just failed (1-based) and returns the wait before the next one.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(failed int) time.Duration
	Retryable   func(err error) bool
}

// DefaultRetryPolicy retries transport failures up to three attempts in total,
// waiting step, then 2×step.
func DefaultRetryPolicy(step time.Duration) RetryPolicy {
	if step <= 0 {
		step = DefaultBackoffStep
	}
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     LinearBackoff(step),
		Retryable:   IsTransportFailure,
	}
}

// NoRetry makes a single attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// LinearBackoff waits n×step after the nth failure.
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(n int) time.Duration {
		return time.Duration(n) * step
	}
}

// IsTransportFailure reports whether err is a [RequestError] for which no response arrived.
func IsTransportFailure(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Retryable()
}

// ShouldRetry reports whether a request whose attempt number failed with err gets another attempt.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if err == nil || attempt >= p.MaxAttempts {
		return false
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransportFailure
	}
	return retryable(err)
}

// Delay returns the wait after the given failed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

// Schedule lists every delay the policy would apply if all attempts failed.
func (p RetryPolicy) Schedule() []time.Duration {
	var out []time.Duration
	for n := 1; n < p.MaxAttempts; n++ {
		out = append(out, p.Delay(n))
	}
	return out
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
