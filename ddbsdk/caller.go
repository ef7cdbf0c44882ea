package ddbsdk

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Caller wraps store calls with a retry policy for transient failures.
// Non-retryable failures (conditional check, validation, expired iterator)
// are mapped through MapError and propagated immediately; a final transient
// failure after retries are exhausted is propagated unchanged except for the
// attempt count in the message.
type Caller struct {
	opts callOpts
}

type callOpts struct {
	maxRetries int
	backoff    BackoffFunc
	timeout    time.Duration
}

type CallOption func(*callOpts)

// WithMaxRetries caps the number of retry attempts per call.
func WithMaxRetries(n int) CallOption {
	return func(o *callOpts) {
		o.maxRetries = n
	}
}

// WithTimeout bounds each individual attempt. Zero means no per-attempt bound
// beyond the caller's own context.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOpts) {
		o.timeout = d
	}
}

// WithCustomBackoff overrides the default backoff schedule.
func WithCustomBackoff(fn BackoffFunc) CallOption {
	return func(o *callOpts) {
		o.backoff = fn
	}
}

func NewCaller(opts ...CallOption) *Caller {
	c := &Caller{}
	for _, opt := range opts {
		opt(&c.opts)
	}
	if c.opts.maxRetries == 0 {
		c.opts.maxRetries = 3
	}
	if c.opts.backoff == nil {
		c.opts.backoff = DefaultBackoff
	}
	return c
}

// Do runs one store operation under the caller's retry policy.
func Do[T any](ctx context.Context, c *Caller, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for n := 0; ; n++ {
		out, err := attempt(ctx, c, fn)
		if err == nil {
			return out, nil
		}
		if !retryable(err) {
			return zero, MapError(err)
		}
		if n >= c.opts.maxRetries {
			return zero, fmt.Errorf("%s: retries exhausted after %d attempts: %w", op, n+1, err)
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(c.opts.backoff(n)):
		}
	}
}

func attempt[T any](ctx context.Context, c *Caller, fn func(context.Context) (T, error)) (T, error) {
	if c.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.timeout)
		defer cancel()
	}
	return fn(ctx)
}

// BackoffFunc returns the duration to wait before retry attempt n.
type BackoffFunc func(attempt int) time.Duration

// ExponentialBackoff returns a capped exponential backoff with full jitter.
// Wait time is: rand(0, min(cap, base * multiplier^attempt))
// https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
func ExponentialBackoff(base time.Duration, multiplier float64, cap time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		factor := 1.0
		for i := 0; i < attempt; i++ {
			factor *= multiplier
		}
		backoff := time.Duration(float64(base) * factor)
		if backoff > cap {
			backoff = cap
		}
		// Full jitter: random duration between 0 and backoff
		return time.Duration(rand.Int64N(int64(backoff)))
	}
}

// DefaultBackoff is [ExponentialBackoff] with 50ms base, 2x multiplier, 5s cap.
var DefaultBackoff = ExponentialBackoff(50*time.Millisecond, 2.0, 5*time.Second)
