package httpclient

import (
	"context"
	"errors"
	"time"
)

// Linear retry defaults
const (
	DefaultAttempts  = 3
	DefaultRetryBase = 2 * time.Second
)

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real Sleeper
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryPolicy configures RetryLinear
type RetryPolicy struct {
	Attempts  int
	Base      time.Duration
	Sleep     Sleeper
	Retryable func(error) bool
	OnRetry   func(attempt int, wait time.Duration, err error)
}

// DefaultRetryPolicy is three attempts with 2s, 4s waits
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: DefaultAttempts, Base: DefaultRetryBase}
}

// Retryable is the default filter. Session expiry is final. Transport
// failures, including per-request timeouts, are retried; a bare context error
// means the caller gave up.
func Retryable(err error) bool {
	if errors.Is(err, ErrSessionExpired) {
		return false
	}
	if IsTransportError(err) {
		return true
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// RetryLinear calls fn up to p.Attempts times. After failed attempt n it waits
// p.Base*n before the next one. The last error is returned.
func RetryLinear(ctx context.Context, p RetryPolicy, fn func(context.Context) error) error {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.Base <= 0 {
		p.Base = DefaultRetryBase
	}
	if p.Sleep == nil {
		p.Sleep = SleepContext
	}
	if p.Retryable == nil {
		p.Retryable = Retryable
	}

	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == p.Attempts || ctx.Err() != nil || !p.Retryable(err) {
			return err
		}

		wait := p.Base * time.Duration(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		if serr := p.Sleep(ctx, wait); serr != nil {
			return err
		}
	}
	return err
}
