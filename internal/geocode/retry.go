package geocode

import (
	"context"
	"time"
)

// RetryPolicy bounds how often one location is retried and how long to
// wait before each retry. Attempts are counted from 1.
type RetryPolicy struct {
	// MaxAttempts caps the total attempts; 0 retries without limit.
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// Allows reports whether another attempt may follow attempt.
func (p RetryPolicy) Allows(attempt int) bool {
	return p.MaxAttempts <= 0 || attempt < p.MaxAttempts
}

// Delay returns the wait before the attempt after attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

// RateLimitPolicy waits attempt seconds between tries, three tries total.
func RateLimitPolicy(step time.Duration) RetryPolicy {
	if step <= 0 {
		step = time.Second
	}
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     func(attempt int) time.Duration { return time.Duration(attempt) * step },
	}
}

// TransientPolicy waits a fixed delay between tries. maxAttempts 0 keeps
// retrying until the context ends.
func TransientPolicy(delay time.Duration, maxAttempts int) RetryPolicy {
	if delay <= 0 {
		delay = time.Second
	}
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     func(int) time.Duration { return delay },
	}
}

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
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
