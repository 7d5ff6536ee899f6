package collyfetcher

import (
	"context"
	"fmt"
	"time"
)

// DefaultRetryStatuses are the gateway and server errors worth another attempt.
var DefaultRetryStatuses = []int{500, 502, 503, 504, 599}

// RetryPolicy decides whether a failed attempt is retried and how long to wait.
// The zero value never retries.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	statuses   map[int]struct{}
}

// NewRetryPolicy builds a policy retrying the given statuses and any
// connection-level failure.
func NewRetryPolicy(maxRetries int, base, maxDelay time.Duration, statuses []int) RetryPolicy {
	set := make(map[int]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  base,
		MaxDelay:   maxDelay,
		statuses:   set,
	}
}

// ShouldRetry reports whether another attempt follows attempt number attempt
// (1-based). status is 0 when no HTTP response was received.
func (p RetryPolicy) ShouldRetry(status int, err error, attempt int) bool {
	if attempt > p.MaxRetries {
		return false
	}
	if status != 0 {
		_, ok := p.statuses[status]
		return ok
	}
	return err != nil
}

// Backoff returns the wait before retry number attempt: BaseDelay doubled per
// prior retry, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
