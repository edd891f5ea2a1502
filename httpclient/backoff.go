package httpclient

import (
	"context"
	"math/rand/v2"
	"time"
)

// CalculateBackoffWithJitter doubles baseBackoff per attempt and adds up to
// half of it again as jitter
func CalculateBackoffWithJitter(baseBackoff time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return baseBackoff
	}

	backoff := baseBackoff << uint(attempt-1)
	if half := int64(backoff / 2); half > 0 {
		return backoff + time.Duration(rand.Int64N(half))
	}
	return backoff
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
