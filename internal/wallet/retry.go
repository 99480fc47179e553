package wallet

import (
	"context"
	"errors"
	"strings"
	"time"
)

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "Too Many Requests") || strings.Contains(s, "-32005")
}

func isRevert(err error) bool {
	return err != nil && strings.Contains(err.Error(), "execution reverted")
}

// withRetry runs fn up to three times with a small backoff that doubles on
// provider rate limits. Reverts and wallet rejections are returned at once.
func withRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	const maxAttempts = 3
	backoff := 200 * time.Millisecond
	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = Classify(err)
		if isRevert(err) || errors.Is(lastErr, ErrUserRejected) || errors.Is(lastErr, ErrUnrecognizedChain) {
			return zero, lastErr
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
		if isRateLimitError(err) {
			backoff *= 2
		}
	}
	return zero, lastErr
}
