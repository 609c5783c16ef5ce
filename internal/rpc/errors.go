package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRateLimited 本地滑动窗口预算耗尽
	ErrRateLimited = errors.New("rpc: local request budget exhausted")
	// ErrRateLimitExceeded 上游返回限流
	ErrRateLimitExceeded = errors.New("rpc: upstream rate limit exceeded")
	ErrTransientNetwork  = errors.New("rpc: transient network failure")
	ErrTimeout           = errors.New("rpc: request timed out")

	ErrAccountNotFound     = errors.New("rpc: account not found")
	ErrTransactionNotFound = errors.New("rpc: transaction not found")
	ErrTransactionFailed   = errors.New("rpc: transaction failed")
	ErrNoData              = errors.New("rpc: no data available")
	ErrClosed              = errors.New("rpc: client closed")
)

var rateLimitMarkers = []string{"429", "too many requests", "rate limit"}

func isRateLimitError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// classify maps a transport failure onto the access-layer taxonomy.
func classify(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrTransactionNotFound),
		errors.Is(err, ErrTransactionFailed),
		errors.Is(err, ErrRateLimitExceeded),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrTransientNetwork):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case isRateLimitError(err):
		return fmt.Errorf("%w: %v", ErrRateLimitExceeded, err)
	default:
		return fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}
}

// retryable reports whether another attempt may succeed.
func retryable(err error) bool {
	return errors.Is(err, ErrTransientNetwork) || errors.Is(err, ErrTimeout)
}

// IsThrottled reports rate-limit and timeout class failures, which callers
// treat as "skip this cycle".
func IsThrottled(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrRateLimitExceeded) || errors.Is(err, ErrTimeout)
}
