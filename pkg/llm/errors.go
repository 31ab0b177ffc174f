package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ServiceError indicates the backend could not produce a completion.
// Transient variants are retried internally and only surfaced after the
// retry budget is exhausted; non-transient variants surface immediately.
type ServiceError struct {
	StatusCode int
	Message    string
	Cause      error
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm backend error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm backend error: %s", e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// retryable reports whether an error is worth retrying: connection
// failures, timeouts, rate limits and server-side errors. Malformed
// responses and client errors can never succeed on retry.
func retryable(err error) bool {
	if err == nil {
		return false
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		if svcErr.StatusCode == 429 || svcErr.StatusCode >= 500 {
			return true
		}
		if svcErr.StatusCode > 0 {
			return false
		}
		err = svcErr.Cause
		if err == nil {
			return false
		}
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
