package tools

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	aierrors "github.com/hrygo/agentcore/internal/errors"
)

// ErrorClass is the retry category of a tool failure.
type ErrorClass int

const (
	// ErrorClassTransient failures (network, timeout, 5xx, 429) are retried.
	ErrorClassTransient ErrorClass = iota
	// ErrorClassPermanent failures (validation, 4xx, unknown) are not.
	ErrorClassPermanent
)

func (e ErrorClass) String() string {
	switch e {
	case ErrorClassTransient:
		return "transient"
	case ErrorClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// HTTPStatusError is a non-2xx response from a remote API.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// ClassifyError decides whether a tool failure may succeed on retry.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}
	if errors.Is(err, context.Canceled) {
		return ErrorClassPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTransient
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests {
			return ErrorClassTransient
		}
		return ErrorClassPermanent
	}

	if aierrors.IsCode(err, aierrors.ErrCodeInvalidArgument) || aierrors.IsCode(err, aierrors.ErrCodeToolNotFound) {
		return ErrorClassPermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassTransient
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused", "connection reset", "broken pipe", "no such host",
		"temporary failure", "eof", "timeout", "timed out", "unavailable",
	} {
		if strings.Contains(msg, pattern) {
			return ErrorClassTransient
		}
	}
	// Unknown failures are not retried.
	return ErrorClassPermanent
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return err != nil && ClassifyError(err) == ErrorClassTransient
}
