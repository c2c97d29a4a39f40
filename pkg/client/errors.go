package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmgilman/go/errors"

	"github.com/Sternrassler/pm-orchestrator/pkg/ratelimit"
)

// Error codes surfaced by the transport.
const (
	// CodeNoAccountID means a relative target was given but no account id is
	// configured. Never retried.
	CodeNoAccountID errors.ErrorCode = "NO_ACCOUNT_ID"

	// CodeNotAuthenticated means no usable access token was available or the
	// upstream rejected it with 401.
	CodeNotAuthenticated errors.ErrorCode = "NOT_AUTHENTICATED"

	// CodeUpstreamAPI means the upstream answered with a non-2xx status.
	// Context carries status, url and body.
	CodeUpstreamAPI errors.ErrorCode = "UPSTREAM_API_ERROR"

	// CodeTransportFailed means no HTTP response was obtained (connection
	// failure or attempt timeout).
	CodeTransportFailed errors.ErrorCode = "TRANSPORT_FAILED"
)

// maxErrorBody bounds the response body kept on errors.
const maxErrorBody = 2048

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents HTTP 429.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents connection-level failures.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTimeout represents an attempt that exceeded its timeout.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassCancelled represents a caller-cancelled context.
	ErrorClassCancelled ErrorClass = "cancelled"
)

// UpstreamError is the transport-level failure of one attempt. It is always
// returned wrapped in a PlatformError carrying one of the codes above.
type UpstreamError struct {
	StatusCode int
	ErrorClass ErrorClass
	URL        string
	Body       string
	Message    string

	// RetryAfter is the wait advertised by a 429 response.
	RetryAfter time.Duration
	// RetrySignal records where RetryAfter came from.
	RetrySignal ratelimit.Signal

	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error (status %d) %s: %s: %v",
			e.ErrorClass, e.StatusCode, e.URL, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d) %s: %s",
		e.ErrorClass, e.StatusCode, e.URL, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an error class is transient.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork, ErrorClassTimeout:
		return true
	default:
		// 4xx and logical failures are never retried.
		return false
	}
}

// ClassOf returns the ErrorClass of err, or "" if err did not come from an
// upstream attempt.
func ClassOf(err error) ErrorClass {
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.ErrorClass
	}
	return ""
}

// IsRetryable reports whether err is a transient upstream failure.
func IsRetryable(err error) bool {
	return shouldRetry(ClassOf(err))
}

// classifyStatus maps an HTTP status to an ErrorClass.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}

// newStatusError builds the structured error for a non-2xx response.
func newStatusError(resp *http.Response, body []byte, url string) error {
	class := classifyStatus(resp.StatusCode)
	snippet := string(body)
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody]
	}

	upErr := &UpstreamError{
		StatusCode: resp.StatusCode,
		ErrorClass: class,
		URL:        url,
		Body:       snippet,
		Message:    resp.Status,
	}
	if class == ErrorClassRateLimit {
		upErr.RetryAfter, upErr.RetrySignal = ratelimit.RetryAfter(resp.Header, body)
	}

	code := CodeUpstreamAPI
	message := fmt.Sprintf("upstream returned %d", resp.StatusCode)
	if resp.StatusCode == http.StatusUnauthorized {
		code = CodeNotAuthenticated
		message = "upstream rejected the access token"
	}

	return errors.WrapWithContext(upErr, code, message, map[string]interface{}{
		"status": resp.StatusCode,
		"url":    url,
		"body":   snippet,
	})
}

// newTransportError builds the structured error for an attempt that never
// produced a response.
func newTransportError(err error, url string, class ErrorClass) error {
	upErr := &UpstreamError{
		ErrorClass: class,
		URL:        url,
		Message:    "request failed",
		Err:        err,
	}
	if class == ErrorClassCancelled {
		return errors.WrapWithContext(upErr, CodeTransportFailed, "request cancelled", map[string]interface{}{
			"url":   url,
			"class": string(class),
		})
	}
	return errors.WrapWithContext(upErr, CodeTransportFailed, "upstream request failed", map[string]interface{}{
		"url":   url,
		"class": string(class),
	})
}

// classifyTransport decides whether a transport failure was a per-attempt
// timeout, a caller cancellation or a plain network error.
func classifyTransport(parent, attempt context.Context) ErrorClass {
	if parent.Err() != nil {
		return ErrorClassCancelled
	}
	if attempt.Err() == context.DeadlineExceeded {
		return ErrorClassTimeout
	}
	return ErrorClassNetwork
}
