// Package engine provides the goal runner.
// This file contains provider error classification and user-facing messages.

package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RetryClass indicates whether an error should be retried by a collaborator.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"     // Definitely retry
	RetryClassMaybe        RetryClass = "maybe"         // Retry with caution (limited attempts)
	RetryClassNonRetryable RetryClass = "non_retryable" // Never retry
)

// ProviderError wraps a task-provider failure with transport metadata.
type ProviderError struct {
	Err         error
	Op          string // "start", "create", "execute", "connect"
	HTTPStatus  int    // 0 when the failure happened before a response
	RetryAfter  string // Retry-After header value if present
	UserMessage string // Already-translated text for the event stream, if any
}

func (e *ProviderError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRateLimit reports whether the provider answered with 429.
func (e *ProviderError) IsRateLimit() bool { return e.HTTPStatus == http.StatusTooManyRequests }

// WrapProviderError attaches transport metadata to err. A nil err stays nil.
func WrapProviderError(err error, op string, httpStatus int, retryAfter string) error {
	if err == nil {
		return nil
	}
	pe := &ProviderError{
		Err:        err,
		Op:         op,
		HTTPStatus: httpStatus,
		RetryAfter: retryAfter,
	}
	if pe.IsRateLimit() {
		pe.UserMessage = MsgRateLimited
	}
	return pe
}

// HTTPStatusOf returns the HTTP status carried by err, or 0.
func HTTPStatusOf(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.HTTPStatus
	}
	return 0
}

// IsRateLimited reports whether err carries a rate-limit signal.
func IsRateLimited(err error) bool {
	return HTTPStatusOf(err) == http.StatusTooManyRequests
}

// UserMessageOf returns the translated message attached by the transport.
func UserMessageOf(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.UserMessage
	}
	return ""
}

// ClassifyProviderError decides whether a collaborator should retry err.
func ClassifyProviderError(err error) RetryClass {
	if err == nil {
		return RetryClassNonRetryable
	}

	switch status := HTTPStatusOf(err); {
	case status == http.StatusTooManyRequests, status >= 500:
		return RetryClassRetryable
	case status == http.StatusRequestTimeout:
		return RetryClassMaybe
	case status >= 400:
		return RetryClassNonRetryable
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "timeout") {
		return RetryClassRetryable
	}

	if strings.Contains(errStr, "deadline exceeded") {
		return RetryClassMaybe
	}

	return RetryClassNonRetryable
}

// ExtractRetryAfter returns the delay requested by the provider, or 0.
func ExtractRetryAfter(err error) time.Duration {
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.RetryAfter == "" {
		return 0
	}
	var seconds int
	if _, scanErr := fmt.Sscanf(pe.RetryAfter, "%d", &seconds); scanErr == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, parseErr := time.Parse(time.RFC1123, pe.RetryAfter); parseErr == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// RetryExhaustedError indicates that all retry attempts have been exhausted.
type RetryExhaustedError struct {
	Err      error
	Attempts int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// FailureRule maps a class of errors to the message shown to the user.
type FailureRule struct {
	Name    string
	Match   func(error) bool
	Message string
}

// ClassifyFailure returns the message of the first matching rule, or fallback.
func ClassifyFailure(rules []FailureRule, err error, fallback string) (string, string) {
	for _, r := range rules {
		if r.Match != nil && r.Match(err) {
			return r.Name, r.Message
		}
	}
	return "unknown", fallback
}

func statusIs(code int) func(error) bool {
	return func(err error) bool { return HTTPStatusOf(err) == code }
}

func isProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// DefaultBootstrapFailureRules classifies initial-task failures. Order matters.
func DefaultBootstrapFailureRules() []FailureRule {
	return []FailureRule{
		{Name: "rate_limit", Match: statusIs(http.StatusTooManyRequests), Message: MsgBootstrapQuota},
		{Name: "model_access", Match: statusIs(http.StatusNotFound), Message: MsgBootstrapModelAccess},
		{Name: "provider", Match: isProviderError, Message: MsgBootstrapProvider},
	}
}
