// internal/errors/errors.go

// Package errors defines the collection engine's error taxonomy and the
// retry/backoff policy applied to recoverable failures. Every error surfaced
// by the engine carries a Type that determines retry behavior, proxy
// penalties, and whether the session aborts.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
)

// Type classifies a scraping failure.
type Type string

const (
	// TypeNetwork covers transient transport failures: timeouts, resets,
	// DNS hiccups. Retried with the same proxy.
	TypeNetwork Type = "network"

	// TypeRateLimited means the platform signalled throttling (429) or the
	// proxy's egress is being shaped. The proxy is penalized and the item
	// retried through a different one.
	TypeRateLimited Type = "rate_limited"

	// TypeBlocked means access denial (403, login walls, captcha pages).
	// Treated like rate limiting for proxy rotation purposes.
	TypeBlocked Type = "blocked"

	// TypeParse covers unexpected response shapes. Item-level, never
	// retried, never penalizes the proxy.
	TypeParse Type = "parse"

	// TypeFatal aborts the session: bad configuration, invalid target,
	// storage unavailable.
	TypeFatal Type = "fatal"
)

// ScrapeError is the engine's error value. It wraps an underlying cause and
// carries classification plus free-form context for the error record.
type ScrapeError struct {
	Type    Type
	Message string
	Code    string
	Cause   error
	Context map[string]interface{}
}

func (e *ScrapeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *ScrapeError) Unwrap() error { return e.Cause }

// New creates a ScrapeError with the given classification.
func New(t Type, message string) *ScrapeError {
	return &ScrapeError{Type: t, Message: message}
}

// Wrap attaches a classification to an underlying error.
func Wrap(t Type, message string, cause error) *ScrapeError {
	return &ScrapeError{Type: t, Message: message, Cause: cause}
}

// WithContext attaches structured context, returning the receiver for
// chaining.
func (e *ScrapeError) WithContext(key string, value interface{}) *ScrapeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode records the transport-level code (HTTP status, driver errno).
func (e *ScrapeError) WithCode(code string) *ScrapeError {
	e.Code = code
	return e
}

// TypeOf extracts the classification from any error. Unclassified errors
// report TypeNetwork, the most conservative retryable class.
func TypeOf(err error) Type {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Type
	}
	return TypeNetwork
}

// IsFatal reports whether the error must abort the session.
func IsFatal(err error) bool {
	return TypeOf(err) == TypeFatal
}

// IsRetryable reports whether the item may be retried at all.
func IsRetryable(err error) bool {
	switch TypeOf(err) {
	case TypeNetwork, TypeRateLimited, TypeBlocked:
		return true
	}
	return false
}

// PenalizesProxy reports whether the failure counts against the proxy that
// carried the request.
func PenalizesProxy(err error) bool {
	switch TypeOf(err) {
	case TypeRateLimited, TypeBlocked:
		return true
	}
	return false
}

// Classify maps a transport error and HTTP status code to the taxonomy.
// A zero statusCode means the request never produced a response.
func Classify(err error, statusCode int) *ScrapeError {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return Wrap(TypeRateLimited, "platform rate limit", err).
			WithCode(fmt.Sprintf("%d", statusCode))
	case statusCode == http.StatusForbidden || statusCode == http.StatusUnauthorized:
		return Wrap(TypeBlocked, "access denied", err).
			WithCode(fmt.Sprintf("%d", statusCode))
	case statusCode >= 500:
		return Wrap(TypeNetwork, "upstream server error", err).
			WithCode(fmt.Sprintf("%d", statusCode))
	case statusCode >= 400:
		return Wrap(TypeParse, "unexpected client error", err).
			WithCode(fmt.Sprintf("%d", statusCode))
	}

	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return Wrap(TypeNetwork, "request timeout", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Wrap(TypeNetwork, "network error", err)
	}

	// Connection resets surface as wrapped syscall errors with no net.Error.
	if strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "connection refused") {
		return Wrap(TypeNetwork, "connection error", err)
	}

	return Wrap(TypeNetwork, "request failed", err)
}

// Record converts an error into the fields persisted as an ErrorRecord.
func Record(err error) (errType, message, code string, ctx map[string]interface{}) {
	var se *ScrapeError
	if errors.As(err, &se) {
		return string(se.Type), se.Error(), se.Code, se.Context
	}
	return string(TypeNetwork), err.Error(), "", nil
}
