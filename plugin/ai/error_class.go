// Package ai provides the generative model client and failure classification
// used by the intake orchestrator to degrade gracefully instead of failing.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// FailureClass categorizes upstream model failures so callers can pick
// an appropriate fallback response.
type FailureClass string

const (
	// FailureConfig indicates the client is misconfigured (missing key, bad base URL).
	FailureConfig FailureClass = "config"
	// FailureAuth indicates the upstream rejected our credentials.
	FailureAuth FailureClass = "auth"
	// FailureRateLimit indicates the upstream throttled the request.
	FailureRateLimit FailureClass = "rateLimit"
	// FailureServer indicates an upstream 5xx or malformed upstream response.
	FailureServer FailureClass = "serverError"
	// FailureNetwork indicates a transport-level failure.
	FailureNetwork FailureClass = "networkError"
	// FailureUnknown is everything else.
	FailureUnknown FailureClass = "unknown"
)

// ClassifiedError wraps a model-call error with its failure class and
// a retry hint for transient classes.
type ClassifiedError struct {
	Class      FailureClass
	Original   error
	RetryAfter time.Duration
}

func (c *ClassifiedError) Error() string {
	if c.Original == nil {
		return fmt.Sprintf("model failure: class=%s", c.Class)
	}
	return fmt.Sprintf("%s: %v", c.Class, c.Original)
}

// Unwrap returns the original error for errors.Is/As.
func (c *ClassifiedError) Unwrap() error {
	return c.Original
}

// IsTransient reports whether retrying the same call may succeed.
func (c *ClassifiedError) IsTransient() bool {
	return c.Class == FailureRateLimit || c.Class == FailureServer || c.Class == FailureNetwork
}

// Classify analyzes a model-call error and assigns a failure class.
// A nil error returns nil. An already-classified error passes through.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return &ClassifiedError{Class: FailureAuth, Original: err}
		case apiErr.HTTPStatusCode == 429:
			return &ClassifiedError{Class: FailureRateLimit, Original: err, RetryAfter: 2 * time.Second}
		case apiErr.HTTPStatusCode >= 500:
			return &ClassifiedError{Class: FailureServer, Original: err, RetryAfter: 3 * time.Second}
		case apiErr.HTTPStatusCode == 400:
			return &ClassifiedError{Class: FailureConfig, Original: err}
		}
		return &ClassifiedError{Class: FailureUnknown, Original: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{Class: FailureNetwork, Original: err, RetryAfter: 2 * time.Second}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ClassifiedError{Class: FailureNetwork, Original: err, RetryAfter: 2 * time.Second}
	}

	errMsg := strings.ToLower(err.Error())

	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"network is unreachable",
		"no such host",
		"dial tcp",
		"eof",
		"timeout",
		"deadline exceeded",
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(errMsg, pattern) {
			return &ClassifiedError{Class: FailureNetwork, Original: err, RetryAfter: 2 * time.Second}
		}
	}

	if strings.Contains(errMsg, "api key") || strings.Contains(errMsg, "not configured") {
		return &ClassifiedError{Class: FailureConfig, Original: err}
	}
	if strings.Contains(errMsg, "unauthorized") || strings.Contains(errMsg, "forbidden") {
		return &ClassifiedError{Class: FailureAuth, Original: err}
	}
	if strings.Contains(errMsg, "rate limit") || strings.Contains(errMsg, "too many requests") {
		return &ClassifiedError{Class: FailureRateLimit, Original: err, RetryAfter: 2 * time.Second}
	}

	return &ClassifiedError{Class: FailureUnknown, Original: err}
}

// ClassOf is a convenience helper returning the failure class of an error.
func ClassOf(err error) FailureClass {
	classified := Classify(err)
	if classified == nil {
		return ""
	}
	return classified.Class
}
