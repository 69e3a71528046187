package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FailureClass is the abstract category a provider failure is mapped to.
// Every error crossing the adapter boundary carries exactly one class; raw
// provider error types never leak into the orchestrator.
type FailureClass string

const (
	FailureUnauthenticated   FailureClass = "unauthenticated"
	FailureRateLimited       FailureClass = "rate_limited"
	FailurePayloadTooLarge   FailureClass = "payload_too_large"
	FailureNoUsableContent   FailureClass = "no_usable_content"
	FailureMalformedResponse FailureClass = "malformed_upstream_response"
	FailureTransientNetwork  FailureClass = "transient_network"
	FailureUnknown           FailureClass = "unknown"
)

// ProviderError is a classified failure from one provider attempt.
type ProviderError struct {
	Class    FailureClass
	Provider string
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	id := e.Provider
	if id == "" {
		id = "provider"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", id, e.Class, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", id, e.Class, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError builds a classified failure.
func NewProviderError(class FailureClass, provider, message string) *ProviderError {
	return &ProviderError{Class: class, Provider: provider, Message: message}
}

// WrapProviderError classifies an underlying error.
func WrapProviderError(err error, class FailureClass, provider, message string) *ProviderError {
	return &ProviderError{Class: class, Provider: provider, Message: message, Cause: err}
}

// ClassOf extracts the failure class from an error chain, Unknown when the
// error was never classified.
func ClassOf(err error) FailureClass {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return FailureUnknown
}

// IsRetryable reports whether the retry policy may attempt the call again.
// Credentials will not fix themselves mid-loop, so Unauthenticated never
// retries; every other class is worth another attempt.
func IsRetryable(err error) bool {
	return ClassOf(err) != FailureUnauthenticated
}

// IsNoUsableContent reports a well-formed "nothing to read here" answer.
func IsNoUsableContent(err error) bool {
	return ClassOf(err) == FailureNoUsableContent
}

// tagProvider stamps the provider id onto classified errors that were
// produced below the adapter (normalizer, shared client).
func tagProvider(err error, provider string) error {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Provider == "" {
		pe.Provider = provider
	}
	return err
}

// classifyHTTPStatus is the shared default mapping from an upstream HTTP
// status to a failure class. Adapters refine it for provider quirks.
func classifyHTTPStatus(status int) FailureClass {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return FailureUnauthenticated
	case status == http.StatusTooManyRequests:
		return FailureRateLimited
	case status == http.StatusRequestEntityTooLarge:
		return FailurePayloadTooLarge
	case status == http.StatusRequestTimeout, status >= 500:
		return FailureTransientNetwork
	default:
		return FailureUnknown
	}
}

// classifyTransportError maps pre-response failures (dial, TLS, timeout,
// cancellation) to a class. Abandonment by the caller counts as transient.
func classifyTransportError(err error, provider string) *ProviderError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return WrapProviderError(err, FailureTransientNetwork, provider, "request abandoned")
	}
	return WrapProviderError(err, FailureTransientNetwork, provider, "request failed")
}

// ExhaustedError reports that a capability call ran out of providers. It
// enumerates every attempt so callers can tell "everything rate-limited"
// from "no provider configured" from "content genuinely unreadable".
type ExhaustedError struct {
	Capability Capability
	Outcomes   []Outcome
}

func (e *ExhaustedError) Error() string {
	if len(e.Outcomes) == 0 {
		return fmt.Sprintf("no providers configured for %s", e.Capability)
	}
	parts := make([]string, 0, len(e.Outcomes))
	for _, o := range e.Outcomes {
		parts = append(parts, fmt.Sprintf("%s: %s (%s)", o.ProviderID, o.Failure, o.Message))
	}
	return fmt.Sprintf("all providers failed for %s: %s", e.Capability, strings.Join(parts, "; "))
}

// snippet truncates an upstream body for error messages and logs.
func snippet(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
