package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassOf(t *testing.T) {
	direct := NewProviderError(FailureRateLimited, "p", "slow down")
	assert.Equal(t, FailureRateLimited, ClassOf(direct))

	wrapped := fmt.Errorf("outer: %w", direct)
	assert.Equal(t, FailureRateLimited, ClassOf(wrapped))

	assert.Equal(t, FailureUnknown, ClassOf(errors.New("plain")))
	assert.Equal(t, FailureUnknown, ClassOf(nil))
}

func TestIsRetryable(t *testing.T) {
	retryable := []FailureClass{
		FailureRateLimited,
		FailurePayloadTooLarge,
		FailureNoUsableContent,
		FailureMalformedResponse,
		FailureTransientNetwork,
		FailureUnknown,
	}
	for _, class := range retryable {
		assert.True(t, IsRetryable(NewProviderError(class, "p", "m")), string(class))
	}
	assert.False(t, IsRetryable(NewProviderError(FailureUnauthenticated, "p", "m")))
}

func TestTagProvider(t *testing.T) {
	var pe *ProviderError

	err := tagProvider(NewProviderError(FailureMalformedResponse, "", "bad json"), "gemini")
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "gemini", pe.Provider)

	err = tagProvider(NewProviderError(FailureMalformedResponse, "ocrspace", "bad json"), "gemini")
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "ocrspace", pe.Provider, "existing tag wins")
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   FailureClass
	}{
		{http.StatusUnauthorized, FailureUnauthenticated},
		{http.StatusForbidden, FailureUnauthenticated},
		{http.StatusTooManyRequests, FailureRateLimited},
		{http.StatusRequestEntityTooLarge, FailurePayloadTooLarge},
		{http.StatusRequestTimeout, FailureTransientNetwork},
		{http.StatusInternalServerError, FailureTransientNetwork},
		{http.StatusServiceUnavailable, FailureTransientNetwork},
		{http.StatusBadRequest, FailureUnknown},
		{http.StatusNotFound, FailureUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyHTTPStatus(tt.status), "status %d", tt.status)
	}
}

func TestClassifyTransportError(t *testing.T) {
	canceled := classifyTransportError(context.Canceled, "gemini")
	assert.Equal(t, FailureTransientNetwork, canceled.Class)
	assert.Equal(t, "request abandoned", canceled.Message)
	assert.ErrorIs(t, canceled, context.Canceled)

	dial := classifyTransportError(errors.New("connection refused"), "gemini")
	assert.Equal(t, FailureTransientNetwork, dial.Class)
	assert.Equal(t, "request failed", dial.Message)
}

func TestExhaustedError_Message(t *testing.T) {
	empty := &ExhaustedError{Capability: CapabilityExtractText}
	assert.Equal(t, "no providers configured for extract_text", empty.Error())

	full := &ExhaustedError{
		Capability: CapabilityAnalyzeDocument,
		Outcomes: []Outcome{
			{ProviderID: "gemini", Failure: FailureRateLimited, Message: "429"},
			{ProviderID: "openrouter", Failure: FailureUnauthenticated, Message: "401"},
		},
	}
	msg := full.Error()
	assert.Contains(t, msg, "all providers failed for analyze_document")
	assert.Contains(t, msg, "gemini: rate_limited")
	assert.Contains(t, msg, "openrouter: unauthenticated")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", snippet([]byte("  short  "), 20))
	assert.Equal(t, "0123456789...", snippet([]byte("0123456789abcdef"), 10))
}
