package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// httpJSONClient posts JSON payloads to provider endpoints. It owns only the
// transport concerns: request construction, body capture, timing and the
// mapping of pre-response failures to FailureTransientNetwork. Interpreting
// HTTP statuses stays with each adapter, which knows its provider's quirks.
type httpJSONClient struct {
	http   *http.Client
	logger *zap.Logger
}

func newHTTPJSONClient(timeout time.Duration, logger *zap.Logger) *httpJSONClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &httpJSONClient{
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// postJSON sends body as JSON and returns the response status and bytes.
// A non-nil error always carries a FailureClass.
func (c *httpJSONClient) postJSON(ctx context.Context, url string, body interface{}, headers map[string]string) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, WrapProviderError(err, FailureUnknown, "", "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payload))
	if err != nil {
		return 0, nil, WrapProviderError(err, FailureUnknown, "", "failed to build request")
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	reqID := uuid.NewString()[:8]
	start := time.Now()
	c.logger.Debug("Provider request",
		zap.String("req_id", reqID),
		zap.String("url", redactQuery(url)),
		zap.Int("request_bytes", len(payload)),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, classifyTransportError(err, "")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, classifyTransportError(err, "")
	}

	c.logger.Debug("Provider response",
		zap.String("req_id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.Int("response_bytes", len(respBody)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)

	return resp.StatusCode, respBody, nil
}

// getStatus performs a lightweight GET used by availability probes.
func (c *httpJSONClient) getStatus(ctx context.Context, url string, headers map[string]string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return resp.StatusCode, nil
}

// redactQuery hides query parameters in logged URLs; gemini carries its API
// key there.
func redactQuery(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i] + "?..."
	}
	return url
}

// statusError builds a classified error for a non-2xx upstream response
// using the shared default mapping.
func statusError(provider string, status int, body []byte) *ProviderError {
	return NewProviderError(
		classifyHTTPStatus(status),
		provider,
		fmt.Sprintf("API error (status %d): %s", status, snippet(body, 256)),
	)
}
