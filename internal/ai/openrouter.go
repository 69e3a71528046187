package ai

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/metrics"
)

// OpenRouterConfig configures the OpenRouter adapter.
type OpenRouterConfig struct {
	BaseURL    string
	Model      string
	Priority   int
	Timeout    time.Duration
	MaxTokens  int
	TextBudget int
}

// openRouterProvider adapts an OpenAI-compatible chat/completions gateway
// to both pipeline capabilities.
type openRouterProvider struct {
	cfg    OpenRouterConfig
	creds  CredentialSource
	client *httpJSONClient
	logger *zap.Logger
}

var _ Provider = (*openRouterProvider)(nil)

// NewOpenRouterProvider creates the OpenRouter adapter.
func NewOpenRouterProvider(cfg OpenRouterConfig, creds CredentialSource, logger *zap.Logger) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "anthropic/claude-3.5-sonnet"
	}
	if cfg.Priority <= 0 {
		cfg.Priority = 3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.TextBudget <= 0 {
		cfg.TextBudget = 12000
	}
	return &openRouterProvider{
		cfg:    cfg,
		creds:  creds,
		client: newHTTPJSONClient(cfg.Timeout, logger),
		logger: logger,
	}
}

func (p *openRouterProvider) Descriptor() Descriptor {
	return Descriptor{
		ID:           ProviderOpenRouter,
		Priority:     p.cfg.Priority,
		Capabilities: []Capability{CapabilityExtractText, CapabilityAnalyzeDocument},
	}
}

func (p *openRouterProvider) IsAvailable(ctx context.Context) bool {
	headers, err := p.authHeaders()
	if err != nil {
		return false
	}
	status, err := p.client.getStatus(ctx, p.cfg.BaseURL+"/models", headers)
	return err == nil && status == 200
}

func (p *openRouterProvider) ExtractText(ctx context.Context, img Image) (*OCRResult, error) {
	body := map[string]interface{}{
		"model": p.cfg.Model,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": extractionPrompt},
					{
						"type": "image_url",
						"image_url": map[string]interface{}{
							"url": img.DataURL(),
						},
					},
				},
			},
		},
		"max_tokens": p.cfg.MaxTokens,
	}

	start := time.Now()
	text, err := p.complete(ctx, body)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.EqualFold(trimmed, noTextSentinel) {
		return nil, NewProviderError(FailureNoUsableContent, ProviderOpenRouter, "document contains no readable text")
	}

	return &OCRResult{
		Text:             trimmed,
		Confidence:       0.85,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func (p *openRouterProvider) AnalyzeDocument(ctx context.Context, text string) (*DocumentAnalysis, error) {
	prompt := analysisPrompt(truncateToBudget(text, p.cfg.TextBudget))

	body := map[string]interface{}{
		"model": p.cfg.Model,
		"messages": []map[string]interface{}{
			{"role": "user", "content": prompt},
		},
		"max_tokens":      p.cfg.MaxTokens,
		"response_format": map[string]interface{}{"type": "json_object"},
	}

	raw, err := p.complete(ctx, body)
	if err != nil {
		return nil, err
	}

	analysis, report, err := NormalizeAnalysis(raw)
	if err != nil {
		return nil, WrapProviderError(err, FailureMalformedResponse, ProviderOpenRouter, "unusable analysis response")
	}
	if report.RepairPass > 0 {
		metrics.RecordAnalysisRepaired()
		p.logger.Debug("Analysis JSON repaired",
			zap.String("provider", ProviderOpenRouter),
			zap.String("strategy", report.Strategy),
			zap.Int("repair_pass", report.RepairPass))
	}
	return &analysis, nil
}

// complete issues a chat completion and returns the first choice's message
// content.
func (p *openRouterProvider) complete(ctx context.Context, body map[string]interface{}) (string, error) {
	headers, err := p.authHeaders()
	if err != nil {
		return "", err
	}

	status, respBody, err := p.client.postJSON(ctx, p.cfg.BaseURL+"/chat/completions", body, headers)
	if err != nil {
		return "", tagProvider(err, ProviderOpenRouter)
	}
	if status != 200 {
		perr := statusError(ProviderOpenRouter, status, respBody)
		// 402 means the account ran out of credits; treat like a rate
		// limit so the caller falls through to the next provider.
		if status == 402 {
			perr.Class = FailureRateLimited
		}
		return "", perr
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", WrapProviderError(err, FailureMalformedResponse, ProviderOpenRouter, "failed to parse response")
	}
	if len(result.Choices) == 0 {
		return "", NewProviderError(FailureMalformedResponse, ProviderOpenRouter, "response contains no choices")
	}
	return result.Choices[0].Message.Content, nil
}

func (p *openRouterProvider) authHeaders() (map[string]string, error) {
	key := p.creds.Key(ProviderOpenRouter)
	if key == "" {
		return nil, NewProviderError(FailureUnauthenticated, ProviderOpenRouter, "API key not configured")
	}
	return map[string]string{
		"Authorization": "Bearer " + key,
		"HTTP-Referer":  "https://github.com/Qualiasolutions/ai-document-processor-sub001",
		"X-Title":       "docproc",
	}, nil
}
