package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/metrics"
)

// GeminiConfig configures the Gemini adapter.
type GeminiConfig struct {
	BaseURL         string
	Model           string
	Priority        int
	Timeout         time.Duration
	MaxOutputTokens int
	TextBudget      int
}

// geminiProvider adapts Google's multimodal generateContent API to both
// pipeline capabilities.
type geminiProvider struct {
	cfg    GeminiConfig
	creds  CredentialSource
	client *httpJSONClient
	logger *zap.Logger
}

var _ Provider = (*geminiProvider)(nil)

// NewGeminiProvider creates the Gemini adapter.
func NewGeminiProvider(cfg GeminiConfig, creds CredentialSource, logger *zap.Logger) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Priority <= 0 {
		cfg.Priority = 2
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 2048
	}
	if cfg.TextBudget <= 0 {
		cfg.TextBudget = 12000
	}
	return &geminiProvider{
		cfg:    cfg,
		creds:  creds,
		client: newHTTPJSONClient(cfg.Timeout, logger),
		logger: logger,
	}
}

func (p *geminiProvider) Descriptor() Descriptor {
	return Descriptor{
		ID:           ProviderGemini,
		Priority:     p.cfg.Priority,
		Capabilities: []Capability{CapabilityExtractText, CapabilityAnalyzeDocument},
	}
}

func (p *geminiProvider) IsAvailable(ctx context.Context) bool {
	key := p.creds.Key(ProviderGemini)
	if key == "" {
		return false
	}
	url := fmt.Sprintf("%s/models?key=%s", p.cfg.BaseURL, key)
	status, err := p.client.getStatus(ctx, url, nil)
	return err == nil && status == 200
}

func (p *geminiProvider) ExtractText(ctx context.Context, img Image) (*OCRResult, error) {
	body := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]interface{}{
					{"text": extractionPrompt},
					{
						"inline_data": map[string]interface{}{
							"mime_type": img.MimeType,
							"data":      img.Base64(),
						},
					},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":     0.1,
			"maxOutputTokens": p.cfg.MaxOutputTokens,
		},
	}

	start := time.Now()
	text, err := p.generate(ctx, body)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.EqualFold(trimmed, noTextSentinel) {
		return nil, NewProviderError(FailureNoUsableContent, ProviderGemini, "document contains no readable text")
	}

	return &OCRResult{
		Text:             trimmed,
		Confidence:       0.9,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func (p *geminiProvider) AnalyzeDocument(ctx context.Context, text string) (*DocumentAnalysis, error) {
	prompt := analysisPrompt(truncateToBudget(text, p.cfg.TextBudget))

	body := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]interface{}{
					{"text": prompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":      0.1,
			"maxOutputTokens":  p.cfg.MaxOutputTokens,
			"responseMimeType": "application/json",
		},
	}

	raw, err := p.generate(ctx, body)
	if err != nil {
		return nil, err
	}

	analysis, report, err := NormalizeAnalysis(raw)
	if err != nil {
		return nil, WrapProviderError(err, FailureMalformedResponse, ProviderGemini, "unusable analysis response")
	}
	if report.RepairPass > 0 {
		metrics.RecordAnalysisRepaired()
		p.logger.Debug("Analysis JSON repaired",
			zap.String("provider", ProviderGemini),
			zap.String("strategy", report.Strategy),
			zap.Int("repair_pass", report.RepairPass))
	}
	return &analysis, nil
}

// generate issues a generateContent call and returns the first candidate's
// concatenated text parts.
func (p *geminiProvider) generate(ctx context.Context, body map[string]interface{}) (string, error) {
	key := p.creds.Key(ProviderGemini)
	if key == "" {
		return "", NewProviderError(FailureUnauthenticated, ProviderGemini, "API key not configured")
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.cfg.BaseURL, p.cfg.Model, key)
	status, respBody, err := p.client.postJSON(ctx, url, body, nil)
	if err != nil {
		return "", tagProvider(err, ProviderGemini)
	}
	if status != 200 {
		return "", p.refineStatusError(status, respBody)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", WrapProviderError(err, FailureMalformedResponse, ProviderGemini, "failed to parse response")
	}
	if len(result.Candidates) == 0 {
		return "", NewProviderError(FailureMalformedResponse, ProviderGemini, "response contains no candidates")
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// refineStatusError tightens the generic status classification using the
// error text Google returns with 400s.
func (p *geminiProvider) refineStatusError(status int, body []byte) *ProviderError {
	base := statusError(ProviderGemini, status, body)
	if status != 400 {
		return base
	}

	lower := strings.ToLower(string(body))
	switch {
	case strings.Contains(lower, "api key"), strings.Contains(lower, "api_key_invalid"):
		base.Class = FailureUnauthenticated
	case strings.Contains(lower, "payload size"), strings.Contains(lower, "request payload"):
		base.Class = FailurePayloadTooLarge
	case strings.Contains(lower, "quota"), strings.Contains(lower, "resource_exhausted"):
		base.Class = FailureRateLimited
	}
	return base
}
