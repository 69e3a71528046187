package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OCRSpaceConfig configures the OCR-specialized provider.
type OCRSpaceConfig struct {
	BaseURL  string
	Language string
	Engine   int
	Priority int
	Timeout  time.Duration

	// Enterprise gateways exchange client credentials for a bearer token
	// instead of sending a static API key.
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// ocrSpaceProvider wraps an OCR.space-style service: purpose-built text
// extraction, no analysis capability.
type ocrSpaceProvider struct {
	cfg    OCRSpaceConfig
	creds  CredentialSource
	client *httpJSONClient
	tokens oauth2.TokenSource
	logger *zap.Logger
}

var _ Provider = (*ocrSpaceProvider)(nil)

// NewOCRSpaceProvider creates the OCR-specialized adapter.
func NewOCRSpaceProvider(cfg OCRSpaceConfig, creds CredentialSource, logger *zap.Logger) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.ocr.space/parse/image"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.Engine <= 0 {
		cfg.Engine = 2
	}
	if cfg.Priority <= 0 {
		cfg.Priority = 1
	}

	var tokens oauth2.TokenSource
	if cfg.TokenURL != "" && cfg.ClientID != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		tokens = cc.TokenSource(context.Background())
	}

	return &ocrSpaceProvider{
		cfg:    cfg,
		creds:  creds,
		client: newHTTPJSONClient(cfg.Timeout, logger),
		tokens: tokens,
		logger: logger,
	}
}

func (p *ocrSpaceProvider) Descriptor() Descriptor {
	return Descriptor{
		ID:           ProviderOCRSpace,
		Priority:     p.cfg.Priority,
		Capabilities: []Capability{CapabilityExtractText},
	}
}

func (p *ocrSpaceProvider) IsAvailable(ctx context.Context) bool {
	headers, err := p.authHeaders()
	if err != nil {
		return false
	}
	// Any HTTP answer means the endpoint is reachable; the probe is
	// advisory, not a full parse request.
	_, err = p.client.getStatus(ctx, p.cfg.BaseURL, headers)
	return err == nil
}

func (p *ocrSpaceProvider) ExtractText(ctx context.Context, img Image) (*OCRResult, error) {
	headers, err := p.authHeaders()
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"base64Image": img.DataURL(),
		"language":    p.cfg.Language,
		"scale":       true,
		"isTable":     false,
		"OCREngine":   p.cfg.Engine,
	}

	start := time.Now()
	status, respBody, err := p.client.postJSON(ctx, p.cfg.BaseURL, body, headers)
	if err != nil {
		return nil, tagProvider(err, ProviderOCRSpace)
	}
	if status != 200 {
		return nil, statusError(ProviderOCRSpace, status, respBody)
	}

	var result struct {
		ParsedResults []struct {
			ParsedText        string `json:"ParsedText"`
			FileParseExitCode int    `json:"FileParseExitCode"`
		} `json:"ParsedResults"`
		OCRExitCode                  int             `json:"OCRExitCode"`
		IsErroredOnProcessing        bool            `json:"IsErroredOnProcessing"`
		ErrorMessage                 json.RawMessage `json:"ErrorMessage"`
		ProcessingTimeInMilliseconds string          `json:"ProcessingTimeInMilliseconds"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, WrapProviderError(err, FailureMalformedResponse, ProviderOCRSpace, "failed to parse response")
	}

	if result.IsErroredOnProcessing {
		return nil, p.classifyProcessingError(result.ErrorMessage)
	}

	var texts []string
	for _, r := range result.ParsedResults {
		if t := strings.TrimSpace(r.ParsedText); t != "" {
			texts = append(texts, t)
		}
	}
	text := strings.TrimSpace(strings.Join(texts, "\n"))
	if text == "" {
		return nil, NewProviderError(FailureNoUsableContent, ProviderOCRSpace, "document contains no readable text")
	}

	elapsed := time.Since(start).Milliseconds()
	if ms, err := strconv.ParseInt(result.ProcessingTimeInMilliseconds, 10, 64); err == nil && ms > 0 {
		elapsed = ms
	}

	// The service reports no per-word confidence; map exit codes to a
	// coarse score instead.
	confidence := 0.95
	if result.OCRExitCode != 1 {
		confidence = 0.6
	}

	return &OCRResult{
		Text:             text,
		Confidence:       confidence,
		ProcessingTimeMs: elapsed,
	}, nil
}

// AnalyzeDocument is a best-effort keyword classification. The descriptor
// does not advertise the analysis capability, so the ladder never routes
// analysis here; direct callers get a heuristic answer instead of an error.
func (p *ocrSpaceProvider) AnalyzeDocument(ctx context.Context, text string) (*DocumentAnalysis, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, NewProviderError(FailureNoUsableContent, ProviderOCRSpace, "no text to analyze")
	}

	docType := classifyByKeywords(trimmed)
	return &DocumentAnalysis{
		DocumentType:    docType,
		Confidence:      0.4,
		SuggestedForm:   defaultFormFor(docType),
		ExtractedFields: map[string]string{},
	}, nil
}

// keywordRules pair a document type with the terms that suggest it. Order
// matters: earlier rules win ties.
var keywordRules = []struct {
	docType  string
	keywords []string
}{
	{DocTypePassport, []string{"passport", "nationality", "place of birth"}},
	{DocTypeVisa, []string{"visa", "permit", "immigration"}},
	{DocTypeFinancial, []string{"bank", "balance", "statement", "account number", "iban"}},
	{DocTypeContract, []string{"agreement", "contract", "employer", "terms and conditions"}},
	{DocTypePersonal, []string{"date of birth", "address", "phone", "email"}},
}

func classifyByKeywords(text string) string {
	lower := strings.ToLower(text)

	best := DocTypeOther
	bestHits := 0
	for _, rule := range keywordRules {
		hits := 0
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = rule.docType
			bestHits = hits
		}
	}
	return best
}

func defaultFormFor(docType string) string {
	switch docType {
	case DocTypePassport, DocTypePersonal:
		return FormPersonalInformation
	case DocTypeVisa:
		return FormVisaApplication
	case DocTypeFinancial:
		return FormBankStatement
	case DocTypeContract:
		return FormEmploymentContract
	default:
		return FormPersonalInformation
	}
}

// classifyProcessingError maps the service's in-band error report (HTTP 200
// with IsErroredOnProcessing set) to a failure class.
func (p *ocrSpaceProvider) classifyProcessingError(raw json.RawMessage) *ProviderError {
	msg := flattenErrorMessage(raw)
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "file size"), strings.Contains(lower, "too large"):
		return NewProviderError(FailurePayloadTooLarge, ProviderOCRSpace, msg)
	case strings.Contains(lower, "timed out"), strings.Contains(lower, "timeout"):
		return NewProviderError(FailureTransientNetwork, ProviderOCRSpace, msg)
	default:
		return NewProviderError(FailureUnknown, ProviderOCRSpace, msg)
	}
}

// flattenErrorMessage tolerates the service reporting errors as either a
// string or an array of strings.
func flattenErrorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "processing failed"
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return strings.Join(many, "; ")
	}
	return fmt.Sprintf("processing failed: %s", snippet(raw, 128))
}

func (p *ocrSpaceProvider) authHeaders() (map[string]string, error) {
	if p.tokens != nil {
		tok, err := p.tokens.Token()
		if err != nil {
			return nil, WrapProviderError(err, FailureUnauthenticated, ProviderOCRSpace, "token exchange failed")
		}
		return map[string]string{"Authorization": "Bearer " + tok.AccessToken}, nil
	}

	key := p.creds.Key(ProviderOCRSpace)
	if key == "" {
		return nil, NewProviderError(FailureUnauthenticated, ProviderOCRSpace, "API key not configured")
	}
	return map[string]string{"apikey": key}, nil
}
