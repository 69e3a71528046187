// Package ai implements the multi-provider document pipeline: provider
// adapters over heterogeneous OCR/LLM services, response normalization,
// and retry/fallback orchestration.
package ai

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Capability identifies one of the two operations a provider can serve.
type Capability string

const (
	CapabilityExtractText     Capability = "extract_text"
	CapabilityAnalyzeDocument Capability = "analyze_document"
)

// OCRResult is the canonical outcome of a successful text extraction.
type OCRResult struct {
	Text             string  `json:"text"`
	Confidence       float64 `json:"confidence"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
}

// DocumentAnalysis is the canonical outcome of a successful document analysis.
// ExtractedFields values are always trimmed strings, never null.
type DocumentAnalysis struct {
	DocumentType    string            `json:"document_type"`
	Confidence      float64           `json:"confidence"`
	SuggestedForm   string            `json:"suggested_form"`
	ExtractedFields map[string]string `json:"extracted_fields"`
}

// Recognized document types.
const (
	DocTypePassport  = "passport"
	DocTypeVisa      = "visa"
	DocTypeFinancial = "financial"
	DocTypePersonal  = "personal"
	DocTypeContract  = "contract"
	DocTypeOther     = "other"
)

// Recognized form suggestions.
const (
	FormVisaApplication      = "visa_application"
	FormFinancialDeclaration = "financial_declaration"
	FormPersonalInformation  = "personal_information"
	FormEmploymentContract   = "employment_contract"
	FormBankStatement        = "bank_statement"
)

// Descriptor is the static identity of a provider adapter.
type Descriptor struct {
	ID           string       `json:"id"`
	Priority     int          `json:"priority"` // Lower = higher priority
	Capabilities []Capability `json:"capabilities"`
}

// Supports reports whether the provider serves the given capability.
func (d Descriptor) Supports(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Outcome records a single provider attempt inside one orchestrator pass.
// It is bookkeeping for the aggregated error and logs, never persisted.
type Outcome struct {
	ProviderID string       `json:"provider_id"`
	Capability Capability   `json:"capability"`
	Succeeded  bool         `json:"succeeded"`
	LatencyMs  int64        `json:"latency_ms"`
	Failure    FailureClass `json:"failure,omitempty"`
	Message    string       `json:"message,omitempty"`
}

// Image is a decoded document image ready to be embedded in a provider request.
type Image struct {
	MimeType string
	Data     []byte
}

// Base64 returns the standard-encoded payload for JSON embedding.
func (img Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// DataURL re-encodes the image as a data URL.
func (img Image) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", img.MimeType, img.Base64())
}

// ParseDataURL decodes a base64 data URL ("data:image/png;base64,...") into
// an Image. The MIME type defaults to image/jpeg when the URL omits it.
func ParseDataURL(dataURL string) (Image, error) {
	s := strings.TrimSpace(dataURL)
	if !strings.HasPrefix(s, "data:") {
		return Image{}, fmt.Errorf("not a data URL")
	}

	meta, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return Image{}, fmt.Errorf("malformed data URL: missing payload separator")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return Image{}, fmt.Errorf("unsupported data URL encoding: %q", meta)
	}

	mimeType := strings.TrimSuffix(meta, ";base64")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return Image{}, fmt.Errorf("invalid base64 payload: %w", err)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("empty image payload")
	}

	return Image{MimeType: mimeType, Data: data}, nil
}

// ExtractInput is the caller-facing input for text extraction.
type ExtractInput struct {
	ImageDataURL      string `json:"image_data_url"`
	PreferredProvider string `json:"preferred_provider,omitempty"`
}

// AnalyzeInput is the caller-facing input for document analysis.
type AnalyzeInput struct {
	Text              string `json:"text"`
	PreferredProvider string `json:"preferred_provider,omitempty"`
}
