package ai

import "context"

// Provider ids, stable across config, logs and metrics.
const (
	ProviderOCRSpace   = "ocrspace"
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
)

// Provider is the uniform contract over one external AI service. Concrete
// adapters own protocol-specific request construction and raw-error
// classification; everything they return is canonical.
type Provider interface {
	// Descriptor returns the static identity used for ordering and logging.
	Descriptor() Descriptor

	// IsAvailable performs a cheap advisory probe. It never returns an
	// error: a missing credential or failed probe is simply false, and a
	// false answer must not block capability calls from being attempted.
	IsAvailable(ctx context.Context) bool

	// ExtractText runs OCR over an image. Failures are always classified.
	ExtractText(ctx context.Context, img Image) (*OCRResult, error)

	// AnalyzeDocument classifies already-extracted text. Failures are
	// always classified.
	AnalyzeDocument(ctx context.Context, text string) (*DocumentAnalysis, error)
}

// CredentialSource resolves the API key for a provider id, returning "" when
// the provider is unconfigured. Lookups happen per call so hot-reloaded
// configuration takes effect without restarting adapters.
type CredentialSource interface {
	Key(providerID string) string
}

// CredentialFunc adapts a plain function to a CredentialSource.
type CredentialFunc func(providerID string) string

func (f CredentialFunc) Key(providerID string) string { return f(providerID) }

// StaticCredentials is a fixed key map, handy for tests and one-shot CLI use.
type StaticCredentials map[string]string

func (s StaticCredentials) Key(providerID string) string { return s[providerID] }
