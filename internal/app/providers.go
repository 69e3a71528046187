package app

import (
	"time"

	"go.uber.org/zap"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/ai"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/config"
)

// BuildProviders constructs the provider ladder from configuration in
// priority order. Providers without keys are still constructed; they report
// unavailable until a key arrives, for example through a config reload.
func BuildProviders(cfg *config.Config, creds ai.CredentialSource, logger *zap.Logger) []ai.Provider {
	providers := make([]ai.Provider, 0, len(cfg.Providers))

	for _, id := range cfg.SortedProviderIDs() {
		pc := cfg.Providers[id]

		switch id {
		case "ocrspace":
			providers = append(providers, ai.NewOCRSpaceProvider(ai.OCRSpaceConfig{
				BaseURL:      pc.BaseURL,
				Language:     pc.Language,
				Engine:       pc.Engine,
				Priority:     pc.Priority,
				Timeout:      time.Duration(pc.Timeout) * time.Second,
				TokenURL:     pc.TokenURL,
				ClientID:     pc.ClientID,
				ClientSecret: pc.ClientSecret,
			}, creds, logger))

		case "gemini":
			providers = append(providers, ai.NewGeminiProvider(ai.GeminiConfig{
				BaseURL:         pc.BaseURL,
				Model:           pc.Model,
				Priority:        pc.Priority,
				Timeout:         time.Duration(pc.Timeout) * time.Second,
				MaxOutputTokens: pc.MaxTokens,
				TextBudget:      pc.TextBudget,
			}, creds, logger))

		case "openrouter":
			providers = append(providers, ai.NewOpenRouterProvider(ai.OpenRouterConfig{
				BaseURL:    pc.BaseURL,
				Model:      pc.Model,
				Priority:   pc.Priority,
				Timeout:    time.Duration(pc.Timeout) * time.Second,
				MaxTokens:  pc.MaxTokens,
				TextBudget: pc.TextBudget,
			}, creds, logger))

		default:
			logger.Warn("Unknown provider in config, skipping", zap.String("provider", id))
		}
	}

	return providers
}

// ServiceConfigFrom maps pipeline configuration onto service settings.
func ServiceConfigFrom(cfg *config.Config) ai.ServiceConfig {
	return ai.ServiceConfig{
		MaxAttempts:       cfg.Pipeline.MaxAttempts,
		BaseDelay:         time.Duration(cfg.Pipeline.BaseDelayMs) * time.Millisecond,
		RequestsPerMinute: cfg.Pipeline.RequestsPerMinute,
		BreakerFailures:   uint32(cfg.Pipeline.BreakerFailures),
		BreakerCooldown:   time.Duration(cfg.Pipeline.BreakerCooldownSec) * time.Second,
		CacheTTL:          time.Duration(cfg.Pipeline.CacheTTLMinutes) * time.Minute,
		MaxImageBytes:     cfg.Storage.MaxImageMB << 20,
	}
}

// StaticCredentials builds a credential source from the keys in a fixed
// config snapshot. One-shot CLI commands use this; the server wires a live
// lookup instead so hot reloads take effect.
func StaticCredentials(cfg *config.Config) ai.CredentialSource {
	keys := make(ai.StaticCredentials, len(cfg.Providers))
	for id, p := range cfg.Providers {
		keys[id] = p.APIKey
	}
	return keys
}
