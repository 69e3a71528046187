package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func geminiTextResponse(text string) map[string]interface{} {
	return map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content": map[string]interface{}{
					"parts": []map[string]interface{}{{"text": text}},
				},
				"finishReason": "STOP",
			},
		},
	}
}

func newGeminiTestProvider(t *testing.T, handler http.HandlerFunc) Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewGeminiProvider(
		GeminiConfig{BaseURL: srv.URL, Timeout: 5 * time.Second},
		StaticCredentials{ProviderGemini: "test-key"},
		zap.NewNop(),
	)
}

func TestGemini_Descriptor(t *testing.T) {
	p := NewGeminiProvider(GeminiConfig{}, StaticCredentials{}, zap.NewNop())

	desc := p.Descriptor()
	assert.Equal(t, ProviderGemini, desc.ID)
	assert.Equal(t, 2, desc.Priority)
	assert.True(t, desc.Supports(CapabilityExtractText))
	assert.True(t, desc.Supports(CapabilityAnalyzeDocument))
}

func TestGemini_ExtractText(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	p := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(geminiTextResponse("VISA\nREPUBLIC OF EXAMPLELAND"))
	})

	result, err := p.ExtractText(context.Background(), testImage)
	require.NoError(t, err)

	assert.Equal(t, "VISA\nREPUBLIC OF EXAMPLELAND", result.Text)
	assert.Equal(t, 0.9, result.Confidence)
	assert.GreaterOrEqual(t, result.ProcessingTimeMs, int64(0))

	assert.Equal(t, "/models/gemini-2.0-flash:generateContent", gotPath)

	contents := gotBody["contents"].([]interface{})
	parts := contents[0].(map[string]interface{})["parts"].([]interface{})
	require.Len(t, parts, 2, "prompt part plus image part")
	inline := parts[1].(map[string]interface{})["inline_data"].(map[string]interface{})
	assert.Equal(t, "image/png", inline["mime_type"])
	assert.Equal(t, testImage.Base64(), inline["data"])
}

func TestGemini_ExtractText_Sentinel(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"exact sentinel", "NO_TEXT_FOUND"},
		{"sentinel with whitespace", "  NO_TEXT_FOUND\n"},
		{"lowercase sentinel", "no_text_found"},
		{"empty response", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(geminiTextResponse(tt.text))
			})

			_, err := p.ExtractText(context.Background(), testImage)
			require.Error(t, err)
			assert.Equal(t, FailureNoUsableContent, ClassOf(err))
		})
	}
}

func TestGemini_AnalyzeDocument(t *testing.T) {
	var gotBody map[string]interface{}
	p := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(geminiTextResponse(
			`{"document_type": "passport", "confidence": 0.93, "suggested_form": "personal_information", "extracted_fields": {"name": "JANE DOE"}}`,
		))
	})

	analysis, err := p.AnalyzeDocument(context.Background(), "PASSPORT JANE DOE")
	require.NoError(t, err)

	assert.Equal(t, DocTypePassport, analysis.DocumentType)
	assert.Equal(t, 0.93, analysis.Confidence)
	assert.Equal(t, map[string]string{"name": "JANE DOE"}, analysis.ExtractedFields)

	genCfg := gotBody["generationConfig"].(map[string]interface{})
	assert.Equal(t, "application/json", genCfg["responseMimeType"], "analysis requests ask for JSON output")

	contents := gotBody["contents"].([]interface{})
	parts := contents[0].(map[string]interface{})["parts"].([]interface{})
	prompt := parts[0].(map[string]interface{})["text"].(string)
	assert.Contains(t, prompt, "document_type")
	assert.Contains(t, prompt, "PASSPORT JANE DOE")
}

func TestGemini_AnalyzeDocument_SloppyJSONRepaired(t *testing.T) {
	p := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(geminiTextResponse(
			"Here you go:\n```json\n{document_type: 'visa', confidence: 1.7, extracted_data: {country: 'FR', stale: null,},}\n```",
		))
	})

	analysis, err := p.AnalyzeDocument(context.Background(), "visa text")
	require.NoError(t, err)

	assert.Equal(t, DocTypeVisa, analysis.DocumentType)
	assert.Equal(t, 1.0, analysis.Confidence)
	assert.Equal(t, map[string]string{"country": "FR"}, analysis.ExtractedFields)
}

func TestGemini_AnalyzeDocument_UnusableResponse(t *testing.T) {
	p := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(geminiTextResponse("I'm sorry, I cannot classify this document."))
	})

	_, err := p.AnalyzeDocument(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, FailureMalformedResponse, ClassOf(err))
}

func TestGemini_BadRequestRefinement(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected FailureClass
	}{
		{"invalid key", `{"error": {"message": "API key not valid. Please pass a valid API key.", "status": "INVALID_ARGUMENT"}}`, FailureUnauthenticated},
		{"oversized payload", `{"error": {"message": "Request payload size exceeds the limit: 20971520 bytes."}}`, FailurePayloadTooLarge},
		{"quota", `{"error": {"message": "Quota exceeded", "status": "RESOURCE_EXHAUSTED"}}`, FailureRateLimited},
		{"other 400", `{"error": {"message": "Unknown field"}}`, FailureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(tt.body))
			})

			_, err := p.ExtractText(context.Background(), testImage)
			require.Error(t, err)
			assert.Equal(t, tt.expected, ClassOf(err))
		})
	}
}

func TestGemini_RateLimitStatus(t *testing.T) {
	p := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := p.ExtractText(context.Background(), testImage)
	require.Error(t, err)
	assert.Equal(t, FailureRateLimited, ClassOf(err))
}

func TestGemini_NoCandidates(t *testing.T) {
	p := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"candidates": []interface{}{}})
	})

	_, err := p.ExtractText(context.Background(), testImage)
	require.Error(t, err)
	assert.Equal(t, FailureMalformedResponse, ClassOf(err))
}

func TestGemini_MissingKey(t *testing.T) {
	p := NewGeminiProvider(GeminiConfig{BaseURL: "http://127.0.0.1:1"}, StaticCredentials{}, zap.NewNop())

	_, err := p.ExtractText(context.Background(), testImage)
	require.Error(t, err)
	assert.Equal(t, FailureUnauthenticated, ClassOf(err))

	assert.False(t, p.IsAvailable(context.Background()))
}

func TestGemini_IsAvailable(t *testing.T) {
	p := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Write([]byte(`{"models": []}`))
	})
	assert.True(t, p.IsAvailable(context.Background()))
}
