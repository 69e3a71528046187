package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateToBudget(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		budget int
		want   string
	}{
		{
			name:   "under budget untouched",
			text:   "short text",
			budget: 100,
			want:   "short text",
		},
		{
			name:   "exactly at budget untouched",
			text:   "0123456789",
			budget: 10,
			want:   "0123456789",
		},
		{
			name:   "zero budget disables truncation",
			text:   "anything at all",
			budget: 0,
			want:   "anything at all",
		},
		{
			name:   "cuts at newline inside the tail window",
			text:   "abcdefgh\nxyz and more",
			budget: 10,
			want:   "abcdefgh",
		},
		{
			name:   "cuts after sentence period",
			text:   "Sent one. More text here",
			budget: 10,
			want:   "Sent one.",
		},
		{
			name:   "cuts after ideographic full stop",
			text:   "一二三四五六七八。九十十一",
			budget: 10,
			want:   "一二三四五六七八。",
		},
		{
			name:   "hard cut with ellipsis when no boundary",
			text:   "abcdefghijklmnop",
			budget: 10,
			want:   "abcdefghij...",
		},
		{
			name:   "boundary before the tail window is ignored",
			text:   "abcdef. ghijklmno",
			budget: 10,
			want:   "abcdef. gh...",
		},
		{
			name:   "decimal point is not a sentence boundary",
			text:   "total 3.50 plus extras on top",
			budget: 9,
			want:   "total 3.5...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncateToBudget(tt.text, tt.budget))
		})
	}
}

func TestTruncateToBudget_RuneSafe(t *testing.T) {
	text := strings.Repeat("é", 40)
	got := truncateToBudget(text, 10)
	assert.Equal(t, strings.Repeat("é", 10)+"...", got)
}

func TestExtractionPrompt(t *testing.T) {
	assert.Contains(t, extractionPrompt, noTextSentinel)
	assert.Contains(t, extractionPrompt, "no commentary")
}

func TestAnalysisPrompt(t *testing.T) {
	prompt := analysisPrompt("PASSPORT No. X1234567")

	assert.Contains(t, prompt, "document_type")
	assert.Contains(t, prompt, "suggested_form")
	assert.Contains(t, prompt, "extracted_fields")
	assert.Contains(t, prompt, "never use null")
	assert.Contains(t, prompt, "Document text:\nPASSPORT No. X1234567")
}
