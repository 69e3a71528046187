package ai

import (
	"fmt"
	"strings"
)

// noTextSentinel is the exact string vision providers are told to emit when
// an image contains no readable text. Adapters treat a response consisting
// solely of it as FailureNoUsableContent.
const noTextSentinel = "NO_TEXT_FOUND"

// extractionPrompt instructs a vision model to behave like an OCR engine.
const extractionPrompt = "Extract every piece of text visible in this document image, " +
	"preserving the reading order. Return ONLY the raw extracted text with no commentary, " +
	"no markdown and no explanations. If the image contains no readable text, return exactly: " +
	noTextSentinel

// analysisPrompt embeds the canonical schema in the instruction so every
// provider is asked for the same JSON shape. Parsing of whatever comes back
// is the normalizer's job, not the prompt's.
func analysisPrompt(text string) string {
	var b strings.Builder
	b.WriteString("You are a document classification service. Analyze the document text below ")
	b.WriteString("and respond with ONLY a single JSON object, no prose, no markdown fences.\n\n")
	b.WriteString("The JSON object must have exactly this shape:\n")
	b.WriteString(`{
  "document_type": "one of: passport, visa, financial, personal, contract, other",
  "confidence": 0.0,
  "suggested_form": "one of: visa_application, financial_declaration, personal_information, employment_contract, bank_statement",
  "extracted_fields": {"field_name": "string value"}
}`)
	b.WriteString("\n\nRules: confidence is a number between 0 and 1. Put every concrete fact you can ")
	b.WriteString("identify (names, dates, numbers, amounts, places) into extracted_fields as strings. ")
	b.WriteString("Omit fields you cannot find; never use null.\n\n")
	fmt.Fprintf(&b, "Document text:\n%s\n", text)
	return b.String()
}

// truncateToBudget cuts text to a provider's character budget. When a
// sentence or line boundary falls inside the last fifth of the budget the
// cut lands there; otherwise the text is hard-truncated with an ellipsis.
func truncateToBudget(text string, budget int) string {
	runes := []rune(text)
	if budget <= 0 || len(runes) <= budget {
		return text
	}

	floor := budget * 4 / 5
	for i := budget - 1; i >= floor; i-- {
		switch runes[i] {
		case '\n':
			return strings.TrimSpace(string(runes[:i]))
		case '。':
			return strings.TrimSpace(string(runes[:i+1]))
		case '.':
			if i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\n') {
				return strings.TrimSpace(string(runes[:i+1]))
			}
		}
	}

	return strings.TrimSpace(string(runes[:budget])) + "..."
}
