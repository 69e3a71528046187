package ai

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Extraction Tests

func TestNormalizeAnalysis_CleanJSON(t *testing.T) {
	raw := `{"document_type": "visa", "confidence": 0.9, "suggested_form": "visa_application", "extracted_fields": {"country": "US"}}`

	analysis, report, err := NormalizeAnalysis(raw)
	require.NoError(t, err)

	assert.Equal(t, DocTypeVisa, analysis.DocumentType)
	assert.Equal(t, 0.9, analysis.Confidence)
	assert.Equal(t, FormVisaApplication, analysis.SuggestedForm)
	assert.Equal(t, map[string]string{"country": "US"}, analysis.ExtractedFields)

	assert.Equal(t, "object_span", report.Strategy)
	assert.Equal(t, 0, report.RepairPass)
	assert.True(t, report.SchemaValid)
}

func TestNormalizeAnalysis_ProseWrapped(t *testing.T) {
	raw := `Sure! Here is the analysis you asked for:
{"document_type": "contract", "confidence": 0.8, "suggested_form": "employment_contract", "extracted_fields": {}}
Let me know if you need anything else.`

	analysis, report, err := NormalizeAnalysis(raw)
	require.NoError(t, err)

	assert.Equal(t, DocTypeContract, analysis.DocumentType)
	assert.Equal(t, FormEmploymentContract, analysis.SuggestedForm)
	assert.Equal(t, 0, report.RepairPass)
}

func TestNormalizeAnalysis_FencedClampAndNullDrop(t *testing.T) {
	raw := "```json\n{\"document_type\":\"passport\",\"confidence\":1.4,\"extracted_data\":{\"name\":\"A\",x:null}}\n```"

	analysis, report, err := NormalizeAnalysis(raw)
	require.NoError(t, err)

	assert.Equal(t, DocTypePassport, analysis.DocumentType)
	assert.Equal(t, 1.0, analysis.Confidence)
	assert.Equal(t, map[string]string{"name": "A"}, analysis.ExtractedFields)
	assert.NotContains(t, analysis.ExtractedFields, "x")

	assert.Greater(t, report.RepairPass, 0)
	assert.False(t, report.SchemaValid)
}

func TestNormalizeAnalysis_NoBraces(t *testing.T) {
	_, _, err := NormalizeAnalysis("I could not read that document, sorry.")
	require.Error(t, err)
	assert.Equal(t, FailureMalformedResponse, ClassOf(err))
}

func TestNormalizeAnalysis_EmptyInput(t *testing.T) {
	_, _, err := NormalizeAnalysis("")
	require.Error(t, err)
	assert.Equal(t, FailureMalformedResponse, ClassOf(err))
}

func TestNormalizeAnalysis_UnparseableCandidate(t *testing.T) {
	_, _, err := NormalizeAnalysis(`{"document_type": "passport" oops this is not json}`)
	require.Error(t, err)
	assert.Equal(t, FailureMalformedResponse, ClassOf(err))
}

// Repair Tests

func TestNormalizeAnalysis_Repairs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"trailing comma", `{"document_type": "visa", "confidence": 0.9, "extracted_fields": {"a": "1",},}`},
		{"bareword keys", `{document_type: "visa", confidence: 0.9, extracted_fields: {}}`},
		{"single quoted values", `{"document_type": 'visa', "confidence": 0.9, "extracted_fields": {"a": 'b'}}`},
		{"single quoted keys", `{'document_type': "visa", 'confidence': 0.9}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis, report, err := NormalizeAnalysis(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, DocTypeVisa, analysis.DocumentType)
			assert.Equal(t, 0.9, analysis.Confidence)
			assert.Equal(t, 1, report.RepairPass)
		})
	}
}

func TestNormalizeAnalysis_Comments(t *testing.T) {
	raw := `{
		// primary classification
		"document_type": "financial",
		"confidence": 0.7, /* about right */
		"extracted_fields": {}
	}`

	analysis, report, err := NormalizeAnalysis(raw)
	require.NoError(t, err)
	assert.Equal(t, DocTypeFinancial, analysis.DocumentType)
	assert.Equal(t, 2, report.RepairPass)
}

// Defaulting Tests

func TestNormalizeAnalysis_EmptyObjectDefaults(t *testing.T) {
	analysis, _, err := NormalizeAnalysis("{}")
	require.NoError(t, err)

	assert.Equal(t, DocTypeOther, analysis.DocumentType)
	assert.Equal(t, 0.5, analysis.Confidence)
	assert.Equal(t, FormPersonalInformation, analysis.SuggestedForm)
	require.NotNil(t, analysis.ExtractedFields)
	assert.Empty(t, analysis.ExtractedFields)
}

func TestNormalizeAnalysis_UnknownEnumsCollapse(t *testing.T) {
	raw := `{"document_type": "invoice", "confidence": 0.9, "suggested_form": "tax_return", "extracted_fields": {}}`

	analysis, _, err := NormalizeAnalysis(raw)
	require.NoError(t, err)

	assert.Equal(t, DocTypeOther, analysis.DocumentType)
	assert.Equal(t, FormPersonalInformation, analysis.SuggestedForm)
}

func TestNormalizeAnalysis_EnumsCaseInsensitive(t *testing.T) {
	raw := `{"document_type": " Passport ", "suggested_form": "VISA_APPLICATION", "extracted_fields": {}}`

	analysis, _, err := NormalizeAnalysis(raw)
	require.NoError(t, err)

	assert.Equal(t, DocTypePassport, analysis.DocumentType)
	assert.Equal(t, FormVisaApplication, analysis.SuggestedForm)
}

func TestNormalizeAnalysis_ConfidenceClamp(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected float64
	}{
		{"above one", `{"confidence": 1.4}`, 1.0},
		{"below zero", `{"confidence": -0.2}`, 0.0},
		{"in range", `{"confidence": 0.75}`, 0.75},
		{"non numeric", `{"confidence": "high"}`, 0.5},
		{"missing", `{}`, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis, _, err := NormalizeAnalysis(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, analysis.Confidence)
		})
	}
}

func TestNormalizeAnalysis_FieldCoercion(t *testing.T) {
	raw := `{"extracted_fields": {
		"name": "  Jane Doe  ",
		"salary": 42000,
		"rate": 12.5,
		"verified": true,
		"missing": null,
		"note": "null",
		"nested": {"a": 1}
	}}`

	analysis, _, err := NormalizeAnalysis(raw)
	require.NoError(t, err)

	fields := analysis.ExtractedFields
	assert.Equal(t, "Jane Doe", fields["name"])
	assert.Equal(t, "42000", fields["salary"])
	assert.Equal(t, "12.5", fields["rate"])
	assert.Equal(t, "true", fields["verified"])
	assert.Equal(t, "null", fields["note"], "the string null is a value, only JSON null is dropped")
	assert.Equal(t, `{"a":1}`, fields["nested"])
	assert.NotContains(t, fields, "missing")
}

func TestNormalizeAnalysis_SynonymKeys(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"camel case", `{"documentType": "visa", "suggestedForm": "visa_application", "extractedFields": {"k": "v"}}`},
		{"extracted data", `{"doc_type": "visa", "suggested_form": "visa_application", "extracted_data": {"k": "v"}}`},
		{"bare fields", `{"document_type": "visa", "suggested_form": "visa_application", "fields": {"k": "v"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis, _, err := NormalizeAnalysis(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, DocTypeVisa, analysis.DocumentType)
			assert.Equal(t, FormVisaApplication, analysis.SuggestedForm)
			assert.Equal(t, map[string]string{"k": "v"}, analysis.ExtractedFields)
		})
	}
}

// Purity Tests

func TestNormalizeAnalysis_Idempotent(t *testing.T) {
	raw := "Result: ```json\n{document_type: 'passport', confidence: 1.2, extracted_data: {name: 'A', junk: null},}\n```"

	first, firstReport, err := NormalizeAnalysis(raw)
	require.NoError(t, err)

	second, secondReport, err := NormalizeAnalysis(raw)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, firstReport, secondReport)

	// Feeding the canonical output back through changes nothing either.
	reencoded, err := json.Marshal(first)
	require.NoError(t, err)
	third, thirdReport, err := NormalizeAnalysis(string(reencoded))
	require.NoError(t, err)
	assert.Equal(t, first, third)
	assert.True(t, thirdReport.SchemaValid)
}

func TestNormalizeAnalysis_AlwaysInRange(t *testing.T) {
	inputs := []string{
		`{"confidence": 99}`,
		"```\n{'confidence': -5, fields: {a: 1, b: null,},}\n```",
		`prose {"document_type": "PASSPORT", "confidence": 2} prose`,
	}

	for _, raw := range inputs {
		analysis, _, err := NormalizeAnalysis(raw)
		require.NoError(t, err, raw)
		assert.GreaterOrEqual(t, analysis.Confidence, 0.0)
		assert.LessOrEqual(t, analysis.Confidence, 1.0)
		require.NotNil(t, analysis.ExtractedFields)
	}
}
