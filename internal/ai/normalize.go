package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// analysisSchemaJSON is the canonical analysis contract. Providers are shown
// a prose rendering of it in the prompt; the compiled form backs the
// strict-first check so telemetry can tell clean responses from repaired ones.
const analysisSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["document_type", "confidence", "suggested_form", "extracted_fields"],
  "properties": {
    "document_type": {
      "type": "string",
      "enum": ["passport", "visa", "financial", "personal", "contract", "other"]
    },
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "suggested_form": {
      "type": "string",
      "enum": ["visa_application", "financial_declaration", "personal_information", "employment_contract", "bank_statement"]
    },
    "extracted_fields": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  }
}`

var analysisSchema = jsonschema.MustCompileString("document_analysis.json", analysisSchemaJSON)

var documentTypes = map[string]bool{
	DocTypePassport:  true,
	DocTypeVisa:      true,
	DocTypeFinancial: true,
	DocTypePersonal:  true,
	DocTypeContract:  true,
	DocTypeOther:     true,
}

var suggestedForms = map[string]bool{
	FormVisaApplication:      true,
	FormFinancialDeclaration: true,
	FormPersonalInformation:  true,
	FormEmploymentContract:   true,
	FormBankStatement:        true,
}

// NormalizeReport describes how much coaxing a raw response needed.
type NormalizeReport struct {
	Strategy    string // extraction strategy that produced the JSON candidate
	RepairPass  int    // 0 parsed as-is, 1 syntactic repairs, 2 comment stripping too
	SchemaValid bool   // parsed object already matched the canonical schema
}

// NormalizeAnalysis turns loosely structured provider output (JSON possibly
// wrapped in prose or markdown, with trailing commas, bareword keys, single
// quotes or comments) into a canonical DocumentAnalysis. It is a pure
// function: no I/O, and the same input always yields the same output.
//
// Failure is always classified FailureMalformedResponse; a response that
// parses at all never raises a type error, it survives with defaults.
func NormalizeAnalysis(raw string) (DocumentAnalysis, NormalizeReport, error) {
	var report NormalizeReport

	candidate, strategy := extractJSONCandidate(raw)
	if candidate == "" {
		return DocumentAnalysis{}, report, NewProviderError(FailureMalformedResponse, "", "no JSON object in response")
	}
	report.Strategy = strategy

	obj, pass, err := parseWithRepair(candidate)
	if err != nil {
		return DocumentAnalysis{}, report, WrapProviderError(err, FailureMalformedResponse, "", "unparseable JSON in response")
	}
	report.RepairPass = pass
	report.SchemaValid = analysisSchema.Validate(obj) == nil

	return finalizeAnalysis(obj), report, nil
}

// Stage A: candidate extraction strategies, first non-empty result wins.

var (
	reObjectSpan  = regexp.MustCompile(`(?s)\{.*\}`)
	reFencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
)

var jsonCandidateStrategies = []struct {
	name    string
	extract func(string) string
}{
	{"object_span", extractObjectSpan},
	{"fenced_block", extractFencedBlock},
	{"brace_slice", extractBraceSlice},
}

func extractJSONCandidate(raw string) (candidate, strategy string) {
	for _, s := range jsonCandidateStrategies {
		if c := strings.TrimSpace(s.extract(raw)); c != "" {
			return c, s.name
		}
	}
	return "", ""
}

func extractObjectSpan(s string) string {
	return reObjectSpan.FindString(s)
}

func extractFencedBlock(s string) string {
	m := reFencedBlock.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func extractBraceSlice(s string) string {
	i := strings.Index(s, "{")
	j := strings.LastIndex(s, "}")
	if i < 0 || j <= i {
		return ""
	}
	return s[i : j+1]
}

// Stage B: parse with escalating syntactic repair.

var (
	reTrailingComma  = regexp.MustCompile(`,\s*([}\]])`)
	reBarewordKey    = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_\-]*)\s*:`)
	reSingleQuoteKey = regexp.MustCompile(`([{,]\s*)'([^']*)'\s*:`)
	reSingleQuoteVal = regexp.MustCompile(`:\s*'([^']*)'`)
	reLineComment    = regexp.MustCompile(`(?m)(^|[ \t])//[^\n]*`)
	reBlockComment   = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

func parseWithRepair(candidate string) (map[string]interface{}, int, error) {
	attempts := []func(string) string{
		func(s string) string { return s },
		repairSyntax,
		func(s string) string { return repairSyntax(stripComments(s)) },
	}

	var lastErr error
	for pass, fix := range attempts {
		var obj map[string]interface{}
		err := json.Unmarshal([]byte(fix(candidate)), &obj)
		if err == nil {
			return obj, pass, nil
		}
		lastErr = err
	}
	return nil, 0, fmt.Errorf("all repair passes failed: %w", lastErr)
}

func repairSyntax(s string) string {
	s = reSingleQuoteKey.ReplaceAllString(s, `$1"$2":`)
	s = reSingleQuoteVal.ReplaceAllString(s, `: "$1"`)
	s = reBarewordKey.ReplaceAllString(s, `$1"$2":`)
	s = reTrailingComma.ReplaceAllString(s, `$1`)
	return s
}

func stripComments(s string) string {
	s = reBlockComment.ReplaceAllString(s, "")
	s = reLineComment.ReplaceAllString(s, "$1")
	return s
}

// Stage C: semantic validation and defaulting.

func finalizeAnalysis(obj map[string]interface{}) DocumentAnalysis {
	out := DocumentAnalysis{
		DocumentType:    DocTypeOther,
		Confidence:      0.5,
		SuggestedForm:   FormPersonalInformation,
		ExtractedFields: map[string]string{},
	}

	if v := stringField(obj, "document_type", "documentType", "doc_type"); v != "" {
		if t := strings.ToLower(strings.TrimSpace(v)); documentTypes[t] {
			out.DocumentType = t
		}
	}

	if c, ok := numberField(obj, "confidence"); ok {
		out.Confidence = clamp01(c)
	}

	if v := stringField(obj, "suggested_form", "suggestedForm"); v != "" {
		if f := strings.ToLower(strings.TrimSpace(v)); suggestedForms[f] {
			out.SuggestedForm = f
		}
	}

	for k, v := range objectField(obj, "extracted_fields", "extractedFields", "extracted_data", "fields") {
		if v == nil {
			continue // null entries are dropped, never the string "null"
		}
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		out.ExtractedFields[key] = strings.TrimSpace(stringify(v))
	}

	return out
}

func stringField(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func numberField(obj map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func objectField(obj map[string]interface{}, keys ...string) map[string]interface{} {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if m, ok := v.(map[string]interface{}); ok {
				return m
			}
		}
	}
	return nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
