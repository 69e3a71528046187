package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/forms"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/store"
)

func testDocument(t *testing.T) *store.Document {
	t.Helper()
	fields, err := json.Marshal(map[string]string{
		"full_name":       "Jane Doe",
		"passport_number": "X1234567",
		"zebra":           "extra value",
	})
	require.NoError(t, err)

	return &store.Document{
		ID:        "doc-1",
		Filename:  "passport scan.png",
		Status:    store.StatusProcessed,
		Source:    "api",
		CreatedAt: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
		Extractions: []store.Extraction{{
			DocumentID:       "doc-1",
			ProviderID:       "ocrspace",
			Text:             "PASSPORT No. X1234567",
			Confidence:       0.95,
			ProcessingTimeMs: 740,
		}},
		Analyses: []store.Analysis{{
			DocumentID:      "doc-1",
			ProviderID:      "gemini",
			DocumentType:    "passport",
			Confidence:      0.9,
			SuggestedForm:   "visa_application",
			ExtractedFields: fields,
		}},
	}
}

func newTestService() *Service {
	return NewService(forms.NewRegistry(), zap.NewNop())
}

func TestDocumentCSV(t *testing.T) {
	svc := newTestService()
	doc := testDocument(t)

	data, err := svc.DocumentCSV(doc)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	header, record := records[0], records[1]
	assert.Equal(t, []string{"document", "document_type", "suggested_form"}, header[:3])
	assert.Equal(t, "full_name", header[3], "form columns come first in canonical order")
	assert.Equal(t, "passport_number", header[4])
	assert.Equal(t, "zebra", header[len(header)-1], "extras go last")

	assert.Equal(t, "passport scan.png", record[0])
	assert.Equal(t, "passport", record[1])
	assert.Equal(t, "visa_application", record[2])
	assert.Equal(t, "Jane Doe", record[3])
	assert.Equal(t, "extra value", record[len(record)-1])
}

func TestDocumentCSVWithoutAnalysis(t *testing.T) {
	svc := newTestService()
	doc := testDocument(t)
	doc.Analyses = nil

	data, err := svc.DocumentCSV(doc)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"document", "document_type", "suggested_form"}, records[0])
	assert.Equal(t, []string{"passport scan.png", "", ""}, records[1])
}

func TestDocumentXLSX(t *testing.T) {
	svc := newTestService()
	doc := testDocument(t)

	data, err := svc.DocumentXLSX(doc)
	require.NoError(t, err)

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()

	assert.ElementsMatch(t, []string{"Summary", "Fields"}, wb.GetSheetList())

	v, err := wb.GetCellValue("Summary", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Document", v)
	v, err = wb.GetCellValue("Summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "passport scan.png", v)

	rows, err := wb.GetRows("Summary")
	require.NoError(t, err)
	flat := map[string]string{}
	for _, row := range rows {
		if len(row) >= 2 {
			flat[row[0]] = row[1]
		}
	}
	assert.Equal(t, "ocrspace", flat["OCR Provider"])
	assert.Equal(t, "passport", flat["Document Type"])
	assert.Equal(t, "Visa Application", flat["Suggested Form"], "form id resolves to its title")

	fieldRows, err := wb.GetRows("Fields")
	require.NoError(t, err)
	require.NotEmpty(t, fieldRows)
	assert.Equal(t, []string{"Field", "Value"}, fieldRows[0][:2])
	assert.Equal(t, "Full Name", fieldRows[1][0], "known keys use the form label")
	assert.Equal(t, "Jane Doe", fieldRows[1][1])
	last := fieldRows[len(fieldRows)-1]
	assert.Equal(t, "zebra", last[0], "unknown keys keep their raw name")
}

func TestExport(t *testing.T) {
	svc := newTestService()
	doc := testDocument(t)

	data, contentType, err := svc.Export(doc, FormatXLSX)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Contains(t, contentType, "spreadsheetml")

	data, contentType, err = svc.Export(doc, FormatCSV)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, "text/csv", contentType)

	_, _, err = svc.Export(doc, "pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported export format")
}

func TestFilename(t *testing.T) {
	doc := testDocument(t)
	assert.Equal(t, "passport_scan_20260825.xlsx", Filename(doc, FormatXLSX))

	doc.Filename = "???.png"
	assert.Equal(t, "____20260825.csv", Filename(doc, FormatCSV))

	doc.Filename = ""
	assert.Equal(t, "doc-1_20260825.csv", Filename(doc, FormatCSV))
}
