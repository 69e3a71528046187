// Package export renders processed documents as XLSX workbooks or CSV.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/forms"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/store"
)

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// Service turns a document and its stored results into downloadable bytes.
type Service struct {
	forms  *forms.Registry
	logger *zap.Logger
}

func NewService(registry *forms.Registry, logger *zap.Logger) *Service {
	return &Service{forms: registry, logger: logger}
}

// Export renders the document in the requested format and returns the bytes
// together with the matching content type.
func (s *Service) Export(doc *store.Document, format string) ([]byte, string, error) {
	switch format {
	case FormatXLSX:
		data, err := s.DocumentXLSX(doc)
		return data, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", err
	case FormatCSV:
		data, err := s.DocumentCSV(doc)
		return data, "text/csv", err
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
}

// DocumentXLSX returns a workbook with a Summary sheet for the document and
// its latest results, and a Fields sheet with the extracted fields in the
// form's canonical order.
func (s *Service) DocumentXLSX(doc *store.Document) ([]byte, error) {
	start := time.Now()
	extraction := latestExtraction(doc)
	analysis := latestAnalysis(doc)
	fields, err := analysisFields(analysis)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	write := func(sheet string, col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	row := 1
	pair := func(key string, value any) {
		write(summary, 1, row, key)
		write(summary, 2, row, value)
		row++
	}

	pair("Document", doc.Filename)
	pair("Uploaded", doc.CreatedAt.Format(time.RFC3339))
	pair("Status", doc.Status)
	pair("Source", doc.Source)
	if extraction != nil {
		row++
		pair("OCR Provider", extraction.ProviderID)
		pair("OCR Confidence", fmt.Sprintf("%.2f", extraction.Confidence))
		pair("Processing Time (ms)", extraction.ProcessingTimeMs)
		pair("Text Preview", truncate(extraction.Text, 200))
	}
	if analysis != nil {
		row++
		pair("Analysis Provider", analysis.ProviderID)
		pair("Document Type", analysis.DocumentType)
		pair("Analysis Confidence", fmt.Sprintf("%.2f", analysis.Confidence))
		formTitle := analysis.SuggestedForm
		if form, ok := s.forms.Get(analysis.SuggestedForm); ok {
			formTitle = form.Title
		}
		pair("Suggested Form", formTitle)
	}

	cell, _ := excelize.CoordinatesToCellName(1, 1)
	end, _ := excelize.CoordinatesToCellName(1, row)
	_ = f.SetCellStyle(summary, cell, end, headerStyle)
	_ = f.SetColWidth(summary, "A", "A", 24)
	_ = f.SetColWidth(summary, "B", "B", 60)

	const sheet = "Fields"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}
	write(sheet, 1, 1, "Field")
	write(sheet, 2, 1, "Value")
	headerEnd, _ := excelize.CoordinatesToCellName(2, 1)
	_ = f.SetCellStyle(sheet, "A1", headerEnd, headerStyle)

	labels := fieldLabels(s.forms, analysis)
	fieldRow := 2
	for _, key := range s.orderedColumns(analysis, fields) {
		label := key
		if l, ok := labels[key]; ok {
			label = l
		}
		write(sheet, 1, fieldRow, label)
		write(sheet, 2, fieldRow, fields[key])
		fieldRow++
	}
	_ = f.SetColWidth(sheet, "A", "A", 28)
	_ = f.SetColWidth(sheet, "B", "B", 60)

	index, _ := f.GetSheetIndex(summary)
	f.SetActiveSheet(index)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("Exported document",
		zap.String("document_id", doc.ID),
		zap.String("format", FormatXLSX),
		zap.Int("fields", len(fields)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return buf.Bytes(), nil
}

// DocumentCSV returns a single-record CSV: document metadata columns first,
// then one column per extracted field in the form's canonical order.
func (s *Service) DocumentCSV(doc *store.Document) ([]byte, error) {
	analysis := latestAnalysis(doc)
	fields, err := analysisFields(analysis)
	if err != nil {
		return nil, err
	}
	columns := s.orderedColumns(analysis, fields)

	docType, suggestedForm := "", ""
	if analysis != nil {
		docType = analysis.DocumentType
		suggestedForm = analysis.SuggestedForm
	}

	header := append([]string{"document", "document_type", "suggested_form"}, columns...)
	record := []string{doc.Filename, docType, suggestedForm}
	for _, key := range columns {
		record = append(record, fields[key])
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("csv write: %w", err)
	}
	if err := w.Write(record); err != nil {
		return nil, fmt.Errorf("csv write: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv write: %w", err)
	}

	s.logger.Info("Exported document",
		zap.String("document_id", doc.ID),
		zap.String("format", FormatCSV),
		zap.Int("fields", len(fields)))
	return buf.Bytes(), nil
}

// Filename returns a download filename for the document in the given format.
func Filename(doc *store.Document, format string) string {
	stem := strings.TrimSuffix(doc.Filename, filepath.Ext(doc.Filename))
	stem = sanitize(stem)
	if stem == "" {
		stem = doc.ID
	}
	return fmt.Sprintf("%s_%s.%s", stem, doc.CreatedAt.Format("20060102"), format)
}

func (s *Service) orderedColumns(analysis *store.Analysis, fields map[string]string) []string {
	formID := ""
	if analysis != nil {
		formID = analysis.SuggestedForm
	}
	return s.forms.OrderedColumns(formID, fields)
}

func latestExtraction(doc *store.Document) *store.Extraction {
	if len(doc.Extractions) == 0 {
		return nil
	}
	return &doc.Extractions[0]
}

func latestAnalysis(doc *store.Document) *store.Analysis {
	if len(doc.Analyses) == 0 {
		return nil
	}
	return &doc.Analyses[0]
}

func analysisFields(analysis *store.Analysis) (map[string]string, error) {
	fields := map[string]string{}
	if analysis == nil || len(analysis.ExtractedFields) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(analysis.ExtractedFields, &fields); err != nil {
		return nil, fmt.Errorf("decode extracted fields: %w", err)
	}
	return fields, nil
}

func fieldLabels(registry *forms.Registry, analysis *store.Analysis) map[string]string {
	labels := map[string]string{}
	if analysis == nil {
		return labels
	}
	form, ok := registry.Get(analysis.SuggestedForm)
	if !ok {
		return labels
	}
	for _, field := range form.Fields {
		labels[field.Key] = field.Label
	}
	return labels
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
