package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

// Document represents an ingested document image
type Document struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Filename    string    `json:"filename"`
	MimeType    string    `json:"mime_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StoragePath string    `json:"-"`
	Source      string    `json:"source"` // api, telegram, capture, batch, cli
	Status      string    `json:"status"` // pending, processing, processed, failed
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relationships
	Extractions []Extraction `json:"extractions,omitempty" gorm:"foreignKey:DocumentID"`
	Analyses    []Analysis   `json:"analyses,omitempty" gorm:"foreignKey:DocumentID"`
}

// Extraction represents one OCR pass over a document
type Extraction struct {
	ID               string    `gorm:"primaryKey" json:"id"`
	DocumentID       string    `gorm:"index:idx_extraction_doc" json:"document_id"`
	ProviderID       string    `json:"provider_id"`
	Text             string    `json:"text" gorm:"type:text"`
	Confidence       float64   `json:"confidence"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	LatencyMs        int64     `json:"latency_ms"`
	CreatedAt        time.Time `gorm:"index:idx_extraction_doc" json:"created_at"`
}

// Analysis represents one classification pass over a document's text
type Analysis struct {
	ID              string          `gorm:"primaryKey" json:"id"`
	DocumentID      string          `gorm:"index:idx_analysis_doc" json:"document_id"`
	ProviderID      string          `json:"provider_id"`
	DocumentType    string          `json:"document_type"`
	Confidence      float64         `json:"confidence"`
	SuggestedForm   string          `json:"suggested_form"`
	ExtractedFields json.RawMessage `json:"extracted_fields" gorm:"type:text"`
	LatencyMs       int64           `json:"latency_ms"`
	CreatedAt       time.Time       `gorm:"index:idx_analysis_doc" json:"created_at"`
}

// BatchJob represents a multi-document processing run
type BatchJob struct {
	ID          string          `gorm:"primaryKey" json:"id"`
	Status      string          `json:"status"` // pending, running, completed, failed
	TotalItems  int             `json:"total_items"`
	Processed   int             `json:"processed"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
	Error       string          `json:"error,omitempty"`
	Results     json.RawMessage `json:"results,omitempty" gorm:"type:text"`
	StartedAt   *time.Time      `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// BeforeCreate hook for Document
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	if d.Source == "" {
		d.Source = "api"
	}
	return nil
}

// BeforeCreate hook for Extraction
func (e *Extraction) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// BeforeCreate hook for Analysis
func (a *Analysis) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if len(a.ExtractedFields) == 0 {
		a.ExtractedFields = json.RawMessage(`{}`)
	}
	return nil
}

// BeforeCreate hook for BatchJob
func (b *BatchJob) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = StatusPending
	}
	return nil
}

// ToJSON converts struct to JSON bytes
func ToJSON(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// FromJSON parses JSON bytes into struct
func FromJSON(data json.RawMessage, v interface{}) error {
	return json.Unmarshal(data, v)
}
