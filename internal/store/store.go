package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/ai"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/config"
)

// Store provides unified access to SQLite and BadgerDB
type Store struct {
	db     *gorm.DB
	badger *badger.DB
	config *config.StorageConfig
}

// New creates a new Store instance
func New(cfg *config.Config) (*Store, error) {
	sqlitePath := cfg.Storage.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(cfg.Storage.DataDir, "docproc.db")
	}

	// Open SQLite with optimizations
	sqliteDB, err := sql.Open("sqlite", sqlitePath+"?_journal=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-64000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Configure connection pool
	sqliteDB.SetMaxOpenConns(10)
	sqliteDB.SetMaxIdleConns(5)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Auto-migrate schemas
	if err := db.AutoMigrate(
		&Document{},
		&Extraction{},
		&Analysis{},
		&BatchJob{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	badgerPath := cfg.Storage.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(cfg.Storage.DataDir, "badger")
	}

	// Open BadgerDB with optimizations
	badgerOpts := badger.DefaultOptions(badgerPath).
		WithLogger(nil). // Disable verbose logging
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20). // 16MB value log files
		WithMemTableSize(16 << 20)      // 16MB memtable

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Store{
		db:     db,
		badger: badgerDB,
		config: &cfg.Storage,
	}, nil
}

// Close closes all database connections
func (s *Store) Close() error {
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
	return s.badger.Close()
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Badger returns the BadgerDB instance
func (s *Store) Badger() *badger.DB {
	return s.badger
}

// ==================== Document Methods ====================

// CreateDocument creates a new document record
func (s *Store) CreateDocument(doc *Document) error {
	return s.db.Create(doc).Error
}

// GetDocument retrieves a document by ID
func (s *Store) GetDocument(id string) (*Document, error) {
	var doc Document
	if err := s.db.First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocumentWithResults retrieves a document with its extractions and analyses
func (s *Store) GetDocumentWithResults(id string) (*Document, error) {
	var doc Document
	err := s.db.
		Preload("Extractions", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		Preload("Analyses", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		First(&doc, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments lists documents with pagination, newest first
func (s *Store) ListDocuments(limit, offset int) ([]Document, error) {
	var docs []Document
	err := s.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&docs).Error
	return docs, err
}

// CountDocuments returns the total number of documents
func (s *Store) CountDocuments() (int64, error) {
	var count int64
	err := s.db.Model(&Document{}).Count(&count).Error
	return count, err
}

// UpdateDocumentStatus transitions a document and records the failure reason
func (s *Store) UpdateDocumentStatus(id, status, errMsg string) error {
	return s.db.Model(&Document{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "error": errMsg}).Error
}

// DeleteDocument removes a document and its results, returning the deleted
// record so the caller can unlink the stored file.
func (s *Store) DeleteDocument(id string) (*Document, error) {
	doc, err := s.GetDocument(id)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&Extraction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", id).Delete(&Analysis{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Document{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// PurgeDocumentsBefore removes documents created before the cutoff along with
// their results, returning the purged records so files can be unlinked.
func (s *Store) PurgeDocumentsBefore(cutoff time.Time) ([]Document, error) {
	var docs []Document
	if err := s.db.Where("created_at < ?", cutoff).Find(&docs).Error; err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id IN ?", ids).Delete(&Extraction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id IN ?", ids).Delete(&Analysis{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&Document{}).Error
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// ==================== Extraction Methods ====================

// CreateExtraction records an OCR result for a document
func (s *Store) CreateExtraction(ext *Extraction) error {
	return s.db.Create(ext).Error
}

// RecordExtraction stores a pipeline extraction result against a document
func (s *Store) RecordExtraction(documentID string, resp *ai.ExtractResponse) (*Extraction, error) {
	ext := &Extraction{
		DocumentID:       documentID,
		ProviderID:       resp.ProviderID,
		Text:             resp.OCR.Text,
		Confidence:       resp.OCR.Confidence,
		ProcessingTimeMs: resp.OCR.ProcessingTimeMs,
		LatencyMs:        resp.LatencyMs,
	}
	if err := s.db.Create(ext).Error; err != nil {
		return nil, err
	}
	return ext, nil
}

// LatestExtraction returns the most recent extraction for a document
func (s *Store) LatestExtraction(documentID string) (*Extraction, error) {
	var ext Extraction
	err := s.db.Where("document_id = ?", documentID).
		Order("created_at DESC").
		First(&ext).Error
	if err != nil {
		return nil, err
	}
	return &ext, nil
}

// ==================== Analysis Methods ====================

// CreateAnalysis records an analysis result for a document
func (s *Store) CreateAnalysis(an *Analysis) error {
	return s.db.Create(an).Error
}

// RecordAnalysis stores a pipeline analysis result against a document
func (s *Store) RecordAnalysis(documentID string, resp *ai.AnalyzeResponse) (*Analysis, error) {
	fields, err := json.Marshal(resp.Analysis.ExtractedFields)
	if err != nil {
		return nil, fmt.Errorf("encode extracted fields: %w", err)
	}
	an := &Analysis{
		DocumentID:      documentID,
		ProviderID:      resp.ProviderID,
		DocumentType:    resp.Analysis.DocumentType,
		Confidence:      resp.Analysis.Confidence,
		SuggestedForm:   resp.Analysis.SuggestedForm,
		ExtractedFields: fields,
		LatencyMs:       resp.LatencyMs,
	}
	if err := s.db.Create(an).Error; err != nil {
		return nil, err
	}
	return an, nil
}

// LatestAnalysis returns the most recent analysis for a document
func (s *Store) LatestAnalysis(documentID string) (*Analysis, error) {
	var an Analysis
	err := s.db.Where("document_id = ?", documentID).
		Order("created_at DESC").
		First(&an).Error
	if err != nil {
		return nil, err
	}
	return &an, nil
}

// ==================== Batch Job Methods ====================

// CreateBatchJob creates a new batch job record
func (s *Store) CreateBatchJob(job *BatchJob) error {
	return s.db.Create(job).Error
}

// GetBatchJob retrieves a batch job by ID
func (s *Store) GetBatchJob(id string) (*BatchJob, error) {
	var job BatchJob
	if err := s.db.First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateBatchJob updates a batch job
func (s *Store) UpdateBatchJob(job *BatchJob) error {
	return s.db.Save(job).Error
}

// ListBatchJobs lists batch jobs with pagination, newest first
func (s *Store) ListBatchJobs(limit, offset int) ([]BatchJob, error) {
	var jobs []BatchJob
	err := s.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&jobs).Error
	return jobs, err
}

// ==================== KV Methods (BadgerDB) ====================

// SetKV stores a key-value pair
func (s *Store) SetKV(key string, value []byte) error {
	return s.badger.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("kv:"+key), value)
	})
}

// GetKV retrieves a value by key
func (s *Store) GetKV(key string) ([]byte, error) {
	var val []byte
	err := s.badger.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("kv:" + key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte{}, v...)
			return nil
		})
	})
	return val, err
}

// ==================== Maintenance ====================

// RunValueLogGC runs one round of badger value log garbage collection.
// Returns false when there was nothing to rewrite.
func (s *Store) RunValueLogGC() (bool, error) {
	err := s.badger.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
