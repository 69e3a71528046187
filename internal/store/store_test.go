package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/ai"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.Storage.DataDir = dir
	cfg.Storage.SQLitePath = filepath.Join(dir, "test.db")
	cfg.Storage.BadgerPath = filepath.Join(dir, "badger")

	st, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestDocumentLifecycle(t *testing.T) {
	st := newTestStore(t)

	doc := &Document{Filename: "passport.png", MimeType: "image/png", SizeBytes: 2048}
	require.NoError(t, st.CreateDocument(doc))
	assert.NotEmpty(t, doc.ID, "BeforeCreate assigns a uuid")
	assert.Equal(t, StatusPending, doc.Status)
	assert.Equal(t, "api", doc.Source)

	got, err := st.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "passport.png", got.Filename)

	docs, err := st.ListDocuments(10, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	count, err := st.CountDocuments()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, st.UpdateDocumentStatus(doc.ID, StatusFailed, "all providers failed"))
	got, err = st.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "all providers failed", got.Error)

	deleted, err := st.DeleteDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, deleted.ID)

	_, err = st.GetDocument(doc.ID)
	assert.Error(t, err)
}

func TestDocumentResults(t *testing.T) {
	st := newTestStore(t)

	doc := &Document{Filename: "visa.jpg"}
	require.NoError(t, st.CreateDocument(doc))

	older := time.Now().Add(-time.Hour)
	require.NoError(t, st.CreateExtraction(&Extraction{
		DocumentID: doc.ID,
		ProviderID: "ocrspace",
		Text:       "first pass",
		Confidence: 0.6,
		CreatedAt:  older,
	}))
	require.NoError(t, st.CreateExtraction(&Extraction{
		DocumentID: doc.ID,
		ProviderID: "gemini",
		Text:       "second pass",
		Confidence: 0.9,
	}))
	require.NoError(t, st.CreateAnalysis(&Analysis{
		DocumentID:    doc.ID,
		ProviderID:    "gemini",
		DocumentType:  "visa",
		Confidence:    0.88,
		SuggestedForm: "visa_application",
	}))

	latest, err := st.LatestExtraction(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "second pass", latest.Text)
	assert.Equal(t, "gemini", latest.ProviderID)

	full, err := st.GetDocumentWithResults(doc.ID)
	require.NoError(t, err)
	require.Len(t, full.Extractions, 2)
	assert.Equal(t, "second pass", full.Extractions[0].Text, "newest first")
	require.Len(t, full.Analyses, 1)
	assert.Equal(t, "visa", full.Analyses[0].DocumentType)
}

func TestRecordPipelineResults(t *testing.T) {
	st := newTestStore(t)

	doc := &Document{Filename: "statement.png"}
	require.NoError(t, st.CreateDocument(doc))

	ext, err := st.RecordExtraction(doc.ID, &ai.ExtractResponse{
		OCR:        &ai.OCRResult{Text: "BANK STATEMENT", Confidence: 0.9, ProcessingTimeMs: 120},
		ProviderID: "ocrspace",
		LatencyMs:  340,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ext.ID)

	an, err := st.RecordAnalysis(doc.ID, &ai.AnalyzeResponse{
		Analysis: &ai.DocumentAnalysis{
			DocumentType:    "financial",
			Confidence:      0.8,
			SuggestedForm:   "bank_statement",
			ExtractedFields: map[string]string{"account_number": "123"},
		},
		ProviderID: "gemini",
		LatencyMs:  900,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, an.ID)

	got, err := st.GetDocumentWithResults(doc.ID)
	require.NoError(t, err)
	require.Len(t, got.Extractions, 1)
	assert.Equal(t, "BANK STATEMENT", got.Extractions[0].Text)
	assert.Equal(t, int64(340), got.Extractions[0].LatencyMs)
	require.Len(t, got.Analyses, 1)
	assert.Equal(t, "bank_statement", got.Analyses[0].SuggestedForm)
	assert.JSONEq(t, `{"account_number":"123"}`, string(got.Analyses[0].ExtractedFields))
}

func TestAnalysisFieldsNeverNull(t *testing.T) {
	st := newTestStore(t)

	doc := &Document{Filename: "blank.png"}
	require.NoError(t, st.CreateDocument(doc))

	an := &Analysis{DocumentID: doc.ID, ProviderID: "gemini", DocumentType: "other"}
	require.NoError(t, st.CreateAnalysis(an))

	got, err := st.LatestAnalysis(doc.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got.ExtractedFields))
}

func TestBatchJobLifecycle(t *testing.T) {
	st := newTestStore(t)

	job := &BatchJob{TotalItems: 4}
	require.NoError(t, st.CreateBatchJob(job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatusPending, job.Status)

	now := time.Now()
	job.Status = "running"
	job.StartedAt = &now
	job.Processed = 2
	job.Succeeded = 1
	job.Failed = 1
	require.NoError(t, st.UpdateBatchJob(job))

	got, err := st.GetBatchJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, 2, got.Processed)

	jobs, err := st.ListBatchJobs(10, 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestPurgeDocumentsBefore(t *testing.T) {
	st := newTestStore(t)

	old := &Document{Filename: "old.png", CreatedAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, st.CreateDocument(old))
	require.NoError(t, st.CreateExtraction(&Extraction{DocumentID: old.ID, ProviderID: "ocrspace", Text: "stale"}))

	fresh := &Document{Filename: "fresh.png"}
	require.NoError(t, st.CreateDocument(fresh))

	purged, err := st.PurgeDocumentsBefore(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, purged, 1)
	assert.Equal(t, old.ID, purged[0].ID)

	_, err = st.GetDocument(old.ID)
	assert.Error(t, err, "purged document is gone")
	_, err = st.LatestExtraction(old.ID)
	assert.Error(t, err, "purged document's extractions are gone")

	_, err = st.GetDocument(fresh.ID)
	assert.NoError(t, err, "recent document survives")

	purged, err = st.PurgeDocumentsBefore(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Empty(t, purged, "second sweep finds nothing")
}

func TestCache(t *testing.T) {
	st := newTestStore(t)
	cache := st.Cache()

	_, ok := cache.Get("missing")
	assert.False(t, ok)

	require.NoError(t, cache.Set("extract:abc", []byte(`{"text":"hello"}`), time.Hour))
	val, ok := cache.Get("extract:abc")
	require.True(t, ok)
	assert.Equal(t, `{"text":"hello"}`, string(val))
}

func TestCacheTTL(t *testing.T) {
	if testing.Short() {
		t.Skip("TTL expiry needs a real clock")
	}
	st := newTestStore(t)
	cache := st.Cache()

	require.NoError(t, cache.Set("ephemeral", []byte("x"), time.Second))
	_, ok := cache.Get("ephemeral")
	require.True(t, ok)

	time.Sleep(2100 * time.Millisecond)
	_, ok = cache.Get("ephemeral")
	assert.False(t, ok, "entry expired")
}

func TestKV(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetKV("absent")
	assert.Error(t, err)

	require.NoError(t, st.SetKV("providers:availability", []byte(`[{"id":"gemini"}]`)))
	val, err := st.GetKV("providers:availability")
	require.NoError(t, err)
	assert.Contains(t, string(val), "gemini")
}

func TestRunValueLogGC(t *testing.T) {
	st := newTestStore(t)

	rewritten, err := st.RunValueLogGC()
	require.NoError(t, err)
	assert.False(t, rewritten, "fresh value log has nothing to collect")
}
