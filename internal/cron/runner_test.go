package cron

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/ai"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/config"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/store"
)

type stubProvider struct {
	id        string
	priority  int
	available bool
}

func (p *stubProvider) Descriptor() ai.Descriptor {
	return ai.Descriptor{
		ID:           p.id,
		Priority:     p.priority,
		Capabilities: []ai.Capability{ai.CapabilityExtractText, ai.CapabilityAnalyzeDocument},
	}
}

func (p *stubProvider) IsAvailable(ctx context.Context) bool { return p.available }

func (p *stubProvider) ExtractText(ctx context.Context, img ai.Image) (*ai.OCRResult, error) {
	return &ai.OCRResult{Text: "stub", Confidence: 1}, nil
}

func (p *stubProvider) AnalyzeDocument(ctx context.Context, text string) (*ai.DocumentAnalysis, error) {
	return &ai.DocumentAnalysis{
		DocumentType:    ai.DocTypeOther,
		SuggestedForm:   ai.FormPersonalInformation,
		ExtractedFields: map[string]string{},
	}, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.Storage.DataDir = dir
	cfg.Storage.SQLitePath = filepath.Join(dir, "test.db")
	cfg.Storage.BadgerPath = filepath.Join(dir, "badger")

	st, err := store.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestRunner(t *testing.T, st *store.Store, retentionDays int) *Runner {
	t.Helper()
	svc := ai.NewService(ai.ServiceConfig{}, []ai.Provider{
		&stubProvider{id: "ocrspace", priority: 1, available: true},
		&stubProvider{id: "gemini", priority: 2, available: false},
	}, nil, zap.NewNop())

	cfg := config.MaintenanceConfig{
		Enabled:              true,
		RetentionSchedule:    "0 3 * * *",
		AvailabilitySchedule: "*/5 * * * *",
		GCSchedule:           "30 4 * * *",
	}
	return NewRunner(cfg, retentionDays, svc, st, zap.NewNop())
}

func TestStartStop(t *testing.T) {
	st := newTestStore(t)
	r := newTestRunner(t, st, 30)

	require.NoError(t, r.Start())
	assert.True(t, r.IsRunning())

	assert.Error(t, r.Start(), "second start should fail")

	r.Stop()
	assert.False(t, r.IsRunning())
	r.Stop() // idempotent
}

func TestStartDisabled(t *testing.T) {
	st := newTestStore(t)
	r := newTestRunner(t, st, 30)
	r.cfg.Enabled = false

	require.NoError(t, r.Start())
	assert.False(t, r.IsRunning())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	st := newTestStore(t)
	r := newTestRunner(t, st, 30)
	r.cfg.AvailabilitySchedule = "not a schedule"

	err := r.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "availability schedule")
	assert.False(t, r.IsRunning())
}

func TestSweepExpired(t *testing.T) {
	st := newTestStore(t)
	r := newTestRunner(t, st, 30)

	stored := filepath.Join(t.TempDir(), "old.png")
	require.NoError(t, os.WriteFile(stored, []byte("png"), 0o644))

	old := &store.Document{Filename: "old.png", StoragePath: stored}
	require.NoError(t, st.CreateDocument(old))
	backdated := time.Now().AddDate(0, 0, -45)
	require.NoError(t, st.DB().Model(&store.Document{}).
		Where("id = ?", old.ID).Update("created_at", backdated).Error)

	fresh := &store.Document{Filename: "fresh.png"}
	require.NoError(t, st.CreateDocument(fresh))

	r.sweepExpired()

	_, err := st.GetDocument(old.ID)
	assert.Error(t, err, "expired document should be purged")
	_, err = st.GetDocument(fresh.ID)
	assert.NoError(t, err, "recent document should survive")

	_, err = os.Stat(stored)
	assert.True(t, os.IsNotExist(err), "stored file should be unlinked")
}

func TestRefreshAvailability(t *testing.T) {
	st := newTestStore(t)
	r := newTestRunner(t, st, 30)

	r.refreshAvailability()

	payload, err := st.GetKV(AvailabilityKey)
	require.NoError(t, err)

	var statuses []ai.ProviderStatus
	require.NoError(t, json.Unmarshal(payload, &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, "ocrspace", statuses[0].ID)
	assert.True(t, statuses[0].Available)
	assert.False(t, statuses[1].Available)
}

func TestRunBadgerGC(t *testing.T) {
	st := newTestStore(t)
	r := newTestRunner(t, st, 30)

	// Nothing to rewrite on a fresh store; the job must still complete
	r.runBadgerGC()
}
