package batch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/ai"
)

type fakePipeline struct {
	mu      sync.Mutex
	calls   int
	active  int
	maxSeen int
	delay   time.Duration
}

func (f *fakePipeline) ProcessDocument(ctx context.Context, in ai.ExtractInput) (*ai.ProcessResponse, error) {
	f.mu.Lock()
	f.calls++
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	img, err := ai.ParseDataURL(in.ImageDataURL)
	if err != nil {
		return nil, err
	}
	if strings.Contains(string(img.Data), "fail") {
		return nil, ai.NewProviderError(ai.FailureTransientNetwork, "gemini", "boom")
	}

	return &ai.ProcessResponse{
		Extract: ai.ExtractResponse{
			OCR:        &ai.OCRResult{Text: "PASSPORT No. X1", Confidence: 0.95, ProcessingTimeMs: 10},
			ProviderID: "ocrspace",
		},
		Analyze: ai.AnalyzeResponse{
			Analysis: &ai.DocumentAnalysis{
				DocumentType:    "passport",
				Confidence:      0.9,
				SuggestedForm:   "visa_application",
				ExtractedFields: map[string]string{"full_name": "Jane Doe"},
			},
			ProviderID: "gemini",
		},
	}, nil
}

func testItem(id, payload string) InputItem {
	img := ai.Image{MimeType: "image/png", Data: []byte(payload)}
	return InputItem{ID: id, Filename: id + ".png", ImageDataURL: img.DataURL()}
}

func TestProcess(t *testing.T) {
	pipeline := &fakePipeline{}
	p := NewProcessor(pipeline, DefaultConfig(), zap.NewNop())

	var mu sync.Mutex
	var seen []int
	p.OnItem = func(completed, total int, item OutputItem) {
		mu.Lock()
		seen = append(seen, completed)
		mu.Unlock()
		if total != 4 {
			t.Errorf("Expected total 4, got %d", total)
		}
	}

	items := []InputItem{
		testItem("a", "ok"),
		testItem("b", "ok"),
		testItem("c", "fail please"),
		testItem("d", "ok"),
	}
	result := p.Process(context.Background(), items)

	if result.Total != 4 {
		t.Errorf("Expected Total 4, got %d", result.Total)
	}
	if result.Success != 3 {
		t.Errorf("Expected Success 3, got %d", result.Success)
	}
	if result.Failed != 1 {
		t.Errorf("Expected Failed 1, got %d", result.Failed)
	}
	if len(result.Items) != 4 {
		t.Fatalf("Expected 4 items, got %d", len(result.Items))
	}
	if len(seen) != 4 {
		t.Fatalf("Expected 4 progress calls, got %d", len(seen))
	}
	if seen[len(seen)-1] != 4 {
		t.Errorf("Expected final completed count 4, got %d", seen[len(seen)-1])
	}

	for _, item := range result.Items {
		if item.ID == "c" {
			if item.Success {
				t.Error("Item c should have failed")
			}
			if !strings.Contains(item.Error, "boom") {
				t.Errorf("Expected provider error in message, got %q", item.Error)
			}
			continue
		}
		if !item.Success {
			t.Errorf("Item %s should have succeeded: %s", item.ID, item.Error)
		}
		if item.Text != "PASSPORT No. X1" {
			t.Errorf("Item %s text = %q", item.ID, item.Text)
		}
		if item.DocumentType != "passport" || item.SuggestedForm != "visa_application" {
			t.Errorf("Item %s analysis not populated: %+v", item.ID, item)
		}
		if item.Fields["full_name"] != "Jane Doe" {
			t.Errorf("Item %s fields not populated", item.ID)
		}
	}
}

func TestProcess_ConcurrencyCap(t *testing.T) {
	pipeline := &fakePipeline{delay: 30 * time.Millisecond}
	cfg := DefaultConfig()
	cfg.MaxConcurrency = 2
	p := NewProcessor(pipeline, cfg, zap.NewNop())

	items := make([]InputItem, 6)
	for i := range items {
		items[i] = testItem(string(rune('a'+i)), "ok")
	}
	result := p.Process(context.Background(), items)

	if result.Success != 6 {
		t.Errorf("Expected 6 successes, got %d", result.Success)
	}
	if pipeline.calls != 6 {
		t.Errorf("Expected 6 pipeline calls, got %d", pipeline.calls)
	}
	if pipeline.maxSeen > 2 {
		t.Errorf("Concurrency cap exceeded: saw %d in flight", pipeline.maxSeen)
	}
}

func TestProcess_MissingPayload(t *testing.T) {
	pipeline := &fakePipeline{}
	p := NewProcessor(pipeline, DefaultConfig(), zap.NewNop())

	result := p.Process(context.Background(), []InputItem{{ID: "empty"}})

	if result.Failed != 1 {
		t.Errorf("Expected 1 failure, got %d", result.Failed)
	}
	if result.Items[0].Error != "missing image payload" {
		t.Errorf("Unexpected error: %q", result.Items[0].Error)
	}
	if pipeline.calls != 0 {
		t.Errorf("Pipeline should not be called, got %d calls", pipeline.calls)
	}
}

func TestProcess_NoItems(t *testing.T) {
	p := NewProcessor(&fakePipeline{}, DefaultConfig(), zap.NewNop())
	result := p.Process(context.Background(), nil)

	if result.Total != 0 || result.Success != 0 || result.Failed != 0 {
		t.Errorf("Expected empty result, got %+v", result)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxConcurrency != 3 {
		t.Errorf("Expected MaxConcurrency 3, got %d", cfg.MaxConcurrency)
	}
	if cfg.ItemTimeout != 60*time.Second {
		t.Errorf("Expected ItemTimeout 60s, got %v", cfg.ItemTimeout)
	}
}

func TestNewProcessor_ClampsConcurrency(t *testing.T) {
	p := NewProcessor(&fakePipeline{}, Config{MaxConcurrency: 0}, zap.NewNop())
	if p.config.MaxConcurrency != 1 {
		t.Errorf("Expected MaxConcurrency clamped to 1, got %d", p.config.MaxConcurrency)
	}
}

func TestLoadItems_Array(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.json")
	content := `[{"id": "1", "image_data_url": "data:image/png;base64,AAAA"},
{"image_data_url": "data:image/png;base64,BBBB"}]`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	items, err := LoadItems(path)
	if err != nil {
		t.Fatalf("LoadItems failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[0].ID != "1" {
		t.Errorf("Expected ID 1, got %s", items[0].ID)
	}
	if items[1].ID != "item-2" {
		t.Errorf("Expected generated ID item-2, got %s", items[1].ID)
	}
}

func TestLoadItems_JSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.jsonl")
	content := `{"id": "first", "image_data_url": "data:image/png;base64,AAAA"}
{"id": "second", "image_data_url": "data:image/png;base64,BBBB"}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	items, err := LoadItems(path)
	if err != nil {
		t.Fatalf("LoadItems failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[1].ID != "second" {
		t.Errorf("Expected ID second, got %s", items[1].ID)
	}
}

func TestLoadItems_Errors(t *testing.T) {
	if _, err := LoadItems("/nonexistent/items.json"); err == nil {
		t.Error("Should fail with nonexistent file")
	}

	empty := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(empty, []byte("  \n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadItems(empty); err == nil {
		t.Error("Should fail with empty input")
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string][]byte{
		"a.png":      []byte("png bytes"),
		"b.JPG":      []byte("jpg bytes"),
		"notes.txt":  []byte("not an image"),
		"c.unwanted": []byte("skipped"),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	items, err := LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 image items, got %d", len(items))
	}
	if items[0].Filename != "a.png" {
		t.Errorf("Expected a.png first, got %s", items[0].Filename)
	}

	img, err := ai.ParseDataURL(items[0].ImageDataURL)
	if err != nil {
		t.Fatalf("Data URL does not round-trip: %v", err)
	}
	if string(img.Data) != "png bytes" {
		t.Errorf("Payload mismatch: %q", img.Data)
	}
	if img.MimeType != "image/png" {
		t.Errorf("Expected image/png, got %s", img.MimeType)
	}
}

func TestLoadDirectory_NoImages(t *testing.T) {
	if _, err := LoadDirectory(t.TempDir()); err == nil {
		t.Error("Should fail when directory has no images")
	}
}

func TestResult_Summary(t *testing.T) {
	result := &Result{
		Total:    10,
		Success:  8,
		Failed:   2,
		Duration: 5 * time.Second,
	}

	summary := result.Summary()
	for _, check := range []string{"Total:", "Success:", "Failed:", "Duration:"} {
		if !strings.Contains(summary, check) {
			t.Errorf("Summary missing: %s", check)
		}
	}
}

func TestResult_ToJSON(t *testing.T) {
	result := &Result{
		Total:   2,
		Success: 1,
		Failed:  1,
		Items:   []OutputItem{{ID: "test-1", Success: true}},
	}

	out, err := result.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	if !strings.Contains(out, `"test-1"`) {
		t.Error("JSON should contain item IDs")
	}
}

func TestProgressTracker(t *testing.T) {
	p := &ProgressTracker{Total: 4, StartTime: time.Now()}

	if eta := p.ETA(); eta != 0 {
		t.Errorf("ETA with nothing completed should be 0, got %v", eta)
	}
	if got := p.Increment(); got != 1 {
		t.Errorf("Expected 1, got %d", got)
	}
	if got := p.Increment(); got != 2 {
		t.Errorf("Expected 2, got %d", got)
	}
	if pct := p.Percent(); pct != 50 {
		t.Errorf("Expected 50%%, got %v", pct)
	}
	if eta := p.ETA(); eta < 0 {
		t.Errorf("ETA should not be negative, got %v", eta)
	}
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	p := &ProgressTracker{}
	if pct := p.Percent(); pct != 0 {
		t.Errorf("Expected 0%%, got %v", pct)
	}
}
