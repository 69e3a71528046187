// Package batch runs many documents through the processing pipeline with
// bounded concurrency and request rate limiting.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/ai"
)

// Pipeline is the slice of the document service the processor needs.
type Pipeline interface {
	ProcessDocument(ctx context.Context, in ai.ExtractInput) (*ai.ProcessResponse, error)
}

// Config controls batch concurrency and throughput.
type Config struct {
	MaxConcurrency    int
	ItemTimeout       time.Duration
	RequestsPerMinute int
	Burst             int
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 3,
		ItemTimeout:    60 * time.Second,
	}
}

// InputItem is one document to process.
type InputItem struct {
	ID                string `json:"id,omitempty"`
	Filename          string `json:"filename,omitempty"`
	ImageDataURL      string `json:"image_data_url"`
	PreferredProvider string `json:"preferred_provider,omitempty"`
}

// OutputItem is the outcome for one document.
type OutputItem struct {
	ID                 string            `json:"id"`
	Filename           string            `json:"filename,omitempty"`
	ProviderID         string            `json:"provider_id,omitempty"`
	Text               string            `json:"text,omitempty"`
	TextConfidence     float64           `json:"text_confidence,omitempty"`
	DocumentType       string            `json:"document_type,omitempty"`
	SuggestedForm      string            `json:"suggested_form,omitempty"`
	Fields             map[string]string `json:"fields,omitempty"`
	AnalysisConfidence float64           `json:"analysis_confidence,omitempty"`
	ElapsedMs          int64             `json:"elapsed_ms"`
	Success            bool              `json:"success"`
	Error              string            `json:"error,omitempty"`
	Timestamp          time.Time         `json:"timestamp"`
}

// Result aggregates a whole batch run.
type Result struct {
	Total     int           `json:"total"`
	Success   int           `json:"success"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	Items     []OutputItem  `json:"items"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
}

func (r *Result) Summary() string {
	var sb strings.Builder
	sb.WriteString("=== Batch Summary ===\n")
	sb.WriteString(fmt.Sprintf("Total:    %d\n", r.Total))
	sb.WriteString(fmt.Sprintf("Success:  %d\n", r.Success))
	sb.WriteString(fmt.Sprintf("Failed:   %d\n", r.Failed))
	sb.WriteString(fmt.Sprintf("Duration: %v\n", r.Duration.Round(time.Millisecond)))
	return sb.String()
}

func (r *Result) ToJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Processor fans items out to a worker pool over the pipeline.
type Processor struct {
	pipeline Pipeline
	config   Config
	limiter  *rate.Limiter
	logger   *zap.Logger

	// OnItem, when set before Process is called, receives every finished
	// item together with the running completion count.
	OnItem func(completed, total int, item OutputItem)
}

func NewProcessor(pipeline Pipeline, cfg Config, logger *zap.Logger) *Processor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	p := &Processor{
		pipeline: pipeline,
		config:   cfg,
		logger:   logger,
	}
	if cfg.RequestsPerMinute > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
	}
	return p
}

// Process runs all items and returns the aggregated result. Item order in
// the result follows completion, not submission.
func (p *Processor) Process(ctx context.Context, items []InputItem) *Result {
	result := &Result{
		Total:     len(items),
		StartTime: time.Now(),
		Items:     make([]OutputItem, 0, len(items)),
	}
	if len(items) == 0 {
		result.EndTime = result.StartTime
		return result
	}

	concurrency := p.config.MaxConcurrency
	if concurrency > len(items) {
		concurrency = len(items)
	}

	p.logger.Info("Starting batch",
		zap.Int("total_items", len(items)),
		zap.Int("concurrency", concurrency),
		zap.Int("rpm_limit", p.config.RequestsPerMinute))

	progress := &ProgressTracker{Total: len(items), StartTime: result.StartTime}
	itemsChan := make(chan InputItem, len(items))
	resultsChan := make(chan OutputItem, len(items))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, itemsChan, resultsChan)
		}()
	}

	for _, item := range items {
		itemsChan <- item
	}
	close(itemsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for output := range resultsChan {
		result.Items = append(result.Items, output)
		if output.Success {
			result.Success++
		} else {
			result.Failed++
		}
		completed := progress.Increment()
		if p.OnItem != nil {
			p.OnItem(completed, result.Total, output)
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	p.logger.Info("Batch complete",
		zap.Int("total", result.Total),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))
	return result
}

func (p *Processor) worker(ctx context.Context, items <-chan InputItem, results chan<- OutputItem) {
	for item := range items {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				results <- OutputItem{
					ID:        item.ID,
					Filename:  item.Filename,
					Error:     fmt.Sprintf("rate limit wait: %v", err),
					Timestamp: time.Now(),
				}
				continue
			}
		}
		results <- p.processItem(ctx, item)
	}
}

func (p *Processor) processItem(ctx context.Context, item InputItem) OutputItem {
	output := OutputItem{
		ID:        item.ID,
		Filename:  item.Filename,
		Timestamp: time.Now(),
	}
	if strings.TrimSpace(item.ImageDataURL) == "" {
		output.Error = "missing image payload"
		return output
	}

	itemCtx := ctx
	if p.config.ItemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, p.config.ItemTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.pipeline.ProcessDocument(itemCtx, ai.ExtractInput{
		ImageDataURL:      item.ImageDataURL,
		PreferredProvider: item.PreferredProvider,
	})
	output.ElapsedMs = time.Since(start).Milliseconds()

	if err != nil {
		output.Error = err.Error()
		return output
	}

	output.Success = true
	output.ProviderID = resp.Analyze.ProviderID
	output.Text = resp.Extract.OCR.Text
	output.TextConfidence = resp.Extract.OCR.Confidence
	output.DocumentType = resp.Analyze.Analysis.DocumentType
	output.SuggestedForm = resp.Analyze.Analysis.SuggestedForm
	output.Fields = resp.Analyze.Analysis.ExtractedFields
	output.AnalysisConfidence = resp.Analyze.Analysis.Confidence
	return output
}

// ProgressTracker tracks live batch completion.
type ProgressTracker struct {
	Total     int
	Completed int
	StartTime time.Time
	mu        sync.RWMutex
}

// Increment advances the counter and returns the new completed count.
func (p *ProgressTracker) Increment() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Completed++
	return p.Completed
}

func (p *ProgressTracker) Percent() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total) * 100
}

func (p *ProgressTracker) Elapsed() time.Duration {
	return time.Since(p.StartTime)
}

func (p *ProgressTracker) ETA() time.Duration {
	p.mu.RLock()
	completed := p.Completed
	total := p.Total
	p.mu.RUnlock()

	if completed == 0 {
		return 0
	}
	elapsed := p.Elapsed()
	perItem := float64(completed) / elapsed.Seconds()
	remaining := float64(total-completed) / perItem
	return time.Duration(remaining) * time.Second
}

var imageMimeByExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// LoadItems reads batch input from a JSON array or JSONL file.
func LoadItems(path string) ([]InputItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch input: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	var items []InputItem
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode batch input: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		for dec.More() {
			var item InputItem
			if err := dec.Decode(&item); err != nil {
				return nil, fmt.Errorf("decode batch input: %w", err)
			}
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("batch input %s has no items", path)
	}

	for i := range items {
		if items[i].ID == "" {
			items[i].ID = fmt.Sprintf("item-%d", i+1)
		}
	}
	return items, nil
}

// LoadDirectory builds batch input from the image files in a directory.
func LoadDirectory(dir string) ([]InputItem, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read batch directory: %w", err)
	}

	var items []InputItem
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		mime, ok := imageMimeByExt[strings.ToLower(filepath.Ext(entry.Name()))]
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		img := ai.Image{MimeType: mime, Data: data}
		items = append(items, InputItem{
			ID:           fmt.Sprintf("item-%d", len(items)+1),
			Filename:     entry.Name(),
			ImageDataURL: img.DataURL(),
		})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no image files in %s", dir)
	}
	return items, nil
}
