package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/Qualiasolutions/ai-document-processor-sub001/internal/errors"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/metrics"
)

// ResultCache stores serialized pipeline results keyed by content hash.
// The badger-backed store implements it; tests use in-memory fakes.
type ResultCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
}

// ServiceConfig tunes the pipeline front door.
type ServiceConfig struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	RequestsPerMinute int
	BreakerFailures   uint32
	BreakerCooldown   time.Duration
	CacheTTL          time.Duration
	MaxImageBytes     int
}

func (c *ServiceConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 60
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.MaxImageBytes <= 0 {
		c.MaxImageBytes = 10 << 20
	}
}

// Service is the document pipeline entry point: it validates input, consults
// the cache, and hands the provider ladder to the orchestrator.
type Service struct {
	cfg          ServiceConfig
	orchestrator *Orchestrator
	providers    []Provider
	cache        ResultCache
	logger       *zap.Logger
}

// NewService wraps each provider in a rate limiter and circuit breaker and
// builds the orchestrator over the guarded set.
func NewService(cfg ServiceConfig, providers []Provider, cache ResultCache, logger *zap.Logger) *Service {
	cfg.applyDefaults()
	if cache == nil {
		cache = noopCache{}
	}

	guardedProviders := make([]Provider, 0, len(providers))
	for _, p := range providers {
		guardedProviders = append(guardedProviders, newGuarded(p, cfg, logger))
	}

	retry := RetryPolicy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.BaseDelay}
	return &Service{
		cfg:          cfg,
		orchestrator: NewOrchestrator(guardedProviders, retry, logger),
		providers:    guardedProviders,
		cache:        cache,
		logger:       logger,
	}
}

// ExtractResponse is the service-level result of a text extraction.
type ExtractResponse struct {
	OCR        *OCRResult `json:"ocr"`
	ProviderID string     `json:"provider_id"`
	LatencyMs  int64      `json:"latency_ms"`
	Cached     bool       `json:"cached,omitempty"`
	Outcomes   []Outcome  `json:"outcomes,omitempty"`
}

// AnalyzeResponse is the service-level result of a document analysis.
type AnalyzeResponse struct {
	Analysis   *DocumentAnalysis `json:"analysis"`
	ProviderID string            `json:"provider_id"`
	LatencyMs  int64             `json:"latency_ms"`
	Cached     bool              `json:"cached,omitempty"`
	Outcomes   []Outcome         `json:"outcomes,omitempty"`
}

// ProcessResponse is the combined extract-then-analyze result.
type ProcessResponse struct {
	Extract ExtractResponse `json:"extract"`
	Analyze AnalyzeResponse `json:"analyze"`
}

// ProviderStatus pairs a provider descriptor with a liveness probe result.
type ProviderStatus struct {
	Descriptor
	Available bool `json:"available"`
}

// ExtractText validates the image payload and runs the extraction ladder.
func (s *Service) ExtractText(ctx context.Context, in ExtractInput) (*ExtractResponse, error) {
	img, err := ParseDataURL(in.ImageDataURL)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrUnsupportedFormat.Code, "invalid image payload")
	}
	if len(img.Data) > s.cfg.MaxImageBytes {
		return nil, apperrors.ErrDocumentTooLarge
	}

	key := cacheKey("extract", in.PreferredProvider, img.Data)
	if cached, ok := s.cacheGet(key); ok {
		var resp ExtractResponse
		if err := json.Unmarshal(cached, &resp); err == nil {
			resp.Cached = true
			return &resp, nil
		}
	}

	res, err := s.orchestrator.ExtractText(ctx, img, in.PreferredProvider)
	if err != nil {
		s.recordExhaustion(err)
		return nil, err
	}
	metrics.RecordResolution(string(CapabilityExtractText), res.ProviderID, res.LatencyMs)

	resp := &ExtractResponse{
		OCR:        res.OCR,
		ProviderID: res.ProviderID,
		LatencyMs:  res.LatencyMs,
		Outcomes:   res.Outcomes,
	}
	s.cacheSet(key, resp)
	return resp, nil
}

// AnalyzeDocument validates the text and runs the analysis ladder.
func (s *Service) AnalyzeDocument(ctx context.Context, in AnalyzeInput) (*AnalyzeResponse, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, apperrors.ErrDocumentEmpty
	}

	key := cacheKey("analyze", in.PreferredProvider, []byte(text))
	if cached, ok := s.cacheGet(key); ok {
		var resp AnalyzeResponse
		if err := json.Unmarshal(cached, &resp); err == nil {
			resp.Cached = true
			return &resp, nil
		}
	}

	res, err := s.orchestrator.AnalyzeDocument(ctx, text, in.PreferredProvider)
	if err != nil {
		s.recordExhaustion(err)
		return nil, err
	}
	metrics.RecordResolution(string(CapabilityAnalyzeDocument), res.ProviderID, res.LatencyMs)

	resp := &AnalyzeResponse{
		Analysis:   res.Analysis,
		ProviderID: res.ProviderID,
		LatencyMs:  res.LatencyMs,
		Outcomes:   res.Outcomes,
	}
	s.cacheSet(key, resp)
	return resp, nil
}

// ProcessDocument runs the full pipeline: extraction first, then analysis
// of the extracted text. The preferred provider applies to both stages.
func (s *Service) ProcessDocument(ctx context.Context, in ExtractInput) (*ProcessResponse, error) {
	extract, err := s.ExtractText(ctx, in)
	if err != nil {
		return nil, err
	}

	analyze, err := s.AnalyzeDocument(ctx, AnalyzeInput{
		Text:              extract.OCR.Text,
		PreferredProvider: in.PreferredProvider,
	})
	if err != nil {
		return nil, err
	}

	return &ProcessResponse{Extract: *extract, Analyze: *analyze}, nil
}

// Providers lists the configured provider descriptors in priority order.
func (s *Service) Providers() []Descriptor {
	descs := make([]Descriptor, 0, len(s.providers))
	for _, p := range s.providers {
		descs = append(descs, p.Descriptor())
	}
	return descs
}

// ListProviderAvailability probes every provider concurrently.
func (s *Service) ListProviderAvailability(ctx context.Context) []ProviderStatus {
	statuses := make([]ProviderStatus, len(s.providers))

	var wg sync.WaitGroup
	for i, p := range s.providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			statuses[i] = ProviderStatus{
				Descriptor: p.Descriptor(),
				Available:  p.IsAvailable(probeCtx),
			}
		}(i, p)
	}
	wg.Wait()
	return statuses
}

func (s *Service) cacheGet(key string) ([]byte, bool) {
	value, ok := s.cache.Get(key)
	if ok {
		metrics.RecordCacheHit()
	} else {
		metrics.RecordCacheMiss()
	}
	return value, ok
}

func (s *Service) cacheSet(key string, resp interface{}) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.cache.Set(key, payload, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("Failed to cache result", zap.Error(err))
	}
}

func (s *Service) recordExhaustion(err error) {
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		return
	}
	for _, o := range exhausted.Outcomes {
		metrics.RecordProviderFailure(o.ProviderID, string(o.Failure))
	}
}

func cacheKey(capability, preferred string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(capability))
	h.Write([]byte{0})
	h.Write([]byte(preferred))
	h.Write([]byte{0})
	h.Write(payload)
	return capability + ":" + hex.EncodeToString(h.Sum(nil))
}

// guarded decorates a provider with a rate limiter and circuit breaker so
// one misbehaving upstream cannot drag the whole ladder down.
type guarded struct {
	inner   Provider
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[any]
}

var _ Provider = (*guarded)(nil)

func newGuarded(p Provider, cfg ServiceConfig, logger *zap.Logger) *guarded {
	id := p.Descriptor().ID
	settings := gobreaker.Settings{
		Name:    id,
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// Unreadable documents say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || ClassOf(err) == FailureNoUsableContent
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Provider circuit state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &guarded{
		inner:   p,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute),
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

func (g *guarded) Descriptor() Descriptor { return g.inner.Descriptor() }

func (g *guarded) IsAvailable(ctx context.Context) bool {
	return g.breaker.State() != gobreaker.StateOpen && g.inner.IsAvailable(ctx)
}

func (g *guarded) ExtractText(ctx context.Context, img Image) (*OCRResult, error) {
	out, err := g.execute(ctx, func() (any, error) {
		return g.inner.ExtractText(ctx, img)
	})
	if err != nil {
		return nil, err
	}
	return out.(*OCRResult), nil
}

func (g *guarded) AnalyzeDocument(ctx context.Context, text string) (*DocumentAnalysis, error) {
	out, err := g.execute(ctx, func() (any, error) {
		return g.inner.AnalyzeDocument(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return out.(*DocumentAnalysis), nil
}

func (g *guarded) execute(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, classifyTransportError(err, g.inner.Descriptor().ID)
	}
	out, err := g.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, NewProviderError(FailureTransientNetwork, g.inner.Descriptor().ID, "circuit open")
	}
	return out, err
}

type noopCache struct{}

func (noopCache) Get(string) ([]byte, bool)               { return nil, false }
func (noopCache) Set(string, []byte, time.Duration) error { return nil }
