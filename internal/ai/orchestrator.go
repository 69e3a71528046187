package ai

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Orchestrator walks the provider ladder for a capability. Candidates run
// in priority order, each gets a full retry cycle, and any failure at all
// advances to the next candidate.
type Orchestrator struct {
	providers []Provider
	retry     RetryPolicy
	logger    *zap.Logger
}

// NewOrchestrator creates an orchestrator over the given providers.
func NewOrchestrator(providers []Provider, retry RetryPolicy, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		providers: providers,
		retry:     retry,
		logger:    logger,
	}
}

// Resolution reports which provider won, how long it took, and what every
// candidate that ran did.
type Resolution struct {
	ProviderID string
	LatencyMs  int64
	OCR        *OCRResult
	Analysis   *DocumentAnalysis
	Outcomes   []Outcome
}

// ExtractText runs the extraction ladder over img.
func (o *Orchestrator) ExtractText(ctx context.Context, img Image, preferred string) (*Resolution, error) {
	var winner *OCRResult
	res, err := o.resolve(ctx, CapabilityExtractText, preferred, func(ctx context.Context, p Provider) error {
		out, err := p.ExtractText(ctx, img)
		if err != nil {
			return err
		}
		winner = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.OCR = winner
	return res, nil
}

// AnalyzeDocument runs the analysis ladder over text.
func (o *Orchestrator) AnalyzeDocument(ctx context.Context, text string, preferred string) (*Resolution, error) {
	var winner *DocumentAnalysis
	res, err := o.resolve(ctx, CapabilityAnalyzeDocument, preferred, func(ctx context.Context, p Provider) error {
		out, err := p.AnalyzeDocument(ctx, text)
		if err != nil {
			return err
		}
		winner = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Analysis = winner
	return res, nil
}

func (o *Orchestrator) resolve(ctx context.Context, cap Capability, preferred string, attempt func(context.Context, Provider) error) (*Resolution, error) {
	candidates := o.candidates(cap, preferred)
	outcomes := make([]Outcome, 0, len(candidates))

	for i, p := range candidates {
		desc := p.Descriptor()

		start := time.Now()
		err := o.retry.Do(ctx, o.logger, func(ctx context.Context) error {
			return attempt(ctx, p)
		})
		latency := time.Since(start).Milliseconds()

		if err == nil {
			outcomes = append(outcomes, Outcome{
				ProviderID: desc.ID,
				Capability: cap,
				Succeeded:  true,
				LatencyMs:  latency,
			})
			if i > 0 {
				o.logger.Info("Failover successful",
					zap.String("provider", desc.ID),
					zap.String("capability", string(cap)),
					zap.Int("position", i+1))
			}
			return &Resolution{
				ProviderID: desc.ID,
				LatencyMs:  latency,
				Outcomes:   outcomes,
			}, nil
		}

		class := ClassOf(err)
		outcomes = append(outcomes, Outcome{
			ProviderID: desc.ID,
			Capability: cap,
			Succeeded:  false,
			LatencyMs:  latency,
			Failure:    class,
			Message:    err.Error(),
		})
		o.logger.Warn("Provider failed, trying next",
			zap.String("provider", desc.ID),
			zap.String("capability", string(cap)),
			zap.String("class", string(class)),
			zap.Error(err))

		// A document every engine would read as empty stays empty; do
		// not burn the rest of the ladder on it.
		if cap == CapabilityExtractText && class == FailureNoUsableContent {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	return nil, &ExhaustedError{Capability: cap, Outcomes: outcomes}
}

// candidates filters providers by capability, orders them by priority, and
// moves the preferred provider (when set and eligible) to the front.
func (o *Orchestrator) candidates(cap Capability, preferred string) []Provider {
	eligible := make([]Provider, 0, len(o.providers))
	for _, p := range o.providers {
		if p.Descriptor().Supports(cap) {
			eligible = append(eligible, p)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Descriptor().Priority < eligible[j].Descriptor().Priority
	})

	if preferred != "" {
		for i, p := range eligible {
			if p.Descriptor().ID != preferred {
				continue
			}
			reordered := make([]Provider, 0, len(eligible))
			reordered = append(reordered, p)
			reordered = append(reordered, eligible[:i]...)
			reordered = append(reordered, eligible[i+1:]...)
			return reordered
		}
	}
	return eligible
}
