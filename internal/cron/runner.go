// Package cron schedules recurring maintenance jobs
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/ai"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/config"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/store"
)

// AvailabilityKey is where the availability refresh job caches provider
// status for the API to serve without probing on every request.
const AvailabilityKey = "providers:availability"

// Runner manages scheduled maintenance execution
type Runner struct {
	cfg           config.MaintenanceConfig
	retentionDays int
	service       *ai.Service
	store         *store.Store
	logger        *zap.Logger
	cron          *cron.Cron
	mu            sync.RWMutex
	running       bool
}

// NewRunner creates a new maintenance runner
func NewRunner(cfg config.MaintenanceConfig, retentionDays int, service *ai.Service, st *store.Store, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:           cfg,
		retentionDays: retentionDays,
		service:       service,
		store:         st,
		logger:        logger,
	}
}

// Start registers the maintenance jobs and starts the scheduler
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.cfg.Enabled {
		r.logger.Info("Maintenance jobs disabled")
		return nil
	}
	if r.running {
		return fmt.Errorf("maintenance runner already running")
	}

	c := cron.New()

	if r.retentionDays > 0 {
		if _, err := c.AddFunc(r.cfg.RetentionSchedule, r.sweepExpired); err != nil {
			return fmt.Errorf("invalid retention schedule %q: %w", r.cfg.RetentionSchedule, err)
		}
	}
	if _, err := c.AddFunc(r.cfg.AvailabilitySchedule, r.refreshAvailability); err != nil {
		return fmt.Errorf("invalid availability schedule %q: %w", r.cfg.AvailabilitySchedule, err)
	}
	if _, err := c.AddFunc(r.cfg.GCSchedule, r.runBadgerGC); err != nil {
		return fmt.Errorf("invalid gc schedule %q: %w", r.cfg.GCSchedule, err)
	}

	// Prime the availability cache so the API has data before the first tick
	go r.refreshAvailability()

	c.Start()
	r.cron = c
	r.running = true
	r.logger.Info("Maintenance runner started",
		zap.String("retention", r.cfg.RetentionSchedule),
		zap.String("availability", r.cfg.AvailabilitySchedule),
		zap.String("gc", r.cfg.GCSchedule),
	)
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	c := r.cron
	r.mu.Unlock()

	<-c.Stop().Done()
	r.logger.Info("Maintenance runner stopped")
}

// IsRunning returns whether the runner is active
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// sweepExpired removes documents older than the retention window along with
// their stored files.
func (r *Runner) sweepExpired() {
	cutoff := time.Now().AddDate(0, 0, -r.retentionDays)

	docs, err := r.store.PurgeDocumentsBefore(cutoff)
	if err != nil {
		r.logger.Error("Retention sweep failed", zap.Error(err))
		return
	}

	unlinked := 0
	for _, doc := range docs {
		if doc.StoragePath == "" {
			continue
		}
		if err := os.Remove(doc.StoragePath); err != nil {
			if !os.IsNotExist(err) {
				r.logger.Warn("Failed to remove stored file",
					zap.String("document_id", doc.ID),
					zap.String("path", doc.StoragePath),
					zap.Error(err),
				)
			}
			continue
		}
		unlinked++
	}

	if len(docs) > 0 {
		r.logger.Info("Retention sweep complete",
			zap.Int("purged", len(docs)),
			zap.Int("files_removed", unlinked),
			zap.Time("cutoff", cutoff),
		)
	}
}

// refreshAvailability probes every provider and caches the result
func (r *Runner) refreshAvailability() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statuses := r.service.ListProviderAvailability(ctx)

	payload, err := json.Marshal(statuses)
	if err != nil {
		r.logger.Error("Failed to encode provider status", zap.Error(err))
		return
	}
	if err := r.store.SetKV(AvailabilityKey, payload); err != nil {
		r.logger.Error("Failed to cache provider status", zap.Error(err))
		return
	}

	available := 0
	for _, s := range statuses {
		if s.Available {
			available++
		}
	}
	r.logger.Debug("Provider availability refreshed",
		zap.Int("available", available),
		zap.Int("total", len(statuses)),
	)
}

// runBadgerGC reclaims space in the cache value log. Badger only rewrites one
// file per call, so loop until it reports nothing left to do.
func (r *Runner) runBadgerGC() {
	rewrites := 0
	for {
		rewritten, err := r.store.RunValueLogGC()
		if err != nil {
			r.logger.Error("Cache GC failed", zap.Error(err))
			return
		}
		if !rewritten {
			break
		}
		rewrites++
	}

	if rewrites > 0 {
		r.logger.Info("Cache GC complete", zap.Int("files_rewritten", rewrites))
	}
}
