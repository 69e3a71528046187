package api

import (
	"sync"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/batch"
)

// progressEvent is one update pushed to batch watchers.
type progressEvent struct {
	Type      string            `json:"type"` // item, done
	JobID     string            `json:"job_id"`
	Completed int               `json:"completed"`
	Total     int               `json:"total"`
	Item      *batch.OutputItem `json:"item,omitempty"`
}

// progressHub fans batch progress out to websocket subscribers keyed by job.
type progressHub struct {
	mu   sync.RWMutex
	subs map[string]map[chan progressEvent]struct{}
}

func newProgressHub() *progressHub {
	return &progressHub{subs: make(map[string]map[chan progressEvent]struct{})}
}

func (h *progressHub) subscribe(jobID string) chan progressEvent {
	ch := make(chan progressEvent, 16)
	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan progressEvent]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *progressHub) unsubscribe(jobID string, ch chan progressEvent) {
	h.mu.Lock()
	if set, ok := h.subs[jobID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, jobID)
		}
	}
	h.mu.Unlock()
}

func (h *progressHub) publish(ev progressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.JobID] {
		select {
		case ch <- ev:
		default: // a stalled subscriber misses the event rather than blocking the batch
		}
	}
}
