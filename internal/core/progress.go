package core

import (
	"sync"
	"time"
)

// CollectionStats counts processed records for one collection.
type CollectionStats struct {
	Name      string `json:"name"`
	Processed int    `json:"processed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// RunStatus is a point-in-time snapshot of a run.
type RunStatus struct {
	RunID       string            `json:"runId"`
	Mode        Mode              `json:"mode"`
	StartedAt   time.Time         `json:"startedAt"`
	Current     string            `json:"current,omitempty"`
	Collections []CollectionStats `json:"collections"`
	Finished    bool              `json:"finished"`
	Error       string            `json:"error,omitempty"`
}

// Progress tracks run state. Safe for concurrent readers such as the status server.
type Progress struct {
	mu     sync.RWMutex
	status RunStatus
	index  map[string]int
}

// NewProgress creates a tracker for a run.
func NewProgress(runID string, mode Mode) *Progress {
	return &Progress{
		status: RunStatus{RunID: runID, Mode: mode, StartedAt: time.Now()},
		index:  make(map[string]int),
	}
}

// Begin marks a collection as the one being processed.
func (p *Progress) Begin(collection string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Current = collection
	p.statsLocked(collection)
}

// Observe counts one processed record.
func (p *Progress) Observe(collection string, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.statsLocked(collection)
	s.Processed++
	if success {
		s.Succeeded++
	} else {
		s.Failed++
	}
}

// Failed returns the failure count for a collection.
func (p *Progress) Failed(collection string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i, ok := p.index[collection]; ok {
		return p.status.Collections[i].Failed
	}
	return 0
}

// Finish marks the run as done, recording the terminating error if any.
func (p *Progress) Finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Current = ""
	p.status.Finished = true
	if err != nil {
		p.status.Error = err.Error()
	}
}

// Snapshot returns a copy of the current status.
func (p *Progress) Snapshot() RunStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := p.status
	out.Collections = append([]CollectionStats(nil), p.status.Collections...)
	return out
}

func (p *Progress) statsLocked(collection string) *CollectionStats {
	i, ok := p.index[collection]
	if !ok {
		p.status.Collections = append(p.status.Collections, CollectionStats{Name: collection})
		i = len(p.status.Collections) - 1
		p.index[collection] = i
	}
	return &p.status.Collections[i]
}
