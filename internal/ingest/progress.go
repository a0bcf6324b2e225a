package ingest

import (
	"sync"
	"time"
)

// Phase indicates the current stage of a run.
type Phase string

const (
	PhaseStarting  Phase = "starting"
	PhaseReading   Phase = "reading"
	PhaseIngesting Phase = "ingesting"
	PhaseReporting Phase = "reporting"
	PhaseComplete  Phase = "complete"
	PhaseFailed    Phase = "failed"
)

// Progress is a snapshot of a run.
type Progress struct {
	RunID            string     `json:"run_id"`
	Source           string     `json:"source"`
	Phase            Phase      `json:"phase"`
	LinesAccepted    int        `json:"lines_accepted"`
	LinesDropped     int        `json:"lines_dropped"`
	BytesRead        int64      `json:"bytes_read"`
	PartitionsTotal  int        `json:"partitions_total"`
	PartitionsDone   int        `json:"partitions_done"`
	PartitionsFailed int        `json:"partitions_failed"`
	RecordsCommitted int        `json:"records_committed"`
	Slots            SlotStatus `json:"slots"`
	Error            string     `json:"error,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// Tracker records run progress. It is safe for concurrent use; a nil
// *Tracker ignores every update.
type Tracker struct {
	mu      sync.RWMutex
	p       Progress
	limiter *SlotLimiter
}

// NewTracker creates a tracker for the given run.
func NewTracker(runID, source string) *Tracker {
	return &Tracker{p: Progress{
		RunID:     runID,
		Source:    source,
		Phase:     PhaseStarting,
		StartedAt: time.Now(),
	}}
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Progress {
	if t == nil {
		return Progress{}
	}
	t.mu.RLock()
	p := t.p
	limiter := t.limiter
	t.mu.RUnlock()
	if limiter != nil {
		p.Slots = limiter.Status()
	}
	return p
}

func (t *Tracker) update(fn func(p *Progress)) {
	if t == nil {
		return
	}
	t.mu.Lock()
	fn(&t.p)
	t.mu.Unlock()
}

func (t *Tracker) setPhase(phase Phase) {
	t.update(func(p *Progress) { p.Phase = phase })
}

func (t *Tracker) partitioned(parts *Partitions, bytesRead int64) {
	t.update(func(p *Progress) {
		p.LinesAccepted = parts.Total
		p.LinesDropped = parts.Dropped
		p.BytesRead = bytesRead
		p.PartitionsTotal = parts.Len()
	})
}

func (t *Tracker) attach(l *SlotLimiter) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.limiter = l
	t.mu.Unlock()
}

func (t *Tracker) partitionDone(records int, err error) {
	t.update(func(p *Progress) {
		p.PartitionsDone++
		if err != nil {
			p.PartitionsFailed++
			return
		}
		p.RecordsCommitted += records
	})
}

func (t *Tracker) finish(err error) {
	t.update(func(p *Progress) {
		now := time.Now()
		p.FinishedAt = &now
		if err != nil {
			p.Phase = PhaseFailed
			p.Error = err.Error()
			return
		}
		p.Phase = PhaseComplete
	})
}
