package batch

import (
	"sync"
	"time"
)

// Progress is a snapshot of the running (or last) job.
type Progress struct {
	Job       string    `json:"job"`
	RunID     string    `json:"run_id"`
	Running   bool      `json:"running"`
	Total     int       `json:"total"`
	Done      int       `json:"done"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"started_at"`
}

// Tracker is shared by every job of a process so the status endpoint can
// report on whichever is running. A nil *Tracker is valid and records
// nothing.
type Tracker struct {
	mu sync.Mutex
	p  Progress
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) Start(job, runID string, total int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p = Progress{Job: job, RunID: runID, Running: true, Total: total, StartedAt: time.Now().UTC()}
}

// UnitDone records one finished unit.
func (t *Tracker) UnitDone(failed bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.Done++
	if failed {
		t.p.Failed++
	}
}

func (t *Tracker) Finish() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.Running = false
}

func (t *Tracker) Snapshot() Progress {
	if t == nil {
		return Progress{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.p
}
