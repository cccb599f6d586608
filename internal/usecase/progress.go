package usecase

import (
	"sync"
	"time"
)

// RunState is the lifecycle stage of a backtest.
type RunState string

const (
	StateIdle     RunState = "idle"
	StateRunning  RunState = "running"
	StateFinished RunState = "finished"
	StateFailed   RunState = "failed"
)

// ProgressSnapshot is a point-in-time copy of a Progress.
type ProgressSnapshot struct {
	RunID      string     `json:"run_id,omitempty"`
	State      RunState   `json:"state"`
	Folds      int        `json:"folds"`
	Done       int        `json:"done"`
	LastFold   string     `json:"last_fold,omitempty"`
	Absent     int        `json:"absent_points"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Progress tracks a running backtest. It is written by the runner and read
// concurrently by the status endpoint.
type Progress struct {
	mu   sync.RWMutex
	snap ProgressSnapshot
	now  func() time.Time
}

func NewProgress() *Progress {
	return &Progress{snap: ProgressSnapshot{State: StateIdle}, now: time.Now}
}

func (p *Progress) start(runID string, folds int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.now()
	p.snap = ProgressSnapshot{RunID: runID, State: StateRunning, Folds: folds, StartedAt: &t}
}

func (p *Progress) advance(fold string, absent int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Done++
	p.snap.LastFold = fold
	p.snap.Absent = absent
}

func (p *Progress) finish(err error) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.now()
	p.snap.FinishedAt = &t
	p.snap.State = StateFinished
	if err != nil {
		p.snap.State = StateFailed
		p.snap.Error = err.Error()
	}
}

// Snapshot returns a copy safe to hand out.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}
