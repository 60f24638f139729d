package orchestrator

import (
	"sync"
	"time"
)

// StrategyReport counts one strategy's outcomes within a cycle.
type StrategyReport struct {
	Evaluated int  `json:"evaluated"`
	Opened    int  `json:"opened"`
	Closed    int  `json:"closed"`
	Errored   int  `json:"errored"`
	Skipped   bool `json:"skipped,omitempty"`
}

// CycleReport is emitted per cycle for the logging/monitoring collaborator.
type CycleReport struct {
	Cycle      uint64                     `json:"cycle"`
	StartedAt  time.Time                  `json:"started_at"`
	Elapsed    time.Duration              `json:"elapsed"`
	DryRun     bool                       `json:"dry_run"`
	Overlapped bool                       `json:"overlapped,omitempty"`
	Expired    int                        `json:"expired"`
	Strategies map[string]*StrategyReport `json:"strategies"`

	mu sync.Mutex
}

func newCycleReport(cycle uint64, dryRun bool) *CycleReport {
	return &CycleReport{
		Cycle:      cycle,
		StartedAt:  time.Now().UTC(),
		DryRun:     dryRun,
		Strategies: make(map[string]*StrategyReport),
	}
}

// strategyReport returns the (created-on-demand) per-strategy slot. Safe
// for concurrent workers.
func (r *CycleReport) strategyReport(name string) *StrategyReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	sr, ok := r.Strategies[name]
	if !ok {
		sr = &StrategyReport{}
		r.Strategies[name] = sr
	}
	return sr
}

func (r *CycleReport) totals() (evaluated, opened, closed, errored int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sr := range r.Strategies {
		evaluated += sr.Evaluated
		opened += sr.Opened
		closed += sr.Closed
		errored += sr.Errored
	}
	return
}
