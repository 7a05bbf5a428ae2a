package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ssciwr/afwizard/ports"
)

// Journal is an in-memory implementation of ports.Journal.
type Journal struct {
	mu    sync.Mutex
	runs  map[string]ports.Run
	order []string
	fail  bool
}

// NewJournal creates an in-memory journal.
func NewJournal() *Journal {
	return &Journal{runs: make(map[string]ports.Run)}
}

// FailWrites makes every write fail, for exercising the callers'
// journal-failures-are-not-fatal contract.
func (j *Journal) FailWrites() *Journal {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fail = true
	return j
}

// RecordRun stores a new run.
func (j *Journal) RecordRun(ctx context.Context, run ports.Run) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.fail {
		return fmt.Errorf("journal unavailable")
	}
	if _, ok := j.runs[run.ID]; ok {
		return fmt.Errorf("run %s already recorded", run.ID)
	}
	run.Segments = append([]ports.RunSegment(nil), run.Segments...)
	j.runs[run.ID] = run
	j.order = append(j.order, run.ID)
	return nil
}

// FinishRun closes a run with its final status.
func (j *Journal) FinishRun(ctx context.Context, id, status, message string, at time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.fail {
		return fmt.Errorf("journal unavailable")
	}
	run, ok := j.runs[id]
	if !ok {
		return fmt.Errorf("run %s not recorded", id)
	}
	run.Status = status
	run.Message = message
	run.FinishedAt = &at
	j.runs[id] = run
	return nil
}

// Runs returns the most recent runs, newest first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]ports.Run, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []ports.Run
	for i := len(j.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, j.runs[j.order[i]])
	}
	return out, nil
}

// Ensure interface compliance.
var _ ports.Journal = (*Journal)(nil)
