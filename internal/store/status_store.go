package store

import (
	"context"
	"time"

	"github.com/nao1215/yieldpage/internal/model"
)

// RunState is the lifecycle state of a crawl run.
type RunState string

const (
	// StateRunning means workers are still crawling.
	StateRunning RunState = "running"
	// StateCompleted means the frontier was exhausted.
	StateCompleted RunState = "completed"
	// StateCancelled means the run was interrupted by a signal or timeout.
	StateCancelled RunState = "cancelled"
	// StateFailed means the run could not start or finish.
	StateFailed RunState = "failed"
)

// RunStatus is the externally visible progress of a run.
type RunStatus struct {
	RunID     string    `json:"run_id"`
	Seeds     []string  `json:"seeds"`
	State     RunState  `json:"state"`
	Claimed   int       `json:"claimed"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Retries   int       `json:"retries"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusFromSummary builds a status from a (possibly partial) run summary.
func StatusFromSummary(summary model.Summary, state RunState, now time.Time) RunStatus {
	return RunStatus{
		RunID:     summary.RunID,
		Seeds:     summary.Seeds,
		State:     state,
		Claimed:   summary.Claimed,
		Completed: summary.Completed,
		Failed:    summary.Failed,
		Skipped:   summary.Skipped(),
		Retries:   summary.Retries,
		StartedAt: summary.StartedAt,
		UpdatedAt: now,
	}
}

// FinalState returns the state a finished run ends in.
func FinalState(summary *model.Summary) RunState {
	if summary.Interrupted {
		return StateCancelled
	}
	return StateCompleted
}

// StatusStore persists crawl run status.
type StatusStore interface {
	SetStatus(ctx context.Context, status RunStatus) error
	GetStatus(ctx context.Context, runID string) (RunStatus, bool, error)
}
