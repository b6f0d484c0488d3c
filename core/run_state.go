package core

import "time"

// RunStatus is the lifecycle state of one run.
type RunStatus string

const (
	// RunStatusRunning means the orchestration loop is still iterating.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted means the planner produced a final answer.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed means a run-level error terminated the loop.
	RunStatusFailed RunStatus = "failed"
	// RunStatusCancelled means the caller requested cooperative cancellation.
	RunStatusCancelled RunStatus = "cancelled"
	// RunStatusTimedOut means the run-level deadline passed.
	RunStatusTimedOut RunStatus = "timed_out"
)

// Terminal reports whether the status will never change again.
func (s RunStatus) Terminal() bool { return s != RunStatusRunning }

// RunState is the per-execution record owned by the run supervisor. It is
// created at run start, mutated only by the owning loop, and archived when
// the status leaves running.
type RunState struct {
	RunID      string      `json:"run_id"`
	Transcript *Transcript `json:"-"`
	Iterations int         `json:"iterations"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitzero"`
	Status     RunStatus   `json:"status"`
}

// NewRunState creates a running state around the given transcript.
func NewRunState(transcript *Transcript) *RunState {
	return &RunState{
		RunID:      NewID(),
		Transcript: transcript,
		StartedAt:  time.Now().UTC(),
		Status:     RunStatusRunning,
	}
}
