// Package store persists terminal run records. The orchestration core does
// not mandate persistence; a RunStore is an optional sink the run supervisor
// writes to when a run reaches a terminal status. The transcript's ordered
// message sequence is the serialization unit.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/planloop/planloop/core"
)

// ErrRunNotFound is returned when looking up an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Record is the archived form of one finished run.
type Record struct {
	RunID       string            `json:"run_id"`
	Status      core.RunStatus    `json:"status"`
	Iterations  int               `json:"iterations"`
	FinalAnswer string            `json:"final_answer,omitempty"`
	ErrorKind   string            `json:"error_kind,omitempty"`
	Messages    []core.Message    `json:"messages"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// RunStore archives terminal runs and serves them back for inspection.
type RunStore interface {
	// Save persists the record, replacing any previous record with the same
	// run ID.
	Save(ctx context.Context, rec *Record) error

	// Get returns the record for runID or ErrRunNotFound.
	Get(ctx context.Context, runID string) (*Record, error)

	// List returns up to limit records ordered by FinishedAt descending.
	// limit <= 0 means no limit.
	List(ctx context.Context, limit int) ([]*Record, error)

	// Delete removes the record for runID. Deleting an absent run is not an
	// error.
	Delete(ctx context.Context, runID string) error
}
