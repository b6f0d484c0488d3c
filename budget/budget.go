// Package budget keeps a run's transcript within the model's usable input
// size. A Manager watches token and message counts after each loop iteration
// and, when a configured trigger fires, collapses the condensable transcript
// prefix into a single synthetic summary message produced by a Condenser.
//
// The manager runs strictly between iterations, never concurrently with an
// in-flight model or capability call, so it can treat transcript indices as
// stable for the duration of one check.
package budget

import (
	"context"
	"fmt"

	"github.com/planloop/planloop/core"
	"github.com/planloop/planloop/logging"
)

// Mode selects how multiple trigger thresholds combine.
type Mode string

const (
	// ModeOR fires when any configured threshold is reached.
	ModeOR Mode = "OR"
	// ModeAND fires only when every configured threshold is reached.
	ModeAND Mode = "AND"
)

// Trigger is the condition under which condensation runs. A zero threshold
// means "not configured" and is ignored; a trigger with no configured
// thresholds never fires.
type Trigger struct {
	// Tokens is the estimated token count at or above which the trigger
	// fires, measured with Transcript.EstimateSize.
	Tokens int
	// Messages is the message count at or above which the trigger fires.
	Messages int
	// Mode combines the thresholds; defaults to ModeOR.
	Mode Mode
}

// Fired evaluates the trigger against the current transcript measurements.
func (tr Trigger) Fired(tokens, messages int) bool {
	tokensHit := tr.Tokens > 0 && tokens >= tr.Tokens
	messagesHit := tr.Messages > 0 && messages >= tr.Messages

	if tr.Mode == ModeAND {
		if tr.Tokens > 0 && !tokensHit {
			return false
		}
		if tr.Messages > 0 && !messagesHit {
			return false
		}
		return tr.Tokens > 0 || tr.Messages > 0
	}
	return tokensHit || messagesHit
}

// Condenser produces a single summary text covering a message range. The
// typical implementation calls the model service; WindowCondenser is a
// deterministic fallback that needs no model.
type Condenser interface {
	Condense(ctx context.Context, messages []core.Message) (string, error)
}

// Options configures optional Manager behavior.
type Options struct {
	Logger logging.Logger
}

// Manager applies the condensation policy to one run's transcript.
type Manager struct {
	trigger   Trigger
	keepCount int
	condenser Condenser
	logger    logging.Logger
}

// NewManager constructs a budget manager. keepCount is the number of
// most-recent messages exempt from condensation; the leading system message
// is always exempt regardless of keepCount.
func NewManager(trigger Trigger, keepCount int, condenser Condenser, optFns ...func(o *Options)) *Manager {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, f := range optFns {
		f(&opts)
	}
	if keepCount < 0 {
		keepCount = 0
	}
	return &Manager{
		trigger:   trigger,
		keepCount: keepCount,
		condenser: condenser,
		logger:    opts.Logger,
	}
}

// Check runs the budget policy once and reports whether condensation
// happened.
//
// Failure policy: a failing condensation pass (or a range still holding an
// unanswered capability call) is logged and skipped for this iteration; the
// check simply runs again after the next iteration. An empty condensable
// prefix is a no-op, not an error.
func (m *Manager) Check(ctx context.Context, t *core.Transcript) bool {
	tokens := t.EstimateSize()
	messages := t.Len()
	if !m.trigger.Fired(tokens, messages) {
		return false
	}

	rendered := t.Render()
	start := 0
	if len(rendered) > 0 && rendered[0].Role == core.RoleSystem {
		start = 1
	}
	end := len(rendered) - m.keepCount
	// Condensing fewer than two messages cannot shrink the transcript and
	// would only re-summarize an earlier summary.
	if end-start < 2 {
		return false
	}

	if !t.RangeAnswered(start, end) {
		m.logger.Debug("budget.condense.deferred", "reason", "pending capability call in range", "start", start, "end", end)
		return false
	}

	summaryText, err := m.condenser.Condense(ctx, rendered[start:end])
	if err != nil {
		m.logger.Warn("budget.condense.failed", "error", err.Error(), "messages", end-start)
		return false
	}

	summary := core.NewSummaryMessage(summaryText)
	if err := t.CondenseRange(start, end, summary); err != nil {
		m.logger.Warn("budget.condense.failed", "error", err.Error())
		return false
	}

	m.logger.Info("budget.condense.complete",
		"condensed", end-start,
		"tokens_before", tokens,
		"tokens_after", t.EstimateSize(),
	)
	return true
}

// String describes the configured policy, mainly for logging.
func (m *Manager) String() string {
	return fmt.Sprintf("budget{tokens>=%d, messages>=%d, mode=%s, keep=%d}",
		m.trigger.Tokens, m.trigger.Messages, m.trigger.Mode, m.keepCount)
}
