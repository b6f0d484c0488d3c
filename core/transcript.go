package core

import (
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"
)

// ErrInvalidTranscriptState is returned when an append or condensation would
// break a transcript invariant. It signals a programming error in the caller,
// not a recoverable runtime condition.
var ErrInvalidTranscriptState = errors.New("invalid transcript state")

// Transcript is the ordered, append-only message log for one run. Insertion
// order is conversation order and is never reordered; the only bulk mutation
// is CondenseRange, which collapses a contiguous range into a single summary
// message while preserving relative order of everything else.
//
// A transcript is owned by exactly one active run. Methods are nevertheless
// mutex-guarded so callers may inspect a run's transcript (Render, Len)
// while the run is in flight.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
	pending  map[string]CapabilityCall // unanswered calls by ID
}

// NewTranscript creates a transcript seeded with the given messages.
// Seeding follows the same invariant checks as Append.
func NewTranscript(initial ...Message) (*Transcript, error) {
	t := &Transcript{pending: make(map[string]CapabilityCall)}
	for _, m := range initial {
		if err := t.Append(m); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Append adds a message to the end of the transcript.
//
// It fails with ErrInvalidTranscriptState if:
//   - a non-assistant message carries capability calls
//   - a capability-result message has no CallRef, or its CallRef does not
//     match an outstanding (unanswered) call
//   - an assistant message repeats a call ID that is already outstanding
func (t *Transcript) Append(m Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m.Role != RoleAssistant && len(m.CapabilityCalls) > 0 {
		return fmt.Errorf("%w: capability calls on %q message", ErrInvalidTranscriptState, m.Role)
	}

	switch m.Role {
	case RoleCapabilityResult:
		if m.CallRef == "" {
			return fmt.Errorf("%w: capability-result without call ref", ErrInvalidTranscriptState)
		}
		if _, ok := t.pending[m.CallRef]; !ok {
			return fmt.Errorf("%w: no outstanding call %q", ErrInvalidTranscriptState, m.CallRef)
		}
		delete(t.pending, m.CallRef)
	case RoleAssistant:
		for _, c := range m.CapabilityCalls {
			if c.ID == "" {
				return fmt.Errorf("%w: capability call without id", ErrInvalidTranscriptState)
			}
			if _, ok := t.pending[c.ID]; ok {
				return fmt.Errorf("%w: duplicate outstanding call %q", ErrInvalidTranscriptState, c.ID)
			}
			t.pending[c.ID] = c
		}
	}

	t.messages = append(t.messages, m)
	return nil
}

// Render returns the ordered view passed to the model service. The returned
// slice is a copy; it never truncates silently (truncation is an explicit
// operation owned by the budget manager).
func (t *Transcript) Render() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the current message count.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// HasPendingCalls reports whether any capability call is still unanswered.
func (t *Transcript) HasPendingCalls() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pending) > 0
}

// PendingCallIDs returns the IDs of unanswered calls in unspecified order.
func (t *Transcript) PendingCallIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.pending))
	for id := range t.pending {
		ids = append(ids, id)
	}
	return ids
}

// EstimateSize returns an opaque token-equivalent size measure used for
// budget decisions. The heuristic (runes/4 plus a small per-message
// overhead) intentionally over-counts short messages; budget thresholds
// should be calibrated against the same estimator.
func (t *Transcript) EstimateSize() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	for _, m := range t.messages {
		total += estimateTokens(m.Content) + 4
		for _, c := range m.CapabilityCalls {
			total += estimateTokens(c.Name) + estimateTokens(c.ArgumentsJSON())
		}
	}
	return total
}

func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (utf8.RuneCountInString(s) + 3) / 4
}

// CondenseRange atomically replaces messages[start:end] with the given
// summary message, preserving everything outside the range in original
// relative order. The caller (the budget manager) chooses start so the
// leading system message stays out of the range.
//
// It fails with ErrInvalidTranscriptState if the range is out of bounds or
// if a capability call inside the range is not answered inside the same
// range; condensing such a range would orphan the pending call or its
// result.
func (t *Transcript) CondenseRange(start, end int, summary Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if start < 0 || end > len(t.messages) || start >= end {
		return fmt.Errorf("%w: condense range [%d,%d) of %d messages", ErrInvalidTranscriptState, start, end, len(t.messages))
	}

	answered := make(map[string]bool)
	for _, m := range t.messages[start:end] {
		if m.Role == RoleCapabilityResult {
			answered[m.CallRef] = true
		}
	}
	for _, m := range t.messages[start:end] {
		for _, c := range m.CapabilityCalls {
			if !answered[c.ID] {
				return fmt.Errorf("%w: call %q not answered inside condense range", ErrInvalidTranscriptState, c.ID)
			}
		}
	}

	replaced := make([]Message, 0, len(t.messages)-(end-start)+1)
	replaced = append(replaced, t.messages[:start]...)
	replaced = append(replaced, summary)
	replaced = append(replaced, t.messages[end:]...)
	t.messages = replaced
	return nil
}

// RangeAnswered reports whether every capability call inside
// messages[start:end) is answered inside the same range. The budget manager
// uses this to defer condensation instead of orphaning a pending call.
func (t *Transcript) RangeAnswered(start, end int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if start < 0 || end > len(t.messages) || start >= end {
		return true
	}
	answered := make(map[string]bool)
	for _, m := range t.messages[start:end] {
		if m.Role == RoleCapabilityResult {
			answered[m.CallRef] = true
		}
	}
	for _, m := range t.messages[start:end] {
		for _, c := range m.CapabilityCalls {
			if !answered[c.ID] {
				return false
			}
		}
	}
	return true
}
