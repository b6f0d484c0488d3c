package budget

import (
	"context"
	"fmt"
	"strings"

	"github.com/planloop/planloop/core"
	"github.com/planloop/planloop/model"
)

const defaultCondensePrompt = `You compress conversation history. Summarize the following transcript excerpt into a single dense paragraph. Preserve facts, decisions, capability results and open threads; drop pleasantries and repetition. Reply with the summary only.`

// ModelCondenserOptions configures a ModelCondenser.
type ModelCondenserOptions struct {
	// Prompt is the system instruction sent with the summarization request.
	Prompt string
}

// ModelCondenser produces summaries by asking a model. This is the
// condensation service used in production; the summarizing call goes
// directly to the model, outside the run's middleware chain.
type ModelCondenser struct {
	model  model.Model
	prompt string
}

// NewModelCondenser constructs a condenser backed by the given model.
func NewModelCondenser(m model.Model, optFns ...func(o *ModelCondenserOptions)) *ModelCondenser {
	opts := ModelCondenserOptions{Prompt: defaultCondensePrompt}
	for _, f := range optFns {
		f(&opts)
	}
	return &ModelCondenser{model: m, prompt: opts.Prompt}
}

// Condense flattens the message range into text and asks the model for a
// single summary.
func (c *ModelCondenser) Condense(ctx context.Context, messages []core.Message) (string, error) {
	req := model.Request{
		Messages: []core.Message{
			core.NewSystemMessage(c.prompt),
			core.NewUserMessage(flatten(messages)),
		},
	}
	resp, err := c.model.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("condense %d messages: %w", len(messages), err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("condense %d messages: model returned empty summary", len(messages))
	}
	return resp.Content, nil
}

// WindowCondenser is a deterministic, model-free condenser: it emits a
// truncated digest of each message in the range. Useful as a fallback when
// no model should be spent on summarization, and in tests.
type WindowCondenser struct {
	// MaxEntryLen bounds the excerpt kept per message, in runes; zero means 120.
	MaxEntryLen int
}

// Condense builds the digest.
func (c WindowCondenser) Condense(_ context.Context, messages []core.Message) (string, error) {
	limit := c.MaxEntryLen
	if limit <= 0 {
		limit = 120
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summary of %d earlier messages:\n", len(messages))
	for _, m := range messages {
		excerpt := m.Content
		if excerpt == "" && m.HasCapabilityCalls() {
			names := make([]string, 0, len(m.CapabilityCalls))
			for _, call := range m.CapabilityCalls {
				names = append(names, call.Name)
			}
			excerpt = "requested " + strings.Join(names, ", ")
		}
		if runes := []rune(excerpt); len(runes) > limit {
			excerpt = string(runes[:limit]) + "..."
		}
		fmt.Fprintf(&b, "- %s: %s\n", m.Role, excerpt)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func flatten(messages []core.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
		for _, call := range m.CapabilityCalls {
			fmt.Fprintf(&b, "[%s] -> %s(%s)\n", m.Role, call.Name, call.ArgumentsJSON())
		}
	}
	return b.String()
}

var (
	_ Condenser = (*ModelCondenser)(nil)
	_ Condenser = WindowCondenser{}
)
