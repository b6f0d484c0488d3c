package model

import (
	"context"
	"sync"

	"github.com/planloop/planloop/core"
)

// MockModel is a lightweight in-memory Model useful for tests and examples.
// Responses are scripted in order: each Complete call consumes the next
// enqueued reply. When the script is exhausted the last response repeats,
// which makes "model never stops calling capabilities" scenarios easy to
// express.
type MockModel struct {
	mu       sync.Mutex
	info     Info
	script   []scripted
	index    int
	requests []Request
}

type scripted struct {
	resp *Response
	err  error
}

// NewMockModel constructs a MockModel with capability support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{Name: name, Provider: "mock", SupportsCapabilities: true},
	}
}

// EnqueueText scripts a plain-text (terminal) reply.
func (m *MockModel) EnqueueText(content string) *MockModel {
	return m.EnqueueResponse(&Response{Content: content})
}

// EnqueueCalls scripts a reply requesting the given capability calls.
func (m *MockModel) EnqueueCalls(content string, calls ...core.CapabilityCall) *MockModel {
	return m.EnqueueResponse(&Response{Content: content, CapabilityCalls: calls})
}

// EnqueueResponse scripts an arbitrary reply.
func (m *MockModel) EnqueueResponse(resp *Response) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{resp: resp})
	return m
}

// EnqueueError scripts a failure for the next invocation.
func (m *MockModel) EnqueueError(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{err: err})
	return m
}

// Complete implements Model by replaying the script.
func (m *MockModel) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewServiceError(ErrorKindTransport, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if len(m.script) == 0 {
		return &Response{Content: "mock response"}, nil
	}
	entry := m.script[m.index]
	if m.index < len(m.script)-1 {
		m.index++
	}
	if entry.err != nil {
		return nil, entry.err
	}
	resp := *entry.resp
	return &resp, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

// Requests returns a copy of every request seen so far, in call order.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns how many times Complete was invoked.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
