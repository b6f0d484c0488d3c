package capability

import (
	"fmt"
	"sync"

	"github.com/planloop/planloop/internal/util"
)

// Registry is the closed lookup table the loop dispatches capability calls
// through: a simple map lookup by string key plus a schema check, with no
// reflection involved.
//
// Registration is expected to complete before any run starts; Resolve and
// ValidateArguments are then safe for concurrent use across runs. The mutex
// guards against the occasional late registration in tests and demos.
type Registry struct {
	mu    sync.RWMutex
	caps  map[string]Capability
	order []string
}

// NewRegistry constructs an empty registry.
func NewRegistry(caps ...Capability) (*Registry, error) {
	r := &Registry{caps: make(map[string]Capability)}
	for _, c := range caps {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a capability. It fails with ErrDuplicateCapability if the
// name is already taken; replacing a registered capability is never silent.
func (r *Registry) Register(c Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := c.Name()
	if name == "" {
		return fmt.Errorf("capability name is empty")
	}
	if _, exists := r.caps[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateCapability, name)
	}
	r.caps[name] = c
	r.order = append(r.order, name)
	return nil
}

// MustRegister registers or panics. Intended for wiring code where a
// duplicate name is a programming error.
func (r *Registry) MustRegister(caps ...Capability) {
	for _, c := range caps {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

// Resolve returns the capability registered under name, or
// ErrUnknownCapability.
func (r *Registry) Resolve(name string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCapability, name)
	}
	return c, nil
}

// ValidateArguments checks args against the named capability's schema
// without executing anything. It fails with ErrUnknownCapability for absent
// names and with a *Error (code SCHEMA_VIOLATION, listing the offending
// fields) for non-conforming arguments. The loop runs this before the
// handler so malformed model output never reaches handler code.
func (r *Registry) ValidateArguments(name string, args map[string]any) error {
	c, err := r.Resolve(name)
	if err != nil {
		return err
	}
	if err := util.ValidateArguments(args, c.Schema()); err != nil {
		return &Error{
			Capability: name,
			Message:    err.Error(),
			Code:       CodeSchemaViolation,
			Details:    err,
		}
	}
	return nil
}

// List returns all capabilities in registration order.
func (r *Registry) List() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Capability, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.caps[name])
	}
	return out
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caps)
}
