package steps

import (
	"fmt"

	"github.com/flowforge/mediaflow/internal/domain"
)

// Registry is the closed (taskKind, stepKind) -> Handler mapping (§4.3).
// Generalized from the teacher's runtime/registry.go, keyed only by
// stepKind here since step kinds are already namespaced by pipeline
// (transcode:*, render:*, labels:*) and never collide across task kinds.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register wires one step kind to its handler. Panics on duplicate
// registration: that is a wiring bug caught at boot, never a runtime
// condition (§4.3: "the registry is closed").
func (r *Registry) Register(stepKind string, h Handler) {
	if _, exists := r.handlers[stepKind]; exists {
		panic(fmt.Sprintf("steps: duplicate registration for %q", stepKind))
	}
	r.handlers[stepKind] = h
}

// Lookup returns the handler for stepKind, or ErrUnregisteredStep if none
// was registered.
func (r *Registry) Lookup(stepKind string) (Handler, error) {
	h, ok := r.handlers[stepKind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnregisteredStep, stepKind)
	}
	return h, nil
}
