package flow

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flowforge/mediaflow/internal/domain"
)

// overrideFile is the on-disk shape of FLOW_OVERRIDES_PATH (§4.2): a flat
// map of step kind to attempts/backoff, omitted kinds fall back to
// domain.DefaultStepOpts().
type overrideFile struct {
	Steps map[string]struct {
		Attempts int    `yaml:"attempts"`
		DelayMs  int64  `yaml:"delayMs"`
		Type     string `yaml:"type"`
	} `yaml:"steps"`
}

// Registry centralizes per-step-kind attempt/backoff overrides (§4.2:
// "overrides are centralized in one registry").
type Registry struct {
	opts map[string]domain.StepOpts
}

// NewRegistry builds a registry from an already-parsed override map; nil
// or missing entries fall back to domain.DefaultStepOpts().
func NewRegistry(opts map[string]domain.StepOpts) *Registry {
	if opts == nil {
		opts = map[string]domain.StepOpts{}
	}
	return &Registry{opts: opts}
}

// LoadRegistry reads FLOW_OVERRIDES_PATH if set and the file exists; a
// missing path is not an error, it simply yields an empty registry (all
// steps use defaults).
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry(nil), nil
	}
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewRegistry(nil), nil
	}
	if err != nil {
		return nil, err
	}
	var f overrideFile
	if err := yaml.Unmarshal(buf, &f); err != nil {
		return nil, err
	}
	opts := make(map[string]domain.StepOpts, len(f.Steps))
	for kind, o := range f.Steps {
		spec := domain.DefaultStepOpts()
		if o.Attempts > 0 {
			spec.Attempts = o.Attempts
		}
		if o.DelayMs > 0 {
			spec.Backoff.DelayMs = o.DelayMs
		}
		if o.Type != "" {
			spec.Backoff.Type = o.Type
		}
		opts[kind] = spec
	}
	return NewRegistry(opts), nil
}

// OptsFor returns the effective StepOpts for a step kind: the registered
// override if present, otherwise domain.DefaultStepOpts().
func (r *Registry) OptsFor(stepKind string) domain.StepOpts {
	if r == nil {
		return domain.DefaultStepOpts()
	}
	if o, ok := r.opts[stepKind]; ok {
		return o
	}
	return domain.DefaultStepOpts()
}
