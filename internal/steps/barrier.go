package steps

import "github.com/flowforge/mediaflow/internal/domain"

// BarrierHandler implements the synthetic transcode:parent step FULL_INGEST
// grafts (§3): it has no work of its own, only dependsOn edges, so its
// handler is a no-op that always succeeds once the worker invokes it (which
// only happens once every dependsOn entry has completed).
func BarrierHandler() Handler {
	return HandlerFunc(func(ctx *Context, input domain.StepInput) (map[string]any, error) {
		ctx.Progress(100)
		return map[string]any{"barrier": true}, nil
	})
}
