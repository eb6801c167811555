package domain

import "time"

/*
FlowPlan is the ephemeral, engine-internal description of the DAG built for
one task (§3). A Task exclusively owns its FlowPlan; the plan is consumed by
submitFlow and then discarded — nothing about a FlowPlan is itself
persisted, only the jobs it describes.
*/
type FlowPlan struct {
	Parent   ParentNode
	Children []StepNode
}

// ParentNode is the synthetic node that aggregates children into task state.
type ParentNode struct {
	TaskID      string
	WorkspaceID string
	QueueName   string
}

// BackoffSpec describes the retry backoff policy for a step node.
type BackoffSpec struct {
	Type    string `json:"type"` // "exponential"
	DelayMs int64  `json:"delayMs"`
}

// StepOpts bundles attempt/backoff policy for one StepNode.
type StepOpts struct {
	Attempts int         `json:"attempts"`
	Backoff  BackoffSpec `json:"backoff"`
}

// DefaultStepOpts matches §4.2: attempts=3, delayMs=30000, exponential.
func DefaultStepOpts() StepOpts {
	return StepOpts{
		Attempts: 3,
		Backoff:  BackoffSpec{Type: "exponential", DelayMs: 30000},
	}
}

// StepNode is one node of the FlowPlan (§3). DependsOn names other children
// in the same plan by step kind; the parent is implicitly dependent on all
// children and never listed explicitly.
type StepNode struct {
	Name      string         // step kind, e.g. "transcode:thumbnail"
	QueueName string
	Data      StepInput
	Opts      StepOpts
	DependsOn []string
}

// StepInput is the typed payload handed to a step handler. Config carries
// the step-specific options (thumbnail ts/w/h, sprite fps/cols/rows, ...);
// it is also the input canonicalized for deterministic output naming (§6).
type StepInput struct {
	TaskID      string         `json:"taskId"`
	WorkspaceID string         `json:"workspaceId"`
	UploadID    string         `json:"uploadId,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// Delay computes delayMs × 2^(attempt-1) per §4.1. attempt is
// 1-indexed (the first retry is attempt=1).
func (b BackoffSpec) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	ms := b.DelayMs
	for i := 1; i < attempt; i++ {
		ms *= 2
	}
	return time.Duration(ms) * time.Millisecond
}
