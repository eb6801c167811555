package flow

import (
	"encoding/json"
	"fmt"

	"github.com/flowforge/mediaflow/internal/domain"
)

// Builder is the pure (Task) -> FlowPlan function of §4.2, parameterized
// by a registry of per-kind attempt/backoff overrides (§4.2 "centralized in
// one registry").
type Builder struct {
	overrides *Registry
}

func NewBuilder(overrides *Registry) *Builder {
	if overrides == nil {
		overrides = NewRegistry(nil)
	}
	return &Builder{overrides: overrides}
}

// BuildFlow turns one Task into a FlowPlan. Deterministic: same task ->
// byte-identical plan, including the order of independent siblings
// (invariant 1, §8).
func (b *Builder) BuildFlow(task *domain.Task) (domain.FlowPlan, error) {
	switch task.Kind {
	case domain.TaskKindProcessUpload:
		payload, err := decodeProcessUpload(task.Payload)
		if err != nil {
			return domain.FlowPlan{}, err
		}
		children, err := b.expand(processUploadDef, payload, task)
		if err != nil {
			return domain.FlowPlan{}, err
		}
		return b.plan(task, children), nil

	case domain.TaskKindDetectLabels:
		payload, err := decodeDetectLabels(task.Payload)
		if err != nil {
			return domain.FlowPlan{}, err
		}
		if !payload.AnyDetectionEnabled() {
			return domain.FlowPlan{}, fmt.Errorf("%w: DETECT_LABELS requires at least one detection flag", domain.ErrMalformedPayload)
		}
		children, err := b.expand(detectLabelsDef, payload, task)
		if err != nil {
			return domain.FlowPlan{}, err
		}
		return b.plan(task, children), nil

	case domain.TaskKindRenderTimeline:
		payload, err := decodeRenderTimeline(task.Payload)
		if err != nil {
			return domain.FlowPlan{}, err
		}
		children, err := b.expand(renderTimelineDef, payload, task)
		if err != nil {
			return domain.FlowPlan{}, err
		}
		return b.plan(task, children), nil

	case domain.TaskKindFullIngest:
		return b.buildFullIngest(task)

	default:
		return domain.FlowPlan{}, fmt.Errorf("%w: %q", domain.ErrUnknownTaskKind, task.Kind)
	}
}

// expand realizes a flowDef against a decoded, gated payload: required
// steps always appear, optional steps appear iff their gate is truthy —
// the set-equality postcondition of §4.2.
func (b *Builder) expand(def flowDef, payload any, task *domain.Task) ([]domain.StepNode, error) {
	nodes := make([]domain.StepNode, 0, len(def.steps))
	for _, sd := range def.steps {
		if !sd.required && sd.gate != nil && !sd.gate(payload) {
			continue
		}
		opts := b.overrides.OptsFor(sd.kind)
		nodes = append(nodes, domain.StepNode{
			Name:      sd.kind,
			QueueName: domain.QueueForStep(sd.kind),
			Data: domain.StepInput{
				TaskID:      task.ID,
				WorkspaceID: task.WorkspaceID,
				UploadID:    uploadIDOf(payload),
				Config:      stepConfig(payload, sd.kind),
			},
			Opts:      opts,
			DependsOn: append([]string(nil), sd.dependsOn...),
		})
	}
	return nodes, nil
}

func (b *Builder) plan(task *domain.Task, children []domain.StepNode) domain.FlowPlan {
	queueName := domain.QueueForStep(children[0].Name)
	return domain.FlowPlan{
		Parent: domain.ParentNode{
			TaskID:      task.ID,
			WorkspaceID: task.WorkspaceID,
			QueueName:   queueName,
		},
		Children: children,
	}
}

// buildFullIngest grafts a PROCESS_UPLOAD subflow and a DETECT_LABELS
// subflow into one plan: the transcode subflow's synthetic parent barrier
// becomes a dependency of the labels subflow's upload_to_gcs node (§3,
// §9 open question 2 resolution: fail-fast if transcode fails).
func (b *Builder) buildFullIngest(task *domain.Task) (domain.FlowPlan, error) {
	var payload domain.FullIngestPayload
	if err := decodeInto(task.Payload, &payload); err != nil {
		return domain.FlowPlan{}, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}

	transcodeChildren, err := b.expand(processUploadDef, &payload.Upload, task)
	if err != nil {
		return domain.FlowPlan{}, err
	}
	if !payload.Labels.AnyDetectionEnabled() {
		return domain.FlowPlan{}, fmt.Errorf("%w: FULL_INGEST requires at least one detection flag", domain.ErrMalformedPayload)
	}
	labelChildren, err := b.expand(detectLabelsDef, &payload.Labels, task)
	if err != nil {
		return domain.FlowPlan{}, err
	}

	barrierDeps := make([]string, len(transcodeChildren))
	for i, c := range transcodeChildren {
		barrierDeps[i] = c.Name
	}
	barrier := domain.StepNode{
		Name:      domain.StepTranscodeParent,
		QueueName: domain.QueueForStep(domain.StepTranscodeParent),
		Data: domain.StepInput{
			TaskID:      task.ID,
			WorkspaceID: task.WorkspaceID,
			UploadID:    payload.Upload.UploadID,
		},
		Opts:      b.overrides.OptsFor(domain.StepTranscodeParent),
		DependsOn: barrierDeps,
	}

	children := make([]domain.StepNode, 0, len(transcodeChildren)+len(labelChildren)+1)
	children = append(children, transcodeChildren...)
	children = append(children, barrier)
	for _, c := range labelChildren {
		if c.Name == domain.StepLabelsUploadToGCS {
			c.DependsOn = append(append([]string(nil), c.DependsOn...), domain.StepTranscodeParent)
		}
		children = append(children, c)
	}

	return domain.FlowPlan{
		Parent: domain.ParentNode{
			TaskID:      task.ID,
			WorkspaceID: task.WorkspaceID,
			QueueName:   domain.QueueForStep(domain.StepLabelsUploadToGCS),
		},
		Children: children,
	}, nil
}

func uploadIDOf(payload any) string {
	switch p := payload.(type) {
	case *domain.ProcessUploadPayload:
		return p.UploadID
	case *domain.DetectLabelsPayload:
		return p.UploadID
	default:
		return ""
	}
}

// stepConfig extracts the per-step option block that feeds configHash
// naming (§6); render steps have no per-step config distinct from the
// payload itself, so they pass the whole decoded block through.
func stepConfig(payload any, stepKind string) map[string]any {
	var v any
	switch p := payload.(type) {
	case *domain.ProcessUploadPayload:
		switch stepKind {
		case domain.StepTranscodeThumbnail:
			v = p.Thumbnail
		case domain.StepTranscodeSprite:
			v = p.Sprite
		case domain.StepTranscodeFilmstrip:
			v = p.Filmstrip
		case domain.StepTranscodeTranscode:
			v = p.Transcode
		case domain.StepTranscodeAudio:
			v = p.Audio
		}
	case *domain.RenderTimelinePayload:
		v = p
	}
	if v == nil {
		return nil
	}
	return toMap(v)
}

func toMap(v any) map[string]any {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil
	}
	return out
}

func decodeInto(raw map[string]any, dst any) error {
	buf, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, dst)
}

func decodeProcessUpload(raw map[string]any) (*domain.ProcessUploadPayload, error) {
	var p domain.ProcessUploadPayload
	if err := decodeInto(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if p.UploadID == "" {
		return nil, fmt.Errorf("%w: missing uploadId", domain.ErrMalformedPayload)
	}
	return &p, nil
}

func decodeDetectLabels(raw map[string]any) (*domain.DetectLabelsPayload, error) {
	var p domain.DetectLabelsPayload
	if err := decodeInto(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if p.UploadID == "" {
		return nil, fmt.Errorf("%w: missing uploadId", domain.ErrMalformedPayload)
	}
	return &p, nil
}

func decodeRenderTimeline(raw map[string]any) (*domain.RenderTimelinePayload, error) {
	var p domain.RenderTimelinePayload
	if err := decodeInto(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if p.TimelineID == "" {
		return nil, fmt.Errorf("%w: missing timelineId", domain.ErrMalformedPayload)
	}
	return &p, nil
}
