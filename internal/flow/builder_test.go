package flow

import (
	"testing"

	"github.com/flowforge/mediaflow/internal/domain"
)

func taskWithPayload(kind string, payload map[string]any) *domain.Task {
	return &domain.Task{
		ID:          "t1",
		WorkspaceID: "ws1",
		Kind:        kind,
		Status:      domain.TaskStatusQueued,
		Payload:     payload,
	}
}

func stepNames(children []domain.StepNode) map[string]bool {
	out := make(map[string]bool, len(children))
	for _, c := range children {
		out[c.Name] = true
	}
	return out
}

func TestBuildFlowProcessUploadHappyPath(t *testing.T) {
	b := NewBuilder(nil)
	task := taskWithPayload(domain.TaskKindProcessUpload, map[string]any{
		"uploadId":  "u1",
		"thumbnail": map[string]any{"ts": 1, "w": 320, "h": 240},
		"sprite":    map[string]any{"fps": 1, "cols": 10, "rows": 10, "tw": 160, "th": 120},
		"transcode": map[string]any{"enabled": true, "codec": "h264", "res": "720p"},
		"audio":     map[string]any{"enabled": false},
	})

	plan, err := b.BuildFlow(task)
	if err != nil {
		t.Fatalf("BuildFlow: %v", err)
	}
	if err := Validate(plan); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	got := stepNames(plan.Children)
	want := []string{
		domain.StepTranscodeProbe,
		domain.StepTranscodeThumbnail,
		domain.StepTranscodeSprite,
		domain.StepTranscodeTranscode,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d children, want %d: %v", len(got), len(want), got)
	}
	for _, w := range want {
		if !got[w] {
			t.Errorf("missing expected step %q", w)
		}
	}
	if got[domain.StepTranscodeFilmstrip] || got[domain.StepTranscodeAudio] {
		t.Errorf("unexpected optional step present: %v", got)
	}
}

func TestBuildFlowDeterministic(t *testing.T) {
	b := NewBuilder(nil)
	task := taskWithPayload(domain.TaskKindProcessUpload, map[string]any{
		"uploadId":  "u1",
		"thumbnail": map[string]any{"ts": 1, "w": 320, "h": 240},
	})

	p1, err := b.BuildFlow(task)
	if err != nil {
		t.Fatalf("BuildFlow: %v", err)
	}
	p2, err := b.BuildFlow(task)
	if err != nil {
		t.Fatalf("BuildFlow: %v", err)
	}
	if len(p1.Children) != len(p2.Children) {
		t.Fatalf("non-deterministic child count: %d vs %d", len(p1.Children), len(p2.Children))
	}
	for i := range p1.Children {
		if p1.Children[i].Name != p2.Children[i].Name {
			t.Fatalf("non-deterministic ordering at index %d: %q vs %q", i, p1.Children[i].Name, p2.Children[i].Name)
		}
	}
}

func TestBuildFlowRenderTimelineEdges(t *testing.T) {
	b := NewBuilder(nil)
	task := taskWithPayload(domain.TaskKindRenderTimeline, map[string]any{
		"timelineId": "t1",
		"version":    1,
		"tracks":     []any{},
		"outputSettings": map[string]any{
			"codec": "h264", "format": "mp4", "resolution": "1920x1080",
		},
	})

	plan, err := b.BuildFlow(task)
	if err != nil {
		t.Fatalf("BuildFlow: %v", err)
	}
	if err := Validate(plan); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(plan.Children) != 3 {
		t.Fatalf("expected 3 children, got %d", len(plan.Children))
	}
	byName := map[string]domain.StepNode{}
	for _, c := range plan.Children {
		byName[c.Name] = c
	}
	execute, ok := byName[domain.StepRenderExecute]
	if !ok || len(execute.DependsOn) != 1 || execute.DependsOn[0] != domain.StepRenderPrepare {
		t.Fatalf("execute dependsOn wrong: %+v", execute)
	}
	finalize, ok := byName[domain.StepRenderFinalize]
	if !ok || len(finalize.DependsOn) != 1 || finalize.DependsOn[0] != domain.StepRenderExecute {
		t.Fatalf("finalize dependsOn wrong: %+v", finalize)
	}
}

func TestBuildFlowDetectLabelsRequiresAFlag(t *testing.T) {
	b := NewBuilder(nil)
	task := taskWithPayload(domain.TaskKindDetectLabels, map[string]any{
		"uploadId": "u1",
	})
	if _, err := b.BuildFlow(task); err == nil {
		t.Fatalf("expected MalformedPayload error for all-flags-false DETECT_LABELS")
	}
}

func TestBuildFlowFullIngestGraftsTranscodeParent(t *testing.T) {
	b := NewBuilder(nil)
	task := taskWithPayload(domain.TaskKindFullIngest, map[string]any{
		"upload": map[string]any{"uploadId": "u1"},
		"labels": map[string]any{"uploadId": "u1", "labelDetection": true},
	})

	plan, err := b.BuildFlow(task)
	if err != nil {
		t.Fatalf("BuildFlow: %v", err)
	}
	if err := Validate(plan); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	byName := map[string]domain.StepNode{}
	for _, c := range plan.Children {
		byName[c.Name] = c
	}
	barrier, ok := byName[domain.StepTranscodeParent]
	if !ok {
		t.Fatalf("missing synthetic transcode:parent barrier")
	}
	if len(barrier.DependsOn) == 0 {
		t.Fatalf("barrier has no dependsOn edges on the transcode subflow")
	}

	upload, ok := byName[domain.StepLabelsUploadToGCS]
	if !ok {
		t.Fatalf("missing labels:upload_to_gcs")
	}
	foundBarrierDep := false
	for _, dep := range upload.DependsOn {
		if dep == domain.StepTranscodeParent {
			foundBarrierDep = true
		}
	}
	if !foundBarrierDep {
		t.Fatalf("upload_to_gcs does not depend on transcode:parent: %+v", upload.DependsOn)
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	plan := domain.FlowPlan{
		Children: []domain.StepNode{
			{Name: "a", DependsOn: []string{"b"}},
			{Name: "b", DependsOn: []string{"a"}},
		},
	}
	if err := Validate(plan); err == nil {
		t.Fatalf("expected cycle to be rejected")
	}
}

func TestValidateRejectsUnknownDependency(t *testing.T) {
	plan := domain.FlowPlan{
		Children: []domain.StepNode{
			{Name: "a", DependsOn: []string{"ghost"}},
		},
	}
	if err := Validate(plan); err == nil {
		t.Fatalf("expected unknown dependency to be rejected")
	}
}
