package steps

import (
	"context"
	"testing"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/media"
)

type fakeMediaRunner struct{}

func (fakeMediaRunner) Run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	if bin == "ffprobe" {
		return []byte(`{"format":{"duration":"5.0","bit_rate":"100000"},"streams":[{"codec_type":"video","codec_name":"h264","width":640,"height":480}]}`), nil
	}
	return nil, nil
}

func testContext(stepKind string) *Context {
	return NewContext(context.Background(), "job1", "task1", "ws1", stepKind, 0, nil, func(float64) {})
}

func TestProbeHandlerProducesDuration(t *testing.T) {
	deps := Deps{Toolchain: media.NewToolchain("ffmpeg", "ffprobe", fakeMediaRunner{}), WorkDir: t.TempDir()}
	h := ProbeHandler(deps)
	out, err := h.Handle(testContext(domain.StepTranscodeProbe), domain.StepInput{UploadID: "u1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out["durationSec"].(float64) != 5.0 {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestDetectionHandlerRequiresUploadOutput(t *testing.T) {
	h := LabelDetectionHandler(Deps{Video: fakeVideo{}})
	_, err := h.Handle(testContext(domain.StepLabelsLabelDetection), domain.StepInput{UploadID: "u1"})
	if err == nil {
		t.Fatalf("expected error when upload_to_gcs output is missing")
	}
}

type fakeVideo struct{}

func (fakeVideo) Annotate(ctx context.Context, gcsURI string, feature VideoFeature, languageCode string) (domain.DetectionResult, error) {
	return domain.DetectionResult{StepKind: string(feature), Entries: map[string][]domain.Segment{
		"cat": {{Text: "cat", StartSec: 0, EndSec: 1}},
	}}, nil
}

func TestDetectionHandlerUsesUpstreamURI(t *testing.T) {
	upstream := map[string]domain.StepResult{
		domain.StepLabelsUploadToGCS: {StepKind: domain.StepLabelsUploadToGCS, Status: domain.StepCompleted, Output: map[string]any{"uri": "gs://bucket/u1.src"}},
	}
	ctx := NewContext(context.Background(), "job1", "task1", "ws1", domain.StepLabelsLabelDetection, 0, upstream, func(float64) {})
	h := LabelDetectionHandler(Deps{Video: fakeVideo{}})
	out, err := h.Handle(ctx, domain.StepInput{UploadID: "u1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out["feature"] != string(FeatureLabelDetection) {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestBarrierHandlerAlwaysSucceeds(t *testing.T) {
	h := BarrierHandler()
	out, err := h.Handle(testContext(domain.StepTranscodeParent), domain.StepInput{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out["barrier"] != true {
		t.Fatalf("unexpected output: %+v", out)
	}
}
