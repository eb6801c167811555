package media

import (
	"context"
	"errors"
	"testing"

	"github.com/flowforge/mediaflow/internal/domain"
)

type fakeRunner struct {
	stdout []byte
	err    error
	calls  [][]string
}

func (f *fakeRunner) Run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{bin}, args...))
	return f.stdout, f.err
}

func TestProbeParsesFFprobeJSON(t *testing.T) {
	fr := &fakeRunner{stdout: []byte(`{
		"format": {"duration": "12.340000", "bit_rate": "512000"},
		"streams": [{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080}]
	}`)}
	tc := NewToolchain("", "", fr)

	res, err := tc.Probe(context.Background(), "in.mp4")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.Width != 1920 || res.Height != 1080 || res.Codec != "h264" {
		t.Fatalf("unexpected probe result: %+v", res)
	}
	if res.BitrateKbps != 512 {
		t.Fatalf("expected 512 kbps, got %d", res.BitrateKbps)
	}
	if res.DurationSec < 12.3 || res.DurationSec > 12.4 {
		t.Fatalf("unexpected duration: %f", res.DurationSec)
	}
}

func TestExtractFrameBuildsScaleFilter(t *testing.T) {
	fr := &fakeRunner{}
	tc := NewToolchain("", "", fr)
	if err := tc.ExtractFrame(context.Background(), "in.mp4", 1.5, 320, 240, "out.jpg"); err != nil {
		t.Fatalf("ExtractFrame: %v", err)
	}
	if len(fr.calls) != 1 {
		t.Fatalf("expected one ffmpeg invocation, got %d", len(fr.calls))
	}
	found := false
	for _, a := range fr.calls[0] {
		if a == "scale=320:240" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected scale filter in args: %v", fr.calls[0])
	}
}

func TestTranscodeResolutionUsesColonSeparator(t *testing.T) {
	fr := &fakeRunner{}
	tc := NewToolchain("", "", fr)
	if err := tc.Transcode(context.Background(), "in.mp4", "out.mp4", "h264", "1920x1080"); err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	found := false
	for _, a := range fr.calls[0] {
		if a == "scale=1920:1080" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected scale=1920:1080 in args: %v", fr.calls[0])
	}
}

func TestProbePropagatesRunnerClassification(t *testing.T) {
	fr := &fakeRunner{err: domain.Permanent(errors.New("ffprobe exited 1"))}
	tc := NewToolchain("", "", fr)
	_, err := tc.Probe(context.Background(), "bad.mp4")
	if err == nil {
		t.Fatalf("expected error")
	}
	var he *domain.HandlerError
	if !errors.As(err, &he) {
		t.Fatalf("expected HandlerError, got %T", err)
	}
	if he.Retryable {
		t.Fatalf("expected permanent classification to survive Probe, got retryable")
	}
}
