// Package media wraps the external ffmpeg/ffprobe binaries behind one
// context-bounded exec contract, so every step handler classifies process
// failures the same way (§4.3's "contract each step obeys").
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/flowforge/mediaflow/internal/domain"
)

// Runner shells out to ffmpeg/ffprobe. A real Runner is backed by
// os/exec.CommandContext; tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, bin string, args ...string) (stdout []byte, err error)
}

type execRunner struct{}

// NewExecRunner returns the production Runner.
func NewExecRunner() Runner { return execRunner{} }

func (execRunner) Run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	if ctx.Err() != nil {
		// Context deadline/cancellation: transient, worth retrying on a
		// fresh attempt.
		return nil, domain.Transient(fmt.Errorf("%s: %w", bin, ctx.Err()))
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		// Non-zero exit from a well-formed invocation: the input itself is
		// almost certainly bad (corrupt media, unsupported codec).
		return nil, domain.Permanent(fmt.Errorf("%s exited %d: %s", bin, exitErr.ExitCode(), stderr.String()))
	}
	// Binary missing, permission denied, etc — an environment problem, not
	// a media problem, but not retryable by the worker either.
	return nil, domain.Permanent(fmt.Errorf("%s: %w", bin, err))
}

// Toolchain bundles the two binaries every step handler needs, resolved
// once at boot from FFMPEG_BIN/FFPROBE_BIN (defaulting to the bare binary
// names, resolved via PATH).
type Toolchain struct {
	FFmpegBin  string
	FFprobeBin string
	Runner     Runner
}

func NewToolchain(ffmpegBin, ffprobeBin string, runner Runner) Toolchain {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	if runner == nil {
		runner = NewExecRunner()
	}
	return Toolchain{FFmpegBin: ffmpegBin, FFprobeBin: ffprobeBin, Runner: runner}
}

// ProbeResult is the subset of ffprobe's JSON output transcode:probe cares
// about.
type ProbeResult struct {
	DurationSec float64 `json:"durationSec"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Codec       string  `json:"codec"`
	BitrateKbps int     `json:"bitrateKbps"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

// Probe runs ffprobe against inputPath and parses its JSON stdout.
func (t Toolchain) Probe(ctx context.Context, inputPath string) (ProbeResult, error) {
	out, err := t.Runner.Run(ctx, t.FFprobeBin,
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		inputPath,
	)
	if err != nil {
		return ProbeResult{}, err
	}
	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return ProbeResult{}, domain.Permanent(fmt.Errorf("parse ffprobe output: %w", err))
	}

	res := ProbeResult{}
	if parsed.Format.Duration != "" {
		fmt.Sscanf(parsed.Format.Duration, "%f", &res.DurationSec)
	}
	if parsed.Format.BitRate != "" {
		var bps int
		fmt.Sscanf(parsed.Format.BitRate, "%d", &bps)
		res.BitrateKbps = bps / 1000
	}
	for _, s := range parsed.Streams {
		if s.CodecType == "video" {
			res.Width = s.Width
			res.Height = s.Height
			res.Codec = s.CodecName
			break
		}
	}
	return res, nil
}

// ExtractFrame shells out to ffmpeg to pull one frame at tsSec into
// outputPath, scaled to width x height (0 preserves the source dimension).
func (t Toolchain) ExtractFrame(ctx context.Context, inputPath string, tsSec float64, width, height int, outputPath string) error {
	args := []string{
		"-y", "-ss", fmt.Sprintf("%.3f", tsSec),
		"-i", inputPath,
		"-frames:v", "1",
	}
	if width > 0 || height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", width, height))
	}
	args = append(args, outputPath)
	_, err := t.Runner.Run(ctx, t.FFmpegBin, args...)
	return err
}

// ExtractFrames pulls fps frames per second over the whole input into the
// numbered sequence outputPattern (e.g. "tile_%03d.jpg"), used by both
// sprite and filmstrip assembly.
func (t Toolchain) ExtractFrames(ctx context.Context, inputPath string, fps float64, outputPattern string) error {
	_, err := t.Runner.Run(ctx, t.FFmpegBin,
		"-y", "-i", inputPath,
		"-vf", fmt.Sprintf("fps=%.4f", fps),
		outputPattern,
	)
	return err
}

// Transcode re-encodes inputPath into outputPath with the given codec and
// resolution (e.g. "1280x720").
func (t Toolchain) Transcode(ctx context.Context, inputPath, outputPath, codec, resolution string) error {
	args := []string{"-y", "-i", inputPath}
	if codec != "" {
		args = append(args, "-c:v", codec)
	}
	if resolution != "" {
		args = append(args, "-vf", fmt.Sprintf("scale=%s", resolutionToScale(resolution)))
	}
	args = append(args, outputPath)
	_, err := t.Runner.Run(ctx, t.FFmpegBin, args...)
	return err
}

// ExtractAudio pulls the audio track out of inputPath into outputPath.
func (t Toolchain) ExtractAudio(ctx context.Context, inputPath, outputPath string) error {
	_, err := t.Runner.Run(ctx, t.FFmpegBin,
		"-y", "-i", inputPath,
		"-vn", "-acodec", "copy",
		outputPath,
	)
	return err
}

// RenderFilterGraph executes ffmpeg with a pre-assembled filter_complex
// graph and output codec — render:execute's rendering step.
func (t Toolchain) RenderFilterGraph(ctx context.Context, inputs []string, filterGraph, codec, outputPath string) error {
	args := []string{"-y"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	if filterGraph != "" {
		args = append(args, "-filter_complex", filterGraph)
	}
	if codec != "" {
		args = append(args, "-c:v", codec)
	}
	args = append(args, outputPath)
	_, err := t.Runner.Run(ctx, t.FFmpegBin, args...)
	return err
}

func resolutionToScale(resolution string) string {
	// "1920x1080" -> "1920:1080"; ffmpeg's scale filter uses ':' not 'x'.
	out := make([]byte, len(resolution))
	for i := 0; i < len(resolution); i++ {
		if resolution[i] == 'x' || resolution[i] == 'X' {
			out[i] = ':'
		} else {
			out[i] = resolution[i]
		}
	}
	return string(out)
}
