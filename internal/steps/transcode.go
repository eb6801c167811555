package steps

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/flowforge/mediaflow/internal/domain"
)

// sourcePath resolves the local path of the upload a transcode:* step
// operates on. Real deployments stage the upload into WorkDir before the
// flow is submitted (out of scope, owned by the web application per §1);
// the naming convention here is deterministic so retries find the same
// file the first attempt downloaded.
func sourcePath(workDir, uploadID string) string {
	return filepath.Join(workDir, "uploads", uploadID+".src")
}

func outputPath(workDir, name string) string {
	return filepath.Join(workDir, "outputs", name)
}

// ProbeHandler implements transcode:probe.
func ProbeHandler(deps Deps) Handler {
	return HandlerFunc(func(ctx *Context, input domain.StepInput) (map[string]any, error) {
		ctx.Progress(10)
		res, err := deps.Toolchain.Probe(ctx, sourcePath(deps.WorkDir, input.UploadID))
		if err != nil {
			return nil, err
		}
		ctx.Progress(100)
		return map[string]any{
			"durationSec": res.DurationSec,
			"width":       res.Width,
			"height":      res.Height,
			"codec":       res.Codec,
			"bitrateKbps": res.BitrateKbps,
		}, nil
	})
}

// ThumbnailHandler implements transcode:thumbnail: extract one frame, then
// run it through Vision for a moderation/label annotation — a concrete use
// of Vision distinct from Video Intelligence's per-upload detection steps.
func ThumbnailHandler(deps Deps) Handler {
	return HandlerFunc(func(ctx *Context, input domain.StepInput) (map[string]any, error) {
		ts, _ := input.Config["ts"].(float64)
		w := intFromConfig(input.Config, "w")
		h := intFromConfig(input.Config, "h")

		name := domain.OutputName(domain.StepTranscodeThumbnail, input.UploadID, input.Config, "jpg")
		dst := outputPath(deps.WorkDir, name)

		ctx.Progress(20)
		if err := deps.Toolchain.ExtractFrame(ctx, sourcePath(deps.WorkDir, input.UploadID), ts, w, h, dst); err != nil {
			return nil, err
		}
		ctx.Progress(60)

		out := map[string]any{"path": dst, "name": name}
		if deps.Vision != nil {
			annotation, err := deps.Vision.AnnotateImage(ctx, dst)
			if err != nil {
				return nil, domain.Transient(err)
			}
			out["annotation"] = annotation
		}
		ctx.Progress(100)
		return out, nil
	})
}

// SpriteHandler implements transcode:sprite: per-tile frame extraction,
// composited into one tiled sheet.
func SpriteHandler(deps Deps) Handler {
	return HandlerFunc(func(ctx *Context, input domain.StepInput) (map[string]any, error) {
		fps, _ := input.Config["fps"].(float64)
		cols := intFromConfig(input.Config, "cols")
		rows := intFromConfig(input.Config, "rows")
		tw := intFromConfig(input.Config, "tw")
		th := intFromConfig(input.Config, "th")

		framesDir := filepath.Join(deps.WorkDir, "frames", input.UploadID+"_sprite")
		pattern := filepath.Join(framesDir, "tile_%03d.jpg")
		ctx.Progress(10)
		if err := deps.Toolchain.ExtractFrames(ctx, sourcePath(deps.WorkDir, input.UploadID), fps, pattern); err != nil {
			return nil, err
		}
		ctx.Progress(50)

		name := domain.OutputName(domain.StepTranscodeSprite, input.UploadID, input.Config, "jpg")
		dst := outputPath(deps.WorkDir, name)
		if err := compositeTileSheet(framesDir, dst, cols, rows, tw, th); err != nil {
			return nil, domain.Permanent(fmt.Errorf("composite sprite sheet: %w", err))
		}
		ctx.Progress(100)
		return map[string]any{"path": dst, "name": name, "cols": cols, "rows": rows}, nil
	})
}

// FilmstripHandler implements transcode:filmstrip: a single-row strip of
// evenly spaced frames, the same compositor as sprite with rows fixed at 1.
func FilmstripHandler(deps Deps) Handler {
	return HandlerFunc(func(ctx *Context, input domain.StepInput) (map[string]any, error) {
		fps, _ := input.Config["fps"].(float64)
		tw := intFromConfig(input.Config, "tw")
		th := intFromConfig(input.Config, "th")
		count := intFromConfig(input.Config, "count")

		framesDir := filepath.Join(deps.WorkDir, "frames", input.UploadID+"_filmstrip")
		pattern := filepath.Join(framesDir, "tile_%03d.jpg")
		ctx.Progress(10)
		if err := deps.Toolchain.ExtractFrames(ctx, sourcePath(deps.WorkDir, input.UploadID), fps, pattern); err != nil {
			return nil, err
		}
		ctx.Progress(50)

		name := domain.OutputName(domain.StepTranscodeFilmstrip, input.UploadID, input.Config, "jpg")
		dst := outputPath(deps.WorkDir, name)
		if err := compositeTileSheet(framesDir, dst, count, 1, tw, th); err != nil {
			return nil, domain.Permanent(fmt.Errorf("composite filmstrip: %w", err))
		}
		ctx.Progress(100)
		return map[string]any{"path": dst, "name": name, "count": count}, nil
	})
}

// TranscodeHandler implements transcode:transcode.
func TranscodeHandler(deps Deps) Handler {
	return HandlerFunc(func(ctx *Context, input domain.StepInput) (map[string]any, error) {
		codec, _ := input.Config["codec"].(string)
		res, _ := input.Config["res"].(string)

		name := domain.OutputName(domain.StepTranscodeTranscode, input.UploadID, input.Config, "mp4")
		dst := outputPath(deps.WorkDir, name)

		ctx.Progress(5)
		if err := deps.Toolchain.Transcode(ctx, sourcePath(deps.WorkDir, input.UploadID), dst, codec, res); err != nil {
			return nil, err
		}
		ctx.Progress(100)
		return map[string]any{"path": dst, "name": name, "codec": codec, "resolution": res}, nil
	})
}

// AudioHandler implements transcode:audio: extract the audio track, and
// optionally a short preview transcript via Speech-to-Text (distinct from
// labels:speech_transcription, which transcribes the original video via
// Video Intelligence).
func AudioHandler(deps Deps) Handler {
	return HandlerFunc(func(ctx *Context, input domain.StepInput) (map[string]any, error) {
		name := domain.OutputName(domain.StepTranscodeAudio, input.UploadID, input.Config, "m4a")
		dst := outputPath(deps.WorkDir, name)

		ctx.Progress(20)
		if err := deps.Toolchain.ExtractAudio(ctx, sourcePath(deps.WorkDir, input.UploadID), dst); err != nil {
			return nil, err
		}
		ctx.Progress(60)

		out := map[string]any{"path": dst, "name": name}
		transcribe, _ := input.Config["transcribePreview"].(bool)
		if transcribe && deps.Speech != nil && deps.Uploader != nil {
			uri, err := deps.Uploader.Upload(ctx, previewUploadKey(input.UploadID), dst)
			if err != nil {
				return nil, domain.Transient(err)
			}
			preview, err := deps.Speech.TranscribePreview(ctx, uri, "en-US")
			if err != nil {
				return nil, domain.Transient(err)
			}
			out["previewTranscript"] = preview
		}
		ctx.Progress(100)
		return out, nil
	})
}

func previewUploadKey(uploadID string) string {
	return fmt.Sprintf("previews/%s.m4a", uploadID)
}

func intFromConfig(config map[string]any, key string) int {
	switch v := config[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// context.Context satisfaction check (Context embeds it); kept explicit so
// a future refactor that drops the embedding fails to compile instead of
// silently changing behavior.
var _ context.Context = (*Context)(nil)
