package steps

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/flowforge/mediaflow/internal/domain"
)

// RenderPrepareHandler implements render:prepare: resolves/validates the
// timeline's track references by id.
func RenderPrepareHandler(deps Deps) Handler {
	return HandlerFunc(func(ctx *Context, input domain.StepInput) (map[string]any, error) {
		tracksRaw, _ := input.Config["tracks"].([]any)
		ids := make([]string, 0, len(tracksRaw))
		for _, t := range tracksRaw {
			tm, ok := t.(map[string]any)
			if !ok {
				continue
			}
			if id, ok := tm["id"].(string); ok && id != "" {
				ids = append(ids, id)
			}
		}

		ctx.Progress(20)
		var resolved map[string]map[string]any
		if deps.Tracks != nil && len(ids) > 0 {
			r, err := deps.Tracks.GetByIDs(ctx, ids)
			if err != nil {
				return nil, domain.Transient(err)
			}
			resolved = r
			for _, id := range ids {
				if _, ok := resolved[id]; !ok {
					return nil, domain.Permanent(fmt.Errorf("track %q not found", id))
				}
			}
		}
		ctx.Progress(100)
		return map[string]any{"trackIds": ids, "resolved": resolved}, nil
	})
}

// RenderExecuteHandler implements render:execute: assembles a filter graph
// from outputSettings and shells out to ffmpeg.
func RenderExecuteHandler(deps Deps) Handler {
	return HandlerFunc(func(ctx *Context, input domain.StepInput) (map[string]any, error) {
		prepared := ctx.Upstream(domain.StepRenderPrepare)
		if prepared == nil {
			return nil, domain.Permanent(fmt.Errorf("render:prepare output not available"))
		}

		outputSettings, _ := input.Config["outputSettings"].(map[string]any)
		codec, _ := outputSettings["codec"].(string)
		resolution, _ := outputSettings["resolution"].(string)

		name := domain.OutputName(domain.StepRenderExecute, ctx.TaskID, input.Config, "mp4")
		dst := outputPath(deps.WorkDir, name)

		ctx.Progress(10)
		graph := fmt.Sprintf("scale=%s", resolutionToScaleForRender(resolution))
		inputs := []string{sourcePath(deps.WorkDir, ctx.TaskID)}
		if err := deps.Toolchain.RenderFilterGraph(ctx, inputs, graph, codec, dst); err != nil {
			return nil, err
		}
		ctx.Progress(100)
		return map[string]any{"path": dst, "name": name}, nil
	})
}

// RenderFinalizeHandler implements render:finalize: uploads the rendered
// file through the same uploader used by labels:upload_to_gcs.
func RenderFinalizeHandler(deps Deps) Handler {
	return HandlerFunc(func(ctx *Context, input domain.StepInput) (map[string]any, error) {
		executed := ctx.Upstream(domain.StepRenderExecute)
		if executed == nil {
			return nil, domain.Permanent(fmt.Errorf("render:execute output not available"))
		}
		path, _ := executed["path"].(string)
		if path == "" {
			return nil, domain.Permanent(fmt.Errorf("render:execute produced no path"))
		}
		if deps.Uploader == nil {
			return nil, domain.Permanent(fmt.Errorf("no object uploader configured"))
		}

		ctx.Progress(30)
		key := fmt.Sprintf("renders/%s%s", ctx.TaskID, filepath.Ext(path))
		uri, err := deps.Uploader.Upload(ctx, key, path)
		if err != nil {
			return nil, domain.Transient(err)
		}
		ctx.Progress(100)
		return map[string]any{"mediaUri": uri}, nil
	})
}

func resolutionToScaleForRender(resolution string) string {
	if resolution == "" {
		return "iw:ih"
	}
	// "1920x1080" -> "1920:1080"; ffmpeg's scale filter uses ':' not 'x'.
	return strings.NewReplacer("x", ":", "X", ":").Replace(resolution)
}
