package steps

import (
	"fmt"

	"github.com/flowforge/mediaflow/internal/domain"
)

// UploadToGCSHandler implements labels:upload_to_gcs: every detection step
// depends on this one (§3) and reads its "uri" output.
func UploadToGCSHandler(deps Deps) Handler {
	return HandlerFunc(func(ctx *Context, input domain.StepInput) (map[string]any, error) {
		if deps.Uploader == nil {
			return nil, domain.Permanent(fmt.Errorf("no object uploader configured"))
		}
		ctx.Progress(10)
		key := fmt.Sprintf("labels/%s.src", input.UploadID)
		uri, err := deps.Uploader.Upload(ctx, key, sourcePath(deps.WorkDir, input.UploadID))
		if err != nil {
			return nil, domain.Transient(err)
		}
		ctx.Progress(100)
		return map[string]any{"uri": uri}, nil
	})
}

// detectionHandler is shared by all five labels:* detection steps; they
// differ only in which Video Intelligence feature they request.
func detectionHandler(feature VideoFeature, deps Deps) Handler {
	return HandlerFunc(func(ctx *Context, input domain.StepInput) (map[string]any, error) {
		if deps.Video == nil {
			return nil, domain.Permanent(fmt.Errorf("no video intelligence client configured"))
		}
		uploadOut := ctx.Upstream(domain.StepLabelsUploadToGCS)
		if uploadOut == nil {
			return nil, domain.Permanent(fmt.Errorf("upload_to_gcs output not available"))
		}
		uri, _ := uploadOut["uri"].(string)
		if uri == "" {
			return nil, domain.Permanent(fmt.Errorf("upload_to_gcs produced no uri"))
		}

		languageCode, _ := input.Config["languageCode"].(string)
		if languageCode == "" {
			languageCode = "en-US"
		}

		ctx.Progress(10)
		result, err := deps.Video.Annotate(ctx, uri, feature, languageCode)
		if err != nil {
			return nil, domain.Transient(err)
		}
		ctx.Progress(100)
		return map[string]any{
			"feature": string(feature),
			"entries": result.Entries,
		}, nil
	})
}

func LabelDetectionHandler(deps Deps) Handler {
	return detectionHandler(FeatureLabelDetection, deps)
}

func ObjectTrackingHandler(deps Deps) Handler {
	return detectionHandler(FeatureObjectTracking, deps)
}

func FaceDetectionHandler(deps Deps) Handler {
	return detectionHandler(FeatureFaceDetection, deps)
}

func PersonDetectionHandler(deps Deps) Handler {
	return detectionHandler(FeaturePersonDetection, deps)
}

func SpeechTranscriptionHandler(deps Deps) Handler {
	return detectionHandler(FeatureSpeechTranscription, deps)
}
