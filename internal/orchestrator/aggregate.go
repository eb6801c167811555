package orchestrator

import "github.com/flowforge/mediaflow/internal/domain"

// Aggregate builds the task's result map from its completed children's
// outputs (§4.4 step 4/5, §6 per-kind aggregation). Keyed by what's
// actually present rather than switching on task kind, so FULL_INGEST's
// grafted transcode+labels subflows aggregate identically to their
// standalone counterparts.
func Aggregate(completed map[string]domain.StepResult) map[string]any {
	result := map[string]any{}

	if r, ok := completed[domain.StepTranscodeProbe]; ok {
		result["probe"] = r.Output
	}
	if r, ok := completed[domain.StepTranscodeThumbnail]; ok {
		result["thumbnail"] = r.Output
	}
	if r, ok := completed[domain.StepTranscodeSprite]; ok {
		result["sprite"] = r.Output
	}
	if r, ok := completed[domain.StepTranscodeFilmstrip]; ok {
		result["filmstrip"] = r.Output
	}
	if r, ok := completed[domain.StepTranscodeAudio]; ok {
		result["audio"] = r.Output
	}
	if r, ok := completed[domain.StepTranscodeTranscode]; ok {
		result["media"] = r.Output
		if name, ok := r.Output["name"].(string); ok {
			result["mediaId"] = name
		}
	}

	if labels := aggregateLabels(completed); len(labels) > 0 {
		result["labels"] = labels
	}

	if r, ok := completed[domain.StepRenderFinalize]; ok {
		result["renderedMedia"] = r.Output
		if uri, ok := r.Output["mediaUri"].(string); ok {
			result["mediaId"] = uri
		}
	}

	return result
}

func aggregateLabels(completed map[string]domain.StepResult) map[string]any {
	out := map[string]any{}
	labelSteps := []string{
		domain.StepLabelsLabelDetection,
		domain.StepLabelsObjectTracking,
		domain.StepLabelsFaceDetection,
		domain.StepLabelsPersonDetection,
		domain.StepLabelsSpeechTranscription,
	}
	for _, stepKind := range labelSteps {
		if r, ok := completed[stepKind]; ok {
			out[stepKind] = r.Output["entries"]
		}
	}
	return out
}
