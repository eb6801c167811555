package steps

import "github.com/flowforge/mediaflow/internal/domain"

// BuildRegistry registers every step kind named in SPEC_FULL.md §4.3
// against deps. Called once at boot.
func BuildRegistry(deps Deps) *Registry {
	r := NewRegistry()

	r.Register(domain.StepTranscodeProbe, ProbeHandler(deps))
	r.Register(domain.StepTranscodeThumbnail, ThumbnailHandler(deps))
	r.Register(domain.StepTranscodeSprite, SpriteHandler(deps))
	r.Register(domain.StepTranscodeFilmstrip, FilmstripHandler(deps))
	r.Register(domain.StepTranscodeTranscode, TranscodeHandler(deps))
	r.Register(domain.StepTranscodeAudio, AudioHandler(deps))
	r.Register(domain.StepTranscodeParent, BarrierHandler())

	r.Register(domain.StepLabelsUploadToGCS, UploadToGCSHandler(deps))
	r.Register(domain.StepLabelsLabelDetection, LabelDetectionHandler(deps))
	r.Register(domain.StepLabelsObjectTracking, ObjectTrackingHandler(deps))
	r.Register(domain.StepLabelsFaceDetection, FaceDetectionHandler(deps))
	r.Register(domain.StepLabelsPersonDetection, PersonDetectionHandler(deps))
	r.Register(domain.StepLabelsSpeechTranscription, SpeechTranscriptionHandler(deps))

	r.Register(domain.StepRenderPrepare, RenderPrepareHandler(deps))
	r.Register(domain.StepRenderExecute, RenderExecuteHandler(deps))
	r.Register(domain.StepRenderFinalize, RenderFinalizeHandler(deps))

	return r
}
