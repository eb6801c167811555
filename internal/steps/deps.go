package steps

import (
	"context"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/media"
)

// ObjectUploader uploads a local file and returns the URI handlers pass
// downstream (a gs:// URI for GCS, consumed directly by Video
// Intelligence). Generalized from the teacher's BucketService.UploadFile.
type ObjectUploader interface {
	Upload(ctx context.Context, key, localPath string) (uri string, err error)
}

// ImageAnnotator wraps Vision API calls used by transcode:thumbnail to
// attach moderation/label metadata to the extracted thumbnail.
type ImageAnnotator interface {
	AnnotateImage(ctx context.Context, localPath string) (map[string]any, error)
}

// VideoFeature names one Video Intelligence AnnotateVideo feature; each
// labels:* detection step maps to exactly one.
type VideoFeature string

const (
	FeatureLabelDetection      VideoFeature = "LABEL_DETECTION"
	FeatureObjectTracking      VideoFeature = "OBJECT_TRACKING"
	FeatureFaceDetection       VideoFeature = "FACE_DETECTION"
	FeaturePersonDetection     VideoFeature = "PERSON_DETECTION"
	FeatureSpeechTranscription VideoFeature = "SPEECH_TRANSCRIPTION"
)

// VideoIntelligence wraps cloud.google.com/go/videointelligence's
// AnnotateVideo, generalized from the teacher's gcp.Video client to cover
// all five detection features instead of speech/text/shot.
type VideoIntelligence interface {
	Annotate(ctx context.Context, gcsURI string, feature VideoFeature, languageCode string) (domain.DetectionResult, error)
}

// SpeechPreview wraps cloud.google.com/go/speech's LongRunningRecognize,
// generalized from the teacher's TranscribeAudioGCS, used only by
// transcode:audio's optional preview transcript (distinct from
// labels:speech_transcription, which runs Video Intelligence against the
// original upload).
type SpeechPreview interface {
	TranscribePreview(ctx context.Context, gcsURI, languageCode string) (string, error)
}

// TrackResolver looks up timeline track records by id, named after the
// teacher's JobRunRepo.GetByIDs pattern — render:prepare uses this instead
// of a generic "expand" operator (§9).
type TrackResolver interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]map[string]any, error)
}

// Deps bundles every external capability the step handlers need. One Deps
// value is shared by all handlers registered into a Registry.
type Deps struct {
	Toolchain media.Toolchain
	Uploader  ObjectUploader
	Vision    ImageAnnotator
	Video     VideoIntelligence
	Speech    SpeechPreview
	Tracks    TrackResolver

	// WorkDir is the scratch directory step handlers stage intermediate
	// files in; deterministic output naming (§6) means re-runs overwrite
	// the same paths rather than accumulate garbage.
	WorkDir string
}
