package domain

// Task kinds. Bit-exact strings per the task-submission boundary.
const (
	TaskKindProcessUpload  = "PROCESS_UPLOAD"
	TaskKindDetectLabels   = "DETECT_LABELS"
	TaskKindRenderTimeline = "RENDER_TIMELINE"
	TaskKindFullIngest     = "FULL_INGEST"
)

// Task status values.
const (
	TaskStatusQueued    = "queued"
	TaskStatusRunning   = "running"
	TaskStatusSucceeded = "succeeded"
	TaskStatusFailed    = "failed"
	TaskStatusCancelled = "cancelled"
)

// Step kinds, bit-exact as they appear on the wire and in queue payloads.
const (
	StepTranscodeProbe     = "transcode:probe"
	StepTranscodeThumbnail = "transcode:thumbnail"
	StepTranscodeSprite    = "transcode:sprite"
	StepTranscodeFilmstrip = "transcode:filmstrip"
	StepTranscodeTranscode = "transcode:transcode"
	StepTranscodeAudio     = "transcode:audio"

	StepRenderPrepare  = "render:prepare"
	StepRenderExecute  = "render:execute"
	StepRenderFinalize = "render:finalize"

	StepLabelsUploadToGCS         = "labels:upload_to_gcs"
	StepLabelsLabelDetection      = "labels:label_detection"
	StepLabelsObjectTracking      = "labels:object_tracking"
	StepLabelsFaceDetection       = "labels:face_detection"
	StepLabelsPersonDetection     = "labels:person_detection"
	StepLabelsSpeechTranscription = "labels:speech_transcription"

	// StepTranscodeParent is a synthetic barrier step used only by
	// FULL_INGEST (§3): it has no handler body, only dependsOn edges on
	// every node of the grafted PROCESS_UPLOAD subflow, and is itself the
	// dependency that labels:upload_to_gcs waits on — modeling "the
	// transcode parent is a child of upload_to_gcs" inside one flat plan.
	StepTranscodeParent = "transcode:parent"
)

// Queue names, bit-exact.
const (
	QueueTranscode    = "transcode"
	QueueIntelligence = "intelligence"
	QueueRender       = "render"
	QueueLabels       = "labels"
)

// QueueForStep returns the durable queue a given step kind is dispatched on.
// The registry (§4.3) is closed: an unknown step kind is a wiring bug, not a
// runtime condition, so callers that hit the zero-value should treat it as
// fatal.
func QueueForStep(stepKind string) string {
	switch stepKind {
	case StepTranscodeProbe, StepTranscodeThumbnail, StepTranscodeSprite,
		StepTranscodeFilmstrip, StepTranscodeTranscode, StepTranscodeAudio,
		StepTranscodeParent:
		return QueueTranscode
	case StepRenderPrepare, StepRenderExecute, StepRenderFinalize:
		return QueueRender
	case StepLabelsUploadToGCS:
		return QueueLabels
	case StepLabelsLabelDetection, StepLabelsObjectTracking, StepLabelsFaceDetection,
		StepLabelsPersonDetection, StepLabelsSpeechTranscription:
		return QueueIntelligence
	default:
		return ""
	}
}

// StepStatus values for a StepResult.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepCancelled StepStatus = "cancelled"
)
