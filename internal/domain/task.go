package domain

import "time"

/*
Task is the externally owned unit of user-visible work (§3). The engine
reads task.kind/payload and writes only status/progress/result/errorLog/
startedAt/completedAt — never anything else. Everything else on this struct
belongs to the web application that created it.
*/
type Task struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspaceId"`
	Kind        string         `json:"kind"`
	Status      string         `json:"status"`
	Payload     map[string]any `json:"payload"`
	Result      map[string]any `json:"result,omitempty"`
	Progress    float64        `json:"progress"`
	ErrorLog    string         `json:"errorLog,omitempty"`
	CreatedBy   string         `json:"createdBy,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`

	// ParentJobID links the task to the FlowPlan's parent job on the queue
	// backend once the enqueuer has submitted the flow. Empty while queued.
	ParentJobID string `json:"parentJobId,omitempty"`
}

// IsTerminal reports whether status is write-once-terminal per the
// invariant in §3.
func IsTerminal(status string) bool {
	switch status {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// ProcessUploadPayload is the payload shape for PROCESS_UPLOAD tasks.
type ProcessUploadPayload struct {
	UploadID  string             `json:"uploadId"`
	Thumbnail *ThumbnailOptions  `json:"thumbnail,omitempty"`
	Sprite    *SpriteOptions     `json:"sprite,omitempty"`
	Filmstrip *FilmstripOptions  `json:"filmstrip,omitempty"`
	Transcode *TranscodeOptions  `json:"transcode,omitempty"`
	Audio     *AudioOptions      `json:"audio,omitempty"`
}

type ThumbnailOptions struct {
	TimestampSec float64 `json:"ts"`
	Width        int     `json:"w"`
	Height       int     `json:"h"`
}

type SpriteOptions struct {
	FPS         float64 `json:"fps"`
	Cols        int     `json:"cols"`
	Rows        int     `json:"rows"`
	TileWidth   int     `json:"tw"`
	TileHeight  int     `json:"th"`
}

type FilmstripOptions struct {
	FPS        float64 `json:"fps"`
	TileWidth  int     `json:"tw"`
	TileHeight int     `json:"th"`
	Count      int     `json:"count"`
}

type TranscodeOptions struct {
	Enabled    bool   `json:"enabled"`
	Codec      string `json:"codec"`
	Resolution string `json:"res"`
}

type AudioOptions struct {
	Enabled           bool `json:"enabled"`
	TranscribePreview bool `json:"transcribePreview"`
}

// DetectLabelsPayload is the payload shape for DETECT_LABELS tasks.
type DetectLabelsPayload struct {
	UploadID             string `json:"uploadId"`
	LabelDetection       bool   `json:"labelDetection"`
	ObjectTracking       bool   `json:"objectTracking"`
	FaceDetection        bool   `json:"faceDetection"`
	PersonDetection      bool   `json:"personDetection"`
	SpeechTranscription  bool   `json:"speechTranscription"`
	LanguageCode         string `json:"languageCode,omitempty"`
}

func (p DetectLabelsPayload) AnyDetectionEnabled() bool {
	return p.LabelDetection || p.ObjectTracking || p.FaceDetection ||
		p.PersonDetection || p.SpeechTranscription
}

// RenderTrack describes one track in a RENDER_TIMELINE payload. Kept
// intentionally shallow: the engine never interprets track contents, only
// passes them through to the render:prepare step.
type RenderTrack struct {
	ID   string         `json:"id"`
	Kind string         `json:"kind"`
	Data map[string]any `json:"data,omitempty"`
}

type OutputSettings struct {
	Codec      string `json:"codec"`
	Format     string `json:"format"`
	Resolution string `json:"resolution"`
}

// RenderTimelinePayload is the payload shape for RENDER_TIMELINE tasks.
type RenderTimelinePayload struct {
	TimelineID     string         `json:"timelineId"`
	Version        int            `json:"version"`
	Tracks         []RenderTrack  `json:"tracks"`
	OutputSettings OutputSettings `json:"outputSettings"`
}

// FullIngestPayload is the payload shape for FULL_INGEST tasks: a
// PROCESS_UPLOAD payload for the transcode subflow grafted as a dependency
// of the labels subflow's upload_to_gcs node, plus the detection flags for
// the labels subflow.
type FullIngestPayload struct {
	Upload ProcessUploadPayload `json:"upload"`
	Labels DetectLabelsPayload  `json:"labels"`
}
