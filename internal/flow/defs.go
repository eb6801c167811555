// Package flow builds and validates FlowPlans from Task records (§4.2, §4.8).
package flow

import "github.com/flowforge/mediaflow/internal/domain"

// stepDef is one entry of a task kind's flow definition: the fixed edge
// table the builder is never allowed to invent edges outside of (§4.2).
type stepDef struct {
	kind      string
	required  bool
	dependsOn []string
	// gate reports whether this optional step is enabled for a given
	// decoded payload. nil for required steps.
	gate func(payload any) bool
}

// flowDef is the compile-time constant table for one task kind (§3's "Flow
// Definitions"). Order of steps matters: it is the deterministic ordering
// invariant 1 in §8 relies on for independent siblings.
type flowDef struct {
	queueName func(stepKind string) string
	steps     []stepDef
}

func upload(p any) *domain.ProcessUploadPayload {
	v, _ := p.(*domain.ProcessUploadPayload)
	return v
}

func labels(p any) *domain.DetectLabelsPayload {
	v, _ := p.(*domain.DetectLabelsPayload)
	return v
}

var processUploadDef = flowDef{
	queueName: domain.QueueForStep,
	steps: []stepDef{
		{kind: domain.StepTranscodeProbe, required: true},
		{kind: domain.StepTranscodeThumbnail, gate: func(p any) bool { return upload(p).Thumbnail != nil }},
		{kind: domain.StepTranscodeSprite, gate: func(p any) bool { return upload(p).Sprite != nil }},
		{kind: domain.StepTranscodeFilmstrip, gate: func(p any) bool { return upload(p).Filmstrip != nil }},
		{kind: domain.StepTranscodeTranscode, gate: func(p any) bool {
			o := upload(p).Transcode
			return o != nil && o.Enabled
		}},
		{kind: domain.StepTranscodeAudio, gate: func(p any) bool {
			o := upload(p).Audio
			return o != nil && o.Enabled
		}},
	},
}

var detectLabelsDef = flowDef{
	queueName: domain.QueueForStep,
	steps: []stepDef{
		{kind: domain.StepLabelsUploadToGCS, required: true},
		{kind: domain.StepLabelsLabelDetection, dependsOn: []string{domain.StepLabelsUploadToGCS},
			gate: func(p any) bool { return labels(p).LabelDetection }},
		{kind: domain.StepLabelsObjectTracking, dependsOn: []string{domain.StepLabelsUploadToGCS},
			gate: func(p any) bool { return labels(p).ObjectTracking }},
		{kind: domain.StepLabelsFaceDetection, dependsOn: []string{domain.StepLabelsUploadToGCS},
			gate: func(p any) bool { return labels(p).FaceDetection }},
		{kind: domain.StepLabelsPersonDetection, dependsOn: []string{domain.StepLabelsUploadToGCS},
			gate: func(p any) bool { return labels(p).PersonDetection }},
		{kind: domain.StepLabelsSpeechTranscription, dependsOn: []string{domain.StepLabelsUploadToGCS},
			gate: func(p any) bool { return labels(p).SpeechTranscription }},
	},
}

var renderTimelineDef = flowDef{
	queueName: domain.QueueForStep,
	steps: []stepDef{
		{kind: domain.StepRenderPrepare, required: true},
		{kind: domain.StepRenderExecute, required: true, dependsOn: []string{domain.StepRenderPrepare}},
		{kind: domain.StepRenderFinalize, required: true, dependsOn: []string{domain.StepRenderExecute}},
	},
}
