package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	videointelligence "cloud.google.com/go/videointelligence/apiv1"
	vipb "cloud.google.com/go/videointelligence/apiv1/videointelligencepb"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/platform/ctxutil"
	"github.com/flowforge/mediaflow/internal/platform/logger"
	"github.com/flowforge/mediaflow/internal/steps"
)

// VideoIntelligence implements steps.VideoIntelligence (§4.4's labels:*
// detection steps), generalized from the teacher's gcp.Video client. The
// teacher wires one AnnotateVideo call with a fixed feature bundle
// (speech+text+shot) into a single flattened result; here each of the five
// detection step kinds maps to exactly one AnnotateVideo feature and
// produces its own domain.DetectionResult, since each runs as an
// independent labels:* step in the flow plan rather than one combined call.
type VideoIntelligence struct {
	log        *logger.Logger
	client     *videointelligence.Client
	maxRetries int
}

func NewVideoIntelligence(log *logger.Logger) (*VideoIntelligence, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.VideoIntelligence")

	ctx := context.Background()
	opts := ClientOptionsFromEnv()

	c, err := videointelligence.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("videointelligence client: %w", err)
	}

	return &VideoIntelligence{log: slog, client: c, maxRetries: 4}, nil
}

func (s *VideoIntelligence) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

var featureMap = map[steps.VideoFeature]vipb.Feature{
	steps.FeatureLabelDetection:      vipb.Feature_LABEL_DETECTION,
	steps.FeatureObjectTracking:      vipb.Feature_OBJECT_TRACKING,
	steps.FeatureFaceDetection:       vipb.Feature_FACE_DETECTION,
	steps.FeaturePersonDetection:     vipb.Feature_PERSON_DETECTION,
	steps.FeatureSpeechTranscription: vipb.Feature_SPEECH_TRANSCRIPTION,
}

// Annotate runs a single-feature AnnotateVideo call against gcsURI and
// shapes the response into a domain.DetectionResult keyed by the detected
// entity (label text, object/track id, or a synthetic face_N/person_N id).
func (s *VideoIntelligence) Annotate(ctx context.Context, gcsURI string, feature steps.VideoFeature, languageCode string) (domain.DetectionResult, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	empty := domain.DetectionResult{StepKind: string(feature), Entries: map[string][]domain.Segment{}}

	if !strings.HasPrefix(gcsURI, "gs://") {
		return empty, fmt.Errorf("gcsURI must be gs://... got %q", gcsURI)
	}
	vipbFeature, ok := featureMap[feature]
	if !ok {
		return empty, fmt.Errorf("unsupported video feature: %s", feature)
	}
	if languageCode == "" {
		languageCode = "en-US"
	}

	req := &vipb.AnnotateVideoRequest{
		InputUri: gcsURI,
		Features: []vipb.Feature{vipbFeature},
	}
	if feature == steps.FeatureSpeechTranscription {
		req.VideoContext = &vipb.VideoContext{
			SpeechTranscriptionConfig: &vipb.SpeechTranscriptionConfig{
				LanguageCode:               languageCode,
				EnableAutomaticPunctuation: true,
				EnableWordConfidence:       true,
			},
		}
	}

	resp, err := s.retryAnnotate(ctx, func() (*vipb.AnnotateVideoResponse, error) {
		op, err := s.client.AnnotateVideo(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	if err != nil {
		return empty, fmt.Errorf("videointelligence AnnotateVideo(%s): %w", feature, err)
	}
	if resp == nil || len(resp.AnnotationResults) == 0 || resp.AnnotationResults[0] == nil {
		return empty, nil
	}

	ar := resp.AnnotationResults[0]
	out := domain.DetectionResult{StepKind: string(feature), Entries: map[string][]domain.Segment{}}

	switch feature {
	case steps.FeatureLabelDetection:
		addLabelSegments(out.Entries, ar.SegmentLabelAnnotations)
		addLabelSegments(out.Entries, ar.ShotLabelAnnotations)
	case steps.FeatureObjectTracking:
		addObjectSegments(out.Entries, ar.ObjectAnnotations)
	case steps.FeatureFaceDetection:
		addTrackSegments(out.Entries, "face", ar.FaceDetectionAnnotations)
	case steps.FeaturePersonDetection:
		addPersonSegments(out.Entries, ar.PersonDetectionAnnotations)
	case steps.FeatureSpeechTranscription:
		addSpeechSegments(out.Entries, ar.SpeechTranscriptions)
	}

	return out, nil
}

func addLabelSegments(entries map[string][]domain.Segment, labels []*vipb.LabelAnnotation) {
	for _, la := range labels {
		if la == nil || la.Entity == nil || strings.TrimSpace(la.Entity.Description) == "" {
			continue
		}
		name := la.Entity.Description
		for _, seg := range la.Segments {
			if seg == nil || seg.Segment == nil {
				continue
			}
			entries[name] = append(entries[name], domain.Segment{
				Text:       name,
				StartSec:   durToSecVI(seg.Segment.StartTimeOffset),
				EndSec:     durToSecVI(seg.Segment.EndTimeOffset),
				Confidence: float64(seg.Confidence),
				Metadata:   map[string]any{"kind": "label", "provider": "gcp_videointelligence"},
			})
		}
	}
}

func addObjectSegments(entries map[string][]domain.Segment, objs []*vipb.ObjectTrackingAnnotation) {
	for _, o := range objs {
		if o == nil {
			continue
		}
		name := fmt.Sprintf("object_%d", o.GetTrackId())
		if o.Entity != nil && strings.TrimSpace(o.Entity.Description) != "" {
			name = o.Entity.Description
		}
		seg := o.GetSegment()
		if seg == nil {
			continue
		}
		entries[name] = append(entries[name], domain.Segment{
			Text:       name,
			StartSec:   durToSecVI(seg.StartTimeOffset),
			EndSec:     durToSecVI(seg.EndTimeOffset),
			Confidence: float64(o.Confidence),
			Metadata:   map[string]any{"kind": "object_track", "provider": "gcp_videointelligence", "trackId": o.GetTrackId()},
		})
	}
}

func addTrackSegments(entries map[string][]domain.Segment, prefix string, anns []*vipb.FaceDetectionAnnotation) {
	for i, fa := range anns {
		if fa == nil {
			continue
		}
		name := fmt.Sprintf("%s_%d", prefix, i)
		for _, tr := range fa.Tracks {
			if tr == nil || tr.Segment == nil {
				continue
			}
			entries[name] = append(entries[name], domain.Segment{
				Text:       name,
				StartSec:   durToSecVI(tr.Segment.StartTimeOffset),
				EndSec:     durToSecVI(tr.Segment.EndTimeOffset),
				Confidence: float64(tr.Confidence),
				Metadata:   map[string]any{"kind": "face_track", "provider": "gcp_videointelligence"},
			})
		}
	}
}

func addPersonSegments(entries map[string][]domain.Segment, anns []*vipb.PersonDetectionAnnotation) {
	for i, pa := range anns {
		if pa == nil {
			continue
		}
		name := fmt.Sprintf("person_%d", i)
		for _, tr := range pa.Tracks {
			if tr == nil || tr.Segment == nil {
				continue
			}
			entries[name] = append(entries[name], domain.Segment{
				Text:       name,
				StartSec:   durToSecVI(tr.Segment.StartTimeOffset),
				EndSec:     durToSecVI(tr.Segment.EndTimeOffset),
				Confidence: float64(tr.Confidence),
				Metadata:   map[string]any{"kind": "person_track", "provider": "gcp_videointelligence"},
			})
		}
	}
}

func addSpeechSegments(entries map[string][]domain.Segment, st []*vipb.SpeechTranscription) {
	for _, tr := range st {
		if tr == nil || len(tr.Alternatives) == 0 || tr.Alternatives[0] == nil {
			continue
		}
		alt := tr.Alternatives[0]
		txt := strings.TrimSpace(alt.Transcript)
		if txt == "" {
			continue
		}
		start, end := 0.0, 0.0
		if len(alt.Words) > 0 {
			start = durToSecVI(alt.Words[0].StartTime)
			end = durToSecVI(alt.Words[len(alt.Words)-1].EndTime)
		}
		entries["transcript"] = append(entries["transcript"], domain.Segment{
			Text:       txt,
			StartSec:   start,
			EndSec:     end,
			Confidence: float64(alt.Confidence),
			Metadata:   map[string]any{"kind": "transcript", "provider": "gcp_videointelligence"},
		})
	}
}

func durToSecVI(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}

func (s *VideoIntelligence) retryAnnotate(ctx context.Context, fn func() (*vipb.AnnotateVideoResponse, error)) (*vipb.AnnotateVideoResponse, error) {
	backoff := 750 * time.Millisecond
	var last error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		last = err

		code := status.Code(err)
		if code != codes.Unavailable && code != codes.ResourceExhausted && code != codes.DeadlineExceeded {
			return nil, err
		}
		if attempt == s.maxRetries {
			break
		}

		time.Sleep(backoff)
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, last
}
