package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/flowforge/mediaflow/internal/platform/ctxutil"
	"github.com/flowforge/mediaflow/internal/platform/logger"
)

// VisionAnnotator implements steps.ImageAnnotator (§9: transcode:thumbnail's
// moderation/label attachment), generalized from the teacher's gcp.Vision
// client. The teacher's client runs DOCUMENT_TEXT_DETECTION against PDFs;
// this one runs SAFE_SEARCH_DETECTION + LABEL_DETECTION against the single
// extracted thumbnail frame, matching the one-shot BatchAnnotateImages
// shape but dropping the async GCS OCR path that domain has no use for.
type VisionAnnotator struct {
	log        *logger.Logger
	client     *vision.ImageAnnotatorClient
	maxRetries int
}

func NewVisionAnnotator(log *logger.Logger) (*VisionAnnotator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.VisionAnnotator")

	ctx := context.Background()
	opts := ClientOptionsFromEnv()

	c, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}

	return &VisionAnnotator{log: slog, client: c, maxRetries: 3}, nil
}

func (s *VisionAnnotator) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// AnnotateImage reads localPath off disk and runs it through SafeSearch and
// label detection in a single BatchAnnotateImages call.
func (s *VisionAnnotator) AnnotateImage(ctx context.Context, localPath string) (map[string]any, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	content, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("read thumbnail for annotation: %w", err)
	}
	if len(content) == 0 {
		return map[string]any{}, nil
	}

	req := &visionpb.AnnotateImageRequest{
		Image: &visionpb.Image{Content: content},
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_SAFE_SEARCH_DETECTION},
			{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: 10},
		},
	}
	br := &visionpb.BatchAnnotateImagesRequest{Requests: []*visionpb.AnnotateImageRequest{req}}

	resp, err := s.retryBatch(ctx, br)
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return map[string]any{}, nil
	}

	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}

	out := map[string]any{}
	if ss := r0.SafeSearchAnnotation; ss != nil {
		out["safeSearch"] = map[string]any{
			"adult":    ss.Adult.String(),
			"violence": ss.Violence.String(),
			"racy":     ss.Racy.String(),
			"medical":  ss.Medical.String(),
			"spoof":    ss.Spoof.String(),
		}
	}
	if len(r0.LabelAnnotations) > 0 {
		labels := make([]map[string]any, 0, len(r0.LabelAnnotations))
		for _, la := range r0.LabelAnnotations {
			if la == nil || strings.TrimSpace(la.Description) == "" {
				continue
			}
			labels = append(labels, map[string]any{
				"description": la.Description,
				"score":       la.Score,
			})
		}
		out["labels"] = labels
	}
	return out, nil
}

func (s *VisionAnnotator) retryBatch(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
	backoff := 500 * time.Millisecond
	var last error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := s.client.BatchAnnotateImages(ctx, req)
		if err == nil {
			return resp, nil
		}
		last = err
		if attempt == s.maxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return nil, last
}
