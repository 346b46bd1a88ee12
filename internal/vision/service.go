package vision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nirmal141/nvidiaxdell-hack/internal/gateway"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/db/models"
	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/types"
)

// defaultConfidence filters detector output when the caller does not set a
// threshold.
const defaultConfidence = 0.5

// priorityClasses are the COCO class ids surfaced when a caller asks for
// priority-only detection: people, vehicles and common carried objects.
var priorityClasses = map[int]bool{
	0:  true, // person
	1:  true, // bicycle
	2:  true, // car
	3:  true, // motorcycle
	5:  true, // bus
	7:  true, // truck
	24: true, // backpack
	26: true, // handbag
	28: true, // suitcase
	39: true, // bottle
	41: true, // cup
	43: true, // knife
	67: true, // cell phone
	73: true, // laptop
}

var vehicleClasses = map[int]bool{1: true, 2: true, 3: true, 5: true, 7: true}

// DetectRequest asks for object detection on one frame. Confidence <= 0
// falls back to the default threshold.
type DetectRequest struct {
	VideoID      uuid.UUID
	Timestamp    float64
	Confidence   float64
	PriorityOnly bool
}

// Detection is one detected object with both normalized and pixel boxes.
type Detection struct {
	ClassID    int        `json:"class_id"`
	ClassName  string     `json:"class_name"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"bbox"`
	BoxPixels  [4]int     `json:"bbox_pixels"`
	Priority   bool       `json:"priority"`
}

// DetectReport is the full detection result for one frame, with per-class
// counts and the people/vehicle aggregates dashboards key on.
type DetectReport struct {
	VideoID         uuid.UUID      `json:"video_id"`
	Timestamp       float64        `json:"timestamp"`
	TimeLabel       string         `json:"time_label"`
	Detections      []Detection    `json:"detections"`
	Counts          map[string]int `json:"counts"`
	People          int            `json:"people"`
	Vehicles        int            `json:"vehicles"`
	InferenceTimeMS float64        `json:"inference_time_ms"`
}

// SegmentRequest asks for an object mask around a clicked point. X and Y are
// normalized to 0..1 within the frame.
type SegmentRequest struct {
	VideoID   uuid.UUID
	Timestamp float64
	X         float64
	Y         float64
}

// SegmentReport is the mask produced for one click.
type SegmentReport struct {
	VideoID     uuid.UUID    `json:"video_id"`
	Timestamp   float64      `json:"timestamp"`
	TimeLabel   string       `json:"time_label"`
	Polygon     [][2]float64 `json:"polygon"`
	AreaPercent float64      `json:"area_percent"`
	Confidence  float64      `json:"confidence"`
}

type videoStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
}

type frameExtractor interface {
	ExtractFrame(ctx context.Context, videoPath string, at float64, outPath string) error
}

type Service interface {
	Detect(ctx context.Context, req DetectRequest) (*DetectReport, error)
	Segment(ctx context.Context, req SegmentRequest) (*SegmentReport, error)
}

type service struct {
	videos    videoStore
	extractor frameExtractor
	detector  gateway.Detector
	segmenter gateway.Segmenter
	logger    *logger.Logger
}

func NewService(videos videoStore, extractor frameExtractor, detector gateway.Detector, segmenter gateway.Segmenter, logg *logger.Logger) (Service, error) {
	if videos == nil {
		return nil, fmt.Errorf("video store required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("frame extractor required")
	}
	if detector == nil {
		return nil, fmt.Errorf("detector required")
	}
	if segmenter == nil {
		return nil, fmt.Errorf("segmenter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{videos: videos, extractor: extractor, detector: detector, segmenter: segmenter, logger: logg}, nil
}

func (s *service) Detect(ctx context.Context, req DetectRequest) (*DetectReport, error) {
	video, frame, err := s.frameAt(ctx, req.VideoID, req.Timestamp)
	if err != nil {
		return nil, err
	}

	result, err := s.detector.Detect(ctx, frame, video.Width, video.Height, req.PriorityOnly)
	if err != nil {
		return nil, err
	}

	threshold := req.Confidence
	if threshold <= 0 {
		threshold = defaultConfidence
	}

	report := &DetectReport{
		VideoID:         video.ID,
		Timestamp:       req.Timestamp,
		TimeLabel:       types.FormatTimestamp(req.Timestamp),
		Detections:      []Detection{},
		Counts:          map[string]int{},
		InferenceTimeMS: result.InferenceTimeMS,
	}
	for _, d := range result.Detections {
		if d.Confidence < threshold {
			continue
		}
		if req.PriorityOnly && !priorityClasses[d.ClassID] {
			continue
		}
		report.Detections = append(report.Detections, Detection{
			ClassID:    d.ClassID,
			ClassName:  d.ClassName,
			Confidence: d.Confidence,
			Box:        d.Box,
			BoxPixels:  d.BoxPixels,
			Priority:   priorityClasses[d.ClassID],
		})
		report.Counts[d.ClassName]++
		if d.ClassID == 0 {
			report.People++
		}
		if vehicleClasses[d.ClassID] {
			report.Vehicles++
		}
	}
	return report, nil
}

func (s *service) Segment(ctx context.Context, req SegmentRequest) (*SegmentReport, error) {
	if req.X < 0 || req.X > 1 || req.Y < 0 || req.Y > 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "click point must be normalized to 0..1").
			WithDetails(map[string]interface{}{"x": req.X, "y": req.Y})
	}

	_, frame, err := s.frameAt(ctx, req.VideoID, req.Timestamp)
	if err != nil {
		return nil, err
	}

	mask, err := s.segmenter.SegmentPoint(ctx, frame, req.X, req.Y)
	if err != nil {
		return nil, err
	}

	return &SegmentReport{
		VideoID:     req.VideoID,
		Timestamp:   req.Timestamp,
		TimeLabel:   types.FormatTimestamp(req.Timestamp),
		Polygon:     mask.Polygon,
		AreaPercent: mask.AreaPercent,
		Confidence:  mask.Confidence,
	}, nil
}

// frameAt validates the request window and extracts the frame as JPEG bytes.
func (s *service) frameAt(ctx context.Context, videoID uuid.UUID, timestamp float64) (*models.Video, []byte, error) {
	if timestamp < 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "timestamp must be non-negative")
	}

	video, err := s.videos.FindByID(ctx, videoID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "video not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading video")
	}
	if video.Duration > 0 && timestamp > video.Duration {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "timestamp is beyond the end of the video").
			WithDetails(map[string]interface{}{"duration": video.Duration})
	}

	tmp, err := os.MkdirTemp("", "sentio-frame-*")
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating scratch dir")
	}
	defer os.RemoveAll(tmp)

	framePath := filepath.Join(tmp, "frame.jpg")
	if err := s.extractor.ExtractFrame(ctx, video.FilePath, timestamp, framePath); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "extracting frame")
	}
	frame, err := os.ReadFile(framePath)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reading frame")
	}
	return video, frame, nil
}
