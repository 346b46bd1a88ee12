package vision

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/nirmal141/nvidiaxdell-hack/internal/gateway"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/db/models"
	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
)

type stubVideos struct {
	video *models.Video
}

func (s *stubVideos) FindByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	if s.video != nil && s.video.ID == id {
		return s.video, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type stubExtractor struct {
	lastAt float64
	err    error
}

func (s *stubExtractor) ExtractFrame(ctx context.Context, videoPath string, at float64, outPath string) error {
	s.lastAt = at
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(outPath, []byte("jpeg"), 0o644)
}

type stubDetector struct {
	result    gateway.DetectionResult
	lastW     int
	lastH     int
	lastPrio  bool
	lastFrame []byte
}

func (s *stubDetector) Detect(ctx context.Context, frameJPEG []byte, width, height int, priorityOnly bool) (gateway.DetectionResult, error) {
	s.lastFrame = frameJPEG
	s.lastW, s.lastH, s.lastPrio = width, height, priorityOnly
	return s.result, nil
}

type stubSegmenter struct {
	mask  gateway.Segmentation
	lastX float64
	lastY float64
}

func (s *stubSegmenter) SegmentPoint(ctx context.Context, frameJPEG []byte, x, y float64) (gateway.Segmentation, error) {
	s.lastX, s.lastY = x, y
	return s.mask, nil
}

func detection(classID int, className string, confidence float64) gateway.Detection {
	return gateway.Detection{
		ClassID:    classID,
		ClassName:  className,
		Confidence: confidence,
		Box:        [4]float64{0.1, 0.1, 0.5, 0.5},
		BoxPixels:  [4]int{192, 108, 960, 540},
	}
}

func newVisionService(t *testing.T, videos *stubVideos, extractor *stubExtractor, detector *stubDetector, segmenter *stubSegmenter) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	svc, err := NewService(videos, extractor, detector, segmenter, logg)
	if err != nil {
		t.Fatalf("building service: %v", err)
	}
	return svc
}

func testVisionVideo() *models.Video {
	return &models.Video{
		ID:       uuid.New(),
		Name:     "lobby cam",
		FilePath: "/data/videos/lobby.mp4",
		Duration: 120,
		Width:    1920,
		Height:   1080,
	}
}

func TestDetectAggregatesCounts(t *testing.T) {
	video := testVisionVideo()
	detector := &stubDetector{result: gateway.DetectionResult{
		Detections: []gateway.Detection{
			detection(0, "person", 0.91),
			detection(0, "person", 0.85),
			detection(2, "car", 0.77),
			detection(56, "chair", 0.95),
		},
		InferenceTimeMS: 41.5,
	}}
	svc := newVisionService(t, &stubVideos{video: video}, &stubExtractor{}, detector, &stubSegmenter{})

	report, err := svc.Detect(context.Background(), DetectRequest{VideoID: video.ID, Timestamp: 75})
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if len(report.Detections) != 4 {
		t.Fatalf("expected 4 detections, got %d", len(report.Detections))
	}
	if report.People != 2 || report.Vehicles != 1 {
		t.Fatalf("unexpected aggregates: people=%d vehicles=%d", report.People, report.Vehicles)
	}
	if report.Counts["person"] != 2 || report.Counts["car"] != 1 || report.Counts["chair"] != 1 {
		t.Fatalf("unexpected counts: %v", report.Counts)
	}
	if report.TimeLabel != "[01:15]" {
		t.Fatalf("unexpected label %s", report.TimeLabel)
	}
	if report.InferenceTimeMS != 41.5 {
		t.Fatalf("inference time not forwarded")
	}
	if detector.lastW != 1920 || detector.lastH != 1080 {
		t.Fatalf("frame dimensions not forwarded: %dx%d", detector.lastW, detector.lastH)
	}
}

func TestDetectFiltersByConfidence(t *testing.T) {
	video := testVisionVideo()
	detector := &stubDetector{result: gateway.DetectionResult{
		Detections: []gateway.Detection{
			detection(0, "person", 0.91),
			detection(0, "person", 0.31),
		},
	}}
	svc := newVisionService(t, &stubVideos{video: video}, &stubExtractor{}, detector, &stubSegmenter{})

	report, err := svc.Detect(context.Background(), DetectRequest{VideoID: video.ID, Timestamp: 10})
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if len(report.Detections) != 1 || report.People != 1 {
		t.Fatalf("default threshold should drop the weak detection: %+v", report)
	}
}

func TestDetectPriorityOnlyDropsOtherClasses(t *testing.T) {
	video := testVisionVideo()
	detector := &stubDetector{result: gateway.DetectionResult{
		Detections: []gateway.Detection{
			detection(0, "person", 0.9),
			detection(56, "chair", 0.9),
			detection(43, "knife", 0.8),
		},
	}}
	svc := newVisionService(t, &stubVideos{video: video}, &stubExtractor{}, detector, &stubSegmenter{})

	report, err := svc.Detect(context.Background(), DetectRequest{VideoID: video.ID, Timestamp: 10, PriorityOnly: true})
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if !detector.lastPrio {
		t.Fatalf("priority flag not forwarded to the detector")
	}
	if len(report.Detections) != 2 {
		t.Fatalf("expected chair to be dropped, got %+v", report.Detections)
	}
	for _, d := range report.Detections {
		if !d.Priority {
			t.Fatalf("non-priority detection survived: %+v", d)
		}
	}
}

func TestDetectUnknownVideo(t *testing.T) {
	svc := newVisionService(t, &stubVideos{}, &stubExtractor{}, &stubDetector{}, &stubSegmenter{})

	_, err := svc.Detect(context.Background(), DetectRequest{VideoID: uuid.New(), Timestamp: 1})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDetectTimestampBeyondDuration(t *testing.T) {
	video := testVisionVideo()
	svc := newVisionService(t, &stubVideos{video: video}, &stubExtractor{}, &stubDetector{}, &stubSegmenter{})

	_, err := svc.Detect(context.Background(), DetectRequest{VideoID: video.ID, Timestamp: 500})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSegmentForwardsClickPoint(t *testing.T) {
	video := testVisionVideo()
	segmenter := &stubSegmenter{mask: gateway.Segmentation{
		Polygon:     [][2]float64{{0.1, 0.1}, {0.4, 0.1}, {0.4, 0.6}},
		AreaPercent: 12.5,
		Confidence:  0.88,
	}}
	extractor := &stubExtractor{}
	svc := newVisionService(t, &stubVideos{video: video}, extractor, &stubDetector{}, segmenter)

	report, err := svc.Segment(context.Background(), SegmentRequest{VideoID: video.ID, Timestamp: 30, X: 0.25, Y: 0.4})
	if err != nil {
		t.Fatalf("segment failed: %v", err)
	}
	if segmenter.lastX != 0.25 || segmenter.lastY != 0.4 {
		t.Fatalf("click point not forwarded: %v %v", segmenter.lastX, segmenter.lastY)
	}
	if extractor.lastAt != 30 {
		t.Fatalf("frame extracted at wrong offset: %v", extractor.lastAt)
	}
	if len(report.Polygon) != 3 || report.AreaPercent != 12.5 {
		t.Fatalf("mask not forwarded: %+v", report)
	}
	if report.TimeLabel != "[00:30]" {
		t.Fatalf("unexpected label %s", report.TimeLabel)
	}
}

func TestSegmentRejectsUnnormalizedPoint(t *testing.T) {
	video := testVisionVideo()
	svc := newVisionService(t, &stubVideos{video: video}, &stubExtractor{}, &stubDetector{}, &stubSegmenter{})

	_, err := svc.Segment(context.Background(), SegmentRequest{VideoID: video.ID, Timestamp: 10, X: 480, Y: 270})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
