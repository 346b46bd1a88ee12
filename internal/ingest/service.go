package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nirmal141/nvidiaxdell-hack/internal/gateway"
	"github.com/nirmal141/nvidiaxdell-hack/internal/jobs"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/config"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/db/models"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/enums"
	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/metrics"
)

type describeClient interface {
	DescribeFrame(ctx context.Context, frameJPEG []byte) (string, error)
}

type embedClient interface {
	EmbedPassage(ctx context.Context, text string) ([]float32, error)
}

type transcribeClient interface {
	Transcribe(ctx context.Context, audioPath string) ([]gateway.TranscriptSegment, error)
}

type mediaExtractor interface {
	ExtractFrame(ctx context.Context, videoPath string, at float64, outPath string) error
	ExtractAudio(ctx context.Context, videoPath, outPath string) error
}

type evidenceStore interface {
	Upsert(ctx context.Context, record *models.EvidenceRecord) error
	DeleteForVideo(ctx context.Context, videoID uuid.UUID) error
}

type videoStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.VideoStatus, processedAt *time.Time) error
}

// StopResult reports what a stop request found. State is "cancelling" when
// a live job acknowledged the request and "idle" when there was nothing to
// stop; the latter is a successful no-op.
type StopResult struct {
	State string `json:"state"`
}

// StatusSnapshot combines the durable video status with the live job, when
// one exists.
type StatusSnapshot struct {
	VideoID     uuid.UUID         `json:"video_id"`
	VideoStatus enums.VideoStatus `json:"video_status"`
	Job         *jobs.Event       `json:"job,omitempty"`
}

// Service drives video ingestion jobs.
type Service interface {
	Start(ctx context.Context, videoID uuid.UUID) (jobs.Event, error)
	Stop(ctx context.Context, videoID uuid.UUID) StopResult
	Status(ctx context.Context, videoID uuid.UUID) (StatusSnapshot, error)
}

type service struct {
	videos      videoStore
	evidence    evidenceStore
	registry    *jobs.Registry
	describer   describeClient
	embedder    embedClient
	transcriber transcribeClient
	extractor   mediaExtractor
	cfg         config.IngestConfig
	logg        *logger.Logger
	metrics     *metrics.IngestMetrics
	workers     chan struct{}
}

// NewService wires the ingestion pipeline.
func NewService(
	videos videoStore,
	evidence evidenceStore,
	registry *jobs.Registry,
	describer describeClient,
	embedder embedClient,
	transcriber transcribeClient,
	extractor mediaExtractor,
	cfg config.IngestConfig,
	logg *logger.Logger,
	m *metrics.IngestMetrics,
) (Service, error) {
	if videos == nil {
		return nil, fmt.Errorf("video store required")
	}
	if evidence == nil {
		return nil, fmt.Errorf("evidence store required")
	}
	if registry == nil {
		return nil, fmt.Errorf("job registry required")
	}
	if describer == nil || embedder == nil || transcriber == nil {
		return nil, fmt.Errorf("model gateway required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("media extractor required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	return &service{
		videos:      videos,
		evidence:    evidence,
		registry:    registry,
		describer:   describer,
		embedder:    embedder,
		transcriber: transcriber,
		extractor:   extractor,
		cfg:         cfg,
		logg:        logg,
		metrics:     m,
		workers:     make(chan struct{}, poolSize),
	}, nil
}

// Start registers a job and launches the background pipeline. The returned
// event is the job's initial snapshot.
func (s *service) Start(ctx context.Context, videoID uuid.UUID) (jobs.Event, error) {
	video, err := s.videos.FindByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jobs.Event{}, pkgerrors.New(pkgerrors.CodeNotFound, "video not found")
		}
		return jobs.Event{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading video")
	}

	handle, err := s.registry.Start(videoID)
	if err != nil {
		return jobs.Event{}, err
	}

	total := int(math.Ceil(video.Duration / s.cfg.FrameInterval.Seconds()))
	if total < 1 {
		total = 1
	}
	handle.SetTotal(total)

	if err := s.videos.UpdateStatus(ctx, videoID, enums.VideoStatusProcessing, nil); err != nil {
		handle.Fail("could not mark video as processing")
		return jobs.Event{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating video status")
	}

	go s.run(video, handle, total)

	snapshot, _ := s.registry.Snapshot(videoID)
	return snapshot, nil
}

// Stop requests cooperative cancellation. Idempotent: stopping a video with
// no live job succeeds with state "idle".
func (s *service) Stop(ctx context.Context, videoID uuid.UUID) StopResult {
	if s.registry.RequestCancel(videoID) {
		return StopResult{State: "cancelling"}
	}
	return StopResult{State: "idle"}
}

// Status returns the live job snapshot when one exists, falling back to the
// durable video status.
func (s *service) Status(ctx context.Context, videoID uuid.UUID) (StatusSnapshot, error) {
	video, err := s.videos.FindByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StatusSnapshot{}, pkgerrors.New(pkgerrors.CodeNotFound, "video not found")
		}
		return StatusSnapshot{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading video")
	}

	snapshot := StatusSnapshot{VideoID: videoID, VideoStatus: video.Status}
	if event, ok := s.registry.Snapshot(videoID); ok {
		snapshot.Job = &event
	}
	return snapshot, nil
}
