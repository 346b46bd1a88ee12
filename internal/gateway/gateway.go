package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nirmal141/nvidiaxdell-hack/pkg/config"
	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/metrics"
	openai "github.com/sashabaranov/go-openai"
)

// TranscriptSegment is one span of recognized speech.
type TranscriptSegment struct {
	Start float64
	End   float64
	Text  string
}

// ContextItem is one retrieved evidence row handed to the answer generator.
type ContextItem struct {
	VideoName string
	Timestamp float64
	Text      string
}

// Detection is a single detected object in a frame.
type Detection struct {
	ClassID    int
	ClassName  string
	Confidence float64
	// Box holds [x1, y1, x2, y2] normalized to 0..1.
	Box [4]float64
	// BoxPixels holds the same corners in pixel coordinates.
	BoxPixels [4]int
}

// DetectionResult is the full detector output for one frame.
type DetectionResult struct {
	Detections      []Detection
	InferenceTimeMS float64
}

// Segmentation is the segmenter output for one click point.
type Segmentation struct {
	// Polygon holds normalized [x, y] vertices outlining the mask.
	Polygon     [][2]float64
	AreaPercent float64
	Confidence  float64
}

// Describer turns a JPEG frame into a natural-language description.
type Describer interface {
	DescribeFrame(ctx context.Context, frameJPEG []byte) (string, error)
}

// Embedder produces fixed-dimension embedding vectors. Passages and queries
// are embedded with different input types so asymmetric models retrieve well.
type Embedder interface {
	EmbedPassage(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Transcriber converts an audio file into timestamped transcript segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]TranscriptSegment, error)
}

// AnswerGenerator synthesizes a grounded answer from retrieved context.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, items []ContextItem) (string, error)
}

// Detector runs object detection on a single frame.
type Detector interface {
	Detect(ctx context.Context, frameJPEG []byte, width, height int, priorityOnly bool) (DetectionResult, error)
}

// Segmenter produces an object mask around a clicked point.
type Segmenter interface {
	SegmentPoint(ctx context.Context, frameJPEG []byte, x, y float64) (Segmentation, error)
}

// Gateway owns every model collaborator client plus the process-wide
// concurrency bound protecting the GPU behind them.
type Gateway struct {
	cfg     config.ModelsConfig
	logg    *logger.Logger
	metrics *metrics.ModelCallMetrics

	vlm       *openai.Client
	llm       *openai.Client
	whisper   *openai.Client
	embedder  *nimEmbeddingClient
	detector  *visionClient
	segmenter *visionClient

	sem chan struct{}
}

// New wires clients for every collaborator endpoint in the config.
func New(cfg config.ModelsConfig, logg *logger.Logger, m *metrics.ModelCallMetrics) (*Gateway, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.MaxConcurrentCalls <= 0 {
		return nil, fmt.Errorf("max concurrent calls must be positive, got %d", cfg.MaxConcurrentCalls)
	}
	return &Gateway{
		cfg:       cfg,
		logg:      logg,
		metrics:   m,
		vlm:       newOpenAIClient(cfg.APIKey, cfg.VLMBaseURL),
		llm:       newOpenAIClient(cfg.APIKey, cfg.LLMBaseURL),
		whisper:   newOpenAIClient(cfg.APIKey, cfg.WhisperBaseURL),
		embedder:  newNIMEmbeddingClient(cfg),
		detector:  newVisionClient(cfg.DetectorBaseURL, cfg.APIKey, cfg.Timeout),
		segmenter: newVisionClient(cfg.SegmenterBaseURL, cfg.APIKey, cfg.Timeout),
		sem:       make(chan struct{}, cfg.MaxConcurrentCalls),
	}, nil
}

func newOpenAIClient(apiKey, baseURL string) *openai.Client {
	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = baseURL
	return openai.NewClientWithConfig(clientConfig)
}

// call runs fn under the concurrency bound and records latency/failures for
// the named collaborator. Waiting callers give up when their context
// deadline expires and surface a retry-later error.
func (g *Gateway) call(ctx context.Context, collaborator string, fn func(context.Context) error) error {
	select {
	case g.sem <- struct{}{}:
	default:
		select {
		case g.sem <- struct{}{}:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return pkgerrors.New(pkgerrors.CodeRateLimit, "model capacity saturated, retry later")
			}
			return ctx.Err()
		}
	}
	defer func() { <-g.sem }()

	start := time.Now()
	err := fn(ctx)
	g.metrics.ObserveDuration(collaborator, time.Since(start))
	if err != nil {
		g.metrics.IncFailure(collaborator)
	}
	return err
}
