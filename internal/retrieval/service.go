package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nirmal141/nvidiaxdell-hack/internal/evidence"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/config"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/db/models"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/enums"
	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/metrics"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/redis"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/types"
)

// Result is one retrieved piece of evidence, ranked by similarity to the
// question. TimeLabel carries the bracketed [mm:ss] form used in answers.
type Result struct {
	VideoID   uuid.UUID      `json:"video_id"`
	VideoName string         `json:"video_name"`
	Timestamp float64        `json:"timestamp"`
	TimeLabel string         `json:"time_label"`
	Modality  enums.Modality `json:"modality"`
	Text      string         `json:"text"`
	Score     float64        `json:"score"`
}

// Query describes a semantic search. A nil VideoID searches across every
// ingested video; TopK <= 0 falls back to the configured default.
type Query struct {
	Question string
	VideoID  *uuid.UUID
	TopK     int
}

type queryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
}

type candidateStore interface {
	Search(ctx context.Context, vector []float32, videoID *uuid.UUID, limit int) ([]evidence.Candidate, error)
}

type videoStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
}

type Service interface {
	Search(ctx context.Context, query Query) ([]Result, error)
}

type service struct {
	evidence candidateStore
	videos   videoStore
	embedder queryEmbedder
	cache    redis.EmbeddingCache
	cfg      config.RetrievalConfig
	logger   *logger.Logger
	metrics  *metrics.SearchMetrics
}

// NewService builds the retrieval service. The embedding cache is optional;
// everything else is required.
func NewService(
	evidenceStore candidateStore,
	videos videoStore,
	embedder queryEmbedder,
	cache redis.EmbeddingCache,
	cfg config.RetrievalConfig,
	logg *logger.Logger,
	m *metrics.SearchMetrics,
) (Service, error) {
	if evidenceStore == nil {
		return nil, fmt.Errorf("evidence store required")
	}
	if videos == nil {
		return nil, fmt.Errorf("video store required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("query embedder required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		evidence: evidenceStore,
		videos:   videos,
		embedder: embedder,
		cache:    cache,
		cfg:      cfg,
		logger:   logg,
		metrics:  m,
	}, nil
}

func (s *service) Search(ctx context.Context, query Query) ([]Result, error) {
	started := time.Now()

	question := strings.TrimSpace(query.Question)
	if question == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "question is required")
	}

	scope := "global"
	if query.VideoID != nil {
		scope = "video"
		video, err := s.videos.FindByID(ctx, *query.VideoID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "video not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading video")
		}
		if video.Status != enums.VideoStatusCompleted {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "video has not been processed yet").
				WithDetails(map[string]any{"status": video.Status})
		}
	}

	topK := s.effectiveTopK(query.TopK, query.VideoID == nil)
	vector, err := s.queryVector(ctx, question)
	if err != nil {
		return nil, err
	}

	poolSize := topK * s.cfg.CandidateMultiplier
	if poolSize < topK {
		poolSize = topK
	}
	candidates, err := s.evidence.Search(ctx, vector, query.VideoID, poolSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "searching evidence")
	}

	deduped := dedupeWindows(candidates, s.cfg.WindowSeconds)
	if len(deduped) > topK {
		deduped = deduped[:topK]
	}

	results := make([]Result, 0, len(deduped))
	for _, c := range deduped {
		results = append(results, Result{
			VideoID:   c.VideoID,
			VideoName: c.VideoName,
			Timestamp: c.Timestamp,
			TimeLabel: types.FormatTimestamp(c.Timestamp),
			Modality:  c.Modality,
			Text:      c.Text,
			Score:     c.Score,
		})
	}

	s.metrics.ObserveSearch(scope, time.Since(started), len(results))
	s.logger.Debug(s.logger.WithFields(ctx, map[string]any{
		"scope":      scope,
		"candidates": len(candidates),
		"results":    len(results),
	}), "search completed")
	return results, nil
}

func (s *service) effectiveTopK(requested int, global bool) int {
	topK := requested
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	if global && topK > s.cfg.GlobalTopK {
		topK = s.cfg.GlobalTopK
	}
	if topK < 1 {
		topK = 1
	}
	return topK
}

// queryVector embeds the question, consulting the Redis cache first so
// repeated questions skip a model round trip. Cache write failures are logged
// and ignored.
func (s *service) queryVector(ctx context.Context, question string) ([]float32, error) {
	model := s.embedder.Model()
	if s.cache != nil {
		if vector, ok := s.cache.CachedEmbedding(ctx, model, question); ok {
			return vector, nil
		}
	}

	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeRateLimit) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeModelCall, err, "embedding the question failed")
	}

	if s.cache != nil {
		if err := s.cache.StoreEmbedding(ctx, model, question, vector); err != nil {
			s.logger.Warn(ctx, fmt.Sprintf("caching query embedding failed: %v", err))
		}
	}
	return vector, nil
}

type windowKey struct {
	videoID uuid.UUID
	window  int64
}

// dedupeWindows keeps the best-scoring candidate per (video, time window) so
// long static scenes do not crowd out the rest of the results. Output is
// sorted by score descending.
func dedupeWindows(candidates []evidence.Candidate, windowSeconds float64) []evidence.Candidate {
	if windowSeconds <= 0 {
		windowSeconds = 1
	}

	best := make(map[windowKey]evidence.Candidate)
	for _, c := range candidates {
		key := windowKey{
			videoID: c.VideoID,
			window:  int64(math.Floor(c.Timestamp / windowSeconds)),
		}
		if kept, ok := best[key]; !ok || c.Score > kept.Score {
			best[key] = c
		}
	}

	out := make([]evidence.Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}
