package retrieval

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/nirmal141/nvidiaxdell-hack/internal/evidence"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/config"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/db/models"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/enums"
	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/redis"
)

type stubEmbedder struct {
	calls  int
	vector []float32
	err    error
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

func (s *stubEmbedder) Model() string { return "nvidia/nv-embed-qa" }

type stubCandidateStore struct {
	candidates []evidence.Candidate
	lastLimit  int
	lastVideo  *uuid.UUID
	err        error
}

func (s *stubCandidateStore) Search(ctx context.Context, vector []float32, videoID *uuid.UUID, limit int) ([]evidence.Candidate, error) {
	s.lastLimit = limit
	s.lastVideo = videoID
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.candidates) {
		return s.candidates[:limit], nil
	}
	return s.candidates, nil
}

type stubVideoStore struct {
	known  map[uuid.UUID]bool
	status enums.VideoStatus
}

func (s *stubVideoStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	if s.known[id] {
		status := s.status
		if status == "" {
			status = enums.VideoStatusCompleted
		}
		return &models.Video{ID: id, Status: status}, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type stubCache struct {
	entries map[string][]float32
	stores  int
}

func (s *stubCache) CachedEmbedding(ctx context.Context, model, text string) ([]float32, bool) {
	vector, ok := s.entries[model+"|"+text]
	return vector, ok
}

func (s *stubCache) StoreEmbedding(ctx context.Context, model, text string, vector []float32) error {
	if s.entries == nil {
		s.entries = make(map[string][]float32)
	}
	s.entries[model+"|"+text] = vector
	s.stores++
	return nil
}

func testRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		WindowSeconds:       30,
		CandidateMultiplier: 5,
		DefaultTopK:         5,
		GlobalTopK:          20,
		AnswerContextSize:   10,
	}
}

func testRetrievalLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

func newRetrievalService(t *testing.T, store *stubCandidateStore, videos *stubVideoStore, embedder *stubEmbedder, cache *stubCache) Service {
	t.Helper()
	if videos == nil {
		videos = &stubVideoStore{}
	}
	var cacheIface redis.EmbeddingCache
	if cache != nil {
		cacheIface = cache
	}
	svc, err := NewService(store, videos, embedder, cacheIface, testRetrievalConfig(), testRetrievalLogger(), nil)
	if err != nil {
		t.Fatalf("building service: %v", err)
	}
	return svc
}

func candidate(videoID uuid.UUID, ts, score float64, text string) evidence.Candidate {
	return evidence.Candidate{
		VideoID:   videoID,
		VideoName: "cam-1",
		Timestamp: ts,
		Modality:  enums.ModalityVisual,
		Text:      text,
		Score:     score,
	}
}

func TestSearchRequiresQuestion(t *testing.T) {
	svc := newRetrievalService(t, &stubCandidateStore{}, nil, &stubEmbedder{vector: []float32{1}}, nil)

	_, err := svc.Search(context.Background(), Query{Question: "   "})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSearchUnknownVideoNotFound(t *testing.T) {
	svc := newRetrievalService(t, &stubCandidateStore{}, &stubVideoStore{}, &stubEmbedder{vector: []float32{1}}, nil)

	id := uuid.New()
	_, err := svc.Search(context.Background(), Query{Question: "what happened", VideoID: &id})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSearchUnprocessedVideoConflicts(t *testing.T) {
	id := uuid.New()
	videos := &stubVideoStore{known: map[uuid.UUID]bool{id: true}, status: enums.VideoStatusPending}
	svc := newRetrievalService(t, &stubCandidateStore{}, videos, &stubEmbedder{vector: []float32{1}}, nil)

	_, err := svc.Search(context.Background(), Query{Question: "what happened", VideoID: &id})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestSearchPoolSizeIsMultiplierTimesTopK(t *testing.T) {
	store := &stubCandidateStore{}
	video := uuid.New()
	svc := newRetrievalService(t, store, &stubVideoStore{known: map[uuid.UUID]bool{video: true}}, &stubEmbedder{vector: []float32{1}}, nil)

	if _, err := svc.Search(context.Background(), Query{Question: "anything", VideoID: &video, TopK: 4}); err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if store.lastLimit != 20 {
		t.Fatalf("expected candidate pool of 20, got %d", store.lastLimit)
	}
	if store.lastVideo == nil || *store.lastVideo != video {
		t.Fatalf("video scope not forwarded")
	}
}

func TestSearchDeduplicatesTimeWindows(t *testing.T) {
	video := uuid.New()
	store := &stubCandidateStore{candidates: []evidence.Candidate{
		candidate(video, 10, 0.92, "smoke near the stove"),
		candidate(video, 12, 0.88, "flames visible"),
		candidate(video, 50, 0.71, "fire spreading on the counter"),
	}}
	svc := newRetrievalService(t, store, &stubVideoStore{known: map[uuid.UUID]bool{video: true}}, &stubEmbedder{vector: []float32{1}}, nil)

	results, err := svc.Search(context.Background(), Query{Question: "when does the fire start", VideoID: &video, TopK: 5})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 windowed results, got %d", len(results))
	}
	if results[0].Timestamp != 10 || results[1].Timestamp != 50 {
		t.Fatalf("unexpected timestamps: %v %v", results[0].Timestamp, results[1].Timestamp)
	}
	if results[0].TimeLabel != "[00:10]" || results[1].TimeLabel != "[00:50]" {
		t.Fatalf("unexpected labels: %s %s", results[0].TimeLabel, results[1].TimeLabel)
	}
}

func TestSearchKeepsBestScorePerWindow(t *testing.T) {
	video := uuid.New()
	store := &stubCandidateStore{candidates: []evidence.Candidate{
		candidate(video, 5, 0.60, "weaker"),
		candidate(video, 20, 0.90, "stronger"),
	}}
	svc := newRetrievalService(t, store, &stubVideoStore{known: map[uuid.UUID]bool{video: true}}, &stubEmbedder{vector: []float32{1}}, nil)

	results, err := svc.Search(context.Background(), Query{Question: "pick one", VideoID: &video})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected a single result, got %d", len(results))
	}
	if results[0].Text != "stronger" {
		t.Fatalf("kept the wrong candidate: %q", results[0].Text)
	}
}

func TestSearchCapsAndSortsResults(t *testing.T) {
	videoA, videoB, videoC := uuid.New(), uuid.New(), uuid.New()
	store := &stubCandidateStore{candidates: []evidence.Candidate{
		candidate(videoA, 0, 0.95, "a"),
		candidate(videoB, 0, 0.90, "b"),
		candidate(videoC, 0, 0.85, "c"),
	}}
	svc := newRetrievalService(t, store, nil, &stubEmbedder{vector: []float32{1}}, nil)

	results, err := svc.Search(context.Background(), Query{Question: "anything", TopK: 2})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected top_k cap of 2, got %d", len(results))
	}
	if results[0].Score < results[1].Score {
		t.Fatalf("results not sorted by score: %v", results)
	}
}

func TestGlobalSearchClampsTopK(t *testing.T) {
	store := &stubCandidateStore{}
	svc := newRetrievalService(t, store, nil, &stubEmbedder{vector: []float32{1}}, nil)

	if _, err := svc.Search(context.Background(), Query{Question: "anything", TopK: 500}); err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if store.lastLimit != 100 {
		t.Fatalf("expected clamped pool of 100, got %d", store.lastLimit)
	}
}

func TestSearchUsesEmbeddingCache(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{0.5}}
	cache := &stubCache{}
	store := &stubCandidateStore{}
	svc := newRetrievalService(t, store, nil, embedder, cache)

	if _, err := svc.Search(context.Background(), Query{Question: "repeated question"}); err != nil {
		t.Fatalf("first search failed: %v", err)
	}
	if embedder.calls != 1 || cache.stores != 1 {
		t.Fatalf("expected one embed and one store, got %d/%d", embedder.calls, cache.stores)
	}

	if _, err := svc.Search(context.Background(), Query{Question: "repeated question"}); err != nil {
		t.Fatalf("second search failed: %v", err)
	}
	if embedder.calls != 1 {
		t.Fatalf("cache hit should skip the model, calls=%d", embedder.calls)
	}
}

func TestSearchSurfacesEmbeddingFailure(t *testing.T) {
	embedder := &stubEmbedder{err: errors.New("model offline")}
	svc := newRetrievalService(t, &stubCandidateStore{}, nil, embedder, nil)

	_, err := svc.Search(context.Background(), Query{Question: "anything"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeModelCall) {
		t.Fatalf("expected model call error, got %v", err)
	}
}
