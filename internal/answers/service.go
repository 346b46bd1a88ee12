package answers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/nirmal141/nvidiaxdell-hack/internal/gateway"
	"github.com/nirmal141/nvidiaxdell-hack/internal/retrieval"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/config"
	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/types"
)

// Answer is a grounded response to a question about one video or the whole
// library. Citations lists the second offsets of every [mm:ss] marker in the
// answer text; Sources carries the evidence the answer was built from.
type Answer struct {
	Answer    string             `json:"answer"`
	Citations []float64          `json:"citations"`
	Sources   []retrieval.Result `json:"sources"`
	Generated bool               `json:"generated"`
}

// Ask describes a question. A nil VideoID asks across every ingested video.
type Ask struct {
	Question string
	VideoID  *uuid.UUID
}

// SearchQuery describes a ranked evidence search. A nil VideoID searches the
// whole library and adds a synthesized summary to the outcome.
type SearchQuery struct {
	Query   string
	VideoID *uuid.UUID
	TopK    int
}

// SearchOutcome is the search envelope. Answer is null for scoped searches
// and when synthesis fails.
type SearchOutcome struct {
	Query        string             `json:"query"`
	Results      []retrieval.Result `json:"results"`
	TotalResults int                `json:"total_results"`
	Answer       *string            `json:"answer"`
}

type searcher interface {
	Search(ctx context.Context, query retrieval.Query) ([]retrieval.Result, error)
}

type Service interface {
	Answer(ctx context.Context, ask Ask) (*Answer, error)
	Search(ctx context.Context, query SearchQuery) (*SearchOutcome, error)
}

type service struct {
	retrieval searcher
	generator gateway.AnswerGenerator
	cfg       config.RetrievalConfig
	logger    *logger.Logger
}

func NewService(search searcher, generator gateway.AnswerGenerator, cfg config.RetrievalConfig, logg *logger.Logger) (Service, error) {
	if search == nil {
		return nil, fmt.Errorf("retrieval service required")
	}
	if generator == nil {
		return nil, fmt.Errorf("answer generator required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{retrieval: search, generator: generator, cfg: cfg, logger: logg}, nil
}

func (s *service) Answer(ctx context.Context, ask Ask) (*Answer, error) {
	question := strings.TrimSpace(ask.Question)
	if question == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "question is required")
	}

	results, err := s.retrieval.Search(ctx, retrieval.Query{
		Question: question,
		VideoID:  ask.VideoID,
		TopK:     s.cfg.AnswerContextSize,
	})
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return &Answer{
			Answer:    "No evidence has been ingested for this question yet. Process the video first, then ask again.",
			Citations: []float64{},
			Sources:   []retrieval.Result{},
		}, nil
	}

	items := make([]gateway.ContextItem, 0, len(results))
	for _, r := range results {
		items = append(items, gateway.ContextItem{
			VideoName: r.VideoName,
			Timestamp: r.Timestamp,
			Text:      r.Text,
		})
	}

	text, err := s.generator.GenerateAnswer(ctx, question, items)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeRateLimit) {
			return nil, err
		}
		s.logger.Warn(ctx, fmt.Sprintf("answer generation failed, falling back to evidence summary: %v", err))
		return s.fallbackAnswer(results), nil
	}

	return &Answer{
		Answer:    text,
		Citations: citationsFor(text, results),
		Sources:   results,
		Generated: true,
	}, nil
}

// globalAnswerContext caps how many results feed the global search summary.
const globalAnswerContext = 10

// Search runs ranked retrieval and, for library-wide searches, synthesizes a
// short summary over the best results. Summary failures degrade to a null
// answer rather than failing the search.
func (s *service) Search(ctx context.Context, query SearchQuery) (*SearchOutcome, error) {
	question := strings.TrimSpace(query.Query)
	if question == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "query is required")
	}

	results, err := s.retrieval.Search(ctx, retrieval.Query{
		Question: question,
		VideoID:  query.VideoID,
		TopK:     query.TopK,
	})
	if err != nil {
		return nil, err
	}

	outcome := &SearchOutcome{
		Query:        question,
		Results:      results,
		TotalResults: len(results),
	}
	if query.VideoID != nil {
		return outcome, nil
	}

	if len(results) == 0 {
		text := "No matching content found in any processed videos."
		outcome.Answer = &text
		return outcome, nil
	}

	contextSize := len(results)
	if contextSize > globalAnswerContext {
		contextSize = globalAnswerContext
	}
	items := make([]gateway.ContextItem, 0, contextSize)
	for _, r := range results[:contextSize] {
		items = append(items, gateway.ContextItem{
			VideoName: r.VideoName,
			Timestamp: r.Timestamp,
			Text:      r.Text,
		})
	}

	text, err := s.generator.GenerateAnswer(ctx, question, items)
	if err != nil {
		s.logger.Warn(ctx, fmt.Sprintf("search summary generation failed: %v", err))
		return outcome, nil
	}
	outcome.Answer = &text
	return outcome, nil
}

// fallbackAnswer summarizes the retrieved evidence directly when the language
// model is unavailable, so the caller still gets cited moments.
func (s *service) fallbackAnswer(results []retrieval.Result) *Answer {
	var b strings.Builder
	b.WriteString("The most relevant moments found:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- %s %s %s\n", r.VideoName, r.TimeLabel, r.Text)
	}
	text := b.String()
	return &Answer{
		Answer:    text,
		Citations: citationsFor(text, results),
		Sources:   results,
	}
}

// citationsFor extracts the [mm:ss] markers in the answer text. When the
// model cites nothing it falls back to the evidence timestamps, so callers
// can always jump somewhere.
func citationsFor(text string, results []retrieval.Result) []float64 {
	cited := types.ExtractTimestamps(text)
	if len(cited) > 0 {
		return dedupe(cited)
	}
	out := make([]float64, 0, len(results))
	for _, r := range results {
		out = append(out, r.Timestamp)
	}
	return dedupe(out)
}

func dedupe(values []float64) []float64 {
	seen := make(map[float64]bool, len(values))
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}
