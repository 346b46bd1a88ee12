package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nirmal141/nvidiaxdell-hack/api/responses"
	"github.com/nirmal141/nvidiaxdell-hack/api/validators"
	"github.com/nirmal141/nvidiaxdell-hack/internal/answers"
	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
)

type askRequest struct {
	Question string `json:"question" validate:"required,min=1,max=2000"`
	VideoID  string `json:"video_id"`
}

type searchRequest struct {
	Query   string `json:"query" validate:"required,min=1,max=2000"`
	VideoID string `json:"video_id"`
	TopK    int    `json:"top_k" validate:"gte=0,lte=100"`
}

func parseOptionalVideoID(raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid video_id")
	}
	return &id, nil
}

// Ask answers a natural-language question about one video or the whole
// library, grounded in ingested evidence.
func Ask(svc answers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "answer service unavailable"))
			return
		}

		var payload askRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		videoID, err := parseOptionalVideoID(payload.VideoID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		answer, err := svc.Answer(r.Context(), answers.Ask{Question: payload.Question, VideoID: videoID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, answer)
	}
}

// Search runs semantic retrieval and returns the ranked, time-deduplicated
// evidence. Library-wide searches also carry a synthesized summary.
func Search(svc answers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "search service unavailable"))
			return
		}

		var payload searchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		videoID, err := parseOptionalVideoID(payload.VideoID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.Search(r.Context(), answers.SearchQuery{
			Query:   payload.Query,
			VideoID: videoID,
			TopK:    payload.TopK,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}
