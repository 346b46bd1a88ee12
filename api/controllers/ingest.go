package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nirmal141/nvidiaxdell-hack/api/responses"
	"github.com/nirmal141/nvidiaxdell-hack/api/validators"
	"github.com/nirmal141/nvidiaxdell-hack/internal/ingest"
	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
)

// ProcessStart kicks off the ingestion pipeline for a video. The 202 carries
// the initial job snapshot; progress streams over the websocket endpoint.
func ProcessStart(svc ingest.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ingest service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "videoId"), "videoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := svc.Start(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, event)
	}
}

// ProcessStop requests cooperative cancellation. Stopping a video with no
// live job reports "idle" rather than an error.
func ProcessStop(svc ingest.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "videoId"), "videoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, svc.Stop(r.Context(), id))
	}
}

func ProcessStatus(svc ingest.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "videoId"), "videoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot, err := svc.Status(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}
