package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nirmal141/nvidiaxdell-hack/api/responses"
	"github.com/nirmal141/nvidiaxdell-hack/api/validators"
	"github.com/nirmal141/nvidiaxdell-hack/internal/vision"
	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
)

type detectRequest struct {
	Timestamp    float64 `json:"timestamp" validate:"gte=0"`
	Confidence   float64 `json:"confidence" validate:"gte=0,lte=1"`
	PriorityOnly bool    `json:"priority_only"`
}

type segmentRequest struct {
	Timestamp float64 `json:"timestamp" validate:"gte=0"`
	X         float64 `json:"x" validate:"gte=0,lte=1"`
	Y         float64 `json:"y" validate:"gte=0,lte=1"`
}

// Detect runs stateless object detection on one frame of a video.
func Detect(svc vision.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vision service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "videoId"), "videoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload detectRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.Detect(r.Context(), vision.DetectRequest{
			VideoID:      id,
			Timestamp:    payload.Timestamp,
			Confidence:   payload.Confidence,
			PriorityOnly: payload.PriorityOnly,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// Segment produces an object mask around a clicked point on one frame.
func Segment(svc vision.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vision service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "videoId"), "videoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload segmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.Segment(r.Context(), vision.SegmentRequest{
			VideoID:   id,
			Timestamp: payload.Timestamp,
			X:         payload.X,
			Y:         payload.Y,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
