package controllers

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nirmal141/nvidiaxdell-hack/api/responses"
	"github.com/nirmal141/nvidiaxdell-hack/api/validators"
	"github.com/nirmal141/nvidiaxdell-hack/internal/videos"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/config"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/db/models"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/enums"
	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/pagination"
)

type videoResponse struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	FileName     string            `json:"file_name"`
	Duration     float64           `json:"duration"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	Status       enums.VideoStatus `json:"status"`
	HasThumbnail bool              `json:"has_thumbnail"`
	CreatedAt    time.Time         `json:"created_at"`
	ProcessedAt  *time.Time        `json:"processed_at,omitempty"`
}

func videoResponseFromModel(m *models.Video) videoResponse {
	return videoResponse{
		ID:           m.ID,
		Name:         m.Name,
		FileName:     m.FileName,
		Duration:     m.Duration,
		Width:        m.Width,
		Height:       m.Height,
		Status:       m.Status,
		HasThumbnail: m.ThumbnailPath != nil,
		CreatedAt:    m.CreatedAt,
		ProcessedAt:  m.ProcessedAt,
	}
}

// VideoUpload accepts a multipart upload with a "file" part and an optional
// "name" field.
func VideoUpload(svc videos.Service, cfg config.MediaConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "video service unavailable"))
			return
		}

		maxBytes := int64(cfg.MaxUploadMB) << 20
		if maxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "multipart file field required"))
			return
		}
		defer file.Close()

		created, err := svc.Upload(r.Context(), videos.UploadInput{
			Name:     r.FormValue("name"),
			FileName: header.Filename,
			File:     file,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, videoResponseFromModel(created))
	}
}

func VideoList(svc videos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), videos.ListParams{Params: pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		}})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]videoResponse, 0, len(page.Items))
		for i := range page.Items {
			out = append(out, videoResponseFromModel(&page.Items[i]))
		}
		responses.WriteSuccess(w, map[string]any{
			"items":  out,
			"cursor": page.Cursor,
		})
	}
}

func VideoDetail(svc videos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "videoId"), "videoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		video, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, videoResponseFromModel(video))
	}
}

func VideoDelete(svc videos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "videoId"), "videoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// VideoThumbnail serves the JPEG thumbnail captured at upload time.
func VideoThumbnail(svc videos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "videoId"), "videoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		video, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if video.ThumbnailPath == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "video has no thumbnail"))
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		http.ServeFile(w, r, *video.ThumbnailPath)
	}
}

// VideoStream serves the raw video file. http.ServeFile handles range
// requests, which the player needs for seeking.
func VideoStream(svc videos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "videoId"), "videoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		video, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := os.Stat(video.FilePath); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "video file missing on disk"))
			return
		}

		http.ServeFile(w, r, video.FilePath)
	}
}
