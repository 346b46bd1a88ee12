package videos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nirmal141/nvidiaxdell-hack/internal/evidence"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/db/models"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/enums"
	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/ffmpeg"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/pagination"
)

var allowedExtensions = map[string]struct{}{
	".mp4":  {},
	".avi":  {},
	".mkv":  {},
	".mov":  {},
	".webm": {},
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type evidencePurger interface {
	WithTx(tx *gorm.DB) evidence.Repository
	DeleteForVideo(ctx context.Context, videoID uuid.UUID) error
}

type mediaProber interface {
	Probe(ctx context.Context, path string) (ffmpeg.Info, error)
	Thumbnail(ctx context.Context, videoPath, outPath string) error
}

type jobChecker interface {
	RequestCancel(videoID uuid.UUID) bool
}

// UploadInput carries one multipart upload into the service.
type UploadInput struct {
	Name     string
	FileName string
	File     io.Reader
}

// Service exposes the video library operations.
type Service interface {
	Upload(ctx context.Context, input UploadInput) (*models.Video, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Video, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo      Repository
	evidence  evidencePurger
	tx        txRunner
	prober    mediaProber
	jobs      jobChecker
	videosDir string
	logg      *logger.Logger
}

// NewService constructs the video library service.
func NewService(repo Repository, evidence evidencePurger, tx txRunner, prober mediaProber, jobs jobChecker, videosDir string, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("videos repository required")
	}
	if evidence == nil {
		return nil, fmt.Errorf("evidence repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if prober == nil {
		return nil, fmt.Errorf("media prober required")
	}
	if jobs == nil {
		return nil, fmt.Errorf("job registry required")
	}
	if videosDir == "" {
		return nil, fmt.Errorf("videos dir required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		evidence:  evidence,
		tx:        tx,
		prober:    prober,
		jobs:      jobs,
		videosDir: videosDir,
		logg:      logg,
	}, nil
}

func (s *service) Upload(ctx context.Context, input UploadInput) (*models.Video, error) {
	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file name missing")
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if _, ok := allowedExtensions[ext]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported video format").
			WithDetails(map[string]any{"extension": ext})
	}
	if input.File == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file content missing")
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(fileName), ext)
	}

	id := uuid.New()
	filePath := filepath.Join(s.videosDir, id.String()+ext)
	if err := saveFile(input.File, filePath); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "storing uploaded file")
	}

	info, err := s.prober.Probe(ctx, filePath)
	if err != nil {
		_ = os.Remove(filePath)
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "uploaded file is not playable media")
	}

	video := &models.Video{
		ID:       id,
		Name:     name,
		FileName: filepath.Base(fileName),
		FilePath: filePath,
		Duration: info.Duration,
		Width:    info.Width,
		Height:   info.Height,
		Status:   enums.VideoStatusPending,
	}

	// thumbnail generation is best effort
	thumbPath := filepath.Join(s.videosDir, "thumbs", id.String()+".jpg")
	if err := s.prober.Thumbnail(ctx, filePath, thumbPath); err != nil {
		s.logg.Warn(s.logg.WithVideoID(ctx, id.String()), "thumbnail generation failed")
	} else {
		video.ThumbnailPath = &thumbPath
	}

	created, err := s.repo.Create(ctx, video)
	if err != nil {
		_ = os.Remove(filePath)
		_ = os.Remove(thumbPath)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting video record")
	}
	return created, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing videos")
	}

	nextCursor := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[limit-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &ListResult{Items: rows, Cursor: nextCursor}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	video, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "video not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading video")
	}
	return video, nil
}

// Delete removes the video row, every evidence record derived from it, and
// the stored files. Any in-flight ingestion is asked to stop first.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	video, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if s.jobs.RequestCancel(id) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "video is being processed, stop requested, retry delete shortly")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.evidence.WithTx(tx).DeleteForVideo(ctx, id); err != nil {
			return err
		}
		return s.repo.WithTx(tx).Delete(ctx, id)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting video")
	}

	if err := os.Remove(video.FilePath); err != nil && !os.IsNotExist(err) {
		s.logg.Warn(s.logg.WithVideoID(ctx, id.String()), "removing video file failed")
	}
	if video.ThumbnailPath != nil {
		_ = os.Remove(*video.ThumbnailPath)
	}
	return nil
}

func saveFile(src io.Reader, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
