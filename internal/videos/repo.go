package videos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nirmal141/nvidiaxdell-hack/internal/repo"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/db/models"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/enums"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/pagination"
)

// Repository persists video rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, video *models.Video) (*models.Video, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	List(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Video, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.VideoStatus, processedAt *time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	repo.Base
}

// NewRepository builds a videos repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, video *models.Video) (*models.Video, error) {
	if err := r.DB(ctx).Create(video).Error; err != nil {
		return nil, err
	}
	return video, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	var video models.Video
	err := r.DB(ctx).Where("id = ?", id).First(&video).Error
	if err != nil {
		return nil, err
	}
	return &video, nil
}

// List returns videos newest first using cursor pagination.
func (r *repository) List(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Video, error) {
	query := r.DB(ctx).Model(&models.Video{})
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var videos []models.Video
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&videos).Error
	if err != nil {
		return nil, err
	}
	return videos, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.VideoStatus, processedAt *time.Time) error {
	updates := map[string]any{"status": status}
	if processedAt != nil {
		updates["processed_at"] = *processedAt
	}
	return r.DB(ctx).
		Model(&models.Video{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).
		Where("id = ?", id).
		Delete(&models.Video{}).Error
}
