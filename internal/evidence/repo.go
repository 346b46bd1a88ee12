package evidence

import (
	"context"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nirmal141/nvidiaxdell-hack/internal/repo"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/db/models"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/enums"
)

// Candidate is one scored row coming back from a nearest-neighbor search.
type Candidate struct {
	VideoID   uuid.UUID      `gorm:"column:video_id"`
	VideoName string         `gorm:"column:video_name"`
	Timestamp float64        `gorm:"column:timestamp"`
	Modality  enums.Modality `gorm:"column:modality"`
	Text      string         `gorm:"column:text"`
	Score     float64        `gorm:"column:score"`
}

// Repository stores and searches embedded evidence rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, record *models.EvidenceRecord) error
	DeleteForVideo(ctx context.Context, videoID uuid.UUID) error
	CountForVideo(ctx context.Context, videoID uuid.UUID) (int64, error)
	Search(ctx context.Context, vector []float32, videoID *uuid.UUID, limit int) ([]Candidate, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds an evidence repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

// Upsert writes one evidence row, replacing text and embedding when the
// (video, timestamp, modality) key already exists. Re-running ingestion can
// never produce duplicate rows.
func (r *repository) Upsert(ctx context.Context, record *models.EvidenceRecord) error {
	return r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "video_id"},
				{Name: "timestamp"},
				{Name: "modality"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"text", "embedding"}),
		}).
		Create(record).Error
}

func (r *repository) DeleteForVideo(ctx context.Context, videoID uuid.UUID) error {
	return r.DB(ctx).
		Where("video_id = ?", videoID).
		Delete(&models.EvidenceRecord{}).Error
}

func (r *repository) CountForVideo(ctx context.Context, videoID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.EvidenceRecord{}).
		Where("video_id = ?", videoID).
		Count(&count).Error
	return count, err
}

// Search returns the closest rows by cosine distance, scored as
// 1 - distance. A nil videoID searches the whole library.
func (r *repository) Search(ctx context.Context, vector []float32, videoID *uuid.UUID, limit int) ([]Candidate, error) {
	embedded := pgvector.NewVector(vector)

	query := `
		SELECT e.video_id, v.name AS video_name, e.timestamp, e.modality, e.text,
		       1 - (e.embedding <=> ?) AS score
		FROM evidence_records e
		JOIN videos v ON v.id = e.video_id`
	args := []any{embedded}

	if videoID != nil {
		query += `
		WHERE e.video_id = ?`
		args = append(args, *videoID)
	}

	query += `
		ORDER BY e.embedding <=> ?
		LIMIT ?`
	args = append(args, embedded, limit)

	var candidates []Candidate
	if err := r.DB(ctx).Raw(query, args...).Scan(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}
