package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/nirmal141/nvidiaxdell-hack/pkg/enums"
)

// EvidenceRecord is one indexed unit of searchable text derived from a video:
// a frame description or a transcript segment, plus its embedding. Unique per
// (video_id, timestamp, modality); reprocessing replaces the whole set for a
// video.
type EvidenceRecord struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VideoID   uuid.UUID       `gorm:"column:video_id;type:uuid;not null;uniqueIndex:idx_evidence_key,priority:1"`
	Timestamp float64         `gorm:"column:timestamp;not null;uniqueIndex:idx_evidence_key,priority:2"`
	Modality  enums.Modality  `gorm:"column:modality;not null;uniqueIndex:idx_evidence_key,priority:3"`
	Text      string          `gorm:"column:text;not null"`
	Embedding pgvector.Vector `gorm:"column:embedding;type:vector(1024)"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the table used by the vector index.
func (EvidenceRecord) TableName() string {
	return "evidence_records"
}
