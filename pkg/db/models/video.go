package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nirmal141/nvidiaxdell-hack/pkg/enums"
)

// Video captures metadata for an uploaded video file.
type Video struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string            `gorm:"column:name;not null"`
	FileName      string            `gorm:"column:file_name;not null"`
	FilePath      string            `gorm:"column:file_path;not null"`
	ThumbnailPath *string           `gorm:"column:thumbnail_path"`
	Duration      float64           `gorm:"column:duration;not null;default:0"`
	Width         int               `gorm:"column:width;not null;default:0"`
	Height        int               `gorm:"column:height;not null;default:0"`
	Status        enums.VideoStatus `gorm:"column:status;not null;default:pending"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	ProcessedAt   *time.Time        `gorm:"column:processed_at"`
}
