package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base wraps a shared GORM handle so the video and evidence
// repositories get context propagation from one place instead of
// each repeating the WithContext dance.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB yields the handle scoped to ctx. A nil ctx returns the raw
// connection, which repository tests rely on for setup queries.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx != nil {
		return b.db.WithContext(ctx)
	}
	return b.db
}
