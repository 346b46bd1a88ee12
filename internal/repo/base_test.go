package repo

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openMemoryDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return conn
}

func TestBaseDBPropagatesContext(t *testing.T) {
	conn := openMemoryDB(t)
	base := NewBase(conn)

	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "marker")

	scoped := base.DB(ctx)
	if scoped == nil || scoped.Statement == nil {
		t.Fatalf("expected a scoped session with a statement")
	}
	if scoped.Statement.Context != ctx {
		t.Fatalf("context did not propagate, got %v", scoped.Statement.Context)
	}
}

func TestBaseDBNilContextReturnsRawHandle(t *testing.T) {
	conn := openMemoryDB(t)
	base := NewBase(conn)

	if got := base.DB(nil); got != conn {
		t.Fatalf("expected the raw handle back for a nil context")
	}
}
