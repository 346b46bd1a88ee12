package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nirmal141/nvidiaxdell-hack/pkg/migrate"
)

func TestEvidenceMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_evidence_records.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no evidence migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS evidence_records",
		"embedding vector(1024) NOT NULL",
		"FOREIGN KEY (video_id) REFERENCES videos(id) ON DELETE CASCADE",
		"CHECK (modality IN ('visual', 'audio'))",
		"idx_evidence_key",
		"vector_cosine_ops",
		"DROP TABLE IF EXISTS evidence_records",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestVideosMigrationContainsStatuses(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_videos.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no videos migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	for _, status := range []string{"'pending'", "'processing'", "'completed'", "'failed'", "'cancelled'"} {
		if !strings.Contains(content, status) {
			t.Errorf("status %s missing from videos migration check constraint", status)
		}
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("shipped migrations should validate: %v", err)
	}
}

func TestValidateDirRejectsBadFilenames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatalf("expected validation failure for short version prefix")
	}
}
