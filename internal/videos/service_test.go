package videos

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nirmal141/nvidiaxdell-hack/internal/evidence"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/db/models"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/enums"
	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/ffmpeg"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/pagination"
)

func setupVideosTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	videos := `
CREATE TABLE IF NOT EXISTS videos (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  file_name TEXT NOT NULL,
  file_path TEXT NOT NULL,
  thumbnail_path TEXT,
  duration REAL NOT NULL DEFAULT 0,
  width INTEGER NOT NULL DEFAULT 0,
  height INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending',
  created_at DATETIME,
  processed_at DATETIME
);`
	if err := db.Exec(`DROP TABLE IF EXISTS videos`).Error; err != nil {
		t.Fatalf("drop videos: %v", err)
	}
	if err := db.Exec(videos).Error; err != nil {
		t.Fatalf("create videos: %v", err)
	}
	return db
}

type stubProber struct {
	info      ffmpeg.Info
	probeErr  error
	thumbErr  error
	thumbSeen string
}

func (s *stubProber) Probe(ctx context.Context, path string) (ffmpeg.Info, error) {
	if s.probeErr != nil {
		return ffmpeg.Info{}, s.probeErr
	}
	return s.info, nil
}

func (s *stubProber) Thumbnail(ctx context.Context, videoPath, outPath string) error {
	if s.thumbErr != nil {
		return s.thumbErr
	}
	s.thumbSeen = outPath
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte("jpeg"), 0o644)
}

type stubTx struct {
	tx *gorm.DB
}

func (s stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(s.tx)
}

type stubPurger struct {
	purged  []uuid.UUID
	boundTx *gorm.DB
}

func (s *stubPurger) WithTx(tx *gorm.DB) evidence.Repository {
	s.boundTx = tx
	return s
}

func (s *stubPurger) DeleteForVideo(ctx context.Context, videoID uuid.UUID) error {
	s.purged = append(s.purged, videoID)
	return nil
}

func (s *stubPurger) Upsert(ctx context.Context, record *models.EvidenceRecord) error {
	return nil
}

func (s *stubPurger) CountForVideo(ctx context.Context, videoID uuid.UUID) (int64, error) {
	return 0, nil
}

func (s *stubPurger) Search(ctx context.Context, vector []float32, videoID *uuid.UUID, limit int) ([]evidence.Candidate, error) {
	return nil, nil
}

type stubJobs struct {
	active bool
}

func (s *stubJobs) RequestCancel(videoID uuid.UUID) bool {
	return s.active
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

func newTestService(t *testing.T, db *gorm.DB, prober *stubProber, jobs *stubJobs) (Service, *stubPurger, string) {
	t.Helper()
	dir := t.TempDir()
	purger := &stubPurger{}
	svc, err := NewService(NewRepository(db), purger, stubTx{}, prober, jobs, dir, testLogger())
	if err != nil {
		t.Fatalf("building service: %v", err)
	}
	return svc, purger, dir
}

func TestUploadStoresFileAndMetadata(t *testing.T) {
	db := setupVideosTestDB(t)
	prober := &stubProber{info: ffmpeg.Info{Duration: 93.5, Width: 1280, Height: 720}}
	svc, _, dir := newTestService(t, db, prober, &stubJobs{})

	video, err := svc.Upload(context.Background(), UploadInput{
		Name:     "Warehouse cam",
		FileName: "warehouse.mp4",
		File:     strings.NewReader("not really mp4 bytes"),
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if video.Duration != 93.5 || video.Width != 1280 {
		t.Fatalf("metadata not captured: %+v", video)
	}
	if video.Status != enums.VideoStatusPending {
		t.Fatalf("expected pending status, got %s", video.Status)
	}
	if !strings.HasPrefix(video.FilePath, dir) {
		t.Fatalf("file stored outside media dir: %s", video.FilePath)
	}
	if _, err := os.Stat(video.FilePath); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if video.ThumbnailPath == nil {
		t.Fatalf("expected thumbnail path")
	}

	got, err := svc.Get(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "Warehouse cam" {
		t.Fatalf("unexpected name %q", got.Name)
	}
}

func TestUploadDefaultsNameFromFile(t *testing.T) {
	db := setupVideosTestDB(t)
	prober := &stubProber{info: ffmpeg.Info{Duration: 10}}
	svc, _, _ := newTestService(t, db, prober, &stubJobs{})

	video, err := svc.Upload(context.Background(), UploadInput{
		FileName: "lobby_entrance.mov",
		File:     strings.NewReader("bytes"),
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if video.Name != "lobby_entrance" {
		t.Fatalf("expected name from file, got %q", video.Name)
	}
}

func TestUploadRejectsUnknownExtension(t *testing.T) {
	db := setupVideosTestDB(t)
	svc, _, _ := newTestService(t, db, &stubProber{}, &stubJobs{})

	_, err := svc.Upload(context.Background(), UploadInput{
		FileName: "notes.txt",
		File:     strings.NewReader("text"),
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUploadRemovesFileWhenProbeFails(t *testing.T) {
	db := setupVideosTestDB(t)
	prober := &stubProber{probeErr: errors.New("moov atom not found")}
	svc, _, dir := newTestService(t, db, prober, &stubJobs{})

	_, err := svc.Upload(context.Background(), UploadInput{
		FileName: "broken.mp4",
		File:     strings.NewReader("garbage"),
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read media dir: %v", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			t.Fatalf("expected media dir cleaned up, found %s", e.Name())
		}
	}
}

func TestUploadSurvivesThumbnailFailure(t *testing.T) {
	db := setupVideosTestDB(t)
	prober := &stubProber{info: ffmpeg.Info{Duration: 5}, thumbErr: errors.New("no keyframe")}
	svc, _, _ := newTestService(t, db, prober, &stubJobs{})

	video, err := svc.Upload(context.Background(), UploadInput{
		FileName: "short.webm",
		File:     strings.NewReader("bytes"),
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if video.ThumbnailPath != nil {
		t.Fatalf("thumbnail path should be empty on failure")
	}
}

func TestDeletePurgesEvidenceAndFiles(t *testing.T) {
	db := setupVideosTestDB(t)
	prober := &stubProber{info: ffmpeg.Info{Duration: 5}}
	svc, purger, _ := newTestService(t, db, prober, &stubJobs{})

	video, err := svc.Upload(context.Background(), UploadInput{
		FileName: "gone.mp4",
		File:     strings.NewReader("bytes"),
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if err := svc.Delete(context.Background(), video.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if len(purger.purged) != 1 || purger.purged[0] != video.ID {
		t.Fatalf("evidence purge not invoked: %v", purger.purged)
	}
	if _, err := os.Stat(video.FilePath); !os.IsNotExist(err) {
		t.Fatalf("video file should be gone")
	}
	if _, err := svc.Get(context.Background(), video.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestDeleteBindsEvidencePurgeToTransaction(t *testing.T) {
	db := setupVideosTestDB(t)
	prober := &stubProber{info: ffmpeg.Info{Duration: 5}}
	purger := &stubPurger{}
	svc, err := NewService(NewRepository(db), purger, stubTx{tx: db}, prober, &stubJobs{}, t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("building service: %v", err)
	}

	video, err := svc.Upload(context.Background(), UploadInput{
		FileName: "tx.mp4",
		File:     strings.NewReader("bytes"),
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if err := svc.Delete(context.Background(), video.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if purger.boundTx != db {
		t.Fatalf("evidence purge ran outside the delete transaction")
	}
	if len(purger.purged) != 1 || purger.purged[0] != video.ID {
		t.Fatalf("evidence purge not invoked: %v", purger.purged)
	}
}

func TestDeleteWhileProcessingConflicts(t *testing.T) {
	db := setupVideosTestDB(t)
	prober := &stubProber{info: ffmpeg.Info{Duration: 5}}
	svc, _, _ := newTestService(t, db, prober, &stubJobs{active: true})

	video, err := svc.Upload(context.Background(), UploadInput{
		FileName: "busy.mp4",
		File:     strings.NewReader("bytes"),
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if err := svc.Delete(context.Background(), video.ID); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestGetUnknownVideoReturnsNotFound(t *testing.T) {
	db := setupVideosTestDB(t)
	svc, _, _ := newTestService(t, db, &stubProber{}, &stubJobs{})

	if _, err := svc.Get(context.Background(), uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListPaginatesNewestFirst(t *testing.T) {
	db := setupVideosTestDB(t)
	svc, _, _ := newTestService(t, db, &stubProber{}, &stubJobs{})
	repo := NewRepository(db)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	names := []string{"first", "second", "third"}
	for i, name := range names {
		_, err := repo.Create(context.Background(), &models.Video{
			ID:        uuid.New(),
			Name:      name,
			FileName:  name + ".mp4",
			FilePath:  "/tmp/" + name + ".mp4",
			Status:    enums.VideoStatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("seeding video %q: %v", name, err)
		}
	}

	page, err := svc.List(context.Background(), ListParams{Params: pagination.Params{Limit: 2}})
	if err != nil {
		t.Fatalf("first page failed: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	if page.Items[0].Name != "third" || page.Items[1].Name != "second" {
		t.Fatalf("unexpected order: %s, %s", page.Items[0].Name, page.Items[1].Name)
	}
	if page.Cursor == "" {
		t.Fatal("expected a cursor for the next page")
	}

	rest, err := svc.List(context.Background(), ListParams{Params: pagination.Params{Limit: 2, Cursor: page.Cursor}})
	if err != nil {
		t.Fatalf("second page failed: %v", err)
	}
	if len(rest.Items) != 1 || rest.Items[0].Name != "first" {
		t.Fatalf("unexpected second page: %+v", rest.Items)
	}
	if rest.Cursor != "" {
		t.Fatalf("expected no further pages, got cursor %q", rest.Cursor)
	}
}

func TestListRejectsMalformedCursor(t *testing.T) {
	db := setupVideosTestDB(t)
	svc, _, _ := newTestService(t, db, &stubProber{}, &stubJobs{})

	_, err := svc.List(context.Background(), ListParams{Params: pagination.Params{Cursor: "not-base64!"}})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
