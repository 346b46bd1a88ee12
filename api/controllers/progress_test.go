package controllers

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nirmal141/nvidiaxdell-hack/internal/ingest"
	"github.com/nirmal141/nvidiaxdell-hack/internal/jobs"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/config"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/enums"
)

func progressServer(t *testing.T, svc ingest.Service, registry *jobs.Registry) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/videos/{videoId}/progress", ProgressStream(svc, registry, config.ProgressConfig{
		PingInterval: 50 * time.Millisecond,
		WriteTimeout: time.Second,
	}, testControllerLogger()))
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func dialProgress(t *testing.T, server *httptest.Server, videoID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/videos/" + videoID.String() + "/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing progress socket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestProgressStreamForwardsEventsUntilTerminal(t *testing.T) {
	videoID := uuid.New()
	registry := jobs.NewRegistry()
	handle, err := registry.Start(videoID)
	if err != nil {
		t.Fatalf("starting job: %v", err)
	}
	handle.SetTotal(3)

	snapshot, _ := registry.Snapshot(videoID)
	svc := &stubIngestService{snapshot: ingest.StatusSnapshot{
		VideoID:     videoID,
		VideoStatus: enums.VideoStatusProcessing,
		Job:         &snapshot,
	}}

	server := progressServer(t, svc, registry)
	conn := dialProgress(t, server, videoID)

	// replay of the current state arrives first
	var first jobs.Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("reading replay event: %v", err)
	}
	if first.State != enums.JobStateRunning || first.TotalUnits != 3 {
		t.Fatalf("unexpected replay event: %+v", first)
	}

	handle.Progress(1, "processed frame [00:00]")
	var progressed jobs.Event
	if err := conn.ReadJSON(&progressed); err != nil {
		t.Fatalf("reading progress event: %v", err)
	}
	if progressed.CurrentUnit != 1 {
		t.Fatalf("unexpected progress event: %+v", progressed)
	}

	handle.Complete("processed 3 units")
	sawTerminal := false
	for {
		var event jobs.Event
		if err := conn.ReadJSON(&event); err != nil {
			break
		}
		if event.State.IsTerminal() {
			sawTerminal = true
		}
	}
	if !sawTerminal {
		t.Fatalf("terminal event never arrived")
	}
}

func TestProgressStreamWithNoJobSendsSnapshotAndCloses(t *testing.T) {
	videoID := uuid.New()
	registry := jobs.NewRegistry()
	svc := &stubIngestService{snapshot: ingest.StatusSnapshot{
		VideoID:     videoID,
		VideoStatus: enums.VideoStatusCompleted,
	}}

	server := progressServer(t, svc, registry)
	conn := dialProgress(t, server, videoID)

	var snapshot ingest.StatusSnapshot
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	if snapshot.VideoStatus != enums.VideoStatusCompleted {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected the server to close after the snapshot")
	}
}
