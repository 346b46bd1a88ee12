package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/nirmal141/nvidiaxdell-hack/internal/gateway"
	"github.com/nirmal141/nvidiaxdell-hack/internal/jobs"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/db/models"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/enums"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/types"
)

const audioTextPrefix = "[AUDIO] "

// run is the background unit-of-work loop for one job. It owns the video's
// status transitions from processing to a terminal state.
func (s *service) run(video *models.Video, handle *jobs.Handle, total int) {
	// detached from the originating request
	ctx := context.Background()
	ctx = s.logg.WithVideoID(ctx, video.ID.String())
	ctx = s.logg.WithJobID(ctx, handle.ID().String())
	start := time.Now()

	// worker-pool slot bounds ingestion concurrency across videos
	s.workers <- struct{}{}
	defer func() { <-s.workers }()

	if handle.CancelRequested() {
		s.finish(ctx, video, handle, enums.JobStateCancelled, "", start)
		return
	}

	// a re-run must never leave stale rows from the previous pass
	if err := s.evidence.DeleteForVideo(ctx, video.ID); err != nil {
		s.logg.Error(ctx, "purging prior evidence failed", err)
		s.finish(ctx, video, handle, enums.JobStateFailed, "could not clear prior evidence", start)
		return
	}

	tmpDir, err := os.MkdirTemp("", "sentio-ingest-*")
	if err != nil {
		s.logg.Error(ctx, "creating scratch dir failed", err)
		s.finish(ctx, video, handle, enums.JobStateFailed, "could not allocate scratch space", start)
		return
	}
	defer os.RemoveAll(tmpDir)

	interval := s.cfg.FrameInterval.Seconds()
	failed := 0
	for unit := 0; unit < total; unit++ {
		if handle.CancelRequested() {
			s.finish(ctx, video, handle, enums.JobStateCancelled, "", start)
			return
		}

		ts := float64(unit) * interval
		if err := s.processFrameUnit(ctx, video, ts, tmpDir); err != nil {
			failed++
			s.metrics.IncFailed(string(enums.ModalityVisual))
			s.logg.Error(ctx, "frame unit failed", err)
			handle.Progress(unit+1, fmt.Sprintf("unit %d failed: %v", unit+1, err))

			if float64(failed) > s.cfg.FatalFailureRate*float64(total) {
				s.finish(ctx, video, handle, enums.JobStateFailed,
					fmt.Sprintf("aborted after %d failed units", failed), start)
				return
			}
			continue
		}

		s.metrics.IncProcessed(string(enums.ModalityVisual))
		handle.Progress(unit+1, fmt.Sprintf("processed frame %s", types.FormatTimestamp(ts)))
	}

	if handle.CancelRequested() {
		s.finish(ctx, video, handle, enums.JobStateCancelled, "", start)
		return
	}

	cancelled, err := s.processAudio(ctx, video, handle, tmpDir)
	if err != nil {
		// missing or silent audio tracks are routine, keep the visual evidence
		s.logg.Warn(s.logg.WithField(ctx, "audio_error", err.Error()), "audio phase skipped")
	}
	if cancelled {
		s.finish(ctx, video, handle, enums.JobStateCancelled, "", start)
		return
	}

	message := fmt.Sprintf("processed %d units", total)
	if failed > 0 {
		message = fmt.Sprintf("processed %d units, %d failed", total, failed)
	}
	s.finish(ctx, video, handle, enums.JobStateCompleted, message, start)
}

// processFrameUnit runs extract -> describe -> embed -> upsert for one
// sampled frame, retrying the whole unit on collaborator failures.
func (s *service) processFrameUnit(ctx context.Context, video *models.Video, ts float64, tmpDir string) error {
	framePath := filepath.Join(tmpDir, fmt.Sprintf("frame_%09d.jpg", int(ts*1000)))
	return s.withRetry(ctx, func(ctx context.Context) error {
		if err := s.extractor.ExtractFrame(ctx, video.FilePath, ts, framePath); err != nil {
			return fmt.Errorf("extracting frame: %w", err)
		}
		frame, err := os.ReadFile(framePath)
		if err != nil {
			return fmt.Errorf("reading frame: %w", err)
		}
		description, err := s.describer.DescribeFrame(ctx, frame)
		if err != nil {
			return err
		}
		vector, err := s.embedder.EmbedPassage(ctx, description)
		if err != nil {
			return err
		}
		return s.evidence.Upsert(ctx, &models.EvidenceRecord{
			VideoID:   video.ID,
			Timestamp: ts,
			Modality:  enums.ModalityVisual,
			Text:      description,
			Embedding: pgvector.NewVector(vector),
		})
	})
}

// processAudio transcribes the audio track and indexes consolidated
// segments. Returns cancelled=true when a stop request interrupted it.
func (s *service) processAudio(ctx context.Context, video *models.Video, handle *jobs.Handle, tmpDir string) (bool, error) {
	audioPath := filepath.Join(tmpDir, "audio.wav")
	if err := s.extractor.ExtractAudio(ctx, video.FilePath, audioPath); err != nil {
		return false, fmt.Errorf("extracting audio: %w", err)
	}

	var segments []gateway.TranscriptSegment
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var trErr error
		segments, trErr = s.transcriber.Transcribe(ctx, audioPath)
		return trErr
	})
	if err != nil {
		return false, fmt.Errorf("transcribing audio: %w", err)
	}

	for _, segment := range consolidateSegments(segments, s.cfg.AudioSegmentSeconds) {
		if handle.CancelRequested() {
			return true, nil
		}
		err := s.withRetry(ctx, func(ctx context.Context) error {
			text := audioTextPrefix + segment.Text
			vector, embErr := s.embedder.EmbedPassage(ctx, text)
			if embErr != nil {
				return embErr
			}
			return s.evidence.Upsert(ctx, &models.EvidenceRecord{
				VideoID:   video.ID,
				Timestamp: segment.Start,
				Modality:  enums.ModalityAudio,
				Text:      text,
				Embedding: pgvector.NewVector(vector),
			})
		})
		if err != nil {
			s.metrics.IncFailed(string(enums.ModalityAudio))
			s.logg.Error(ctx, "audio segment failed", err)
			continue
		}
		s.metrics.IncProcessed(string(enums.ModalityAudio))
	}
	return false, nil
}

// consolidateSegments merges consecutive transcript segments until each
// chunk spans at least minSeconds, so tiny utterances do not become
// individually indexed slivers. The trailing chunk may be shorter.
func consolidateSegments(segments []gateway.TranscriptSegment, minSeconds float64) []gateway.TranscriptSegment {
	if len(segments) == 0 {
		return nil
	}

	var out []gateway.TranscriptSegment
	var parts []string
	var start, end float64

	for _, segment := range segments {
		if len(parts) == 0 {
			start = segment.Start
		}
		parts = append(parts, segment.Text)
		end = segment.End

		if end-start >= minSeconds {
			out = append(out, gateway.TranscriptSegment{Start: start, End: end, Text: strings.Join(parts, " ")})
			parts = parts[:0]
		}
	}

	if len(parts) > 0 {
		out = append(out, gateway.TranscriptSegment{Start: start, End: end, Text: strings.Join(parts, " ")})
	}
	return out
}

// withRetry runs fn with bounded attempts and doubling backoff.
func (s *service) withRetry(ctx context.Context, fn func(context.Context) error) error {
	attempts := 0
	backoff := s.cfg.RetryBackoff
	maxAttempts := s.cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= maxAttempts {
			return err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		timer.Stop()

		backoff *= 2
	}
}

func (s *service) finish(ctx context.Context, video *models.Video, handle *jobs.Handle, state enums.JobState, message string, start time.Time) {
	var status enums.VideoStatus
	switch state {
	case enums.JobStateCompleted:
		status = enums.VideoStatusCompleted
	case enums.JobStateCancelled:
		status = enums.VideoStatusCancelled
	default:
		status = enums.VideoStatusFailed
	}

	var processedAt *time.Time
	if state == enums.JobStateCompleted {
		now := time.Now()
		processedAt = &now
	}
	if err := s.videos.UpdateStatus(ctx, video.ID, status, processedAt); err != nil {
		s.logg.Error(ctx, "updating terminal video status failed", err)
	}

	switch state {
	case enums.JobStateCompleted:
		handle.Complete(message)
	case enums.JobStateCancelled:
		handle.Cancelled()
	default:
		handle.Fail(message)
	}

	s.metrics.ObserveJobDuration(string(state), time.Since(start))
	s.logg.Info(s.logg.WithField(ctx, "state", string(state)), "ingestion finished")
}
