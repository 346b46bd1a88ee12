package ffmpeg

import (
	"strings"
	"testing"
)

func TestParseProbeOutput(t *testing.T) {
	payload := []byte(`{
		"format": {"duration": "93.480000"},
		"streams": [
			{"codec_type": "audio"},
			{"codec_type": "video", "width": 1920, "height": 1080}
		]
	}`)

	info, err := parseProbeOutput(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Duration != 93.48 {
		t.Fatalf("expected duration 93.48, got %f", info.Duration)
	}
	if info.Width != 1920 || info.Height != 1080 {
		t.Fatalf("expected 1920x1080, got %dx%d", info.Width, info.Height)
	}
}

func TestParseProbeOutputAudioOnly(t *testing.T) {
	payload := []byte(`{
		"format": {"duration": "12.5"},
		"streams": [{"codec_type": "audio"}]
	}`)

	info, err := parseProbeOutput(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Width != 0 || info.Height != 0 {
		t.Fatalf("audio-only media should report zero dimensions")
	}
}

func TestParseProbeOutputRejectsMissingDuration(t *testing.T) {
	payload := []byte(`{"format": {}, "streams": []}`)
	if _, err := parseProbeOutput(payload); err == nil {
		t.Fatalf("expected error for missing duration")
	}
}

func TestParseProbeOutputRejectsGarbage(t *testing.T) {
	if _, err := parseProbeOutput([]byte("not json")); err == nil {
		t.Fatalf("expected error for invalid json")
	}
	if _, err := parseProbeOutput([]byte(`{"format": {"duration": "abc"}}`)); err == nil || !strings.Contains(err.Error(), "parse duration") {
		t.Fatalf("expected duration parse error, got %v", err)
	}
}
