package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// Info holds the container-level facts we keep for an uploaded video.
type Info struct {
	Duration float64
	Width    int
	Height   int
}

// Tool shells out to ffmpeg/ffprobe. Binary paths are overridable for
// non-standard installs.
type Tool struct {
	FFmpegBin  string
	FFprobeBin string
}

// New returns a Tool that resolves the binaries from PATH.
func New() *Tool {
	return &Tool{FFmpegBin: "ffmpeg", FFprobeBin: "ffprobe"}
}

// Probe extracts duration and dimensions from a media file.
func (t *Tool) Probe(ctx context.Context, path string) (Info, error) {
	cmd := exec.CommandContext(ctx, t.FFprobeBin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbeOutput(output)
}

func parseProbeOutput(output []byte) (Info, error) {
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(output, &probe); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var info Info
	if probe.Format.Duration != "" {
		d, err := strconv.ParseFloat(probe.Format.Duration, 64)
		if err != nil {
			return Info{}, fmt.Errorf("parse duration %q: %w", probe.Format.Duration, err)
		}
		info.Duration = d
	}
	for _, stream := range probe.Streams {
		if stream.CodecType == "video" {
			info.Width = stream.Width
			info.Height = stream.Height
			break
		}
	}
	if info.Duration <= 0 {
		return Info{}, fmt.Errorf("media has no measurable duration")
	}
	return info, nil
}

// ExtractFrame writes a single JPEG frame sampled at the given offset.
func (t *Tool) ExtractFrame(ctx context.Context, videoPath string, at float64, outPath string) error {
	args := []string{
		"-y",
		"-ss", strconv.FormatFloat(at, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		outPath,
	}
	return t.runFFmpeg(ctx, args)
}

// ExtractAudio writes the full audio track as mono 16kHz WAV, the input
// format the transcription collaborator expects.
func (t *Tool) ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	args := []string{
		"-y",
		"-i", videoPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outPath,
	}
	return t.runFFmpeg(ctx, args)
}

// Thumbnail writes a small JPEG preview sampled near the start of the video.
func (t *Tool) Thumbnail(ctx context.Context, videoPath, outPath string) error {
	args := []string{
		"-y",
		"-ss", "1",
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", "scale=320:-2",
		outPath,
	}
	return t.runFFmpeg(ctx, args)
}

func (t *Tool) runFFmpeg(ctx context.Context, args []string) error {
	if err := os.MkdirAll(filepath.Dir(args[len(args)-1]), 0o755); err != nil {
		return fmt.Errorf("preparing output dir: %w", err)
	}
	cmd := exec.CommandContext(ctx, t.FFmpegBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg %v: %w: %s", args, err, truncate(stderr.String(), 512))
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
