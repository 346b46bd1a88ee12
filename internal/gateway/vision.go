package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
)

// visionClient posts JSON to the detector/segmenter sidecar endpoints.
type visionClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newVisionClient(baseURL, apiKey string, timeout time.Duration) *visionClient {
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &visionClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *visionClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeModelCall, err, "calling vision endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return pkgerrors.New(pkgerrors.CodeModelCall,
			fmt.Sprintf("vision endpoint %s returned %d: %s", path, resp.StatusCode, string(raw)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeModelCall, err, "decoding vision response")
	}
	return nil
}

type detectRequest struct {
	Image        string `json:"image"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	PriorityOnly bool   `json:"priority_only"`
}

type detectResponse struct {
	Detections []struct {
		ClassID    int        `json:"class_id"`
		ClassName  string     `json:"class_name"`
		Confidence float64    `json:"confidence"`
		Box        [4]float64 `json:"bbox"`
		BoxPixels  [4]int     `json:"bbox_pixels"`
	} `json:"detections"`
	InferenceTimeMS float64 `json:"inference_time_ms"`
}

// Detect runs object detection over one frame.
func (g *Gateway) Detect(ctx context.Context, frameJPEG []byte, width, height int, priorityOnly bool) (DetectionResult, error) {
	var result DetectionResult
	err := g.call(ctx, "detector", func(ctx context.Context) error {
		var resp detectResponse
		req := detectRequest{
			Image:        base64.StdEncoding.EncodeToString(frameJPEG),
			Width:        width,
			Height:       height,
			PriorityOnly: priorityOnly,
		}
		if err := g.detector.post(ctx, "/detect", req, &resp); err != nil {
			return err
		}
		result.InferenceTimeMS = resp.InferenceTimeMS
		result.Detections = make([]Detection, 0, len(resp.Detections))
		for _, d := range resp.Detections {
			result.Detections = append(result.Detections, Detection{
				ClassID:    d.ClassID,
				ClassName:  d.ClassName,
				Confidence: d.Confidence,
				Box:        d.Box,
				BoxPixels:  d.BoxPixels,
			})
		}
		return nil
	})
	if err != nil {
		return DetectionResult{}, err
	}
	return result, nil
}

type segmentRequest struct {
	Image string `json:"image"`
	Point struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"point"`
}

type segmentResponse struct {
	Polygon    [][2]float64 `json:"polygon"`
	Area       float64      `json:"area"`
	Confidence float64      `json:"confidence"`
}

// SegmentPoint asks the segmenter for the object mask around a click point.
// Coordinates are normalized to 0..1.
func (g *Gateway) SegmentPoint(ctx context.Context, frameJPEG []byte, x, y float64) (Segmentation, error) {
	var result Segmentation
	err := g.call(ctx, "segmenter", func(ctx context.Context) error {
		req := segmentRequest{Image: base64.StdEncoding.EncodeToString(frameJPEG)}
		req.Point.X = x
		req.Point.Y = y

		var resp segmentResponse
		if err := g.segmenter.post(ctx, "/segment", req, &resp); err != nil {
			return err
		}
		if len(resp.Polygon) == 0 {
			return pkgerrors.New(pkgerrors.CodeModelCall, "segmenter returned empty mask")
		}
		result = Segmentation{
			Polygon:     resp.Polygon,
			AreaPercent: resp.Area,
			Confidence:  resp.Confidence,
		}
		return nil
	})
	if err != nil {
		return Segmentation{}, err
	}
	return result, nil
}
