package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nirmal141/nvidiaxdell-hack/pkg/config"
	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
)

// nimEmbeddingClient talks to the NIM /embeddings endpoint directly. The
// endpoint is OpenAI-shaped but requires an input_type of "passage" or
// "query", which the OpenAI request schema has no field for.
type nimEmbeddingClient struct {
	baseURL string
	apiKey  string
	model   string
	dim     int
	http    *http.Client
}

func newNIMEmbeddingClient(cfg config.ModelsConfig) *nimEmbeddingClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &nimEmbeddingClient{
		baseURL: strings.TrimRight(cfg.EmbeddingBaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.EmbeddingModel,
		dim:     cfg.EmbeddingDim,
		http:    &http.Client{Timeout: timeout},
	}
}

type embeddingRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	InputType string   `json:"input_type"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *nimEmbeddingClient) embed(ctx context.Context, text, inputType string) ([]float32, error) {
	payload, err := json.Marshal(embeddingRequest{
		Model:     c.model,
		Input:     []string{text},
		InputType: inputType,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeModelCall, err, "calling embedding endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, pkgerrors.New(pkgerrors.CodeModelCall,
			fmt.Sprintf("embedding endpoint returned %d: %s", resp.StatusCode, string(body)))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeModelCall, err, "decoding embedding response")
	}
	if len(parsed.Data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeModelCall, "embedding endpoint returned no vectors")
	}

	vector := parsed.Data[0].Embedding
	if c.dim > 0 && len(vector) != c.dim {
		return nil, pkgerrors.New(pkgerrors.CodeModelCall,
			fmt.Sprintf("embedding dimensionality mismatch: got %d want %d", len(vector), c.dim))
	}
	return vector, nil
}

// EmbedPassage embeds stored evidence text.
func (g *Gateway) EmbedPassage(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := g.call(ctx, "embedding", func(ctx context.Context) error {
		var embedErr error
		vector, embedErr = g.embedder.embed(ctx, text, "passage")
		return embedErr
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

// EmbedQuery embeds a search question.
func (g *Gateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := g.call(ctx, "embedding", func(ctx context.Context) error {
		var embedErr error
		vector, embedErr = g.embedder.embed(ctx, text, "query")
		return embedErr
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

// Model reports the embedding model identifier, used to scope cache keys.
func (g *Gateway) Model() string {
	return g.cfg.EmbeddingModel
}
