package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "text-embedding-3-small"
	DefaultTimeout       = 30 * time.Second

	maxErrorBody = 512
)

// OpenAIConfig configures an embedder for any server speaking the OpenAI
// embeddings API, including Ollama and Azure OpenAI deployments.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// OpenAIEmbedder posts to {BaseURL}/embeddings.
type OpenAIEmbedder struct {
	client *http.Client
	cfg    OpenAIConfig
}

var _ Embedder = (*OpenAIEmbedder)(nil)

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// embeddingResponse accepts both the OpenAI shape (data[].embedding) and the
// Ollama /api/embed shape (embeddings[][]).
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Embeddings [][]float32 `json:"embeddings"`
}

func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model = strings.TrimSpace(cfg.Model); cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be set for model %s", cfg.Model)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &OpenAIEmbedder{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{
		Model:      e.cfg.Model,
		Input:      text,
		Dimensions: e.cfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("embedding request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var payload embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	var values []float32
	switch {
	case len(payload.Data) > 0:
		values = payload.Data[0].Embedding
	case len(payload.Embeddings) > 0:
		values = payload.Embeddings[0]
	}
	if len(values) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if len(values) != e.cfg.Dimensions {
		return nil, fmt.Errorf("%w: model %s returned %d values, expected %d", ErrDimensionsMismatch, e.cfg.Model, len(values), e.cfg.Dimensions)
	}

	return values, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.cfg.Dimensions }

func (e *OpenAIEmbedder) ModelName() string { return e.cfg.Model }
