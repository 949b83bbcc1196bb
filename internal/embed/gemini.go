package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	DefaultGeminiModel      = "text-embedding-004"
	DefaultGeminiDimensions = 768
)

type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GeminiEmbedder calls the Gemini embedding endpoint.
type GeminiEmbedder struct {
	models contentEmbedder
	model  string
	dims   int
}

var _ Embedder = (*GeminiEmbedder)(nil)

// NewGeminiEmbedder builds an embedder on top of an existing genai client.
// dims of zero keeps the model's native size.
func NewGeminiEmbedder(client *genai.Client, model string, dims int) (*GeminiEmbedder, error) {
	if client == nil {
		return nil, errors.New("genai client is required")
	}
	return newGeminiEmbedder(client.Models, model, dims), nil
}

func newGeminiEmbedder(models contentEmbedder, model string, dims int) *GeminiEmbedder {
	if model = strings.TrimSpace(model); model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiEmbedder{models: models, model: model, dims: dims}
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"}
	if e.dims > 0 {
		dims := int32(e.dims)
		cfg.OutputDimensionality = &dims
	}

	resp, err := e.models.EmbedContent(ctx, e.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, ErrEmptyEmbedding
	}

	values := resp.Embeddings[0].Values
	if want := e.Dimensions(); len(values) != want {
		return nil, fmt.Errorf("%w: model %s returned %d values, expected %d", ErrDimensionsMismatch, e.model, len(values), want)
	}

	return clone(values), nil
}

func (e *GeminiEmbedder) Dimensions() int {
	if e.dims > 0 {
		return e.dims
	}
	return DefaultGeminiDimensions
}

func (e *GeminiEmbedder) ModelName() string { return e.model }
