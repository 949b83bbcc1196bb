package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/spigell/cv-ranker/internal/config"
	"github.com/spigell/cv-ranker/internal/secrets"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// New builds the embedder selected by cfg.Provider. Gemini reuses client when
// it is not nil.
func New(ctx context.Context, cfg config.EmbeddingConfig, client *genai.Client, logger *zap.Logger) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	switch strings.ToLower(cfg.Provider) {
	case "static":
		inner = NewStaticEmbedder(cfg.Dimensions)
	case "gemini", "":
		if client == nil {
			client, err = newGenAIClient(ctx, cfg)
			if err != nil {
				return nil, err
			}
		}
		inner, err = NewGeminiEmbedder(client, cfg.Model, cfg.Dimensions)
	case "openai":
		var apiKey string
		apiKey, err = secrets.Load(secrets.Source{
			Name:  "embedding api key",
			Value: cfg.APIKey,
			File:  cfg.APIKeyFile,
			Env:   config.ProviderKeyEnv("openai"),
		})
		// local servers such as Ollama accept anonymous requests
		if err != nil && cfg.APIKeyFile == "" {
			apiKey, err = "", nil
		}
		if err != nil {
			return nil, err
		}
		inner, err = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     apiKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Debug("embedding provider ready",
			zap.String("provider", cfg.Provider),
			zap.String("model", inner.ModelName()),
			zap.Int("dimensions", inner.Dimensions()),
		)
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}

func newGenAIClient(ctx context.Context, cfg config.EmbeddingConfig) (*genai.Client, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
		Env:   config.ProviderKeyEnv("gemini"),
	})
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}
