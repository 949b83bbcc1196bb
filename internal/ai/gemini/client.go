package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spigell/cv-ranker/internal/ai"
	"github.com/spigell/cv-ranker/internal/logger"
	"github.com/spigell/cv-ranker/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultModel        = "gemini-2.5-flash"
	defaultMaxRetries   = 3
	defaultMaxLogLength = 200

	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 30 * time.Second
)

var (
	wait = utils.WaitFor

	retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*s`)
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config selects the Gemini backend. Project and Location switch the client
// to Vertex AI.
type Config struct {
	APIKey       string
	Model        string
	Project      string
	Location     string
	MaxRetries   int
	MaxLogLength int
}

// Generator implements ai.Reasoner on top of the Google GenAI client.
type Generator struct {
	client     *genai.Client
	models     contentGenerator
	model      string
	maxRetries int
	maxLogLen  int
	logger     *zap.Logger
}

var _ ai.Reasoner = (*Generator)(nil)

// NewGenerator creates a Generator for the Gemini API or Vertex AI backend.
func NewGenerator(ctx context.Context, cfg Config, log *zap.Logger) (*Generator, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Project != "" {
		clientCfg = &genai.ClientConfig{
			Project:  cfg.Project,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		}
	} else if clientCfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	g := newGenerator(client.Models, cfg, log)
	g.client = client
	return g, nil
}

func newGenerator(models contentGenerator, cfg Config, log *zap.Logger) *Generator {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MaxLogLength <= 0 {
		cfg.MaxLogLength = defaultMaxLogLength
	}

	return &Generator{
		models:     models,
		model:      model,
		maxRetries: cfg.MaxRetries,
		maxLogLen:  cfg.MaxLogLength,
		logger:     logger.WithModel(log, "gemini", model),
	}
}

// Client exposes the underlying genai client so embeddings can share it.
func (g *Generator) Client() *genai.Client {
	return g.client
}

// Complete sends the prompt and returns the joined text of the reply.
// Rate limits and server errors are retried with exponential backoff.
func (g *Generator) Complete(ctx context.Context, prompt string, opts ...ai.Option) (string, error) {
	if g == nil || g.models == nil {
		return "", fmt.Errorf("%w: gemini generator is not initialized", ai.ErrReasonerUnavailable)
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	options := ai.Apply(opts...)
	config := &genai.GenerateContentConfig{Temperature: options.Temperature}
	if system := strings.TrimSpace(options.System); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	g.logger.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, g.maxLogLen)),
	)

	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
		if err == nil {
			output, err := responseText(resp)
			if err != nil {
				return "", err
			}

			g.logger.Debug("gemini generate content response",
				zap.Int("attempt", attempt+1),
				zap.Int("response_length", utf8.RuneCountInString(output)),
				zap.String("response_preview", utils.TruncateForLog(output, g.maxLogLen)),
			)
			return output, nil
		}

		lastErr = err
		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == g.maxRetries-1 {
			break
		}

		g.logger.Warn("gemini request failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := wait(ctx, delay); err != nil {
			return "", fmt.Errorf("%w: %w", ai.ErrReasonerUnavailable, err)
		}
	}

	return "", fmt.Errorf("%w: generate content: %w", ai.ErrReasonerUnavailable, lastErr)
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// retryDelay decides whether err is worth another attempt. Quota errors that
// ask for a longer pause than maxRetryDelay are not retried.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return 0, false
	}
	if apiErr.Code != http.StatusTooManyRequests && apiErr.Code < http.StatusInternalServerError {
		return 0, false
	}

	delay := baseRetryDelay << attempt
	if m := retryAfterPattern.FindStringSubmatch(apiErr.Message); m != nil {
		seconds, perr := strconv.ParseFloat(m[1], 64)
		if perr == nil {
			requested := time.Duration(seconds * float64(time.Second))
			if requested > maxRetryDelay {
				return 0, false
			}
			delay = requested
		}
	}

	return min(delay, maxRetryDelay), true
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini api returned empty response")
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}
