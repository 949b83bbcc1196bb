// Package openai talks to OpenAI compatible chat completion endpoints,
// including Azure OpenAI deployments.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spigell/cv-ranker/internal/ai"
	"github.com/spigell/cv-ranker/internal/logger"
	"github.com/spigell/cv-ranker/internal/utils"
	"go.uber.org/zap"
)

const (
	contentType = "application/json"
	userAgent   = "cv-ranker"

	defaultBaseURL      = "https://api.openai.com/v1"
	defaultAPIVersion   = "2024-06-01"
	defaultTimeout      = 60 * time.Second
	defaultMaxLogLength = 200
	maxErrorBody        = 1024
)

type Config struct {
	// Azure selects the deployments URL layout and the api-key header.
	Azure        bool
	Endpoint     string
	APIKey       string
	APIVersion   string
	Model        string
	Timeout      time.Duration
	MaxLogLength int
}

// Client implements ai.Reasoner over /chat/completions.
type Client struct {
	HTTPClient *http.Client

	cfg    Config
	logger *zap.Logger
}

var _ ai.Reasoner = (*Client)(nil)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []message `json:"messages"`
	Temperature *float32  `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

func New(cfg Config, log *zap.Logger) (*Client, error) {
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	cfg.Model = strings.TrimSpace(cfg.Model)

	if cfg.Azure {
		if cfg.Endpoint == "" {
			return nil, errors.New("azure endpoint is required")
		}
		if cfg.Model == "" {
			return nil, errors.New("azure deployment name is required")
		}
		if cfg.APIVersion == "" {
			cfg.APIVersion = defaultAPIVersion
		}
	} else if cfg.Endpoint == "" {
		cfg.Endpoint = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxLogLength <= 0 {
		cfg.MaxLogLength = defaultMaxLogLength
	}

	provider := "openai"
	if cfg.Azure {
		provider = "azure"
	}

	return &Client{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger.WithModel(log, provider, cfg.Model),
	}, nil
}

func (c *Client) Model() string {
	return c.cfg.Model
}

func (c *Client) Complete(ctx context.Context, prompt string, opts ...ai.Option) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	options := ai.Apply(opts...)

	payload := chatRequest{Temperature: options.Temperature}
	if !c.cfg.Azure {
		payload.Model = c.cfg.Model
	}
	if system := strings.TrimSpace(options.System); system != "" {
		payload.Messages = append(payload.Messages, message{Role: "system", Content: system})
	}
	payload.Messages = append(payload.Messages, message{Role: "user", Content: prompt})

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req = c.setHeaders(req)

	c.logger.Debug("chat completion request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, c.cfg.MaxLogLength)),
	)

	resp, err := c.request(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ai.ErrReasonerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := fmt.Errorf("bad status: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return "", fmt.Errorf("%w: %w", ai.ErrReasonerUnavailable, err)
		}
		return "", err
	}

	var response chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	output := strings.TrimSpace(response.Choices[0].Message.Content)
	if output == "" {
		return "", errors.New("chat completion returned empty response")
	}

	c.logger.Debug("chat completion response",
		zap.Int("response_length", utf8.RuneCountInString(output)),
		zap.String("response_preview", utils.TruncateForLog(output, c.cfg.MaxLogLength)),
	)

	return output, nil
}

func (c *Client) completionsURL() string {
	if !c.cfg.Azure {
		return c.cfg.Endpoint + "/chat/completions"
	}

	q := url.Values{}
	q.Set("api-version", c.cfg.APIVersion)
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?%s",
		c.cfg.Endpoint, url.PathEscape(c.cfg.Model), q.Encode())
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)
	if c.cfg.APIKey == "" {
		return req
	}
	if c.cfg.Azure {
		req.Header.Set("api-key", c.cfg.APIKey)
	} else {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.cfg.APIKey))
	}
	return req
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", req.URL.Redacted()))
	return c.HTTPClient.Do(req)
}
