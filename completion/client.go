package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"adichat/backend/pkg/logger"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama3-70b-8192"
	DefaultTimeout = 60 * time.Second
)

// Config holds the OpenAI-compatible endpoint settings
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls an OpenAI-compatible chat completions endpoint (Groq by default)
type Client struct {
	api   *openai.Client
	model string
	log   *logger.Logger
}

// NewClient creates a completion client
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:   openai.NewClientWithConfig(oc),
		model: cfg.Model,
		log:   log.WithComponent("completion"),
	}
}

// Complete sends prompt as a single user message and returns the reply text
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			c.log.Warn("completion rejected", "status", apiErr.HTTPStatusCode, "error", apiErr.Message)
			return "", fmt.Errorf("%w: status %d: %s", ErrCompletionFailed, apiErr.HTTPStatusCode, apiErr.Message)
		}
		c.log.Warn("completion request failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", ErrCompletionFailed)
	}

	c.log.Debug("completion received",
		"model", resp.Model,
		"tokens", resp.Usage.TotalTokens,
		"duration", time.Since(start).String(),
	)
	return resp.Choices[0].Message.Content, nil
}
