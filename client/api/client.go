// Package api is the client side of the chat HTTP API and event feed.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"adichat/backend/chat/models"
	apperrors "adichat/backend/pkg/errors"
	"adichat/backend/pkg/jwt"
	"adichat/backend/pkg/logger"

	"github.com/hashicorp/go-retryablehttp"
)

type Config struct {
	BaseURL string
	Token   string
	// Timeout bounds every request. Completions can take long, keep it above
	// the server's upstream timeout.
	Timeout time.Duration
	// ReadRetries applies to the chat list only. Writes are never retried.
	ReadRetries int
	Logger      *logger.Logger
}

type Client struct {
	baseURL string
	token   string
	writes  *http.Client
	reads   *http.Client
	log     *logger.Logger
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	log := cfg.Logger.WithComponent("api-client")

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.ReadRetries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		writes:  &http.Client{Timeout: cfg.Timeout},
		reads:   rc.StandardClient(),
		log:     log,
	}
}

// UserID returns the user the token was issued for, or "" when there is no
// usable token. The signature is checked by the server, not here.
func (c *Client) UserID() string {
	if c.token == "" {
		return ""
	}
	id, err := jwt.SubjectUnverified(c.token)
	if err != nil {
		return ""
	}
	return id
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Message string              `json:"message"`
	Error   *apperrors.AppError `json:"error"`
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.log.Debug("api call", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return apperrors.FromEnvelope(resp.StatusCode, apperrors.Envelope{})
		}
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return apperrors.FromEnvelope(resp.StatusCode, apperrors.Envelope{Error: env.Error})
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return nil
}

func (c *Client) CreateChat(ctx context.Context) (models.Chat, error) {
	var chat models.Chat
	err := c.do(ctx, c.writes, http.MethodPost, "/api/chat/create", nil, &chat)
	return chat, err
}

func (c *Client) ListChats(ctx context.Context) ([]models.Chat, error) {
	var chats []models.Chat
	err := c.do(ctx, c.reads, http.MethodGet, "/api/chat/get", nil, &chats)
	return chats, err
}

func (c *Client) RenameChat(ctx context.Context, chatID, name string) (models.Chat, error) {
	var chat models.Chat
	err := c.do(ctx, c.writes, http.MethodPost, "/api/chat/rename", models.RenameChatRequest{ChatID: chatID, Name: name}, &chat)
	return chat, err
}

func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.do(ctx, c.writes, http.MethodPost, "/api/chat/delete", models.DeleteChatRequest{ChatID: chatID}, nil)
}

// Complete asks the server to answer prompt in chatID. The server stores the
// prompt and the reply before responding.
func (c *Client) Complete(ctx context.Context, chatID, prompt string) (models.Message, error) {
	var msg models.Message
	err := c.do(ctx, c.writes, http.MethodPost, "/api/chat/ai", models.CompletionRequest{ChatID: chatID, Prompt: prompt}, &msg)
	return msg, err
}
