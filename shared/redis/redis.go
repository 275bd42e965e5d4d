package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Client wraps the go-redis client used by the chat server
type Client struct {
	client *redis.Client
}

// NewClient connects to url, which may be a redis:// URL or a bare host:port
func NewClient(url string) (*Client, error) {
	if url == "" {
		url = "localhost:6379"
	}

	var opts *redis.Options
	if strings.Contains(url, "://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: url}
	}

	return &Client{client: redis.NewClient(opts)}, nil
}

// Ping checks the connection
func (r *Client) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying connection pool
func (r *Client) Close() error {
	return r.client.Close()
}

// Raw exposes the go-redis client
func (r *Client) Raw() *redis.Client {
	return r.client
}
