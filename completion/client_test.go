package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"adichat/backend/pkg/logger"
	"adichat/backend/pkg/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientComplete(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultModel, body.Model)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)
		assert.Equal(t, "hello", body.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","model":"llama3-70b-8192",
			"choices":[{"index":0,"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`))
	})

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "key"}, logger.Nop())
	reply, err := c.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)
}

func TestClientFailuresAreCompletionFailed(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"rate limited": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
		},
		"no choices": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{not json`))
		},
	}

	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := completionServer(t, handler)
			c := NewClient(Config{BaseURL: srv.URL, APIKey: "key"}, logger.Nop())
			_, err := c.Complete(context.Background(), "hello")
			assert.ErrorIs(t, err, ErrCompletionFailed)
		})
	}
}

func TestClientHonoursCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "key"}, logger.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Complete(ctx, "hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBreakerGatewayShortCircuits(t *testing.T) {
	var calls atomic.Int32
	upstream := GatewayFunc(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "", errors.New("upstream down")
	})
	cb := resilience.NewBreaker(resilience.Config{
		Name:      "completion",
		Threshold: 2,
		Cooldown:  time.Hour,
	}, logger.Nop())
	g := WithBreaker(upstream, cb)

	for i := 0; i < 2; i++ {
		_, err := g.Complete(context.Background(), "p")
		require.Error(t, err)
	}

	_, err := g.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, ErrCompletionFailed)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}
