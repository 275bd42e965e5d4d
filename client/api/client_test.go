package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"adichat/backend/chat/models"
	"adichat/backend/pkg/config"
	"adichat/backend/pkg/di"
	apperrors "adichat/backend/pkg/errors"
	"adichat/backend/pkg/logger"
	"adichat/backend/pkg/router"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	URL       string
	container *di.Container
	upstream  atomic.Int32
}

func newTestServer(t *testing.T, upstreamStatus int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ts := &testServer{}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.upstream.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if upstreamStatus != http.StatusOK {
			w.WriteHeader(upstreamStatus)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"x","choices":[{"index":0,"message":{"role":"assistant","content":"hello back"}}]}`))
	}))
	t.Cleanup(upstream.Close)

	cfg := config.Load()
	cfg.Server.Env = "test"
	cfg.Database.Driver = "sqlite"
	cfg.JWT.Secret = "client-test"
	cfg.Completion.BaseURL = upstream.URL
	cfg.Completion.APIKey = "k"
	cfg.Redis.URL = ""
	cfg.Vault.Address = ""
	cfg.Security.RateLimit = 100
	cfg.Security.RateLimitBurst = 100

	db, err := config.OpenSQLite(filepath.Join(t.TempDir(), "client.db"), nil)
	require.NoError(t, err)
	container, err := di.New(context.Background(), cfg, db, logger.Nop())
	require.NoError(t, err)

	r := router.New(container)
	r.SetupRoutes()
	srv := httptest.NewServer(r.Engine)
	t.Cleanup(func() {
		srv.Close()
		r.Close()
		_ = container.Close(context.Background())
	})

	ts.URL = srv.URL
	ts.container = container
	return ts
}

func (ts *testServer) client(t *testing.T, userID string) *Client {
	t.Helper()
	token, err := ts.container.JWTService.GenerateToken(userID, "")
	require.NoError(t, err)
	return New(Config{BaseURL: ts.URL, Token: token, Timeout: 5 * time.Second})
}

func TestChatLifecycle(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)
	c := ts.client(t, "alice")
	ctx := context.Background()

	assert.Equal(t, "alice", c.UserID())

	chat, err := c.CreateChat(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultChatName, chat.Name)

	renamed, err := c.RenameChat(ctx, chat.ID, "Physics")
	require.NoError(t, err)
	assert.Equal(t, "Physics", renamed.Name)

	reply, err := c.Complete(ctx, chat.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAssistant, reply.Role)
	assert.Equal(t, "hello back", reply.Content)

	chats, err := c.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Len(t, chats[0].Messages, 2)
	assert.Equal(t, "hello", chats[0].Messages[0].Content)
	assert.Equal(t, reply.ID, chats[0].Messages[1].ID)

	require.NoError(t, c.DeleteChat(ctx, chat.ID))
	chats, err = c.ListChats(ctx)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestErrorsCarryServerCodes(t *testing.T) {
	ts := newTestServer(t, http.StatusTooManyRequests)
	ctx := context.Background()

	anon := New(Config{BaseURL: ts.URL})
	assert.Equal(t, "", anon.UserID())
	_, err := anon.ListChats(ctx)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotAuthenticated))
	assert.Equal(t, http.StatusUnauthorized, apperrors.GetStatusCode(err))

	alice, bob := ts.client(t, "alice"), ts.client(t, "bob")
	chat, err := alice.CreateChat(ctx)
	require.NoError(t, err)

	err = bob.DeleteChat(ctx, chat.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeChatNotFound))

	_, err = alice.Complete(ctx, chat.ID, "hi")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeCompletionFailed))
	assert.Equal(t, int32(1), ts.upstream.Load(), "completions are attempted once")
}

func TestSubscribeReceivesOwnEvents(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)
	c := ts.client(t, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan models.Event, 8)
	done := make(chan error, 1)
	go func() {
		done <- c.Subscribe(ctx, func(e models.Event) { events <- e })
	}()

	require.Eventually(t, func() bool {
		return ts.container.Hub.ClientCount("alice") == 1
	}, 2*time.Second, 10*time.Millisecond)

	chat, err := c.CreateChat(context.Background())
	require.NoError(t, err)

	select {
	case e := <-events:
		assert.Equal(t, models.EventChatCreated, e.Type)
		assert.Equal(t, chat.ID, e.ChatID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop")
	}
}
