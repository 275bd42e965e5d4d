package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	clientcfg "adichat/backend/client/config"
	"adichat/backend/client/session"
	"adichat/backend/pkg/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCommandMintsValidToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	t.Setenv("ADICHAT_TOKEN", "")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"token", "--config", path, "--user", "alice", "--secret", "dev-secret", "--save"})
	require.NoError(t, root.Execute())

	token := strings.TrimSpace(out.String())
	claims, err := jwt.NewService("dev-secret", time.Hour).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)

	cfg, err := clientcfg.Load(path)
	require.NoError(t, err)
	assert.Equal(t, token, cfg.Auth.Token)
}

func TestResolveChatAndMessage(t *testing.T) {
	s := session.New()
	s.ReplaceChats([]session.Chat{
		{ID: "b", UpdatedAt: time.Unix(10, 0), Messages: []session.Message{{ID: "m", Content: "hi"}}},
		{ID: "a", UpdatedAt: time.Unix(5, 0)},
	})

	c, err := resolveChat(s, "2")
	require.NoError(t, err)
	assert.Equal(t, "a", c.ID)

	c, err = resolveChat(s, "b")
	require.NoError(t, err)
	m, err := messageAt(c, "1")
	require.NoError(t, err)
	assert.Equal(t, "hi", m.Content)

	_, err = messageAt(c, "2")
	assert.Error(t, err)
	_, err = resolveChat(s, "9")
	assert.Error(t, err)
}

func TestPrintChats(t *testing.T) {
	s := session.New()
	s.ReplaceChats([]session.Chat{{ID: "a", Name: "Physics"}})

	var out bytes.Buffer
	printChats(&out, s)
	assert.Contains(t, out.String(), "Physics")
	assert.True(t, strings.HasPrefix(out.String(), "*"))
}
