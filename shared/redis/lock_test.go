package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) *Client {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	c, err := NewClient(url)
	require.NoError(t, err)
	require.NoError(t, c.Ping(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestChatLockerExclusive(t *testing.T) {
	locker := NewChatLocker(testClient(t), time.Minute)
	ctx := context.Background()
	chatID := uuid.NewString()

	unlock, ok, err := locker.TryLock(ctx, chatID)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, chatID)
	require.NoError(t, err)
	assert.False(t, ok)

	unlock()

	unlock2, ok, err := locker.TryLock(ctx, chatID)
	require.NoError(t, err)
	assert.True(t, ok)
	unlock2()
}

func TestChatLockerStaleUnlockKeepsNewHolder(t *testing.T) {
	c := testClient(t)
	locker := NewChatLocker(c, 50*time.Millisecond)
	ctx := context.Background()
	chatID := uuid.NewString()

	staleUnlock, ok, err := locker.TryLock(ctx, chatID)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)

	locker.ttl = time.Minute
	unlock, ok, err := locker.TryLock(ctx, chatID)
	require.NoError(t, err)
	require.True(t, ok)
	defer unlock()

	staleUnlock()

	_, ok, err = locker.TryLock(ctx, chatID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewClientParsesURL(t *testing.T) {
	c, err := NewClient("redis://localhost:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", c.Raw().Options().Addr)
	assert.Equal(t, 2, c.Raw().Options().DB)

	c, err = NewClient("cache:6379")
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", c.Raw().Options().Addr)
}
