package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"adichat/backend/chat/models"
	"adichat/backend/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *GormChatRepository {
	t.Helper()
	db, err := config.OpenSQLite(filepath.Join(t.TempDir(), "chat.db"), nil)
	require.NoError(t, err)
	repo := NewGormChatRepository(db)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return repo
}

func msg(role models.Role, content string) models.Message {
	return models.Message{Role: role, Content: content}
}

func TestCreateAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }
	older, err := repo.Create(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultChatName, older.Name)
	assert.Empty(t, older.Messages)

	repo.now = func() time.Time { return base.Add(time.Minute) }
	newer, err := repo.Create(ctx, "alice")
	require.NoError(t, err)

	_, err = repo.Create(ctx, "bob")
	require.NoError(t, err)

	chats, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, newer.ID, chats[0].ID)
	assert.Equal(t, older.ID, chats[1].ID)
}

func TestOwnershipIsNotFound(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	chat, err := repo.Create(ctx, "alice")
	require.NoError(t, err)

	_, err = repo.Get(ctx, chat.ID, "mallory")
	assert.ErrorIs(t, err, ErrChatNotFound)

	_, err = repo.Rename(ctx, chat.ID, "mallory", "mine now")
	assert.ErrorIs(t, err, ErrChatNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, chat.ID, "mallory"), ErrChatNotFound)

	_, err = repo.AppendMessages(ctx, chat.ID, "mallory", []models.Message{msg(models.RoleUser, "hi")})
	assert.ErrorIs(t, err, ErrChatNotFound)

	_, err = repo.Rename(ctx, "no-such-chat", "alice", "x")
	assert.ErrorIs(t, err, ErrChatNotFound)

	got, err := repo.Get(ctx, chat.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultChatName, got.Name)
	assert.Empty(t, got.Messages)
}

func TestRenameKeepsMessages(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	chat, err := repo.Create(ctx, "alice")
	require.NoError(t, err)
	_, err = repo.AppendMessages(ctx, chat.ID, "alice", []models.Message{
		msg(models.RoleUser, "q"), msg(models.RoleAssistant, "a"),
	})
	require.NoError(t, err)

	renamed, err := repo.Rename(ctx, chat.ID, "alice", "Trip plans")
	require.NoError(t, err)
	assert.Equal(t, "Trip plans", renamed.Name)
	require.Len(t, renamed.Messages, 2)
	assert.Equal(t, "q", renamed.Messages[0].Content)
	assert.Equal(t, "a", renamed.Messages[1].Content)
}

func TestDeleteRemovesChatAndMessages(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	chat, err := repo.Create(ctx, "alice")
	require.NoError(t, err)
	_, err = repo.AppendMessages(ctx, chat.ID, "alice", []models.Message{msg(models.RoleUser, "q")})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, chat.ID, "alice"))

	_, err = repo.Get(ctx, chat.ID, "alice")
	assert.ErrorIs(t, err, ErrChatNotFound)

	var count int64
	require.NoError(t, repo.db.Model(&models.Message{}).Where("chat_id = ?", chat.ID).Count(&count).Error)
	assert.Zero(t, count)

	_, err = repo.AppendMessages(ctx, chat.ID, "alice", []models.Message{msg(models.RoleAssistant, "late")})
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestAppendMessagesOrdersAndBumpsUpdatedAt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }
	chat, err := repo.Create(ctx, "alice")
	require.NoError(t, err)

	repo.now = func() time.Time { return base.Add(time.Hour) }
	updated, err := repo.AppendMessages(ctx, chat.ID, "alice", []models.Message{
		msg(models.RoleUser, "first"), msg(models.RoleAssistant, "second"),
	})
	require.NoError(t, err)
	updated, err = repo.AppendMessages(ctx, chat.ID, "alice", []models.Message{
		msg(models.RoleUser, "third"), msg(models.RoleAssistant, "fourth"),
	})
	require.NoError(t, err)

	contents := make([]string, 0, len(updated.Messages))
	for _, m := range updated.Messages {
		contents = append(contents, m.Content)
		assert.NotEmpty(t, m.ID)
	}
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, contents)
	assert.True(t, updated.UpdatedAt.After(chat.UpdatedAt))
}

func TestAppendMessagesRejectsUnknownRole(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	chat, err := repo.Create(ctx, "alice")
	require.NoError(t, err)

	_, err = repo.AppendMessages(ctx, chat.ID, "alice", []models.Message{{Role: "system", Content: "x"}})
	require.Error(t, err)

	got, err := repo.Get(ctx, chat.ID, "alice")
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func TestConcurrentAppendsLoseNothing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	chat, err := repo.Create(ctx, "alice")
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.AppendMessages(ctx, chat.ID, "alice", []models.Message{
				msg(models.RoleUser, fmt.Sprintf("q%d", i)),
				msg(models.RoleAssistant, fmt.Sprintf("a%d", i)),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := repo.Get(ctx, chat.ID, "alice")
	require.NoError(t, err)
	require.Len(t, got.Messages, writers*2)

	// each pair stays adjacent
	for i := 0; i < len(got.Messages); i += 2 {
		q, a := got.Messages[i], got.Messages[i+1]
		assert.Equal(t, models.RoleUser, q.Role)
		assert.Equal(t, models.RoleAssistant, a.Role)
		assert.Equal(t, "a"+q.Content[1:], a.Content)
		assert.Equal(t, int64(i+1), q.Seq)
	}
}
