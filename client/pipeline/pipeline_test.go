package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"adichat/backend/client/reveal"
	"adichat/backend/client/session"
	apperrors "adichat/backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatedCompleter struct {
	started chan string
	release chan struct{}
	reply   session.Message
	err     error
}

func newGated(reply string, err error) *gatedCompleter {
	return &gatedCompleter{
		started: make(chan string, 8),
		release: make(chan struct{}),
		reply:   session.Message{ID: "reply-1", Role: session.RoleAssistant, Content: reply},
		err:     err,
	}
}

func (g *gatedCompleter) Complete(ctx context.Context, chatID, prompt string) (session.Message, error) {
	g.started <- prompt
	select {
	case <-g.release:
		return g.reply, g.err
	case <-ctx.Done():
		return session.Message{}, ctx.Err()
	}
}

func setup(t *testing.T, c Completer, user string) (*Pipeline, *session.State, *reveal.ManualClock) {
	t.Helper()
	st := session.New()
	st.ReplaceChats([]session.Chat{{ID: "chat-1", Name: "New Chat"}, {ID: "chat-2", Name: "Other"}})
	require.Equal(t, "chat-1", st.SelectedID())

	clock := reveal.NewManualClock()
	sched := reveal.NewScheduler(reveal.WithClock(clock))
	p := New(st, c, sched, func() string { return user }, Options{})
	t.Cleanup(p.Close)
	return p, st, clock
}

func wait(t *testing.T, sub *Submission) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := sub.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

func messages(st *session.State, chatID string) []session.Message {
	chat, _ := st.Chat(chatID)
	return chat.Messages
}

func TestSubmitRevealsAndSettles(t *testing.T) {
	g := newGated("the quick brown fox", nil)
	p, st, clock := setup(t, g, "user-1")
	st.SetDraft("hello")

	sub, err := p.Submit(context.Background(), "hello")
	require.NoError(t, err)

	msgs := messages(st, "chat-1")
	require.Len(t, msgs, 1, "user message is visible before the completion returns")
	assert.Equal(t, session.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "", st.Draft())

	<-g.started
	close(g.release)
	clock.BlockUntil(1)

	msgs = messages(st, "chat-1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "the", msgs[1].Content)
	assert.True(t, msgs[1].Revealing)

	clock.Advance(time.Second)
	require.NoError(t, wait(t, sub))

	msgs = messages(st, "chat-1")
	assert.Equal(t, "the quick brown fox", msgs[1].Content)
	assert.False(t, msgs[1].Revealing)
	assert.Equal(t, "reply-1", msgs[1].ID)
	assert.Equal(t, []Stage{Idle, Validating, OptimisticallyAppended, AwaitingCompletion, Reconciling, Revealing, Settled}, sub.History())
}

func TestSecondSubmissionIsRejectedWhileAwaiting(t *testing.T) {
	g := newGated("ok", nil)
	p, st, _ := setup(t, g, "user-1")

	first, err := p.Submit(context.Background(), "one")
	require.NoError(t, err)
	<-g.started
	assert.True(t, p.Busy("chat-1"))

	_, err = p.Submit(context.Background(), "two")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSubmissionInFlight))
	assert.Len(t, messages(st, "chat-1"), 1)

	close(g.release)
	require.NoError(t, wait(t, first))
	assert.False(t, p.Busy("chat-1"))
}

func TestSubmitOnNewlySelectedChat(t *testing.T) {
	g := newGated("ok", nil)
	p, _, _ := setup(t, g, "user-1")

	_, err := p.Submit(context.Background(), "one")
	require.NoError(t, err)
	<-g.started

	require.True(t, p.SelectChat("chat-2"))
	_, err = p.Submit(context.Background(), "two")
	assert.NoError(t, err)
}

func TestValidationRejects(t *testing.T) {
	t.Run("not authenticated", func(t *testing.T) {
		p, st, _ := setup(t, newGated("x", nil), "")
		_, err := p.Submit(context.Background(), "hi")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeNotAuthenticated))
		assert.Empty(t, messages(st, "chat-1"))
	})

	t.Run("empty prompt", func(t *testing.T) {
		p, st, _ := setup(t, newGated("x", nil), "user-1")
		_, err := p.Submit(context.Background(), "   ")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeEmptyPrompt))
		assert.Empty(t, messages(st, "chat-1"))
	})

	t.Run("no chat", func(t *testing.T) {
		p, st, _ := setup(t, newGated("x", nil), "user-1")
		st.ReplaceChats(nil)
		_, err := p.Submit(context.Background(), "hi")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeChatNotFound))
	})
}

func TestCompletionFailureRollsBack(t *testing.T) {
	g := newGated("", apperrors.CompletionFailed(errors.New("upstream 429")))
	p, st, _ := setup(t, g, "user-1")
	st.SetDraft("explain gravity")

	sub, err := p.Submit(context.Background(), "explain gravity")
	require.NoError(t, err)
	<-g.started
	close(g.release)

	err = wait(t, sub)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeCompletionFailed))
	assert.Empty(t, messages(st, "chat-1"))
	assert.Equal(t, "explain gravity", st.Draft())
	assert.Equal(t, Aborted, sub.Stage())
	assert.False(t, p.Busy("chat-1"))
}

func TestPersistenceFailureKeepsOptimisticMessage(t *testing.T) {
	g := newGated("", apperrors.PersistenceFailed(errors.New("disk full")))
	p, st, _ := setup(t, g, "user-1")

	sub, err := p.Submit(context.Background(), "keep me")
	require.NoError(t, err)
	<-g.started
	close(g.release)

	err = wait(t, sub)
	assert.True(t, apperrors.HasCode(err, apperrors.CodePersistenceFailed))
	msgs := messages(st, "chat-1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "keep me", msgs[0].Content)
	assert.Equal(t, "", st.Draft())
}

func TestDeletingChatDiscardsPendingReply(t *testing.T) {
	g := newGated("too late", nil)
	p, st, _ := setup(t, g, "user-1")

	sub, err := p.Submit(context.Background(), "hi")
	require.NoError(t, err)
	<-g.started

	require.True(t, p.ForgetChat("chat-1"))
	assert.ErrorIs(t, wait(t, sub), ErrCancelled)

	assert.False(t, st.Has("chat-1"))
	assert.Empty(t, messages(st, "chat-2"))
	assert.Equal(t, "chat-2", st.SelectedID())
}

func TestSwitchingChatCancelsAwaitingCompletion(t *testing.T) {
	g := newGated("reply", nil)
	p, st, _ := setup(t, g, "user-1")

	sub, err := p.Submit(context.Background(), "hi")
	require.NoError(t, err)
	<-g.started

	require.True(t, p.SelectChat("chat-2"))
	assert.ErrorIs(t, wait(t, sub), ErrCancelled)
	assert.Empty(t, messages(st, "chat-1"))
	assert.Empty(t, messages(st, "chat-2"))
}

// persistedCompleter returns its reply once released, whatever happened to
// the request context meanwhile.
type persistedCompleter struct {
	started chan string
	release chan struct{}
}

func (c *persistedCompleter) Complete(_ context.Context, _, prompt string) (session.Message, error) {
	c.started <- prompt
	<-c.release
	return session.Message{ID: "srv-reply", Role: session.RoleAssistant, Content: "stored answer"}, nil
}

func TestSwitchingChatKeepsPersistedReply(t *testing.T) {
	c := &persistedCompleter{started: make(chan string, 1), release: make(chan struct{})}
	p, st, clock := setup(t, c, "user-1")

	sub, err := p.Submit(context.Background(), "question")
	require.NoError(t, err)
	<-c.started

	require.True(t, p.SelectChat("chat-2"))
	close(c.release)

	require.NoError(t, wait(t, sub))
	assert.Equal(t, []Stage{Idle, Validating, OptimisticallyAppended, AwaitingCompletion, Reconciling, Settled}, sub.History())
	assert.Zero(t, clock.Pending())

	msgs := messages(st, "chat-1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "question", msgs[0].Content)
	assert.Equal(t, "srv-reply", msgs[1].ID)
	assert.Equal(t, "stored answer", msgs[1].Content)
	assert.False(t, msgs[1].Revealing)
	assert.Empty(t, messages(st, "chat-2"))
	assert.False(t, p.Busy("chat-1"))
}

func TestReloadWhileAwaitingKeepsPersistedReply(t *testing.T) {
	c := &persistedCompleter{started: make(chan string, 1), release: make(chan struct{})}
	p, st, _ := setup(t, c, "user-1")

	sub, err := p.Submit(context.Background(), "question")
	require.NoError(t, err)
	<-c.started

	p.LoadChats([]session.Chat{{ID: "chat-1", Name: "New Chat"}, {ID: "chat-2", Name: "Other"}})
	close(c.release)

	require.NoError(t, wait(t, sub))
	msgs := messages(st, "chat-1")
	require.Len(t, msgs, 2)
	assert.Equal(t, session.RoleUser, msgs[0].Role)
	assert.Equal(t, "stored answer", msgs[1].Content)
}

func TestDeletedChatDropsPersistedReply(t *testing.T) {
	c := &persistedCompleter{started: make(chan string, 1), release: make(chan struct{})}
	p, st, _ := setup(t, c, "user-1")

	sub, err := p.Submit(context.Background(), "question")
	require.NoError(t, err)
	<-c.started

	p.ForgetChat("chat-1")
	close(c.release)

	assert.ErrorIs(t, wait(t, sub), ErrCancelled)
	assert.False(t, st.Has("chat-1"))
	assert.Empty(t, messages(st, "chat-2"))
}

func TestSwitchingChatFreezesReveal(t *testing.T) {
	g := newGated("one two three", nil)
	p, st, clock := setup(t, g, "user-1")

	sub, err := p.Submit(context.Background(), "count")
	require.NoError(t, err)
	<-g.started
	close(g.release)
	clock.BlockUntil(1)

	require.True(t, p.SelectChat("chat-2"))
	clock.Advance(time.Second)

	assert.ErrorIs(t, wait(t, sub), ErrCancelled)
	msgs := messages(st, "chat-1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[1].Content)
}

func TestApplyRemoteAppend(t *testing.T) {
	p, st, _ := setup(t, newGated("x", nil), "user-1")
	batch := []session.Message{
		{ID: "m1", Role: session.RoleUser, Content: "q"},
		{ID: "m2", Role: session.RoleAssistant, Content: "a"},
	}

	assert.Equal(t, 2, p.ApplyRemoteAppend("chat-2", batch))
	assert.Equal(t, 0, p.ApplyRemoteAppend("chat-2", batch), "duplicates are skipped")
	assert.Equal(t, 0, p.ApplyRemoteAppend("missing", batch))
	assert.Len(t, messages(st, "chat-2"), 2)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "awaiting_completion", AwaitingCompletion.String())
	assert.True(t, Settled.Terminal())
	assert.False(t, Revealing.Terminal())
}
