// Package app drives a chat session against the server: it loads the chat
// list, runs chat actions and keeps the session in step with the event feed.
package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"adichat/backend/chat/models"
	"adichat/backend/client/pipeline"
	"adichat/backend/client/reactions"
	"adichat/backend/client/reveal"
	"adichat/backend/client/session"
	apperrors "adichat/backend/pkg/errors"
	"adichat/backend/pkg/logger"
)

// API is the subset of the server API the app uses
type API interface {
	UserID() string
	CreateChat(ctx context.Context) (models.Chat, error)
	ListChats(ctx context.Context) ([]models.Chat, error)
	RenameChat(ctx context.Context, chatID, name string) (models.Chat, error)
	DeleteChat(ctx context.Context, chatID string) error
	Complete(ctx context.Context, chatID, prompt string) (models.Message, error)
}

// Subscriber delivers server events until ctx ends
type Subscriber interface {
	Subscribe(ctx context.Context, handle func(models.Event)) error
}

// ReactionStore persists like/dislike marks
type ReactionStore interface {
	Get(fingerprint string) (reactions.Reaction, bool, error)
	ToggleLike(fingerprint string) (reactions.Reaction, error)
	ToggleDislike(fingerprint string) (reactions.Reaction, error)
}

type Options struct {
	RevealInterval time.Duration
	Clock          reveal.Clock
	Logger         *logger.Logger
	NoticeBuffer   int
}

type App struct {
	api       API
	reactions ReactionStore
	state     *session.State
	pipeline  *pipeline.Pipeline
	notices   chan Notice
	log       *logger.Logger
}

func New(api API, store ReactionStore, opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.NoticeBuffer <= 0 {
		opts.NoticeBuffer = 32
	}
	schedOpts := []reveal.Option{reveal.WithInterval(opts.RevealInterval), reveal.WithLogger(opts.Logger)}
	if opts.Clock != nil {
		schedOpts = append(schedOpts, reveal.WithClock(opts.Clock))
	}

	state := session.New()
	a := &App{
		api:       api,
		reactions: store,
		state:     state,
		notices:   make(chan Notice, opts.NoticeBuffer),
		log:       opts.Logger.WithComponent("app"),
	}
	a.pipeline = pipeline.New(state, completer{api}, reveal.NewScheduler(schedOpts...), api.UserID,
		pipeline.Options{Logger: opts.Logger})
	return a
}

// State is the session the UI renders
func (a *App) State() *session.State { return a.state }

// Notices delivers transient user-facing messages
func (a *App) Notices() <-chan Notice { return a.notices }

func (a *App) notify(n Notice) {
	select {
	case a.notices <- n:
	default:
		a.log.Debug("notice dropped", "text", n.Text)
	}
}

func (a *App) fail(err error) error {
	a.notify(noticeFor(err))
	return err
}

// Bootstrap loads the user's chats, creating one when there are none, and
// selects the most recently updated chat.
func (a *App) Bootstrap(ctx context.Context) error {
	if a.api.UserID() == "" {
		return a.fail(apperrors.NotAuthenticated())
	}
	chats, err := a.api.ListChats(ctx)
	if err != nil {
		return a.fail(err)
	}
	if len(chats) == 0 {
		chat, err := a.api.CreateChat(ctx)
		if err != nil {
			return a.fail(err)
		}
		chats = append(chats, chat)
	}
	a.pipeline.LoadChats(toSessionChats(chats))
	return nil
}

func (a *App) NewChat(ctx context.Context) (session.Chat, error) {
	chat, err := a.api.CreateChat(ctx)
	if err != nil {
		return session.Chat{}, a.fail(err)
	}
	sc := toSessionChat(chat)
	a.pipeline.AddChat(sc, true)
	return sc, nil
}

func (a *App) Select(chatID string) bool {
	return a.pipeline.SelectChat(chatID)
}

func (a *App) Rename(ctx context.Context, chatID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return a.fail(apperrors.NewBadRequestError(apperrors.CodeInvalidRequest, "Chat name must not be empty"))
	}
	chat, err := a.api.RenameChat(ctx, chatID, name)
	if err != nil {
		return a.fail(err)
	}
	a.pipeline.RenameChat(chat.ID, chat.Name)
	a.notify(Notice{Level: LevelInfo, Text: "Chat Renamed"})
	return nil
}

// Delete removes the chat on the server, then locally. Work still running
// for it is cancelled before the request goes out, so a completion the server
// aborts is never mistaken for a failure. Deleting the last chat starts a
// fresh one.
func (a *App) Delete(ctx context.Context, chatID string) error {
	a.pipeline.CancelChat(chatID)
	if err := a.api.DeleteChat(ctx, chatID); err != nil {
		return a.fail(err)
	}
	a.pipeline.ForgetChat(chatID)
	a.notify(Notice{Level: LevelInfo, Text: "Chat Deleted"})

	if len(a.state.Chats()) == 0 {
		if _, err := a.NewChat(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Send submits prompt to the selected chat. Failures after submission are
// reported as notices.
func (a *App) Send(ctx context.Context, prompt string) (*pipeline.Submission, error) {
	a.state.SetDraft(prompt)
	sub, err := a.pipeline.Submit(ctx, prompt)
	if err != nil {
		return nil, a.fail(err)
	}
	go func() {
		<-sub.Done()
		if err := sub.Err(); err != nil {
			a.notify(noticeFor(err))
		}
	}()
	return sub, nil
}

// React toggles a like or dislike on message content
func (a *App) React(content string, like bool) (reactions.Reaction, error) {
	fp := reactions.Fingerprint(content)
	if like {
		r, err := a.reactions.ToggleLike(fp)
		if err != nil {
			return r, a.fail(err)
		}
		if r.Liked {
			a.notify(Notice{Level: LevelInfo, Text: "Liked message"})
		} else {
			a.notify(Notice{Level: LevelInfo, Text: "Removed like"})
		}
		return r, nil
	}

	r, err := a.reactions.ToggleDislike(fp)
	if err != nil {
		return r, a.fail(err)
	}
	if r.Disliked {
		a.notify(Notice{Level: LevelInfo, Text: "Disliked message"})
	} else {
		a.notify(Notice{Level: LevelInfo, Text: "Removed dislike"})
	}
	return r, nil
}

// Reaction returns the recorded mark for message content
func (a *App) Reaction(content string) reactions.Reaction {
	r, _, err := a.reactions.Get(reactions.Fingerprint(content))
	if err != nil {
		a.log.Warn("reaction lookup failed", "error", err)
	}
	return r
}

// HandleEvent applies a change made by another session of the same user
func (a *App) HandleEvent(e models.Event) {
	switch e.Type {
	case models.EventChatCreated:
		if !a.state.Has(e.ChatID) {
			a.pipeline.AddChat(session.Chat{ID: e.ChatID, Name: e.Name, UpdatedAt: time.Now()}, false)
		}
	case models.EventChatRenamed:
		a.pipeline.RenameChat(e.ChatID, e.Name)
	case models.EventChatDeleted:
		if a.pipeline.ForgetChat(e.ChatID) {
			a.notify(Notice{Level: LevelInfo, Text: "Chat Deleted"})
		}
	case models.EventMessagesAppended:
		a.pipeline.ApplyRemoteAppend(e.ChatID, toSessionMessages(e.Messages))
	default:
		a.log.Debug("ignoring event", "type", e.Type)
	}
}

// Follow applies events from sub until ctx ends
func (a *App) Follow(ctx context.Context, sub Subscriber) error {
	err := sub.Subscribe(ctx, a.HandleEvent)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Warn("event feed closed", "error", err)
	}
	return err
}

func (a *App) Close() {
	a.pipeline.Close()
}

type completer struct {
	api API
}

func (c completer) Complete(ctx context.Context, chatID, prompt string) (session.Message, error) {
	msg, err := c.api.Complete(ctx, chatID, prompt)
	if err != nil {
		return session.Message{}, err
	}
	return toSessionMessage(msg), nil
}

func toSessionMessage(m models.Message) session.Message {
	return session.Message{
		ID:        m.ID,
		Role:      session.Role(m.Role),
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
}

func toSessionMessages(msgs []models.Message) []session.Message {
	out := make([]session.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toSessionMessage(m))
	}
	return out
}

func toSessionChat(c models.Chat) session.Chat {
	return session.Chat{
		ID:        c.ID,
		Name:      c.Name,
		Messages:  toSessionMessages(c.Messages),
		UpdatedAt: c.UpdatedAt,
	}
}

func toSessionChats(chats []models.Chat) []session.Chat {
	out := make([]session.Chat, 0, len(chats))
	for _, c := range chats {
		out = append(out, toSessionChat(c))
	}
	return out
}
