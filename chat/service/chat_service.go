package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"adichat/backend/chat/models"
	"adichat/backend/chat/repository"
	"adichat/backend/completion"
	apperrors "adichat/backend/pkg/errors"
	"adichat/backend/pkg/logger"
	"adichat/backend/shared/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("adichat/chat/service")

// EventPublisher receives chat lifecycle events for a user
type EventPublisher interface {
	Publish(userID string, event models.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, models.Event) {}

// Options holds the optional collaborators of ChatService
type Options struct {
	Locker  Locker
	Events  EventPublisher
	Metrics *observability.Metrics
	Logger  *logger.Logger
}

type ChatService struct {
	store    repository.ChatStore
	gateway  completion.Gateway
	locker   Locker
	events   EventPublisher
	metrics  *observability.Metrics
	inflight *inflight
	log      *logger.Logger
	now      func() time.Time
}

func NewChatService(store repository.ChatStore, gateway completion.Gateway, opts Options) *ChatService {
	if opts.Locker == nil {
		opts.Locker = NewLocalLocker()
	}
	if opts.Events == nil {
		opts.Events = nopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetGlobal()
	}
	return &ChatService{
		store:    store,
		gateway:  gateway,
		locker:   opts.Locker,
		events:   opts.Events,
		metrics:  opts.Metrics,
		inflight: newInflight(),
		log:      opts.Logger.WithComponent("chat"),
		now:      time.Now,
	}
}

func (s *ChatService) Create(ctx context.Context, userID string) (*models.Chat, error) {
	if userID == "" {
		return nil, apperrors.NotAuthenticated()
	}
	chat, err := s.store.Create(ctx, userID)
	if err != nil {
		return nil, apperrors.PersistenceFailed(err)
	}
	s.events.Publish(userID, models.Event{Type: models.EventChatCreated, ChatID: chat.ID, Name: chat.Name})
	return chat, nil
}

// List returns the user's chats, most recently updated first
func (s *ChatService) List(ctx context.Context, userID string) ([]models.Chat, error) {
	if userID == "" {
		return nil, apperrors.NotAuthenticated()
	}
	chats, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, apperrors.NewInternalServerError(apperrors.CodeInternal, "Failed to load chats").Wrap(err)
	}
	return chats, nil
}

func (s *ChatService) Rename(ctx context.Context, userID, chatID, name string) (*models.Chat, error) {
	if userID == "" {
		return nil, apperrors.NotAuthenticated()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewBadRequestError(apperrors.CodeInvalidRequest, "Chat name must not be empty")
	}

	chat, err := s.store.Rename(ctx, chatID, userID, name)
	if err != nil {
		return nil, storeError(err)
	}
	s.events.Publish(userID, models.Event{Type: models.EventChatRenamed, ChatID: chat.ID, Name: chat.Name})
	return chat, nil
}

// Delete removes the chat and abandons any completion still running for it
func (s *ChatService) Delete(ctx context.Context, userID, chatID string) error {
	if userID == "" {
		return apperrors.NotAuthenticated()
	}
	if err := s.store.Delete(ctx, chatID, userID); err != nil {
		return storeError(err)
	}
	if s.inflight.cancel(chatID) {
		s.log.WithChatID(chatID).Info("cancelled completion for deleted chat")
	}
	s.events.Publish(userID, models.Event{Type: models.EventChatDeleted, ChatID: chatID})
	return nil
}

// Complete sends prompt to the gateway and appends the prompt and the reply
// to the chat in one write. Nothing is written unless the gateway succeeds.
func (s *ChatService) Complete(ctx context.Context, userID, chatID, prompt string) (*models.Message, error) {
	if userID == "" {
		return nil, apperrors.NotAuthenticated()
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, apperrors.NewBadRequestError(apperrors.CodeEmptyPrompt, "Prompt must not be empty")
	}

	ctx, span := tracer.Start(ctx, "chat.complete")
	defer span.End()
	span.SetAttributes(attribute.String("chat.id", chatID))

	log := s.log.WithUserID(userID).WithChatID(chatID)

	if _, err := s.store.Get(ctx, chatID, userID); err != nil {
		return nil, storeError(err)
	}

	unlock, ok, err := s.locker.TryLock(ctx, chatID)
	if err != nil {
		return nil, apperrors.NewInternalServerError(apperrors.CodeInternal, "Failed to start the submission").Wrap(err)
	}
	if !ok {
		s.metrics.RecordCompletion(ctx, observability.OutcomeRejected, 0)
		return nil, apperrors.SubmissionInFlight()
	}
	defer unlock()

	ctx, release := s.inflight.track(ctx, chatID)
	defer release()

	userMsg := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   prompt,
		Timestamp: s.now().UTC(),
	}

	start := s.now()
	reply, err := s.gateway.Complete(ctx, prompt)
	took := s.now().Sub(start)
	if err != nil {
		if ctx.Err() != nil {
			// chat deleted or caller gone
			s.metrics.RecordCompletion(ctx, observability.OutcomeDiscarded, took)
			log.Info("completion discarded", "reason", ctx.Err())
			return nil, apperrors.ChatNotFound()
		}
		s.metrics.RecordCompletion(ctx, observability.OutcomeFailed, took)
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		log.LogError(err, "completion failed")
		return nil, apperrors.CompletionFailed(err)
	}

	assistantMsg := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   reply,
		Timestamp: s.now().UTC(),
	}

	if _, err := s.store.AppendMessages(ctx, chatID, userID, []models.Message{userMsg, assistantMsg}); err != nil {
		if errors.Is(err, repository.ErrChatNotFound) || ctx.Err() != nil {
			s.metrics.RecordCompletion(ctx, observability.OutcomeDiscarded, took)
			log.Info("completion discarded, chat is gone")
			return nil, apperrors.ChatNotFound()
		}
		s.metrics.RecordCompletion(ctx, observability.OutcomeFailed, took)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		log.LogError(err, "failed to persist completion")
		return nil, apperrors.PersistenceFailed(err)
	}

	s.metrics.RecordCompletion(ctx, observability.OutcomeOK, took)
	s.events.Publish(userID, models.Event{
		Type:     models.EventMessagesAppended,
		ChatID:   chatID,
		Messages: []models.Message{userMsg, assistantMsg},
	})
	return &assistantMsg, nil
}

func storeError(err error) error {
	if errors.Is(err, repository.ErrChatNotFound) {
		return apperrors.ChatNotFound()
	}
	return apperrors.PersistenceFailed(err)
}
