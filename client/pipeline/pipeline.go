// Package pipeline is the single path through which the client mutates its
// session: prompt submission, chat selection and chat list changes.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"adichat/backend/client/reveal"
	"adichat/backend/client/session"
	apperrors "adichat/backend/pkg/errors"
	"adichat/backend/pkg/logger"

	"github.com/google/uuid"
)

// ErrCancelled is the abort reason of a submission whose chat was switched
// away from or deleted while it was running.
var ErrCancelled = errors.New("submission cancelled")

// Completer sends a prompt to the server, which persists the user message and
// the reply, and returns the reply.
type Completer interface {
	Complete(ctx context.Context, chatID, prompt string) (session.Message, error)
}

// Identity returns the authenticated user id, or "" when signed out
type Identity func() string

type Options struct {
	Logger *logger.Logger
	Now    func() time.Time
	NewID  func() string
}

type Pipeline struct {
	mu        sync.Mutex
	state     *session.State
	completer Completer
	reveal    *reveal.Scheduler
	identity  Identity
	inflight  map[string]*Submission
	revealing map[string]*Submission
	log       *logger.Logger
	now       func() time.Time
	newID     func() string
}

func New(state *session.State, completer Completer, scheduler *reveal.Scheduler, identity Identity, opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Pipeline{
		state:     state,
		completer: completer,
		reveal:    scheduler,
		identity:  identity,
		inflight:  make(map[string]*Submission),
		revealing: make(map[string]*Submission),
		log:       opts.Logger.WithComponent("pipeline"),
		now:       opts.Now,
		newID:     opts.NewID,
	}
}

// State exposes the session the pipeline mutates
func (p *Pipeline) State() *session.State { return p.state }

// Submit validates the prompt against the selected chat, appends the user
// message optimistically and starts the completion in the background.
// Validation failures are returned directly and leave the session untouched.
func (p *Pipeline) Submit(ctx context.Context, prompt string) (*Submission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	chatID := p.state.SelectedID()
	sub := newSubmission(p.newID(), chatID, prompt)
	sub.advance(Validating)

	if p.identity == nil || p.identity() == "" {
		return nil, p.reject(sub, apperrors.NotAuthenticated())
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, p.reject(sub, apperrors.NewBadRequestError(apperrors.CodeEmptyPrompt, "Prompt must not be empty"))
	}
	if chatID == "" || !p.state.Has(chatID) {
		return nil, p.reject(sub, apperrors.ChatNotFound())
	}
	if _, busy := p.inflight[chatID]; busy {
		return nil, p.reject(sub, apperrors.SubmissionInFlight())
	}

	sub.userMsgID = p.newID()
	p.state.AppendMessage(chatID, session.Message{
		ID:        sub.userMsgID,
		Role:      session.RoleUser,
		Content:   prompt,
		Timestamp: p.now(),
	})
	p.state.SetDraft("")
	sub.advance(OptimisticallyAppended)

	sub.ctx, sub.cancel = context.WithCancel(context.WithoutCancel(ctx))
	p.inflight[chatID] = sub
	sub.advance(AwaitingCompletion)

	go p.await(sub)
	return sub, nil
}

func (p *Pipeline) reject(sub *Submission, err error) error {
	sub.abort(err)
	p.log.Debug("submission rejected", "chat_id", sub.ChatID, "code", apperrors.GetErrorCode(err))
	return err
}

func (p *Pipeline) await(sub *Submission) {
	reply, err := p.completer.Complete(sub.ctx, sub.ChatID, sub.Prompt)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inflight[sub.ChatID] == sub {
		delete(p.inflight, sub.ChatID)
	}

	if sub.ctx.Err() != nil {
		// The chat was switched away from or deleted. A reply that arrived
		// anyway is already stored, so it lands without a reveal.
		if err == nil && p.settleQuietly(sub, reply) {
			return
		}
		p.state.RemoveMessage(sub.ChatID, sub.userMsgID)
		sub.abort(ErrCancelled)
		return
	}
	sub.cancel()

	if err != nil {
		if apperrors.HasCode(err, apperrors.CodePersistenceFailed) {
			// The reply may already be visible elsewhere; keep the prompt.
			p.log.Warn("completion not persisted", "chat_id", sub.ChatID, "error", err)
		} else {
			p.state.RemoveMessage(sub.ChatID, sub.userMsgID)
			p.state.SetDraft(sub.Prompt)
		}
		sub.abort(err)
		return
	}

	sub.advance(Reconciling)
	if !p.state.Has(sub.ChatID) {
		sub.abort(ErrCancelled)
		return
	}
	reply = p.fillReply(reply)
	sub.Reply = reply
	p.state.AppendMessage(sub.ChatID, session.Message{
		ID:        reply.ID,
		Role:      session.RoleAssistant,
		Timestamp: reply.Timestamp,
		Revealing: true,
	})

	target := reveal.Target{ChatID: sub.ChatID, MessageID: reply.ID}
	state := p.state
	task := p.reveal.Start(target, reply.Content, func(content string, final bool) bool {
		return state.SetMessageContent(target.ChatID, target.MessageID, content, final)
	})
	sub.advance(Revealing)
	p.revealing[sub.ID] = sub

	go p.settle(sub, task)
}

func (p *Pipeline) fillReply(reply session.Message) session.Message {
	if reply.ID == "" {
		reply.ID = p.newID()
	}
	if reply.Timestamp.IsZero() {
		reply.Timestamp = p.now()
	}
	reply.Role = session.RoleAssistant
	reply.Revealing = false
	return reply
}

// settleQuietly records a reply the server persisted after the submission was
// cancelled locally. It reports false when the chat is gone.
func (p *Pipeline) settleQuietly(sub *Submission, reply session.Message) bool {
	chat, ok := p.state.Chat(sub.ChatID)
	if !ok {
		return false
	}
	reply = p.fillReply(reply)
	sub.advance(Reconciling)
	sub.Reply = reply

	known := make(map[string]struct{}, len(chat.Messages))
	for _, m := range chat.Messages {
		known[m.ID] = struct{}{}
	}
	if _, ok := known[reply.ID]; !ok {
		// A reload while awaiting drops the optimistic prompt.
		if _, ok := known[sub.userMsgID]; !ok {
			p.state.AppendMessage(sub.ChatID, session.Message{
				ID:        sub.userMsgID,
				Role:      session.RoleUser,
				Content:   sub.Prompt,
				Timestamp: reply.Timestamp,
			})
		}
		p.state.AppendMessage(sub.ChatID, reply)
	}
	sub.advance(Settled)
	sub.finish(nil)
	p.log.Debug("reply kept after cancellation", "chat_id", sub.ChatID, "message_id", reply.ID)
	return true
}

func (p *Pipeline) settle(sub *Submission, task *reveal.Task) {
	<-task.Done()

	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.revealing, sub.ID)
	if p.reveal.State(task) == reveal.Completed {
		sub.advance(Settled)
		sub.finish(nil)
		return
	}
	sub.abort(ErrCancelled)
}

// cancelChatLocked stops the pending completion and every reveal of chatID
func (p *Pipeline) cancelChatLocked(chatID string) {
	if chatID == "" {
		return
	}
	if sub, ok := p.inflight[chatID]; ok {
		sub.cancel()
	}
	p.reveal.CancelChat(chatID)
}

// CancelChat stops any work targeting chatID
func (p *Pipeline) CancelChat(chatID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelChatLocked(chatID)
}

// SelectChat switches the selected chat, cancelling work on the previous one
func (p *Pipeline) SelectChat(chatID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.state.SelectedID()
	if prev == chatID {
		return p.state.Has(chatID)
	}
	if !p.state.Has(chatID) {
		return false
	}
	p.cancelChatLocked(prev)
	return p.state.Select(chatID)
}

// LoadChats replaces the chat list. All running work is cancelled because
// the fetched messages supersede the optimistic ones.
func (p *Pipeline) LoadChats(chats []session.Chat) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for chatID := range p.inflight {
		p.cancelChatLocked(chatID)
	}
	p.reveal.CancelAll()
	p.state.ReplaceChats(chats)
}

// AddChat inserts a chat, optionally selecting it
func (p *Pipeline) AddChat(chat session.Chat, selectIt bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.UpsertChat(chat)
	if selectIt {
		prev := p.state.SelectedID()
		if prev != chat.ID {
			p.cancelChatLocked(prev)
		}
		p.state.Select(chat.ID)
	}
}

// ForgetChat cancels work on a deleted chat and removes it
func (p *Pipeline) ForgetChat(chatID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancelChatLocked(chatID)
	return p.state.RemoveChat(chatID)
}

func (p *Pipeline) RenameChat(chatID, name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.RenameChat(chatID, name)
}

// ApplyRemoteAppend adds a batch persisted by another session of the same
// user. A batch is one prompt and its reply, so it is skipped whole when any
// of its messages is already known, and a chat with a submission in flight is
// left alone since its own reply is on the way.
func (p *Pipeline) ApplyRemoteAppend(chatID string, msgs []session.Message) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, busy := p.inflight[chatID]; busy {
		return 0
	}
	chat, ok := p.state.Chat(chatID)
	if !ok {
		return 0
	}
	known := make(map[string]struct{}, len(chat.Messages))
	for _, m := range chat.Messages {
		known[m.ID] = struct{}{}
	}
	for _, m := range msgs {
		if _, dup := known[m.ID]; dup {
			return 0
		}
	}
	for _, m := range msgs {
		m.Revealing = false
		p.state.AppendMessage(chatID, m)
	}
	return len(msgs)
}

// Busy reports whether a submission for chatID awaits its completion
func (p *Pipeline) Busy(chatID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[chatID]
	return ok
}

// Close cancels all work
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sub := range p.inflight {
		sub.cancel()
	}
	p.reveal.CancelAll()
}
