package pipeline

import (
	"context"
	"sync"

	"adichat/backend/client/session"
)

// Submission tracks one prompt from validation to its terminal stage
type Submission struct {
	ID     string
	ChatID string
	Prompt string
	Reply  session.Message

	userMsgID string
	ctx       context.Context
	cancel    context.CancelFunc

	mu      sync.Mutex
	history []Stage
	err     error
	done    chan struct{}
}

func newSubmission(id, chatID, prompt string) *Submission {
	return &Submission{
		ID:      id,
		ChatID:  chatID,
		Prompt:  prompt,
		history: []Stage{Idle},
		done:    make(chan struct{}),
		cancel:  func() {},
	}
}

func (s *Submission) advance(stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, stage)
}

func (s *Submission) abort(err error) {
	s.advance(Aborted)
	s.finish(err)
}

func (s *Submission) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}
	s.err = err
	close(s.done)
}

// UserMessageID is the id of the optimistically appended message
func (s *Submission) UserMessageID() string { return s.userMsgID }

// Stage returns the current stage
func (s *Submission) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history[len(s.history)-1]
}

// History returns every stage the submission went through
func (s *Submission) History() []Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Stage(nil), s.history...)
}

// Done is closed when the submission settles or aborts
func (s *Submission) Done() <-chan struct{} { return s.done }

// Err is the abort reason once Done is closed
func (s *Submission) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the submission is terminal or ctx ends
func (s *Submission) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
