package service

import (
	"context"
	"sync"
)

// Locker grants at most one in-flight completion per chat.
// TryLock never waits: ok is false when the chat is already held.
type Locker interface {
	TryLock(ctx context.Context, chatID string) (unlock func(), ok bool, err error)
}

// LocalLocker is a process-local Locker
type LocalLocker struct {
	held map[string]struct{}
	mu   sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) TryLock(_ context.Context, chatID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[chatID]; busy {
		return nil, false, nil
	}
	l.held[chatID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, chatID)
			l.mu.Unlock()
		})
	}, true, nil
}

// inflight tracks the cancel func of the completion running for each chat
type inflight struct {
	cancels map[string]context.CancelFunc
	mu      sync.Mutex
}

func newInflight() *inflight {
	return &inflight{cancels: make(map[string]context.CancelFunc)}
}

// track derives a cancellable ctx for chatID. release must be called when the work ends.
func (f *inflight) track(ctx context.Context, chatID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	f.mu.Lock()
	f.cancels[chatID] = cancel
	f.mu.Unlock()

	return ctx, func() {
		f.mu.Lock()
		delete(f.cancels, chatID)
		f.mu.Unlock()
		cancel()
	}
}

// cancel stops the completion running for chatID, if any
func (f *inflight) cancel(chatID string) bool {
	f.mu.Lock()
	cancel, ok := f.cancels[chatID]
	delete(f.cancels, chatID)
	f.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}
