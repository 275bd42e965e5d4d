// Package reveal plays an already known reply into a message one word at a time.
package reveal

import (
	"strings"
	"sync"
	"time"

	"adichat/backend/pkg/logger"
)

const DefaultInterval = 100 * time.Millisecond

// Target identifies the message being revealed
type Target struct {
	ChatID    string
	MessageID string
}

// ApplyFunc writes one step into the message. Returning false means the
// target no longer exists and the task stops.
type ApplyFunc func(content string, final bool) bool

// TaskState is the lifecycle of a task
type TaskState int

const (
	Running TaskState = iota
	Completed
	Cancelled
)

func (s TaskState) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Task is one reveal of one message. It cannot be restarted.
type Task struct {
	target Target
	gen    uint64
	steps  []string
	next   int
	apply  ApplyFunc
	timer  Timer
	state  TaskState
	done   chan struct{}
}

func (t *Task) Target() Target { return t.target }

// Done is closed once the task completes or is cancelled
func (t *Task) Done() <-chan struct{} { return t.done }

// Scheduler owns every running task. Steps are applied while holding the
// scheduler lock, so a step can never land after its task was cancelled.
type Scheduler struct {
	mu       sync.Mutex
	clock    Clock
	interval time.Duration
	gen      uint64
	tasks    map[Target]*Task
	log      *logger.Logger
}

type Option func(*Scheduler)

func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l.WithComponent("reveal")
		}
	}
}

func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:    RealClock(),
		interval: DefaultInterval,
		tasks:    make(map[Target]*Task),
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Steps splits text on single spaces and returns the growing prefixes
func Steps(text string) []string {
	words := strings.Split(text, " ")
	steps := make([]string, len(words))
	for i := range words {
		steps[i] = strings.Join(words[:i+1], " ")
	}
	return steps
}

// Start cancels any task already targeting the message, applies the first
// step immediately and schedules the rest.
func (s *Scheduler) Start(target Target, text string, apply ApplyFunc) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.tasks[target]; ok {
		s.cancelLocked(prev)
	}

	s.gen++
	t := &Task{
		target: target,
		gen:    s.gen,
		steps:  Steps(text),
		apply:  apply,
		done:   make(chan struct{}),
	}
	s.tasks[target] = t
	s.stepLocked(t)
	return t
}

func (s *Scheduler) fire(t *Task, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.tasks[t.target]; !ok || cur != t || t.gen != gen || t.state != Running {
		return
	}
	s.stepLocked(t)
}

func (s *Scheduler) stepLocked(t *Task) {
	final := t.next == len(t.steps)-1
	if !t.apply(t.steps[t.next], final) {
		s.log.Debug("reveal target vanished", "chat_id", t.target.ChatID, "message_id", t.target.MessageID)
		s.cancelLocked(t)
		return
	}
	t.next++

	if final {
		t.state = Completed
		delete(s.tasks, t.target)
		close(t.done)
		return
	}

	gen := t.gen
	t.timer = s.clock.AfterFunc(s.interval, func() { s.fire(t, gen) })
}

func (s *Scheduler) cancelLocked(t *Task) {
	if t.state != Running {
		return
	}
	t.state = Cancelled
	if t.timer != nil {
		t.timer.Stop()
	}
	if s.tasks[t.target] == t {
		delete(s.tasks, t.target)
	}
	close(t.done)
}

// Cancel stops the task for target. It reports whether one was running.
func (s *Scheduler) Cancel(target Target) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[target]
	if !ok {
		return false
	}
	s.cancelLocked(t)
	return true
}

// CancelChat stops every task revealing a message of chatID
func (s *Scheduler) CancelChat(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for target, t := range s.tasks {
		if target.ChatID == chatID {
			s.cancelLocked(t)
			n++
		}
	}
	return n
}

func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		s.cancelLocked(t)
	}
}

// State returns the task's current state
func (s *Scheduler) State(t *Task) TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.state
}

// Active returns the number of running tasks
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
