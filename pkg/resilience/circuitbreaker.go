package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"adichat/backend/pkg/logger"
)

// ErrCircuitOpen is returned without calling the protected function while the circuit is open
var ErrCircuitOpen = errors.New("circuit open")

// State of a breaker
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config tunes a breaker. Probes is the number of trial calls let through
// once the cooldown has passed; all of them must succeed to close again.
type Config struct {
	Name      string
	Threshold uint
	Probes    uint
	Cooldown  time.Duration
}

// Stats is a snapshot of a breaker's counters
type Stats struct {
	Name      string `json:"name"`
	State     State  `json:"state"`
	Requests  uint64 `json:"requests"`
	Failures  uint64 `json:"failures"`
	Successes uint64 `json:"successes"`
	Rejected  uint64 `json:"rejected"`
	Trips     uint64 `json:"trips"`
}

// Breaker stops calling an upstream after Threshold consecutive failures and
// retries it once Cooldown has elapsed.
type Breaker struct {
	cfg Config
	log *logger.Logger
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  uint
	passed    uint
	probing   uint
	reopenAt  time.Time
	stats     Stats
	listeners []func(from, to State)
}

func NewBreaker(cfg Config, log *logger.Logger) *Breaker {
	if cfg.Threshold == 0 {
		cfg.Threshold = 1
	}
	if cfg.Probes == 0 {
		cfg.Probes = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Breaker{
		cfg:   cfg,
		log:   log.WithComponent("breaker"),
		now:   time.Now,
		state: StateClosed,
		stats: Stats{Name: cfg.Name},
	}
}

// OnStateChange registers fn to run after every transition
func (b *Breaker) OnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Execute runs fn unless the circuit is open. A failure caused by ctx ending
// says nothing about the upstream and is not counted.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !b.admit() {
		b.log.Warn("call rejected by open circuit", "name", b.cfg.Name)
		return ErrCircuitOpen
	}

	start := b.now()
	err := fn(ctx)

	switch {
	case err == nil:
		b.settle(true)
	case ctx.Err() != nil:
		b.abandon()
	default:
		b.log.Warn("upstream call failed", "name", b.cfg.Name, "error", err, "took", b.now().Sub(start))
		b.settle(false)
	}
	return err
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	b.stats.Requests++

	var change func()
	ok := false
	switch b.state {
	case StateClosed:
		ok = true
	case StateOpen:
		if !b.now().Before(b.reopenAt) {
			change = b.moveLocked(StateHalfOpen)
			b.probing = 1
			ok = true
		}
	case StateHalfOpen:
		if b.probing < b.cfg.Probes {
			b.probing++
			ok = true
		}
	}
	if !ok {
		b.stats.Rejected++
	}
	b.mu.Unlock()

	if change != nil {
		change()
	}
	return ok
}

func (b *Breaker) abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.probing > 0 {
		b.probing--
	}
}

func (b *Breaker) settle(success bool) {
	b.mu.Lock()
	var change func()
	if success {
		b.stats.Successes++
		switch b.state {
		case StateClosed:
			b.failures = 0
		case StateHalfOpen:
			b.passed++
			if b.passed >= b.cfg.Probes {
				change = b.moveLocked(StateClosed)
			}
		}
	} else {
		b.stats.Failures++
		switch b.state {
		case StateClosed:
			b.failures++
			if b.failures >= b.cfg.Threshold {
				change = b.moveLocked(StateOpen)
			}
		case StateHalfOpen:
			change = b.moveLocked(StateOpen)
		}
	}
	b.mu.Unlock()

	if change != nil {
		change()
	}
}

// moveLocked switches state and returns the notification to run once the
// lock is released.
func (b *Breaker) moveLocked(to State) func() {
	from := b.state
	b.state = to
	b.failures, b.passed, b.probing = 0, 0, 0

	if to == StateOpen {
		b.stats.Trips++
		b.reopenAt = b.now().Add(b.cfg.Cooldown)
	}
	b.log.Info("circuit state changed", "name", b.cfg.Name, "from", from, "to", to)

	listeners := append([]func(from, to State){}, b.listeners...)
	return func() {
		for _, fn := range listeners {
			fn(from, to)
		}
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.State = b.state
	return s
}
