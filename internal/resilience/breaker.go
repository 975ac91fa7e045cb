// Package resilience guards calls to external dependencies, such as the
// PostgreSQL operators store, with a circuit breaker.
//
// While a dependency keeps failing, every dispatch cycle that asks it a
// question would otherwise wait for its own timeout. The [Breaker] trips
// after a run of consecutive failures and rejects calls with [ErrOpen]
// until a cooldown has passed, then lets probe calls through to find out
// whether the dependency recovered.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrOpen] until the cooldown elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. A probe
	// failure re-opens the breaker; enough successes close it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a [Breaker]. Zero values select the defaults.
type Config struct {
	// Name labels the breaker in logs and metrics.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// OpenFor is how long the breaker rejects calls before probing.
	// Default: 30s.
	OpenFor time.Duration

	// Probes bounds the concurrent half-open calls and is the number of
	// them that must succeed to close the breaker again. Default: 1, so a
	// single successful probe closes it.
	Probes int

	// OnStateChange, if set, is called after every transition. It runs
	// with the breaker unlocked.
	OnStateChange func(name string, from, to State)
}

// Breaker is a three-state circuit breaker. It is safe for concurrent use.
type Breaker struct {
	name          string
	maxFailures   int
	openFor       time.Duration
	probes        int
	onStateChange func(name string, from, to State)
	now           func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	inFlight  int
	successes int
}

// New creates a closed [Breaker].
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	return &Breaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		openFor:       cfg.OpenFor,
		probes:        cfg.Probes,
		onStateChange: cfg.OnStateChange,
		now:           time.Now,
	}
}

// Name returns the configured name.
func (b *Breaker) Name() string { return b.name }

// Do runs fn unless the breaker is open. Errors of fn are returned
// unchanged. A cancelled or expired ctx is the caller giving up, not the
// dependency failing, so it does not count against the breaker. A panic in
// fn counts as a failure and is re-raised.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	probe, err := b.acquire()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.record(probe, fmt.Errorf("resilience: %s: panic: %v", b.name, r))
			panic(r)
		}
	}()
	err = fn(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		b.release(probe)
		return err
	}
	b.record(probe, err)
	return err
}

// acquire admits a call. probe reports whether it runs in half-open state.
func (b *Breaker) acquire() (probe bool, err error) {
	b.mu.Lock()
	halfOpened := false
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.openFor {
			b.mu.Unlock()
			return false, ErrOpen
		}
		b.transition(StateHalfOpen)
		b.successes = 0
		b.inFlight = 0
		halfOpened = true
	case StateHalfOpen:
		if b.inFlight >= b.probes {
			b.mu.Unlock()
			return false, ErrOpen
		}
	}
	probe = b.state == StateHalfOpen
	if probe {
		b.inFlight++
	}
	b.mu.Unlock()

	if halfOpened {
		slog.Info("resilience: circuit half-open, probing", "name", b.name)
		b.notify(StateOpen, StateHalfOpen)
	}
	return probe, nil
}

func (b *Breaker) release(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	if b.state == StateHalfOpen && b.inFlight > 0 {
		b.inFlight--
	}
	b.mu.Unlock()
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	from, to := b.state, b.state

	switch {
	case err != nil && probe && b.state == StateHalfOpen:
		b.openedAt = b.now()
		b.transition(StateOpen)
		to = StateOpen
	case err != nil && b.state == StateClosed:
		b.failures++
		if b.failures >= b.maxFailures {
			b.openedAt = b.now()
			b.transition(StateOpen)
			to = StateOpen
		}
	case err == nil && probe && b.state == StateHalfOpen:
		b.successes++
		b.inFlight--
		if b.successes >= b.probes {
			b.transition(StateClosed)
			to = StateClosed
		}
	case err == nil && b.state == StateClosed:
		b.failures = 0
	}
	failures := b.failures
	b.mu.Unlock()

	if from == to {
		return
	}
	if to == StateOpen {
		slog.Warn("resilience: circuit opened", "name", b.name, "consecutive_failures", failures, "err", err)
	} else {
		slog.Info("resilience: circuit closed", "name", b.name)
	}
	b.notify(from, to)
}

// transition switches state and resets the counters of the new state. It
// returns the previous state. Must be called with b.mu held.
func (b *Breaker) transition(to State) State {
	from := b.state
	b.state = to
	if to == StateClosed {
		b.failures = 0
		b.successes = 0
		b.inFlight = 0
	}
	return from
}

func (b *Breaker) notify(from, to State) {
	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}

// State returns the current state. An open breaker whose cooldown has
// elapsed reports [StateHalfOpen]; the transition itself happens on the
// next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.openFor {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.transition(StateClosed)
	b.mu.Unlock()
	if from != StateClosed {
		slog.Info("resilience: circuit reset", "name", b.name)
		b.notify(from, StateClosed)
	}
}
