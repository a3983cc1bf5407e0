// Package resilience guards remote providers with circuit breakers and
// ordered failover.
//
// A [Breaker] is a three-state breaker (closed, open, half-open). A [Group]
// pairs several instances of one provider type with a breaker each and tries
// them in order. [LLMFallback] and [GuardS2S] apply these to the chat model
// and the live transport.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has elapsed since the last failure.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the state name.
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

// BreakerConfig tunes a [Breaker]. Zero values take the defaults noted per
// field.
type BreakerConfig struct {
	// Name labels log lines and state-change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close again.
	// Default: 1.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition, outside the
	// breaker's lock.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now in tests.
	Now func() time.Time
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 3
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 1
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Breaker is a circuit breaker. Create with [NewBreaker].
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	failures int       // consecutive, while closed
	openedAt time.Time // last failure that counted
	inFlight int       // half-open probes running
	passed   int       // half-open probes that succeeded
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.withDefaults()}
}

// Do runs fn unless the breaker rejects the call. Context cancellation and
// deadline errors pass through without counting either way.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if probe {
			b.mu.Lock()
			b.inFlight--
			b.mu.Unlock()
		}
		return err
	}
	b.record(probe, err == nil)
	return err
}

// admit decides whether a call may run and whether it is a half-open probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	from := b.state
	if b.state == StateOpen {
		if !b.cooledDown() {
			b.mu.Unlock()
			return false, ErrCircuitOpen
		}
		b.state, b.inFlight, b.passed = StateHalfOpen, 0, 0
	}
	if b.state == StateHalfOpen {
		if b.inFlight >= b.cfg.HalfOpenMax {
			b.mu.Unlock()
			return false, ErrCircuitOpen
		}
		b.inFlight++
		probe = true
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return probe, nil
}

// record applies the outcome of an admitted call.
func (b *Breaker) record(probe, ok bool) {
	b.mu.Lock()
	from := b.state
	switch {
	case ok && !probe:
		b.failures = 0
	case ok:
		if b.passed++; b.passed >= b.cfg.HalfOpenMax {
			b.state, b.failures = StateClosed, 0
		}
	case probe:
		b.state, b.openedAt = StateOpen, b.cfg.Now()
	default:
		b.openedAt = b.cfg.Now()
		if b.failures++; b.failures >= b.cfg.MaxFailures {
			b.state = StateOpen
		}
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// cooledDown reports whether an open breaker may probe again. b.mu is held.
func (b *Breaker) cooledDown() bool {
	return b.cfg.Now().Sub(b.openedAt) >= b.cfg.ResetTimeout
}

func (b *Breaker) notify(from, to State) {
	if from == to {
		return
	}
	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "resilience: breaker state changed",
		"name", b.cfg.Name, "from", from.String(), "to", to.String())
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// State returns the current state. An open breaker that has cooled down
// reports [StateHalfOpen] before the next Do performs the transition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cooledDown() {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state, b.failures, b.inFlight, b.passed = StateClosed, 0, 0, 0
	b.mu.Unlock()
	b.notify(from, StateClosed)
}
