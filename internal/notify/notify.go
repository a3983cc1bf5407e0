// Package notify delivers live-session notifications to whatever is
// presenting the session: the terminal status line, the log, and optionally
// a NATS subject for external dashboards.
//
// The live controller raises four kinds of notification. Volume arrives many
// times per second and must be cheap. Closed, MemoryUpdated and Error are rare.
// Implementations must be safe for concurrent use and must not block.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Notifier receives session notifications.
type Notifier interface {
	// Volume reports an advisory loudness estimate in [0, ~1].
	Volume(v float64)

	// Closed reports that an established session ended.
	Closed()

	// MemoryUpdated reports that a new fact about the user was saved.
	MemoryUpdated()

	// Error reports a user-visible error message.
	Error(msg string)
}

// ── Fanout ────────────────────────────────────────────────────────────────────

// Fanout forwards every notification to each of its members in order.
type Fanout []Notifier

var _ Notifier = Fanout(nil)

func (f Fanout) Volume(v float64) {
	for _, n := range f {
		n.Volume(v)
	}
}

func (f Fanout) Closed() {
	for _, n := range f {
		n.Closed()
	}
}

func (f Fanout) MemoryUpdated() {
	for _, n := range f {
		n.MemoryUpdated()
	}
}

func (f Fanout) Error(msg string) {
	for _, n := range f {
		n.Error(msg)
	}
}

// ── Log ───────────────────────────────────────────────────────────────────────

// Log writes notifications to slog. Volume is ignored.
type Log struct{}

var _ Notifier = Log{}

func (Log) Volume(float64) {}

func (Log) Closed() { slog.Info("live session closed") }

func (Log) MemoryUpdated() { slog.Info("memory updated") }

func (Log) Error(msg string) { slog.Error("live session error", "msg", msg) }

// ── Transient ─────────────────────────────────────────────────────────────────

// Default display durations.
const (
	BannerDuration    = 5 * time.Second
	IndicatorDuration = 2 * time.Second
)

// Transient holds at most one value that disappears after a fixed time.
// Showing a new value replaces the current one and restarts the timer.
//
// The error banner and the memory-updated indicator are both Transients.
type Transient struct {
	ttl      time.Duration
	onChange func()

	mu    sync.Mutex
	value string
	shown bool
	seq   uint64
	timer *time.Timer
}

// NewTransient returns a Transient whose values live for ttl. onChange, if
// non-nil, runs after every show and every dismissal, outside the lock.
func NewTransient(ttl time.Duration, onChange func()) *Transient {
	return &Transient{ttl: ttl, onChange: onChange}
}

// NewBanner returns the error banner: one message, dismissed after 5 s.
func NewBanner(onChange func()) *Transient { return NewTransient(BannerDuration, onChange) }

// NewIndicator returns the memory-updated indicator, dismissed after 2 s.
func NewIndicator(onChange func()) *Transient { return NewTransient(IndicatorDuration, onChange) }

// Show displays value, replacing any current one.
func (t *Transient) Show(value string) {
	t.mu.Lock()
	t.seq++
	seq := t.seq
	t.value, t.shown = value, true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.ttl, func() { t.expire(seq) })
	t.mu.Unlock()
	t.changed()
}

// Dismiss hides the current value immediately.
func (t *Transient) Dismiss() {
	t.mu.Lock()
	if !t.shown {
		t.mu.Unlock()
		return
	}
	t.seq++
	t.value, t.shown = "", false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
	t.changed()
}

// Current returns the displayed value and whether anything is displayed.
func (t *Transient) Current() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, t.shown
}

func (t *Transient) expire(seq uint64) {
	t.mu.Lock()
	if seq != t.seq {
		t.mu.Unlock()
		return
	}
	t.value, t.shown = "", false
	t.timer = nil
	t.mu.Unlock()
	t.changed()
}

func (t *Transient) changed() {
	if t.onChange != nil {
		t.onChange()
	}
}
