// Package mock provides in-memory implementations of the audio device
// interfaces and of [playback.Output] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	stream := mock.NewInputStream(audio.CaptureSampleRate, 4)
//	mic := &mock.Microphone{OpenResult: stream}
//	s, _ := mic.Open(ctx, audio.CaptureSampleRate)
//	stream.Push(make([]float32, audio.FrameSize))
package mock

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/aura/pkg/audio"
	"github.com/MrWong99/aura/pkg/audio/playback"
)

// Compile-time interface assertions.
var (
	_ audio.InputStream = (*InputStream)(nil)
	_ audio.Microphone  = (*Microphone)(nil)
	_ audio.Speaker     = (*Speaker)(nil)
	_ audio.Sink        = (*Sink)(nil)
	_ playback.Output   = (*Output)(nil)
	_ playback.Voice    = (*Voice)(nil)
)

// ─── InputStream ──────────────────────────────────────────────────────────────

// InputStream is a mock [audio.InputStream] fed by the test through Push.
type InputStream struct {
	rate int
	ch   chan []float32

	mu     sync.Mutex
	closed bool

	// ErrResult is returned by Err.
	ErrResult error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewInputStream returns an open stream reporting rate with a channel buffer
// of size buf.
func NewInputStream(rate, buf int) *InputStream {
	return &InputStream{rate: rate, ch: make(chan []float32, buf)}
}

// Push delivers a block of samples. It reports false if the stream is closed.
// Push blocks while the channel buffer is full.
func (s *InputStream) Push(block []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.ch <- block
	return true
}

// Samples implements [audio.InputStream].
func (s *InputStream) Samples() <-chan []float32 { return s.ch }

// SampleRate implements [audio.InputStream].
func (s *InputStream) SampleRate() int { return s.rate }

// Err implements [audio.InputStream]. Returns ErrResult.
func (s *InputStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrResult
}

// Close implements [audio.InputStream]. The samples channel is closed on the
// first call.
func (s *InputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// Fail ends the stream as a device failure would: Err reports err and the
// samples channel is closed.
func (s *InputStream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ErrResult = err
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Closed reports whether Close has been called.
func (s *InputStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock [audio.Microphone].
type Microphone struct {
	mu sync.Mutex

	// OpenResult is returned by Open.
	OpenResult audio.InputStream

	// OpenError is returned by Open. When set, OpenResult is ignored.
	OpenError error

	// OpenRates records the sampleRate argument of every Open call.
	OpenRates []int
}

// Open implements [audio.Microphone].
func (m *Microphone) Open(_ context.Context, sampleRate int) (audio.InputStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenRates = append(m.OpenRates, sampleRate)
	if m.OpenError != nil {
		return nil, m.OpenError
	}
	return m.OpenResult, nil
}

// CallCount returns the number of Open calls.
func (m *Microphone) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.OpenRates)
}

// ─── Speaker ──────────────────────────────────────────────────────────────────

// Sink is a mock [audio.Sink].
type Sink struct {
	mu sync.Mutex

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Close implements [audio.Sink].
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return nil
}

// Closed reports whether Close has been called at least once.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose > 0
}

// Speaker is a mock [audio.Speaker]. It never reads from the source.
type Speaker struct {
	mu sync.Mutex

	// OpenResult is returned by Open. A fresh Sink is created when nil.
	OpenResult *Sink

	// OpenError is returned by Open.
	OpenError error

	// OpenRates records the sampleRate argument of every Open call.
	OpenRates []int

	// Sources records the reader passed to every Open call.
	Sources []io.Reader
}

// Open implements [audio.Speaker].
func (s *Speaker) Open(_ context.Context, sampleRate int, src io.Reader) (audio.Sink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenRates = append(s.OpenRates, sampleRate)
	s.Sources = append(s.Sources, src)
	if s.OpenError != nil {
		return nil, s.OpenError
	}
	if s.OpenResult == nil {
		s.OpenResult = &Sink{}
	}
	return s.OpenResult, nil
}

// Sink returns the sink handed out by Open, or nil before the first call.
func (s *Speaker) Sink() *Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.OpenResult
}

// ─── Output ───────────────────────────────────────────────────────────────────

// ScheduleCall records the arguments of a single [Output.Schedule] invocation.
type ScheduleCall struct {
	// Samples is the buffer passed to Schedule.
	Samples []float32
	// At is the requested start position.
	At time.Duration
	// Voice is the handle returned to the caller.
	Voice *Voice
}

// Output is a mock [playback.Output] with a manually driven clock.
type Output struct {
	mu  sync.Mutex
	now time.Duration

	// ScheduleError is returned by Schedule.
	ScheduleError error

	// ScheduleCalls records all successful Schedule invocations.
	ScheduleCalls []ScheduleCall

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// SetNow moves the clock.
func (o *Output) SetNow(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = d
}

// Now implements [playback.Output].
func (o *Output) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// Schedule implements [playback.Output].
func (o *Output) Schedule(samples []float32, at time.Duration, onEnded func()) (playback.Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ScheduleError != nil {
		return nil, o.ScheduleError
	}
	v := &Voice{onEnded: onEnded}
	o.ScheduleCalls = append(o.ScheduleCalls, ScheduleCall{Samples: samples, At: at, Voice: v})
	return v, nil
}

// Close implements [playback.Output].
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountClose++
	return nil
}

// Calls returns a snapshot of ScheduleCalls.
func (o *Output) Calls() []ScheduleCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ScheduleCall(nil), o.ScheduleCalls...)
}

// Voice is a mock [playback.Voice].
type Voice struct {
	mu      sync.Mutex
	onEnded func()

	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

// Stop implements [playback.Voice].
func (v *Voice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.CallCountStop++
}

// Stopped reports whether Stop has been called.
func (v *Voice) Stopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.CallCountStop > 0
}

// End simulates natural completion by invoking the onEnded callback unless
// the voice was stopped.
func (v *Voice) End() {
	v.mu.Lock()
	fn := v.onEnded
	stopped := v.CallCountStop > 0
	v.mu.Unlock()
	if fn != nil && !stopped {
		fn()
	}
}
