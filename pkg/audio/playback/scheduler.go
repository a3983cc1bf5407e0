// Package playback schedules decoded speech fragments on a continuous output
// timeline.
//
// A [Scheduler] accepts encoded fragments in arrival order, decodes them on a
// background worker and places each one immediately after the previous one on
// the [Output] clock, so consecutive fragments play back without gaps.
//
// Every fragment is tagged with the generation that was current when it was
// enqueued. [Scheduler.Interrupt] advances the generation, so fragments whose
// decode was still in flight are discarded when they reach the scheduling
// decision instead of leaking audio from a cancelled turn. The generation
// compare, the cursor advance and the registration of the active voice happen
// under a single lock.
package playback

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/aura/pkg/audio"
	"github.com/MrWong99/aura/pkg/audio/pcm"
)

// ErrClosed is returned by operations on a torn-down scheduler or output.
var ErrClosed = errors.New("playback: closed")

// Voice is a handle to one scheduled buffer on an [Output].
type Voice interface {
	// Stop silences the buffer immediately. Stopping a voice that has already
	// finished is a no-op.
	Stop()
}

// Output is a clocked audio destination.
//
// Implementations must not invoke onEnded from inside Schedule or Voice.Stop.
type Output interface {
	// Now returns the current output clock position.
	Now() time.Duration

	// Schedule queues samples to start at the given clock position and calls
	// onEnded once they finish playing naturally. A stopped voice never calls
	// onEnded.
	Schedule(samples []float32, at time.Duration, onEnded func()) (Voice, error)

	// Close releases the output.
	Close() error
}

// Decoder turns an encoded chunk into mono samples at the scheduler's rate.
type Decoder func(pcm.Chunk) ([]float32, error)

// Unit describes one fragment that reached the scheduling decision.
type Unit struct {
	// Generation is the generation captured when the fragment was enqueued.
	Generation uint64

	// Start is the clock position the fragment was scheduled at. Zero for
	// discarded units.
	Start time.Duration

	// Duration is the play time of the decoded samples.
	Duration time.Duration

	// Volume is the advisory loudness of the decoded samples.
	Volume float64
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithSampleRate sets the rate the default decoder resamples to. Defaults to
// [audio.PlaybackSampleRate].
func WithSampleRate(rate int) Option {
	return func(s *Scheduler) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithDecoder replaces the default PCM decoder.
func WithDecoder(d Decoder) Option {
	return func(s *Scheduler) { s.decode = d }
}

// WithOnScheduled registers a callback invoked after a fragment is placed on
// the timeline. It runs on the decode worker, outside the scheduler lock.
func WithOnScheduled(fn func(Unit)) Option {
	return func(s *Scheduler) { s.onScheduled = fn }
}

// WithOnDiscarded registers a callback invoked when a decoded fragment is
// dropped because its generation is stale.
func WithOnDiscarded(fn func(Unit)) Option {
	return func(s *Scheduler) { s.onDiscarded = fn }
}

// WithOnDecodeError registers a callback invoked when a fragment cannot be
// decoded or scheduled. The fragment is skipped either way.
func WithOnDecodeError(fn func(error)) Option {
	return func(s *Scheduler) { s.onError = fn }
}

type job struct {
	chunk      pcm.Chunk
	generation uint64
}

// Scheduler is the playback side of a live session. All exported methods are
// safe for concurrent use.
type Scheduler struct {
	out        Output
	decode     Decoder
	sampleRate int

	onScheduled func(Unit)
	onDiscarded func(Unit)
	onError     func(error)

	mu         sync.Mutex
	generation uint64
	nextStart  time.Duration
	active     map[uint64]Voice
	voiceSeq   uint64
	pending    []job
	closed     bool

	notify chan struct{}
	done   chan struct{}
	exited chan struct{}
}

// New creates a Scheduler that plays through out and starts its decode
// worker. Call [Scheduler.Teardown] to stop the worker and close out.
func New(out Output, opts ...Option) *Scheduler {
	s := &Scheduler{
		out:        out,
		sampleRate: audio.PlaybackSampleRate,
		active:     make(map[uint64]Voice),
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		exited:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.decode == nil {
		s.decode = s.defaultDecode
	}
	s.nextStart = out.Now()
	go s.worker()
	return s
}

// Enqueue hands an encoded fragment to the decode worker, tagged with the
// current generation. Fragments are decoded in enqueue order. Enqueue never
// blocks on decoding. After Teardown it is a no-op.
func (s *Scheduler) Enqueue(chunk pcm.Chunk) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, job{chunk: chunk, generation: s.generation})
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Interrupt cancels the current turn: the generation advances, every active
// voice is stopped, and the cursor moves to the current clock time. Fragments
// still waiting for or undergoing decode are discarded when they complete.
// Interrupt is safe to call at any time, any number of times.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interruptLocked()
}

// Teardown interrupts playback, stops the decode worker and closes the
// output. Subsequent calls return nil.
func (s *Scheduler) Teardown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.interruptLocked()
	s.pending = nil
	s.mu.Unlock()

	close(s.done)
	<-s.exited
	return s.out.Close()
}

// Generation returns the current generation.
func (s *Scheduler) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// NextStartTime returns the earliest clock position the next fragment may
// start at. It is never behind the output clock.
func (s *Scheduler) NextStartTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return max(s.nextStart, s.out.Now())
}

// Active returns the number of voices that are scheduled and not yet ended.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scheduler) interruptLocked() {
	s.generation++
	for id, v := range s.active {
		v.Stop()
		delete(s.active, id)
	}
	s.nextStart = s.out.Now()
}

func (s *Scheduler) worker() {
	defer close(s.exited)
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}
		for {
			j, ok := s.dequeue()
			if !ok {
				break
			}
			s.process(j)
		}
	}
}

func (s *Scheduler) dequeue() (job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.pending) == 0 {
		return job{}, false
	}
	j := s.pending[0]
	s.pending[0] = job{}
	s.pending = s.pending[1:]
	return j, true
}

// process decodes one fragment outside the lock, then takes the lock to make
// the scheduling decision.
func (s *Scheduler) process(j job) {
	samples, err := s.decode(j.chunk)
	if err != nil {
		s.reportError(err)
		return
	}
	if len(samples) == 0 {
		return
	}
	unit := Unit{
		Generation: j.generation,
		Duration:   audio.SamplesDuration(len(samples), s.sampleRate),
		Volume:     audio.Volume(samples),
	}

	s.mu.Lock()
	if s.closed || j.generation != s.generation {
		s.mu.Unlock()
		slog.Debug("playback: discarded stale fragment", "generation", j.generation)
		if s.onDiscarded != nil {
			s.onDiscarded(unit)
		}
		return
	}
	start := max(s.nextStart, s.out.Now())
	s.voiceSeq++
	id := s.voiceSeq
	v, err := s.out.Schedule(samples, start, func() { s.ended(id) })
	if err != nil {
		s.mu.Unlock()
		s.reportError(err)
		return
	}
	s.nextStart = start + unit.Duration
	s.active[id] = v
	s.mu.Unlock()

	unit.Start = start
	if s.onScheduled != nil {
		s.onScheduled(unit)
	}
}

func (s *Scheduler) ended(id uint64) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

func (s *Scheduler) reportError(err error) {
	slog.Warn("playback: skipping fragment", "err", err)
	if s.onError != nil {
		s.onError(err)
	}
}

// defaultDecode decodes PCM and resamples to the scheduler rate when the
// chunk's MIME tag names a different rate.
func (s *Scheduler) defaultDecode(c pcm.Chunk) ([]float32, error) {
	samples, err := pcm.Decode(c.Data)
	if err != nil {
		return nil, err
	}
	if rate, ok := pcm.ParseRate(c.MIMEType); ok && rate != s.sampleRate {
		samples = audio.Resample(samples, rate, s.sampleRate)
	}
	return samples, nil
}
