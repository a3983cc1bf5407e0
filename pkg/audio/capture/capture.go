// Package capture taps a live microphone stream and delivers fixed-size
// frames to a callback, one at a time and in arrival order.
//
// A [Pipeline] re-frames whatever block sizes the device produces into
// frames of exactly [audio.FrameSize] samples, reports an advisory volume
// level per frame, and guarantees that once [Pipeline.Stop] returns the frame
// callback is never invoked again. Samples that arrive after Stop are dropped,
// never queued.
package capture

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/aura/pkg/audio"
)

// ErrAlreadyStarted is returned by [Pipeline.Start] when the pipeline has
// been started before. A Pipeline is single-use.
var ErrAlreadyStarted = errors.New("capture: pipeline already started")

// Option is a functional option for configuring a Pipeline.
type Option func(*Pipeline)

// WithFrameSize overrides the number of samples per delivered frame. Values
// below 1 are ignored.
func WithFrameSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.frameSize = n
		}
	}
}

// WithVolume registers a callback that receives RMS × [audio.VolumeGain] for
// every delivered frame, immediately before the frame callback.
func WithVolume(fn func(float64)) Option {
	return func(p *Pipeline) { p.onVolume = fn }
}

// Pipeline is the microphone tap. Create with [New]; the zero value is not
// usable.
type Pipeline struct {
	frameSize int
	onVolume  func(float64)

	// deliverMu serialises callback delivery against Stop. It is held for the
	// duration of each callback so Stop can wait out an in-flight frame.
	deliverMu sync.Mutex
	stopped   bool
	started   bool

	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// New returns an unstarted Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		frameSize: audio.FrameSize,
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start begins delivering frames read from stream to onFrame. It returns
// immediately; delivery happens on an internal goroutine. onFrame must not
// call Stop.
func (p *Pipeline) Start(stream audio.InputStream, onFrame func(audio.AudioFrame)) error {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	if p.stopped {
		close(p.exited)
		return nil
	}
	go p.run(stream, onFrame)
	return nil
}

// Stop disconnects the tap. When Stop returns, onFrame will not be called
// again. Stop is idempotent and may be called before Start.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.deliverMu.Lock()
		p.stopped = true
		p.deliverMu.Unlock()
		close(p.done)
	})
}

// Done returns a channel that is closed once the reader goroutine has exited,
// either after Stop or because the input stream ended.
func (p *Pipeline) Done() <-chan struct{} { return p.exited }

func (p *Pipeline) run(stream audio.InputStream, onFrame func(audio.AudioFrame)) {
	defer close(p.exited)

	rate := stream.SampleRate()
	frameDur := audio.SamplesDuration(p.frameSize, rate)
	buf := make([]float32, 0, p.frameSize*2)
	var seq int64

	samples := stream.Samples()
	for {
		select {
		case <-p.done:
			return
		case block, ok := <-samples:
			if !ok {
				if err := stream.Err(); err != nil {
					slog.Warn("capture: input stream ended", "err", err)
				}
				return
			}
			buf = append(buf, block...)
			for len(buf) >= p.frameSize {
				frame := audio.AudioFrame{
					Samples:    make([]float32, p.frameSize),
					SampleRate: rate,
					Timestamp:  time.Duration(seq) * frameDur,
				}
				copy(frame.Samples, buf[:p.frameSize])
				buf = append(buf[:0], buf[p.frameSize:]...)
				seq++
				if !p.deliver(frame, onFrame) {
					return
				}
			}
		}
	}
}

// deliver invokes the callbacks for one frame unless the pipeline has been
// stopped. It reports whether the pipeline is still running.
func (p *Pipeline) deliver(frame audio.AudioFrame, onFrame func(audio.AudioFrame)) bool {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	if p.stopped {
		return false
	}
	if p.onVolume != nil {
		p.onVolume(audio.Volume(frame.Samples))
	}
	onFrame(frame)
	return true
}
