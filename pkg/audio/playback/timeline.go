package playback

import (
	"io"
	"sync"
	"time"

	"github.com/MrWong99/aura/pkg/audio"
	"github.com/MrWong99/aura/pkg/audio/pcm"
)

// Compile-time interface assertions.
var (
	_ Output    = (*Timeline)(nil)
	_ io.Reader = (*Timeline)(nil)
)

// Timeline is a software [Output] whose clock advances as a device pulls
// rendered audio through Read. Scheduled buffers are mixed at sample accuracy;
// gaps render as silence. Hand a Timeline to [audio.Speaker.Open] as the
// source reader.
type Timeline struct {
	sampleRate int

	mu     sync.Mutex
	pos    int64 // samples rendered so far
	voices []*timelineVoice
	closed bool
}

type timelineVoice struct {
	t       *Timeline
	start   int64
	samples []float32
	onEnded func()
	stopped bool
}

// NewTimeline returns a Timeline rendering mono audio at sampleRate Hz.
func NewTimeline(sampleRate int) *Timeline {
	if sampleRate <= 0 {
		sampleRate = audio.PlaybackSampleRate
	}
	return &Timeline{sampleRate: sampleRate}
}

// SampleRate returns the render rate in Hz.
func (t *Timeline) SampleRate() int { return t.sampleRate }

// Now implements [Output].
func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return audio.SamplesDuration(int(t.pos), t.sampleRate)
}

// Schedule implements [Output]. A start time in the past is clamped to the
// current render position.
func (t *Timeline) Schedule(samples []float32, at time.Duration, onEnded func()) (Voice, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	v := &timelineVoice{
		t:       t,
		start:   max(t.toSamples(at), t.pos),
		samples: samples,
		onEnded: onEnded,
	}
	t.voices = append(t.voices, v)
	return v, nil
}

// Read renders the next len(p)/2 samples as s16le PCM. It never blocks and
// returns io.EOF once the timeline is closed.
func (t *Timeline) Read(p []byte) (int, error) {
	n := len(p) / 2
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, io.EOF
	}
	if n == 0 {
		t.mu.Unlock()
		return 0, nil
	}

	mix := make([]float32, n)
	from, to := t.pos, t.pos+int64(n)
	var ended []func()
	kept := t.voices[:0]
	for _, v := range t.voices {
		end := v.start + int64(len(v.samples))
		lo, hi := max(v.start, from), min(end, to)
		for i := lo; i < hi; i++ {
			mix[i-from] += v.samples[i-v.start]
		}
		if end <= to {
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
			continue
		}
		kept = append(kept, v)
	}
	clear(t.voices[len(kept):])
	t.voices = kept
	t.pos = to
	t.mu.Unlock()

	for _, fn := range ended {
		fn()
	}
	return copy(p, pcm.EncodeBytes(mix)), nil
}

// Close implements [Output]. Pending voices are dropped without calling
// their onEnded callbacks.
func (t *Timeline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.voices = nil
	return nil
}

// toSamples rounds a clock position to the nearest sample index.
func (t *Timeline) toSamples(d time.Duration) int64 {
	return (int64(d)*int64(t.sampleRate) + int64(time.Second)/2) / int64(time.Second)
}

func (v *timelineVoice) Stop() {
	t := v.t
	t.mu.Lock()
	defer t.mu.Unlock()
	if v.stopped {
		return
	}
	v.stopped = true
	for i, o := range t.voices {
		if o == v {
			t.voices = append(t.voices[:i], t.voices[i+1:]...)
			break
		}
	}
}
