package capture_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/aura/pkg/audio"
	"github.com/MrWong99/aura/pkg/audio/capture"
	"github.com/MrWong99/aura/pkg/audio/mock"
)

type recorder struct {
	mu      sync.Mutex
	frames  []audio.AudioFrame
	volumes []float64
	got     chan struct{}
}

func newRecorder() *recorder { return &recorder{got: make(chan struct{}, 64)} }

func (r *recorder) onFrame(f audio.AudioFrame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *recorder) onVolume(v float64) {
	r.mu.Lock()
	r.volumes = append(r.volumes, v)
	r.mu.Unlock()
}

func (r *recorder) wait(t *testing.T, n int) {
	t.Helper()
	for range n {
		select {
		case <-r.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d frames", n)
		}
	}
}

func (r *recorder) snapshot() ([]audio.AudioFrame, []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audio.AudioFrame(nil), r.frames...), append([]float64(nil), r.volumes...)
}

func TestPipeline_SilentFrames(t *testing.T) {
	t.Parallel()

	stream := mock.NewInputStream(audio.CaptureSampleRate, 4)
	rec := newRecorder()
	p := capture.New(capture.WithVolume(rec.onVolume))
	if err := p.Start(stream, rec.onFrame); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	for range 3 {
		stream.Push(make([]float32, audio.FrameSize))
	}
	rec.wait(t, 3)

	frames, volumes := rec.snapshot()
	if len(frames) != 3 || len(volumes) != 3 {
		t.Fatalf("got %d frames / %d volumes, want 3 / 3", len(frames), len(volumes))
	}
	for i, f := range frames {
		if len(f.Samples) != audio.FrameSize {
			t.Errorf("frame %d: len = %d, want %d", i, len(f.Samples), audio.FrameSize)
		}
		if f.SampleRate != audio.CaptureSampleRate {
			t.Errorf("frame %d: rate = %d", i, f.SampleRate)
		}
		if want := time.Duration(i) * 128 * time.Millisecond; f.Timestamp != want {
			t.Errorf("frame %d: timestamp = %v, want %v", i, f.Timestamp, want)
		}
		if volumes[i] != 0 {
			t.Errorf("frame %d: volume = %v, want 0", i, volumes[i])
		}
	}
}

func TestPipeline_Reframes(t *testing.T) {
	t.Parallel()

	stream := mock.NewInputStream(16000, 8)
	rec := newRecorder()
	p := capture.New(capture.WithFrameSize(4))
	if err := p.Start(stream, rec.onFrame); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	stream.Push([]float32{1, 2, 3})
	stream.Push([]float32{4, 5})
	stream.Push([]float32{6, 7, 8, 9})
	rec.wait(t, 2)

	frames, _ := rec.snapshot()
	want := [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}
	for i, w := range want {
		for j := range w {
			if frames[i].Samples[j] != w[j] {
				t.Fatalf("frame %d = %v, want %v", i, frames[i].Samples, w)
			}
		}
	}
}

func TestPipeline_VolumeIsScaledRMS(t *testing.T) {
	t.Parallel()

	stream := mock.NewInputStream(16000, 1)
	rec := newRecorder()
	p := capture.New(capture.WithFrameSize(4), capture.WithVolume(rec.onVolume))
	if err := p.Start(stream, rec.onFrame); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	stream.Push([]float32{0.1, -0.1, 0.1, -0.1})
	rec.wait(t, 1)

	_, volumes := rec.snapshot()
	if d := volumes[0] - 0.5; d > 1e-6 || d < -1e-6 {
		t.Errorf("volume = %v, want 0.5", volumes[0])
	}
}

func TestPipeline_NoFramesAfterStop(t *testing.T) {
	t.Parallel()

	stream := mock.NewInputStream(16000, 16)
	var (
		mu      sync.Mutex
		stopped bool
		late    int
	)
	p := capture.New(capture.WithFrameSize(2))
	if err := p.Start(stream, func(audio.AudioFrame) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			late++
		}
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for range 8 {
		stream.Push([]float32{0, 0})
	}
	p.Stop()
	mu.Lock()
	stopped = true
	mu.Unlock()

	for range 4 {
		stream.Push([]float32{0, 0})
	}
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader goroutine did not exit after Stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if late != 0 {
		t.Errorf("%d frames delivered after Stop returned", late)
	}
}

func TestPipeline_StopIdempotent(t *testing.T) {
	t.Parallel()

	p := capture.New()
	p.Stop()
	p.Stop()

	// Starting a stopped pipeline delivers nothing.
	stream := mock.NewInputStream(16000, 1)
	called := false
	if err := p.Start(stream, func(audio.AudioFrame) { called = true }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stream.Push(make([]float32, audio.FrameSize))
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed")
	}
	if called {
		t.Error("onFrame called on a stopped pipeline")
	}
}

func TestPipeline_StartTwice(t *testing.T) {
	t.Parallel()

	p := capture.New()
	defer p.Stop()
	stream := mock.NewInputStream(16000, 1)
	if err := p.Start(stream, func(audio.AudioFrame) {}); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := p.Start(stream, func(audio.AudioFrame) {}); !errors.Is(err, capture.ErrAlreadyStarted) {
		t.Errorf("second Start err = %v, want ErrAlreadyStarted", err)
	}
}

func TestPipeline_StreamEnd(t *testing.T) {
	t.Parallel()

	stream := mock.NewInputStream(16000, 1)
	stream.ErrResult = errors.New("device unplugged")
	p := capture.New()
	if err := p.Start(stream, func(audio.AudioFrame) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = stream.Close()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not exit when the stream closed")
	}
	p.Stop()
}
