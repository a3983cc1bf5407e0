package playback_test

import (
	"io"
	"testing"
	"time"

	"github.com/MrWong99/aura/pkg/audio/pcm"
	"github.com/MrWong99/aura/pkg/audio/playback"
)

func read(t *testing.T, tl *playback.Timeline, n int) []float32 {
	t.Helper()
	buf := make([]byte, n*2)
	got, err := tl.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != len(buf) {
		t.Fatalf("Read = %d bytes, want %d", got, len(buf))
	}
	return pcm.DecodeBytes(buf)
}

func TestTimeline_RendersSilenceWhenIdle(t *testing.T) {
	t.Parallel()

	tl := playback.NewTimeline(1000)
	for i, s := range read(t, tl, 10) {
		if s != 0 {
			t.Fatalf("sample %d = %v, want silence", i, s)
		}
	}
	if got := tl.Now(); got != 10*time.Millisecond {
		t.Errorf("Now = %v, want 10ms", got)
	}
}

func TestTimeline_GaplessBackToBack(t *testing.T) {
	t.Parallel()

	tl := playback.NewTimeline(1000)
	var ended []int
	a := []float32{0.5, 0.5, 0.5}
	b := []float32{-0.5, -0.5}
	if _, err := tl.Schedule(a, 0, func() { ended = append(ended, 1) }); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.Schedule(b, 3*time.Millisecond, func() { ended = append(ended, 2) }); err != nil {
		t.Fatal(err)
	}

	got := read(t, tl, 6)
	want := []float32{0.5, 0.5, 0.5, -0.5, -0.5, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rendered %v, want %v", got, want)
		}
	}
	if len(ended) != 2 || ended[0] != 1 || ended[1] != 2 {
		t.Errorf("ended = %v, want [1 2]", ended)
	}
}

func TestTimeline_StopSilencesVoice(t *testing.T) {
	t.Parallel()

	tl := playback.NewTimeline(1000)
	ended := false
	v, err := tl.Schedule([]float32{0.5, 0.5, 0.5, 0.5}, 0, func() { ended = true })
	if err != nil {
		t.Fatal(err)
	}
	read(t, tl, 2)
	v.Stop()
	v.Stop()
	got := read(t, tl, 2)
	if got[0] != 0 || got[1] != 0 {
		t.Errorf("rendered %v after Stop, want silence", got)
	}
	if ended {
		t.Error("onEnded called for a stopped voice")
	}
}

func TestTimeline_PastStartClamped(t *testing.T) {
	t.Parallel()

	tl := playback.NewTimeline(1000)
	read(t, tl, 5)
	if _, err := tl.Schedule([]float32{0.25}, time.Millisecond, nil); err != nil {
		t.Fatal(err)
	}
	if got := read(t, tl, 1); got[0] != 0.25 {
		t.Errorf("rendered %v, want [0.25]", got)
	}
}

func TestTimeline_Close(t *testing.T) {
	t.Parallel()

	tl := playback.NewTimeline(1000)
	if err := tl.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.Read(make([]byte, 4)); err != io.EOF {
		t.Errorf("Read after Close err = %v, want io.EOF", err)
	}
	if _, err := tl.Schedule([]float32{1}, 0, nil); err != playback.ErrClosed {
		t.Errorf("Schedule after Close err = %v, want ErrClosed", err)
	}
}

func TestTimeline_WithScheduler(t *testing.T) {
	t.Parallel()

	tl := playback.NewTimeline(24000)
	done := make(chan playback.Unit, 2)
	s := playback.New(tl, playback.WithOnScheduled(func(u playback.Unit) { done <- u }))
	defer s.Teardown()

	one := make([]float32, 240)
	for i := range one {
		one[i] = 0.5
	}
	s.Enqueue(pcm.Encode(one, 24000))
	s.Enqueue(pcm.Encode(one, 24000))
	for range 2 {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out")
		}
	}

	got := read(t, tl, 481)
	for i := range 480 {
		if got[i] != 0.5 {
			t.Fatalf("sample %d = %v, want 0.5 (gap in timeline)", i, got[i])
		}
	}
	if got[480] != 0 {
		t.Errorf("sample 480 = %v, want 0", got[480])
	}
	if n := s.Active(); n != 0 {
		t.Errorf("Active = %d after render, want 0", n)
	}
}
