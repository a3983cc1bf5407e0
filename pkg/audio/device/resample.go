package device

import (
	"context"
	"sync"

	"github.com/MrWong99/aura/pkg/audio"
)

var _ audio.Microphone = (*ResamplingMicrophone)(nil)

// ResamplingMicrophone adapts a microphone that only records at a fixed rate.
// It opens Inner at NativeRate and resamples to whatever rate the caller asks
// for.
type ResamplingMicrophone struct {
	Inner      audio.Microphone
	NativeRate int
}

// Open implements [audio.Microphone]. When the requested rate equals
// NativeRate the inner stream is returned unchanged.
func (m *ResamplingMicrophone) Open(ctx context.Context, sampleRate int) (audio.InputStream, error) {
	native := m.NativeRate
	if native <= 0 {
		native = sampleRate
	}
	in, err := m.Inner.Open(ctx, native)
	if err != nil {
		return nil, err
	}
	if in.SampleRate() == sampleRate {
		return in, nil
	}
	return &resampledStream{
		InputStream: in,
		rate:        sampleRate,
		out:         audio.ResampleStream(in.Samples(), in.SampleRate(), sampleRate),
	}, nil
}

type resampledStream struct {
	audio.InputStream
	rate int
	out  <-chan []float32
	once sync.Once
}

func (s *resampledStream) Samples() <-chan []float32 { return s.out }
func (s *resampledStream) SampleRate() int           { return s.rate }

// Close closes the inner stream and drains whatever the converter still
// holds so its goroutine can exit.
func (s *resampledStream) Close() error {
	err := s.InputStream.Close()
	s.once.Do(func() {
		go audio.Drain(s.out)
	})
	return err
}
