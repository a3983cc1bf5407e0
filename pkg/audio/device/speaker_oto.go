//go:build !nocgo

package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/aura/pkg/audio"
)

// ErrSpeakerUnavailable wraps every failure to acquire the audio output.
var ErrSpeakerUnavailable = errors.New("device: audio output unavailable")

// readyTimeout bounds how long to wait for the host audio backend.
const readyTimeout = 5 * time.Second

var _ audio.Speaker = (*OtoSpeaker)(nil)

// OtoSpeaker plays through the host audio backend via oto. oto allows one
// context per process, so the first Open fixes the sample rate; later opens
// must request the same rate.
type OtoSpeaker struct {
	mu   sync.Mutex
	ctx  *oto.Context
	rate int
}

// NewSpeaker returns the host speaker.
func NewSpeaker() audio.Speaker { return &OtoSpeaker{} }

// Open implements [audio.Speaker].
func (s *OtoSpeaker) Open(ctx context.Context, sampleRate int, src io.Reader) (audio.Sink, error) {
	octx, err := s.context(ctx, sampleRate)
	if err != nil {
		return nil, err
	}
	p := octx.NewPlayer(src)
	p.Play()
	slog.Debug("device: speaker opened", "sample_rate", sampleRate)
	return &otoSink{player: p}, nil
}

func (s *OtoSpeaker) context(ctx context.Context, sampleRate int) (*oto.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		if s.rate != sampleRate {
			return nil, fmt.Errorf("%w: already running at %d Hz, requested %d Hz", ErrSpeakerUnavailable, s.rate, sampleRate)
		}
		return s.ctx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}
	switch runtime.GOOS {
	case "darwin":
		op.BufferSize = 100 * time.Millisecond
	case "windows":
		op.BufferSize = 80 * time.Millisecond
	default:
		op.BufferSize = 50 * time.Millisecond
	}

	octx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpeakerUnavailable, err)
	}
	select {
	case <-ready:
	case <-time.After(readyTimeout):
		return nil, fmt.Errorf("%w: context not ready after %v", ErrSpeakerUnavailable, readyTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.ctx = octx
	s.rate = sampleRate
	return octx, nil
}

type otoSink struct {
	player *oto.Player
	once   sync.Once
	err    error
}

func (k *otoSink) Close() error {
	k.once.Do(func() {
		k.player.Pause()
		k.err = k.player.Close()
	})
	return k.err
}
