//go:build nocgo

package device

import (
	"context"
	"errors"
	"io"

	"github.com/MrWong99/aura/pkg/audio"
)

// ErrSpeakerUnavailable wraps every failure to acquire the audio output.
var ErrSpeakerUnavailable = errors.New("device: audio output unavailable")

// NewSpeaker returns a speaker that always fails in nocgo builds. Use
// [Discard] for headless operation.
func NewSpeaker() audio.Speaker { return unavailableSpeaker{} }

type unavailableSpeaker struct{}

func (unavailableSpeaker) Open(context.Context, int, io.Reader) (audio.Sink, error) {
	return nil, errors.Join(ErrSpeakerUnavailable, errors.New("audio not available in nocgo build"))
}
