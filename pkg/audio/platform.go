// Package audio defines the sample types and device interfaces shared by the
// Aura voice pipeline.
//
// The two device abstractions are:
//
//   - [Microphone]: opens a live [InputStream] of mono float samples at a
//     requested rate.
//   - [Speaker]: opens a [Sink] that continuously pulls rendered PCM from an
//     [io.Reader] at a requested rate.
//
// Concrete implementations live in audio/device; test doubles in audio/mock.
package audio

import (
	"context"
	"io"
)

// InputStream is a live microphone stream. Samples arrives in whatever block
// size the device produces; consumers re-frame as needed.
//
// The channel returned by Samples is closed when the stream ends, either
// because Close was called or because the device failed. After the channel
// closes, Err reports the failure, if any.
type InputStream interface {
	// Samples returns the read-only channel of sample blocks in arrival order.
	Samples() <-chan []float32

	// SampleRate reports the rate of the delivered samples in Hz.
	SampleRate() int

	// Err returns the error that terminated the stream, or nil.
	Err() error

	// Close releases the device. Safe to call more than once.
	Close() error
}

// Microphone acquires microphone access.
//
// Implementations must be safe for concurrent use.
type Microphone interface {
	// Open starts capturing at sampleRate Hz and returns the stream. Returns an
	// error if access is denied or the device cannot be started. ctx bounds the
	// acquisition only, not the stream lifetime.
	Open(ctx context.Context, sampleRate int) (InputStream, error)
}

// Sink is an active speaker output. It pulls s16le mono PCM from the reader
// handed to [Speaker.Open] until closed.
type Sink interface {
	// Close stops playback and releases the device. Safe to call more than once.
	Close() error
}

// Speaker acquires an audio output device.
type Speaker interface {
	// Open starts pulling s16le mono PCM at sampleRate Hz from src. The sink
	// keeps reading until Close; src should produce silence rather than block
	// when it has nothing to play.
	Open(ctx context.Context, sampleRate int, src io.Reader) (Sink, error)
}
