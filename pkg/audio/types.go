package audio

import (
	"math"
	"time"
)

// Fixed pipeline constants. The remote speech service dictates both sample
// rates; they are not negotiable.
const (
	// CaptureSampleRate is the rate at which microphone audio is sent upstream.
	CaptureSampleRate = 16000

	// PlaybackSampleRate is the rate of synthesised audio returned by the service.
	PlaybackSampleRate = 24000

	// FrameSize is the number of samples in one capture frame. 2048 samples at
	// 16 kHz is 128 ms of audio.
	FrameSize = 2048

	// VolumeGain scales an RMS amplitude into the advisory [0, ~1] volume signal.
	VolumeGain = 5
)

// AudioFrame is a fixed-length block of normalised mono samples flowing
// through the pipeline. Frames are immutable once produced; consumers must not
// modify Samples in place.
type AudioFrame struct {
	// Samples holds mono PCM samples in the range [-1, 1].
	Samples []float32

	// SampleRate in Hz (16000 for capture, 24000 for playback).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the play time of the frame.
func (f AudioFrame) Duration() time.Duration {
	return SamplesDuration(len(f.Samples), f.SampleRate)
}

// SamplesDuration converts a sample count at the given rate to a duration.
// A non-positive rate yields zero.
func SamplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}

// RMS returns the root-mean-square amplitude of samples. Empty input yields 0.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Volume returns the advisory loudness signal for samples: RMS × [VolumeGain].
func Volume(samples []float32) float64 {
	return RMS(samples) * VolumeGain
}
