// Package pcm converts between normalised float samples and the wire format
// used by the live speech service: 16-bit signed little-endian PCM, base64
// encoded, tagged with an "audio/pcm;rate=N" MIME type.
//
// All functions are pure and safe for concurrent use.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// mimePrefix is the MIME type prefix for raw PCM chunks.
const mimePrefix = "audio/pcm"

// fullScale is the magnitude of the 16-bit signed range. Both directions use
// it so that a round trip is off by at most one quantisation step.
const fullScale = 32768

// ErrMalformed is returned by [Decode] when the payload is not valid base64.
var ErrMalformed = errors.New("pcm: malformed payload")

// Chunk is an encoded audio fragment ready for transmission.
type Chunk struct {
	// Data is the base64 (standard encoding) representation of s16le PCM.
	Data string

	// MIMEType carries the encoding and sample rate, e.g. "audio/pcm;rate=16000".
	MIMEType string
}

// Len returns the number of samples in the chunk without decoding it.
func (c Chunk) Len() int {
	n := base64.StdEncoding.DecodedLen(len(c.Data))
	n -= strings.Count(c.Data[max(0, len(c.Data)-2):], "=")
	return n / 2
}

// MIMEType returns the MIME tag for PCM at the given sample rate.
func MIMEType(sampleRate int) string {
	return mimePrefix + ";rate=" + strconv.Itoa(sampleRate)
}

// ParseRate extracts the sample rate from a MIME tag such as
// "audio/pcm;rate=24000". ok is false when the tag is not PCM or carries no
// valid rate.
func ParseRate(mime string) (rate int, ok bool) {
	parts := strings.Split(mime, ";")
	if strings.TrimSpace(parts[0]) != mimePrefix {
		return 0, false
	}
	for _, p := range parts[1:] {
		k, v, found := strings.Cut(strings.TrimSpace(p), "=")
		if !found || k != "rate" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Encode clamps samples to [-1, 1], converts them to s16le and base64 encodes
// the result. An empty input produces a chunk with empty Data.
func Encode(samples []float32, sampleRate int) Chunk {
	return Chunk{
		Data:     base64.StdEncoding.EncodeToString(EncodeBytes(samples)),
		MIMEType: MIMEType(sampleRate),
	}
}

// EncodeBytes converts samples to raw s16le bytes without base64.
func EncodeBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(s)))
	}
	return out
}

// Decode reverses [Encode]: base64 → s16le → samples in [-1, 1). A trailing
// odd byte is ignored. Empty input yields an empty (non-nil) slice.
func Decode(data string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return DecodeBytes(raw), nil
}

// DecodeBytes converts raw s16le bytes to samples.
func DecodeBytes(raw []byte) []float32 {
	out := make([]float32, len(raw)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		out[i] = float32(v) / fullScale
	}
	return out
}

// toInt16 rounds s×32768 to the nearest integer and saturates at the int16
// bounds, so +1 becomes 32767 and -1 becomes -32768. NaN encodes as silence.
func toInt16(s float32) int16 {
	if s != s {
		return 0
	}
	v := math.Round(float64(s) * fullScale)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
