// Package image defines the Provider interface for text-to-image generation.
//
// Image generation is a plain request/response call used by the `aura image`
// command. It is independent of the live voice session.
package image

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Resolution is the requested output size class.
type Resolution string

// Supported resolutions.
const (
	Resolution1K Resolution = "1K"
	Resolution2K Resolution = "2K"
	Resolution4K Resolution = "4K"
)

// Resolutions lists every valid [Resolution].
var Resolutions = []Resolution{Resolution1K, Resolution2K, Resolution4K}

// HighRes reports whether r needs the high-resolution model.
func (r Resolution) HighRes() bool { return r != Resolution1K }

// AspectRatio is the requested width:height ratio.
type AspectRatio string

// Supported aspect ratios.
const (
	Aspect1x1  AspectRatio = "1:1"
	Aspect3x4  AspectRatio = "3:4"
	Aspect4x3  AspectRatio = "4:3"
	Aspect9x16 AspectRatio = "9:16"
	Aspect16x9 AspectRatio = "16:9"
)

// AspectRatios lists every valid [AspectRatio].
var AspectRatios = []AspectRatio{Aspect1x1, Aspect3x4, Aspect4x3, Aspect9x16, Aspect16x9}

// ErrNoImage is returned when the model answered without image data.
var ErrNoImage = errors.New("image: no image generated")

// Request describes one image to generate.
type Request struct {
	Prompt      string
	Resolution  Resolution
	AspectRatio AspectRatio
}

// Validate fills in defaults (1K, 1:1) and rejects unknown values.
func (r *Request) Validate() error {
	if r.Prompt == "" {
		return errors.New("image: prompt must not be empty")
	}
	if r.Resolution == "" {
		r.Resolution = Resolution1K
	}
	if r.AspectRatio == "" {
		r.AspectRatio = Aspect1x1
	}
	var errs []error
	if !slices.Contains(Resolutions, r.Resolution) {
		errs = append(errs, fmt.Errorf("image: unknown resolution %q (valid: %v)", r.Resolution, Resolutions))
	}
	if !slices.Contains(AspectRatios, r.AspectRatio) {
		errs = append(errs, fmt.Errorf("image: unknown aspect ratio %q (valid: %v)", r.AspectRatio, AspectRatios))
	}
	return errors.Join(errs...)
}

// Result is a generated image.
type Result struct {
	// Data holds the encoded image bytes.
	Data []byte

	// MIMEType of Data, e.g. "image/png".
	MIMEType string

	// Caption is any text the model returned alongside the image.
	Caption string
}

// Provider generates images from text prompts. Implementations must be safe
// for concurrent use.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}
