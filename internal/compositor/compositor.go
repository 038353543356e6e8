// Package compositor places a foreground image onto a fixed-size canvas.
package compositor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/vemelin055/background-remover/internal/domain"
)

// Policy selects how the foreground is scaled to the canvas.
type Policy string

const (
	// PolicyFit keeps the whole foreground visible, padding with the
	// canvas background.
	PolicyFit Policy = "fit"
	// PolicyFill covers the whole canvas, cropping overflow at the edges.
	PolicyFill Policy = "fill"
)

// Canvas dimensions are clamped to this range on both axes.
const (
	MinCanvasSize = 100
	MaxCanvasSize = 5000
)

// ClampSize pins a canvas dimension into [MinCanvasSize, MaxCanvasSize].
func ClampSize(v int) int {
	if v < MinCanvasSize {
		return MinCanvasSize
	}
	if v > MaxCanvasSize {
		return MaxCanvasSize
	}
	return v
}

// ParsePolicy normalizes a policy string, defaulting to fit.
func ParsePolicy(s string) Policy {
	if s == string(PolicyFill) {
		return PolicyFill
	}
	return PolicyFit
}

// Composite decodes the foreground, scales it per the policy, centers it on
// an opaque white canvas of the clamped size and returns the canvas as PNG.
// A foreground alpha channel is respected as a mask.
func Composite(foreground []byte, width, height int, policy Policy) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(foreground))
	if err != nil {
		return nil, fmt.Errorf("compositor: %w", errors.Join(domain.ErrDecodeFailed, err))
	}
	width = ClampSize(width)
	height = ClampSize(height)

	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, fmt.Errorf("compositor: empty image: %w", domain.ErrDecodeFailed)
	}

	scaleX := float64(width) / float64(srcW)
	scaleY := float64(height) / float64(srcH)
	var scale float64
	if policy == PolicyFill {
		scale = max(scaleX, scaleY)
	} else {
		scale = min(scaleX, scaleY)
	}
	dstW := int(float64(srcW)*scale + 0.5)
	dstH := int(float64(srcH)*scale + 0.5)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}
	// Rounding must never leave a fill short of full coverage.
	if policy == PolicyFill {
		if dstW < width {
			dstW = width
		}
		if dstH < height {
			dstH = height
		}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	x := (width - dstW) / 2
	y := (height - dstH) / 2
	target := image.Rect(x, y, x+dstW, y+dstH)
	draw.CatmullRom.Scale(canvas, target, src, bounds, draw.Over, nil)

	out := &bytes.Buffer{}
	if err := png.Encode(out, canvas); err != nil {
		return nil, fmt.Errorf("compositor: encode png: %w", err)
	}
	return out.Bytes(), nil
}
