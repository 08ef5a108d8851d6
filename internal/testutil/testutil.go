// Package testutil provides fixtures shared across package tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/splatview/splatview/internal/splat"
)

// PNGImage encodes a synthetic gradient image of the given size as PNG.
func PNGImage(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(255 * x / max(width, 1)),
				G: uint8(255 * y / max(height, 1)),
				B: 128,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

// Gaussians builds a deterministic primitive set with n elements spread over
// a depth range, for store and render tests.
func Gaussians(t *testing.T, n int) *splat.Gaussians {
	t.Helper()

	rng := rand.New(rand.NewSource(42))
	g := &splat.Gaussians{
		Means:     make([]float32, 3*n),
		Scales:    make([]float32, 3*n),
		Rotations: make([]float32, 4*n),
		Opacities: make([]float32, n),
		Colors:    make([]float32, 3*n),
	}
	for i := 0; i < n; i++ {
		g.Means[3*i] = float32(rng.Float64()*2 - 1)
		g.Means[3*i+1] = float32(rng.Float64()*2 - 1)
		g.Means[3*i+2] = float32(1.0 + rng.Float64()*4)
		g.Scales[3*i] = 0.01
		g.Scales[3*i+1] = 0.01
		g.Scales[3*i+2] = 0.01
		g.Rotations[4*i] = 1
		g.Opacities[i] = 0.9
		g.Colors[3*i] = float32(rng.Float64())
		g.Colors[3*i+1] = float32(rng.Float64())
		g.Colors[3*i+2] = float32(rng.Float64())
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("fixture gaussians invalid: %v", err)
	}
	return g
}
