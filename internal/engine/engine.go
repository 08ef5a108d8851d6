// Package engine abstracts the Gaussian-splat predictor and rasterizer
// behind an interface so the HTTP layer can run against either the real GPU
// worker process or a synthetic implementation in dev mode and tests.
package engine

import (
	"context"
	"errors"

	"github.com/splatview/splatview/internal/splat"
)

// ErrNotLoaded is returned by operations that require a resident model
// before LoadModel has succeeded.
var ErrNotLoaded = errors.New("engine: model not loaded")

// Capabilities reports what the engine's backing device can do.
type Capabilities struct {
	// Device is the accelerator the model is resident on ("cuda:0", "mps",
	// "cpu").
	Device string `json:"device"`
	// CUDAAvailable reports whether the rasterizer can run. Rendering is
	// CUDA-only; prediction can fall back to slower devices.
	CUDAAvailable bool `json:"cuda_available"`
}

// RenderView is a fully resolved camera for one rasterizer invocation.
// Matrices are 4x4 row major.
type RenderView struct {
	Extrinsics [16]float64 `json:"extrinsics"`
	Intrinsics [16]float64 `json:"intrinsics"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	ColorSpace string      `json:"color_space"`
}

// Frame is a rendered color buffer: 3 floats per pixel in [0, 1], row major.
type Frame struct {
	Color  []float32
	Width  int
	Height int
}

// Engine runs model inference and rendering. Implementations must be safe
// for concurrent use; the API layer bounds concurrency above this interface.
type Engine interface {
	// Predict runs the model on a raw RGB image and returns Gaussian
	// primitives in metric camera space.
	Predict(ctx context.Context, pixels []uint8, width, height int, focalPx float64) (*splat.Gaussians, error)

	// Render rasterizes the Gaussian set from the given view.
	Render(ctx context.Context, g *splat.Gaussians, view RenderView) (*Frame, error)

	// Capabilities reports the backing device. Stable for the lifetime of
	// the engine.
	Capabilities() Capabilities

	// Close releases the engine's resources.
	Close() error
}
