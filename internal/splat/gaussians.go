// Package splat defines the Gaussian-splat scene representation produced by
// the predictor and consumed by the renderer and exporters.
package splat

import (
	"fmt"
	"math"
	"sort"
)

// Gaussians holds a set of 3D Gaussian primitives in structure-of-arrays
// layout. All slices are indexed by primitive; a set with N primitives has
// len(Means) == 3N, len(Rotations) == 4N and so on. A Gaussians value is
// immutable once predicted: the store hands out the same backing arrays to
// every renderer invocation.
type Gaussians struct {
	// Means holds xyz positions in metric camera space, 3 per primitive.
	Means []float32
	// Scales holds per-axis ellipsoid extents, 3 per primitive.
	Scales []float32
	// Rotations holds unit quaternions (w, x, y, z), 4 per primitive.
	Rotations []float32
	// Opacities holds opacity in [0, 1], 1 per primitive.
	Opacities []float32
	// Colors holds DC spherical-harmonic RGB coefficients, 3 per primitive.
	Colors []float32
}

// Count returns the number of primitives in the set.
func (g *Gaussians) Count() int {
	return len(g.Opacities)
}

// Validate checks the structure-of-arrays invariants.
func (g *Gaussians) Validate() error {
	n := g.Count()
	if len(g.Means) != 3*n {
		return fmt.Errorf("means length %d, want %d", len(g.Means), 3*n)
	}
	if len(g.Scales) != 3*n {
		return fmt.Errorf("scales length %d, want %d", len(g.Scales), 3*n)
	}
	if len(g.Rotations) != 4*n {
		return fmt.Errorf("rotations length %d, want %d", len(g.Rotations), 4*n)
	}
	if len(g.Colors) != 3*n {
		return fmt.Errorf("colors length %d, want %d", len(g.Colors), 3*n)
	}
	return nil
}

// Centroid returns the mean of all primitive positions. Used by the camera
// model to pick a look-at target for novel view synthesis.
func (g *Gaussians) Centroid() (x, y, z float64) {
	n := g.Count()
	if n == 0 {
		return 0, 0, 0
	}
	var sx, sy, sz float64
	for i := 0; i < n; i++ {
		sx += float64(g.Means[3*i])
		sy += float64(g.Means[3*i+1])
		sz += float64(g.Means[3*i+2])
	}
	return sx / float64(n), sy / float64(n), sz / float64(n)
}

// MedianDepth returns the median z coordinate of the primitive positions.
// The orbit trajectory scales its eye offsets by the scene's median depth so
// that near and far scenes sweep through comparable parallax.
func (g *Gaussians) MedianDepth() float64 {
	n := g.Count()
	if n == 0 {
		return 0
	}
	depths := make([]float64, n)
	for i := 0; i < n; i++ {
		depths[i] = float64(g.Means[3*i+2])
	}
	sort.Float64s(depths)
	if n%2 == 1 {
		return depths[n/2]
	}
	return (depths[n/2-1] + depths[n/2]) / 2
}

// SceneMetadata describes the source image a Gaussian set was predicted
// from. It is created alongside the primitive set and never mutated.
type SceneMetadata struct {
	// FocalLengthPx is the estimated focal length in pixels.
	FocalLengthPx float64 `json:"focal_length_px"`
	// Width and Height are the original image resolution in pixels.
	Width  int `json:"width"`
	Height int `json:"height"`
	// ColorSpace tags the color space the predictor emitted ("linearRGB").
	ColorSpace string `json:"color_space"`
}

// DefaultFOVDegrees is the horizontal field of view assumed when estimating
// a focal length for an image with unknown intrinsics.
const DefaultFOVDegrees = 30.0

// DefaultColorSpace is the color space the predictor emits.
const DefaultColorSpace = "linearRGB"

// FocalLengthFromFOV converts a horizontal field of view in degrees to a
// focal length in pixels for an image of the given dimensions. The larger
// image dimension is used so portrait and landscape inputs of the same
// sensor produce the same focal length.
func FocalLengthFromFOV(width, height int, fovDegrees float64) float64 {
	long := width
	if height > long {
		long = height
	}
	return 0.5 * float64(long) / math.Tan(fovDegrees*math.Pi/360.0)
}
