package engine

import (
	"context"
	"fmt"

	"github.com/splatview/splatview/internal/splat"
)

// SyntheticEngine is a deterministic stand-in for the GPU worker. It
// unprojects a subsampled pixel grid into a depth-varying point cloud and
// renders by projecting primitive centres, which is enough for the front
// end and the test suite to exercise the full pipeline without a model or
// a GPU.
type SyntheticEngine struct {
	caps Capabilities
}

// NewSyntheticEngine creates a synthetic engine advertising the given
// capabilities. Dev mode advertises CUDA so the render paths are reachable;
// tests flip it off to exercise the 503 paths.
func NewSyntheticEngine(caps Capabilities) *SyntheticEngine {
	if caps.Device == "" {
		caps.Device = "synthetic"
	}
	return &SyntheticEngine{caps: caps}
}

// syntheticBaseDepth is the depth assigned to a mid-brightness pixel.
const syntheticBaseDepth = 2.0

// Predict implements Engine. The output is a pure function of the input
// image and focal length.
func (e *SyntheticEngine) Predict(ctx context.Context, pixels []uint8, width, height int, focalPx float64) (*splat.Gaussians, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(pixels) != 3*width*height {
		return nil, fmt.Errorf("synthetic predict: pixel buffer length %d, want %d", len(pixels), 3*width*height)
	}
	if focalPx <= 0 {
		return nil, fmt.Errorf("synthetic predict: focal length %f", focalPx)
	}

	// Subsample so large uploads stay around a few thousand primitives.
	stride := 1
	for (width/stride)*(height/stride) > 4096 {
		stride++
	}

	cx := (float64(width) - 1) / 2.0
	cy := (float64(height) - 1) / 2.0

	var g splat.Gaussians
	for y := 0; y < height; y += stride {
		for x := 0; x < width; x += stride {
			i := 3 * (y*width + x)
			r := float32(pixels[i]) / 255.0
			gc := float32(pixels[i+1]) / 255.0
			b := float32(pixels[i+2]) / 255.0

			// darker pixels read as farther away
			luma := 0.2126*float64(r) + 0.7152*float64(gc) + 0.0722*float64(b)
			z := syntheticBaseDepth + (1.0 - luma)

			g.Means = append(g.Means,
				float32((float64(x)-cx)*z/focalPx),
				float32((float64(y)-cy)*z/focalPx),
				float32(z),
			)
			s := float32(z * float64(stride) / focalPx)
			g.Scales = append(g.Scales, s, s, s)
			g.Rotations = append(g.Rotations, 1, 0, 0, 0)
			g.Opacities = append(g.Opacities, 0.8)
			g.Colors = append(g.Colors, r, gc, b)
		}
	}

	return &g, nil
}

// Render implements Engine with a nearest-point software projection. No
// covariance splatting; each primitive covers a single pixel.
func (e *SyntheticEngine) Render(ctx context.Context, g *splat.Gaussians, view RenderView) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if view.Width <= 0 || view.Height <= 0 {
		return nil, fmt.Errorf("synthetic render: resolution %dx%d", view.Width, view.Height)
	}

	color := make([]float32, 3*view.Width*view.Height)
	depth := make([]float32, view.Width*view.Height)

	fx := view.Intrinsics[0]
	fy := view.Intrinsics[5]
	cx := view.Intrinsics[2]
	cy := view.Intrinsics[6]

	n := g.Count()
	for i := 0; i < n; i++ {
		wx := float64(g.Means[3*i])
		wy := float64(g.Means[3*i+1])
		wz := float64(g.Means[3*i+2])

		// world -> camera
		e0 := view.Extrinsics
		px := e0[0]*wx + e0[1]*wy + e0[2]*wz + e0[3]
		py := e0[4]*wx + e0[5]*wy + e0[6]*wz + e0[7]
		pz := e0[8]*wx + e0[9]*wy + e0[10]*wz + e0[11]

		if pz <= 1e-6 {
			continue // behind the camera
		}

		u := int(fx*px/pz + cx + 0.5)
		v := int(fy*py/pz + cy + 0.5)
		if u < 0 || u >= view.Width || v < 0 || v >= view.Height {
			continue
		}

		idx := v*view.Width + u
		if depth[idx] != 0 && float32(pz) >= depth[idx] {
			continue
		}
		depth[idx] = float32(pz)
		color[3*idx] = g.Colors[3*i]
		color[3*idx+1] = g.Colors[3*i+1]
		color[3*idx+2] = g.Colors[3*i+2]
	}

	return &Frame{Color: color, Width: view.Width, Height: view.Height}, nil
}

// Capabilities implements Engine.
func (e *SyntheticEngine) Capabilities() Capabilities {
	return e.caps
}

// Close implements Engine.
func (e *SyntheticEngine) Close() error {
	return nil
}
