// Package camera builds pinhole projection matrices and virtual camera
// poses for novel view synthesis over a predicted Gaussian scene.
package camera

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/splatview/splatview/internal/splat"
)

// OrbitSteps is the fixed number of frames in an orbit video trajectory.
const OrbitSteps = 120

// MaxDisparity is the maximum screen-space disparity (as a fraction of the
// image width) the orbit sweep is allowed to induce. It bounds how far the
// virtual eye strays from the capture position.
const MaxDisparity = 0.08

// Intrinsics returns a 4x4 pinhole intrinsics matrix for the given focal
// length (pixels) and output resolution, with the principal point at the
// image centre.
func Intrinsics(focalPx float64, width, height int) *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		focalPx, 0, (float64(width) - 1) / 2.0, 0,
		0, focalPx, (float64(height) - 1) / 2.0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

// View is a single virtual camera pose: projection and world-to-camera
// transform plus the output resolution it was built for.
type View struct {
	// Extrinsics is the 4x4 world-to-camera transform (row major).
	Extrinsics *mat.Dense
	// Intrinsics is the 4x4 pinhole projection matrix (row major).
	Intrinsics *mat.Dense
	Width      int
	Height     int
}

// Model derives camera poses from eye offsets for one scene. The scene
// centroid is the fixed look-at target so small eye movements orbit the
// reconstructed subject instead of panning off it.
type Model struct {
	intrinsics *mat.Dense
	target     [3]float64
	width      int
	height     int
}

// NewModel creates a camera model for the given scene and projection.
func NewModel(g *splat.Gaussians, intrinsics *mat.Dense, width, height int) *Model {
	tx, ty, tz := g.Centroid()
	return &Model{
		intrinsics: intrinsics,
		target:     [3]float64{tx, ty, tz},
		width:      width,
		height:     height,
	}
}

// Compute returns the view for an eye displaced by (x, y, z) from the
// original capture position at the world origin.
func (m *Model) Compute(x, y, z float64) View {
	eye := [3]float64{x, y, z}
	return View{
		Extrinsics: lookAt(eye, m.target),
		Intrinsics: m.intrinsics,
		Width:      m.width,
		Height:     m.height,
	}
}

// lookAt builds a world-to-camera matrix for a camera at eye looking at
// target, using the computer-vision convention of +z forward and +y down.
func lookAt(eye, target [3]float64) *mat.Dense {
	fwd := normalize([3]float64{
		target[0] - eye[0],
		target[1] - eye[1],
		target[2] - eye[2],
	})

	// Degenerate eye == target: identity rotation.
	if fwd == ([3]float64{}) {
		fwd = [3]float64{0, 0, 1}
	}

	down := [3]float64{0, 1, 0}
	right := normalize(cross(down, fwd))
	if right == ([3]float64{}) {
		// forward is parallel to the down axis; pick an arbitrary right
		right = [3]float64{1, 0, 0}
	}
	down = cross(fwd, right)

	// Rotation rows are the camera basis vectors; translation is -R*eye.
	r := mat.NewDense(4, 4, []float64{
		right[0], right[1], right[2], -dot(right, eye),
		down[0], down[1], down[2], -dot(down, eye),
		fwd[0], fwd[1], fwd[2], -dot(fwd, eye),
		0, 0, 0, 1,
	})
	return r
}

// MaxOffset returns the largest horizontal/vertical eye displacement the
// orbit sweep may use for the given scene. The bound converts MaxDisparity
// from screen space into a metric baseline via the median scene depth:
// baseline = disparity_px * depth / focal_px.
func MaxOffset(g *splat.Gaussians, width int, focalPx float64) (maxX, maxY float64) {
	depth := g.MedianDepth()
	if depth <= 0 || focalPx <= 0 {
		return 0, 0
	}
	b := MaxDisparity * float64(width) * depth / focalPx
	return b, b
}

// OrbitTrajectory returns the fixed OrbitSteps-frame eye trajectory sweeping
// a +-90 degree arc. The normalized rotation parameter t runs from -0.25 to
// +0.25 of a full turn; x follows sin and y follows cos so the sweep starts
// and ends level with the capture position.
func OrbitTrajectory(maxX, maxY float64) [][3]float64 {
	traj := make([][3]float64, OrbitSteps)
	for i := range traj {
		t := (float64(i)/float64(OrbitSteps-1) - 0.5) * 0.5
		traj[i] = [3]float64{
			maxX * math.Sin(2*math.Pi*t),
			maxY * math.Cos(2*math.Pi*t),
			0,
		}
	}
	return traj
}

// Flatten copies a 4x4 matrix into a row-major array for wire transport.
func Flatten(m *mat.Dense) [16]float64 {
	var out [16]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[4*r+c] = m.At(r, c)
		}
	}
	return out
}

func normalize(v [3]float64) [3]float64 {
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if n == 0 {
		return [3]float64{}
	}
	return [3]float64{v[0] / n, v[1] / n, v[2] / n}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}
