package camera

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/splatview/splatview/internal/splat"
)

func sceneAt(z float32) *splat.Gaussians {
	return &splat.Gaussians{
		Means:     []float32{0, 0, z},
		Scales:    []float32{0.01, 0.01, 0.01},
		Rotations: []float32{1, 0, 0, 0},
		Opacities: []float32{1},
		Colors:    []float32{0.5, 0.5, 0.5},
	}
}

func TestIntrinsics(t *testing.T) {
	k := Intrinsics(1433.0, 800, 600)

	if got := k.At(0, 0); got != 1433.0 {
		t.Errorf("fx = %v, want 1433", got)
	}
	if got := k.At(1, 1); got != 1433.0 {
		t.Errorf("fy = %v, want 1433", got)
	}
	if got := k.At(0, 2); got != 399.5 {
		t.Errorf("cx = %v, want 399.5", got)
	}
	if got := k.At(1, 2); got != 299.5 {
		t.Errorf("cy = %v, want 299.5", got)
	}
	if got := k.At(2, 2); got != 1 {
		t.Errorf("k[2][2] = %v, want 1", got)
	}
	if got := k.At(3, 3); got != 1 {
		t.Errorf("k[3][3] = %v, want 1", got)
	}
}

func TestComputeAtOrigin(t *testing.T) {
	g := sceneAt(2.0)
	m := NewModel(g, Intrinsics(1000, 640, 480), 640, 480)

	v := m.Compute(0, 0, 0)
	if v.Width != 640 || v.Height != 480 {
		t.Errorf("view resolution = %dx%d, want 640x480", v.Width, v.Height)
	}

	// eye at origin looking straight down +z: rotation is identity, no
	// translation
	want := mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	if !mat.EqualApprox(v.Extrinsics, want, 1e-12) {
		t.Errorf("extrinsics at origin:\n%v\nwant identity", mat.Formatted(v.Extrinsics))
	}
}

func TestComputeLooksAtCentroid(t *testing.T) {
	g := sceneAt(2.0)
	m := NewModel(g, Intrinsics(1000, 640, 480), 640, 480)

	// any eye offset must map the scene centroid onto the optical axis
	for _, eye := range [][3]float64{
		{0.1, 0, 0},
		{0, -0.2, 0},
		{0.05, 0.05, 0.1},
	} {
		v := m.Compute(eye[0], eye[1], eye[2])

		target := mat.NewVecDense(4, []float64{0, 0, 2, 1})
		var cam mat.VecDense
		cam.MulVec(v.Extrinsics, target)

		if math.Abs(cam.AtVec(0)) > 1e-9 || math.Abs(cam.AtVec(1)) > 1e-9 {
			t.Errorf("eye %v: centroid maps to (%v, %v, %v), want on optical axis",
				eye, cam.AtVec(0), cam.AtVec(1), cam.AtVec(2))
		}
		if cam.AtVec(2) <= 0 {
			t.Errorf("eye %v: centroid at depth %v, want in front of camera", eye, cam.AtVec(2))
		}
	}
}

func TestLookAtRotationIsOrthonormal(t *testing.T) {
	e := lookAt([3]float64{0.3, -0.1, 0.2}, [3]float64{0, 0, 2})

	var r mat.Dense
	r.CloneFrom(e.Slice(0, 3, 0, 3))

	var rrt mat.Dense
	rrt.Mul(&r, r.T())
	if !mat.EqualApprox(&rrt, mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}), 1e-9) {
		t.Errorf("R*R^T not identity:\n%v", mat.Formatted(&rrt))
	}
	if det := mat.Det(&r); math.Abs(det-1) > 1e-9 {
		t.Errorf("det(R) = %v, want 1", det)
	}
}

func TestMaxOffset(t *testing.T) {
	g := sceneAt(2.0)

	x, y := MaxOffset(g, 800, 1000)
	want := MaxDisparity * 800 * 2.0 / 1000
	if math.Abs(x-want) > 1e-12 || math.Abs(y-want) > 1e-12 {
		t.Errorf("MaxOffset = (%v, %v), want (%v, %v)", x, y, want, want)
	}

	if x, y := MaxOffset(&splat.Gaussians{}, 800, 1000); x != 0 || y != 0 {
		t.Errorf("MaxOffset for empty scene = (%v, %v), want zeros", x, y)
	}
	if x, y := MaxOffset(g, 800, 0); x != 0 || y != 0 {
		t.Errorf("MaxOffset with zero focal = (%v, %v), want zeros", x, y)
	}
}

func TestOrbitTrajectory(t *testing.T) {
	traj := OrbitTrajectory(0.1, 0.2)

	if len(traj) != OrbitSteps {
		t.Fatalf("len(traj) = %d, want %d", len(traj), OrbitSteps)
	}

	// t runs -0.25..+0.25 turns: endpoints sit on the x axis extremes, the
	// midpoint returns to the top of the arc
	first, last := traj[0], traj[OrbitSteps-1]
	if math.Abs(first[0]-(-0.1)) > 1e-9 || math.Abs(first[1]) > 1e-9 {
		t.Errorf("first = %v, want (-0.1, ~0, 0)", first)
	}
	if math.Abs(last[0]-0.1) > 1e-9 || math.Abs(last[1]) > 1e-9 {
		t.Errorf("last = %v, want (0.1, ~0, 0)", last)
	}

	for i, p := range traj {
		if p[2] != 0 {
			t.Fatalf("frame %d has z = %v, want 0", i, p[2])
		}
		if math.Abs(p[0]) > 0.1+1e-9 || math.Abs(p[1]) > 0.2+1e-9 {
			t.Fatalf("frame %d = %v exceeds offsets (0.1, 0.2)", i, p)
		}
	}
}

func TestFlatten(t *testing.T) {
	m := mat.NewDense(4, 4, []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	})
	got := Flatten(m)
	for i := 0; i < 16; i++ {
		if got[i] != float64(i+1) {
			t.Fatalf("Flatten()[%d] = %v, want %v", i, got[i], i+1)
		}
	}
}
