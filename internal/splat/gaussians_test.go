package splat

import (
	"math"
	"testing"
)

func TestFocalLengthFromFOV(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
		fov    float64
		want   float64
	}{
		{"landscape", 800, 600, 30.0, 0.5 * 800 / math.Tan(30.0*math.Pi/360.0)},
		{"portrait uses long side", 600, 800, 30.0, 0.5 * 800 / math.Tan(30.0*math.Pi/360.0)},
		{"square", 512, 512, 30.0, 0.5 * 512 / math.Tan(30.0*math.Pi/360.0)},
		{"wider fov is shorter focal", 800, 600, 60.0, 0.5 * 800 / math.Tan(60.0*math.Pi/360.0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FocalLengthFromFOV(tt.width, tt.height, tt.fov)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("FocalLengthFromFOV(%d, %d, %v) = %v, want %v", tt.width, tt.height, tt.fov, got, tt.want)
			}
		})
	}

	// portrait and landscape of the same sensor must agree
	if FocalLengthFromFOV(800, 600, 30) != FocalLengthFromFOV(600, 800, 30) {
		t.Error("portrait and landscape focal lengths differ")
	}
}

func TestValidate(t *testing.T) {
	g := &Gaussians{
		Means:     make([]float32, 6),
		Scales:    make([]float32, 6),
		Rotations: make([]float32, 8),
		Opacities: make([]float32, 2),
		Colors:    make([]float32, 6),
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("valid set rejected: %v", err)
	}

	g.Means = g.Means[:5]
	if err := g.Validate(); err == nil {
		t.Error("expected error for truncated means")
	}
}

func TestCentroid(t *testing.T) {
	g := &Gaussians{
		Means:     []float32{0, 0, 1, 2, 4, 3},
		Scales:    make([]float32, 6),
		Rotations: make([]float32, 8),
		Opacities: make([]float32, 2),
		Colors:    make([]float32, 6),
	}
	x, y, z := g.Centroid()
	if x != 1 || y != 2 || z != 2 {
		t.Errorf("Centroid() = (%v, %v, %v), want (1, 2, 2)", x, y, z)
	}

	empty := &Gaussians{}
	if x, y, z := empty.Centroid(); x != 0 || y != 0 || z != 0 {
		t.Errorf("empty Centroid() = (%v, %v, %v), want zeros", x, y, z)
	}
}

func TestMedianDepth(t *testing.T) {
	tests := []struct {
		name   string
		depths []float32
		want   float64
	}{
		{"odd count", []float32{3, 1, 2}, 2},
		{"even count averages", []float32{4, 1, 2, 3}, 2.5},
		{"single", []float32{7}, 7},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := len(tt.depths)
			g := &Gaussians{
				Means:     make([]float32, 3*n),
				Scales:    make([]float32, 3*n),
				Rotations: make([]float32, 4*n),
				Opacities: make([]float32, n),
				Colors:    make([]float32, 3*n),
			}
			for i, d := range tt.depths {
				g.Means[3*i+2] = d
			}
			if got := g.MedianDepth(); got != tt.want {
				t.Errorf("MedianDepth() = %v, want %v", got, tt.want)
			}
		})
	}
}
