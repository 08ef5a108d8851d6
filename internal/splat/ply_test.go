package splat

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testGaussians(n int) *Gaussians {
	g := &Gaussians{
		Means:     make([]float32, 3*n),
		Scales:    make([]float32, 3*n),
		Rotations: make([]float32, 4*n),
		Opacities: make([]float32, n),
		Colors:    make([]float32, 3*n),
	}
	for i := 0; i < n; i++ {
		g.Means[3*i] = float32(i)
		g.Means[3*i+1] = float32(i) * 0.5
		g.Means[3*i+2] = 1.0 + float32(i)*0.25
		g.Scales[3*i] = 0.01
		g.Scales[3*i+1] = 0.02
		g.Scales[3*i+2] = 0.03
		g.Rotations[4*i] = 1
		g.Opacities[i] = 0.5 + float32(i%2)*0.25
		g.Colors[3*i] = 0.1
		g.Colors[3*i+1] = 0.2
		g.Colors[3*i+2] = 0.3
	}
	return g
}

func TestPLYRoundTrip(t *testing.T) {
	g := testGaussians(5)

	var buf bytes.Buffer
	if err := WritePLY(&buf, g); err != nil {
		t.Fatalf("WritePLY: %v", err)
	}

	got, err := ReadPLY(&buf)
	if err != nil {
		t.Fatalf("ReadPLY: %v", err)
	}
	if diff := cmp.Diff(g, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestPLYRoundTripEmpty(t *testing.T) {
	g := &Gaussians{}

	var buf bytes.Buffer
	if err := WritePLY(&buf, g); err != nil {
		t.Fatalf("WritePLY: %v", err)
	}
	got, err := ReadPLY(&buf)
	if err != nil {
		t.Fatalf("ReadPLY: %v", err)
	}
	if got.Count() != 0 {
		t.Errorf("Count() = %d, want 0", got.Count())
	}
}

func TestWritePLYHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePLY(&buf, testGaussians(3)); err != nil {
		t.Fatalf("WritePLY: %v", err)
	}

	header := buf.String()
	for _, want := range []string{
		"ply\n",
		"format binary_little_endian 1.0\n",
		"element vertex 3\n",
		"property float x\n",
		"property float rot_3\n",
		"end_header\n",
	} {
		if !strings.Contains(header, want) {
			t.Errorf("header missing %q", want)
		}
	}
}

func TestWritePLYRejectsInvalid(t *testing.T) {
	g := testGaussians(2)
	g.Opacities = g.Opacities[:1]
	if err := WritePLY(&bytes.Buffer{}, g); err == nil {
		t.Error("expected error for inconsistent gaussians")
	}
}

func TestReadPLYRejectsBadHeaders(t *testing.T) {
	properties := func() string {
		var b strings.Builder
		for _, p := range plyProperties {
			fmt.Fprintf(&b, "property float %s\n", p)
		}
		return b.String()
	}()

	tests := []struct {
		name   string
		header string
	}{
		{
			"wrong magic",
			"obj\nformat binary_little_endian 1.0\nelement vertex 0\n" + properties + "end_header\n",
		},
		{
			"ascii format",
			"ply\nformat ascii 1.0\nelement vertex 0\n" + properties + "end_header\n",
		},
		{
			"big endian",
			"ply\nformat binary_big_endian 1.0\nelement vertex 0\n" + properties + "end_header\n",
		},
		{
			"missing vertex element",
			"ply\nformat binary_little_endian 1.0\n" + properties + "end_header\n",
		},
		{
			"reordered properties",
			"ply\nformat binary_little_endian 1.0\nelement vertex 0\nproperty float y\nproperty float x\nend_header\n",
		},
		{
			"truncated property list",
			"ply\nformat binary_little_endian 1.0\nelement vertex 0\nproperty float x\nproperty float y\nproperty float z\nend_header\n",
		},
		{
			"double property type",
			"ply\nformat binary_little_endian 1.0\nelement vertex 0\nproperty double x\nend_header\n",
		},
		{
			"extra element",
			"ply\nformat binary_little_endian 1.0\nelement vertex 0\n" + properties + "element face 0\nend_header\n",
		},
		{
			"negative vertex count",
			"ply\nformat binary_little_endian 1.0\nelement vertex -1\n" + properties + "end_header\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadPLY(strings.NewReader(tt.header)); err == nil {
				t.Error("expected header rejection")
			}
		})
	}
}

func TestReadPLYIgnoresComments(t *testing.T) {
	g := testGaussians(1)
	var buf bytes.Buffer
	if err := WritePLY(&buf, g); err != nil {
		t.Fatalf("WritePLY: %v", err)
	}

	// splice a comment line after the magic
	raw := buf.Bytes()
	withComment := append([]byte("ply\ncomment generated for viewer compatibility\n"), raw[len("ply\n"):]...)

	got, err := ReadPLY(bytes.NewReader(withComment))
	if err != nil {
		t.Fatalf("ReadPLY with comment: %v", err)
	}
	if got.Count() != 1 {
		t.Errorf("Count() = %d, want 1", got.Count())
	}
}

func TestReadPLYTruncatedBody(t *testing.T) {
	g := testGaussians(4)
	var buf bytes.Buffer
	if err := WritePLY(&buf, g); err != nil {
		t.Fatalf("WritePLY: %v", err)
	}

	raw := buf.Bytes()
	if _, err := ReadPLY(bytes.NewReader(raw[:len(raw)-10])); err == nil {
		t.Error("expected error for truncated vertex data")
	}
}
