package engine

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func syntheticPixels(width, height int) []uint8 {
	px := make([]uint8, 3*width*height)
	for i := range px {
		px[i] = uint8((i * 37) % 256)
	}
	return px
}

func TestSyntheticPredict(t *testing.T) {
	e := NewSyntheticEngine(Capabilities{})
	if e.Capabilities().Device != "synthetic" {
		t.Errorf("default device = %q, want synthetic", e.Capabilities().Device)
	}

	g, err := e.Predict(context.Background(), syntheticPixels(32, 24), 32, 24, 1000)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("predicted gaussians invalid: %v", err)
	}
	if g.Count() != 32*24 {
		t.Errorf("Count() = %d, want %d (no subsampling below the cap)", g.Count(), 32*24)
	}
	for i := 0; i < g.Count(); i++ {
		z := g.Means[3*i+2]
		if z < syntheticBaseDepth || z > syntheticBaseDepth+1 {
			t.Fatalf("primitive %d depth %v outside [%v, %v]", i, z, syntheticBaseDepth, syntheticBaseDepth+1)
		}
	}
}

func TestSyntheticPredictDeterministic(t *testing.T) {
	e := NewSyntheticEngine(Capabilities{})
	px := syntheticPixels(16, 16)

	a, err := e.Predict(context.Background(), px, 16, 16, 800)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	b, err := e.Predict(context.Background(), px, 16, 16, 800)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("repeated prediction differs (-first +second):\n%s", diff)
	}
}

func TestSyntheticPredictSubsamples(t *testing.T) {
	e := NewSyntheticEngine(Capabilities{})

	g, err := e.Predict(context.Background(), syntheticPixels(256, 256), 256, 256, 2000)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if g.Count() > 4096 {
		t.Errorf("Count() = %d, want at most 4096", g.Count())
	}
	if g.Count() == 0 {
		t.Error("Count() = 0, want a non-empty scene")
	}
}

func TestSyntheticPredictRejectsBadInput(t *testing.T) {
	e := NewSyntheticEngine(Capabilities{})

	if _, err := e.Predict(context.Background(), make([]uint8, 10), 4, 4, 1000); err == nil {
		t.Error("expected error for short pixel buffer")
	}
	if _, err := e.Predict(context.Background(), syntheticPixels(4, 4), 4, 4, 0); err == nil {
		t.Error("expected error for zero focal length")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Predict(ctx, syntheticPixels(4, 4), 4, 4, 1000); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestSyntheticRender(t *testing.T) {
	e := NewSyntheticEngine(Capabilities{CUDAAvailable: true})

	g, err := e.Predict(context.Background(), syntheticPixels(32, 32), 32, 32, 1000)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	view := RenderView{
		Extrinsics: [16]float64{
			1, 0, 0, 0,
			0, 1, 0, 0,
			0, 0, 1, 0,
			0, 0, 0, 1,
		},
		Intrinsics: [16]float64{
			1000, 0, 31.5, 0,
			0, 1000, 31.5, 0,
			0, 0, 1, 0,
			0, 0, 0, 1,
		},
		Width:  64,
		Height: 64,
	}

	frame, err := e.Render(context.Background(), g, view)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if frame.Width != 64 || frame.Height != 64 {
		t.Errorf("frame = %dx%d, want 64x64", frame.Width, frame.Height)
	}
	if len(frame.Color) != 3*64*64 {
		t.Fatalf("color buffer length %d, want %d", len(frame.Color), 3*64*64)
	}

	var lit bool
	for _, c := range frame.Color {
		if c > 0 {
			lit = true
			break
		}
	}
	if !lit {
		t.Error("rendered frame is entirely black")
	}
}

func TestSyntheticRenderRejectsBadResolution(t *testing.T) {
	e := NewSyntheticEngine(Capabilities{})
	g, err := e.Predict(context.Background(), syntheticPixels(4, 4), 4, 4, 1000)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if _, err := e.Render(context.Background(), g, RenderView{Width: 0, Height: 10}); err == nil {
		t.Error("expected error for zero width")
	}
}
