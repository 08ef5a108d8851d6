package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/splatview/splatview/internal/httputil"
	"github.com/splatview/splatview/internal/monitoring"
	"github.com/splatview/splatview/internal/splat"
)

// WorkerEngine talks to the sharpd GPU worker process over its local HTTP
// interface. The worker owns the model weights and the CUDA rasterizer; this
// side owns checkpoint caching and request plumbing.
type WorkerEngine struct {
	baseURL string
	client  httputil.HTTPClient
	caps    Capabilities
	loaded  bool
}

// NewWorkerEngine creates an engine pointed at the worker's base URL. Call
// Handshake before use.
func NewWorkerEngine(baseURL string, client httputil.HTTPClient) *WorkerEngine {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &WorkerEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// deviceResponse is the worker's handshake payload.
type deviceResponse struct {
	Device        string `json:"device"`
	CUDAAvailable bool   `json:"cuda_available"`
}

// Handshake queries the worker for its device capabilities.
func (e *WorkerEngine) Handshake(ctx context.Context) error {
	var resp deviceResponse
	if err := e.get(ctx, "/v1/device", &resp); err != nil {
		return fmt.Errorf("worker handshake: %w", err)
	}
	e.caps = Capabilities{Device: resp.Device, CUDAAvailable: resp.CUDAAvailable}
	monitoring.Logf("engine: worker at %s reports device=%s cuda=%v", e.baseURL, resp.Device, resp.CUDAAvailable)
	return nil
}

// LoadModel asks the worker to load the checkpoint at the given path. The
// worker treats a repeated load of the same checkpoint as a no-op, so this
// call is idempotent.
func (e *WorkerEngine) LoadModel(ctx context.Context, checkpointPath string) error {
	req := struct {
		Checkpoint string `json:"checkpoint"`
	}{Checkpoint: checkpointPath}
	if err := e.post(ctx, "/v1/load", req, &struct{}{}); err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	e.loaded = true
	return nil
}

// predictRequest and friends are the worker wire format. Float arrays travel
// as base64-encoded little-endian float32 to keep payload parsing cheap on
// the Python side.
type predictRequest struct {
	Image   string  `json:"image"` // base64 raw RGB, 3 bytes/pixel
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	FocalPx float64 `json:"focal_px"`
}

type gaussiansPayload struct {
	Count     int    `json:"count"`
	Means     string `json:"means"`
	Scales    string `json:"scales"`
	Rotations string `json:"rotations"`
	Opacities string `json:"opacities"`
	Colors    string `json:"colors"`
}

type renderRequest struct {
	Gaussians  gaussiansPayload `json:"gaussians"`
	View       RenderView       `json:"view"`
	ColorSpace string           `json:"color_space"`
}

type renderResponse struct {
	Color  string `json:"color"` // base64 little-endian float32, 3 per pixel
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Predict implements Engine.
func (e *WorkerEngine) Predict(ctx context.Context, pixels []uint8, width, height int, focalPx float64) (*splat.Gaussians, error) {
	if !e.loaded {
		return nil, ErrNotLoaded
	}
	if len(pixels) != 3*width*height {
		return nil, fmt.Errorf("predict: pixel buffer length %d, want %d", len(pixels), 3*width*height)
	}

	req := predictRequest{
		Image:   base64.StdEncoding.EncodeToString(pixels),
		Width:   width,
		Height:  height,
		FocalPx: focalPx,
	}
	var resp gaussiansPayload
	if err := e.post(ctx, "/v1/predict", req, &resp); err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	g, err := decodeGaussians(&resp)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return g, nil
}

// Render implements Engine.
func (e *WorkerEngine) Render(ctx context.Context, g *splat.Gaussians, view RenderView) (*Frame, error) {
	if !e.loaded {
		return nil, ErrNotLoaded
	}
	req := renderRequest{
		Gaussians:  encodeGaussians(g),
		View:       view,
		ColorSpace: view.ColorSpace,
	}
	var resp renderResponse
	if err := e.post(ctx, "/v1/render", req, &resp); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	color, err := decodeFloats(resp.Color)
	if err != nil {
		return nil, fmt.Errorf("render: decode color buffer: %w", err)
	}
	if len(color) != 3*resp.Width*resp.Height {
		return nil, fmt.Errorf("render: color buffer length %d, want %d", len(color), 3*resp.Width*resp.Height)
	}
	return &Frame{Color: color, Width: resp.Width, Height: resp.Height}, nil
}

// Capabilities implements Engine.
func (e *WorkerEngine) Capabilities() Capabilities {
	return e.caps
}

// Close implements Engine. The worker process has its own lifecycle; there
// is nothing to release on this side.
func (e *WorkerEngine) Close() error {
	return nil
}

func (e *WorkerEngine) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+path, nil)
	if err != nil {
		return err
	}
	return e.do(req, out)
}

func (e *WorkerEngine) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return e.do(req, out)
}

func (e *WorkerEngine) do(req *http.Request, out interface{}) error {
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("worker request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// the worker reports failures as {"error": "..."}
		var payload struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
			return fmt.Errorf("worker %s: %s (status %d)", req.URL.Path, payload.Error, resp.StatusCode)
		}
		return fmt.Errorf("worker %s: status %d", req.URL.Path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode worker response: %w", err)
	}
	return nil
}

func encodeGaussians(g *splat.Gaussians) gaussiansPayload {
	return gaussiansPayload{
		Count:     g.Count(),
		Means:     encodeFloats(g.Means),
		Scales:    encodeFloats(g.Scales),
		Rotations: encodeFloats(g.Rotations),
		Opacities: encodeFloats(g.Opacities),
		Colors:    encodeFloats(g.Colors),
	}
}

func decodeGaussians(p *gaussiansPayload) (*splat.Gaussians, error) {
	means, err := decodeFloats(p.Means)
	if err != nil {
		return nil, fmt.Errorf("decode means: %w", err)
	}
	scales, err := decodeFloats(p.Scales)
	if err != nil {
		return nil, fmt.Errorf("decode scales: %w", err)
	}
	rotations, err := decodeFloats(p.Rotations)
	if err != nil {
		return nil, fmt.Errorf("decode rotations: %w", err)
	}
	opacities, err := decodeFloats(p.Opacities)
	if err != nil {
		return nil, fmt.Errorf("decode opacities: %w", err)
	}
	colors, err := decodeFloats(p.Colors)
	if err != nil {
		return nil, fmt.Errorf("decode colors: %w", err)
	}

	g := &splat.Gaussians{
		Means:     means,
		Scales:    scales,
		Rotations: rotations,
		Opacities: opacities,
		Colors:    colors,
	}
	if g.Count() != p.Count {
		return nil, fmt.Errorf("worker reported %d gaussians, payload has %d", p.Count, g.Count())
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func encodeFloats(v []float32) string {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func decodeFloats(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("float payload length %d not a multiple of 4", len(buf))
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return out, nil
}
