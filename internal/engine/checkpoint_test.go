package engine

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/splatview/splatview/internal/httputil"
)

func TestEnsureCheckpointDownloads(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "checkpoints")

	client := httputil.NewMockHTTPClient()
	client.AddResponse(http.StatusOK, "checkpoint-bytes")

	got, err := EnsureCheckpoint(context.Background(), client, "https://example.com/models/model.pt", cacheDir)
	if err != nil {
		t.Fatalf("EnsureCheckpoint: %v", err)
	}
	want := filepath.Join(cacheDir, "model.pt")
	if got != want {
		t.Errorf("path = %q, want %q", got, want)
	}

	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("read checkpoint: %v", err)
	}
	if string(data) != "checkpoint-bytes" {
		t.Errorf("checkpoint content = %q", data)
	}

	// no .partial temp files left behind
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("cache dir has %d entries, want 1", len(entries))
	}
}

func TestEnsureCheckpointCached(t *testing.T) {
	cacheDir := t.TempDir()
	dest := filepath.Join(cacheDir, "model.pt")
	if err := os.WriteFile(dest, []byte("cached"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := httputil.NewMockHTTPClient()
	got, err := EnsureCheckpoint(context.Background(), client, "https://example.com/models/model.pt", cacheDir)
	if err != nil {
		t.Fatalf("EnsureCheckpoint: %v", err)
	}
	if got != dest {
		t.Errorf("path = %q, want %q", got, dest)
	}
	if client.RequestCount() != 0 {
		t.Errorf("cached checkpoint triggered %d requests, want 0", client.RequestCount())
	}
}

func TestEnsureCheckpointBadStatus(t *testing.T) {
	cacheDir := t.TempDir()

	client := httputil.NewMockHTTPClient()
	client.AddResponse(http.StatusNotFound, "gone")

	if _, err := EnsureCheckpoint(context.Background(), client, "https://example.com/models/model.pt", cacheDir); err == nil {
		t.Error("expected error for 404 download")
	}
	if _, err := os.Stat(filepath.Join(cacheDir, "model.pt")); !errors.Is(err, os.ErrNotExist) {
		t.Error("failed download must not leave a checkpoint file")
	}
}

func TestEnsureCheckpointTransportError(t *testing.T) {
	client := httputil.NewMockHTTPClient()
	client.AddErrorResponse(errors.New("connection refused"))

	if _, err := EnsureCheckpoint(context.Background(), client, "https://example.com/models/model.pt", t.TempDir()); err == nil {
		t.Error("expected error for transport failure")
	}
}

func TestEnsureCheckpointBadURL(t *testing.T) {
	if _, err := EnsureCheckpoint(context.Background(), httputil.NewMockHTTPClient(), "https://example.com/", t.TempDir()); err == nil {
		t.Error("expected error for url without a file name")
	}
}

func TestDetectLocalGPU(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		err      error
		wantName string
		wantOK   bool
	}{
		{"single gpu", "NVIDIA GeForce RTX 4090\n", nil, "NVIDIA GeForce RTX 4090", true},
		{"multiple gpus returns first", "NVIDIA A100\nNVIDIA A100\n", nil, "NVIDIA A100", true},
		{"no nvidia-smi", "", errors.New("executable file not found"), "", false},
		{"empty output", "\n", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &MockRunner{Output: []byte(tt.output), Err: tt.err}
			name, ok := DetectLocalGPU(r)
			if name != tt.wantName || ok != tt.wantOK {
				t.Errorf("DetectLocalGPU() = (%q, %v), want (%q, %v)", name, ok, tt.wantName, tt.wantOK)
			}
			if len(r.Calls) != 1 || r.Calls[0][0] != "nvidia-smi" {
				t.Errorf("probe ran %v, want nvidia-smi", r.Calls)
			}
		})
	}
}
