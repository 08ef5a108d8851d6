package video

import (
	"context"
	"fmt"
	"sync"

	"github.com/splatview/splatview/internal/fsutil"
)

// MemoryFactory creates in-memory writers for testing. It records every
// writer it hands out so tests can inspect frame counts and outcomes.
type MemoryFactory struct {
	mu sync.Mutex
	// FailFrame, when >= 0, makes the writer return an error on that
	// zero-based frame index.
	FailFrame int
	// FS, when set, receives a placeholder output file on Close so handlers
	// that stream the finished video back find something on disk.
	FS      fsutil.FileSystem
	writers []*MemoryWriter
}

// NewMemoryFactory creates a MemoryFactory that never fails.
func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{FailFrame: -1}
}

// NewWriter creates a MemoryWriter.
func (f *MemoryFactory) NewWriter(ctx context.Context, path string, width, height, frameRate int) (Writer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := &MemoryWriter{
		Path:      path,
		Width:     width,
		Height:    height,
		FrameRate: frameRate,
		failFrame: f.FailFrame,
		fs:        f.FS,
	}
	f.writers = append(f.writers, w)
	return w, nil
}

// Writers returns every writer created so far.
func (f *MemoryFactory) Writers() []*MemoryWriter {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*MemoryWriter, len(f.writers))
	copy(out, f.writers)
	return out
}

// MemoryWriter records frames instead of encoding them.
type MemoryWriter struct {
	Path      string
	Width     int
	Height    int
	FrameRate int

	mu        sync.Mutex
	fs        fsutil.FileSystem
	frames    int
	closed    bool
	aborted   bool
	failFrame int
}

// WriteFrame counts the frame, failing at the configured index.
func (w *MemoryWriter) WriteFrame(rgb []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if want := w.Width * w.Height * 3; len(rgb) != want {
		return fmt.Errorf("frame size %d bytes, want %d", len(rgb), want)
	}
	if w.failFrame >= 0 && w.frames == w.failFrame {
		return fmt.Errorf("injected failure at frame %d", w.frames)
	}
	w.frames++
	return nil
}

// Close marks the writer finished and, if a filesystem was configured,
// leaves a placeholder file at the output path.
func (w *MemoryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.fs != nil {
		return w.fs.WriteFile(w.Path, []byte("mp4"), 0o644)
	}
	return nil
}

// Abort marks the writer aborted.
func (w *MemoryWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.aborted = true
	return nil
}

// Frames returns the number of frames written.
func (w *MemoryWriter) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Closed reports whether Close was called.
func (w *MemoryWriter) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Aborted reports whether Abort was called.
func (w *MemoryWriter) Aborted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.aborted
}
