// Package video encodes sequences of rendered frames into MP4 files by
// piping raw RGB data to an external ffmpeg process.
package video

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// DefaultFrameRate is the playback rate for orbit videos.
const DefaultFrameRate = 30

// Writer consumes raw rgb24 frames and produces one encoded video file.
// Callers must finish with exactly one of Close or Abort.
type Writer interface {
	// WriteFrame appends one frame of width*height*3 bytes.
	WriteFrame(rgb []byte) error

	// Close finalizes the encode and waits for the output file to be
	// complete.
	Close() error

	// Abort stops the encoder and removes any partial output file.
	Abort() error
}

// Factory creates Writers. The server holds a Factory so tests can swap in
// an in-memory implementation.
type Factory interface {
	NewWriter(ctx context.Context, path string, width, height, frameRate int) (Writer, error)
}

// FFmpegFactory creates writers that shell out to ffmpeg.
type FFmpegFactory struct {
	// Binary is the ffmpeg executable; empty means "ffmpeg" from PATH.
	Binary string
}

// NewWriter starts an ffmpeg process encoding rgb24 frames from stdin into
// an H.264 MP4 at path.
func (f *FFmpegFactory) NewWriter(ctx context.Context, path string, width, height, frameRate int) (Writer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	binary := f.Binary
	if binary == "" {
		binary = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, binary,
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", fmt.Sprintf("%d", frameRate),
		"-i", "-",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		path,
	)

	w := &ffmpegWriter{
		cmd:       cmd,
		path:      path,
		frameSize: width * height * 3,
	}
	cmd.Stderr = &w.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	w.stdin = stdin

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return w, nil
}

type ffmpegWriter struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stderr    bytes.Buffer
	path      string
	frameSize int
	finished  bool
}

func (w *ffmpegWriter) WriteFrame(rgb []byte) error {
	if len(rgb) != w.frameSize {
		return fmt.Errorf("frame size %d bytes, want %d", len(rgb), w.frameSize)
	}
	if _, err := w.stdin.Write(rgb); err != nil {
		return fmt.Errorf("write frame: %w (%s)", err, w.stderrTail())
	}
	return nil
}

func (w *ffmpegWriter) Close() error {
	if w.finished {
		return nil
	}
	w.finished = true

	if err := w.stdin.Close(); err != nil {
		return fmt.Errorf("close ffmpeg stdin: %w", err)
	}
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w (%s)", err, w.stderrTail())
	}
	return nil
}

// Abort kills the encoder and deletes the partial file. A failed orbit must
// never leave a truncated MP4 behind.
func (w *ffmpegWriter) Abort() error {
	if w.finished {
		return nil
	}
	w.finished = true

	w.stdin.Close()
	if w.cmd.Process != nil {
		w.cmd.Process.Kill()
	}
	w.cmd.Wait()

	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove partial video: %w", err)
	}
	return nil
}

// stderrTail returns the last part of ffmpeg's stderr for error messages.
func (w *ffmpegWriter) stderrTail() string {
	const max = 512
	b := w.stderr.Bytes()
	if len(b) > max {
		b = b[len(b)-max:]
	}
	return string(bytes.TrimSpace(b))
}
