// Package artifacts manages the on-disk files derived from sessions: PLY
// exports, rendered stills and orbit videos. All artifacts live under a
// single root directory so cleanup can never reach outside controlled
// locations, even if callers provide arbitrary identifiers.
package artifacts

import (
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/splatview/splatview/internal/fsutil"
	"github.com/splatview/splatview/internal/monitoring"
)

// Kind names an artifact category. Each kind gets its own subdirectory
// under the root.
type Kind string

const (
	// KindPLY is the per-session point-cloud export.
	KindPLY Kind = "ply"
	// KindRender is a single rendered still.
	KindRender Kind = "render"
	// KindVideo is an orbit video.
	KindVideo Kind = "video"
)

var kinds = []Kind{KindPLY, KindRender, KindVideo}

// Dir is an artifact directory rooted at a single path.
type Dir struct {
	fs   fsutil.FileSystem
	root string
}

// NewDir creates the artifact root and its per-kind subdirectories.
func NewDir(fsys fsutil.FileSystem, root string) (*Dir, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	root = filepath.Clean(root)
	if root == "" || root == "." {
		return nil, fmt.Errorf("artifact root not configured")
	}
	for _, k := range kinds {
		if err := fsys.MkdirAll(filepath.Join(root, string(k)), 0o755); err != nil {
			return nil, fmt.Errorf("create artifact dir %s: %w", k, err)
		}
	}
	return &Dir{fs: fsys, root: root}, nil
}

// Root returns the artifact root path.
func (d *Dir) Root() string {
	return d.root
}

// PLYPath returns the canonical path for a session's point-cloud export.
func (d *Dir) PLYPath(sessionID string) (string, error) {
	return d.path(KindPLY, "gaussians_"+sessionID+".ply")
}

// RenderPath returns the path for a rendered still with the given id.
func (d *Dir) RenderPath(renderID string) (string, error) {
	return d.path(KindRender, "render_"+renderID+".png")
}

// VideoPath returns the path for an orbit video with the given id.
func (d *Dir) VideoPath(videoID string) (string, error) {
	return d.path(KindVideo, "rotation_"+videoID+".mp4")
}

// path builds and validates an artifact path. Only the base name of the
// requested file is used and the result must stay under the root.
func (d *Dir) path(kind Kind, name string) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == ".." || base == "" || base != name {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	joined := filepath.Clean(filepath.Join(d.root, string(kind), base))
	prefix := filepath.Join(d.root, string(kind)) + string(filepath.Separator)
	if !strings.HasPrefix(joined, prefix) {
		return "", fmt.Errorf("artifact path %q escapes root", name)
	}
	return joined, nil
}

// Create opens a new artifact file for writing. The path must have been
// produced by one of the Path helpers.
func (d *Dir) Create(path string) (io.WriteCloser, error) {
	if err := d.check(path); err != nil {
		return nil, err
	}
	return d.fs.Create(path)
}

// Open opens an artifact for reading.
func (d *Dir) Open(path string) (fs.File, error) {
	if err := d.check(path); err != nil {
		return nil, err
	}
	return d.fs.Open(path)
}

// Exists reports whether the artifact file is present on disk.
func (d *Dir) Exists(path string) bool {
	if err := d.check(path); err != nil {
		return false
	}
	return d.fs.Exists(path)
}

// Remove deletes one artifact. Missing files are not an error: eviction and
// the sweeper can race over the same path.
func (d *Dir) Remove(path string) error {
	if err := d.check(path); err != nil {
		return err
	}
	if !d.fs.Exists(path) {
		return nil
	}
	return d.fs.Remove(path)
}

// Sweep removes artifacts of the given kind whose modification time is
// before cutoff, returning the number removed. Used for render and video
// outputs, which are not tracked per session.
func (d *Dir) Sweep(kind Kind, cutoff time.Time) (int, error) {
	dir := filepath.Join(d.root, string(kind))
	entries, err := d.fs.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", kind, err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := d.fs.Remove(path); err != nil {
			monitoring.Logf("artifacts: sweep failed to remove %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (d *Dir) check(path string) error {
	clean := filepath.Clean(path)
	if !strings.HasPrefix(clean, d.root+string(filepath.Separator)) {
		return fmt.Errorf("path %q outside artifact root", path)
	}
	return nil
}
