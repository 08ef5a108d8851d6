package artifacts

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/splatview/splatview/internal/fsutil"
)

func newTestDir(t *testing.T) (*Dir, *fsutil.MemoryFileSystem) {
	t.Helper()
	fs := fsutil.NewMemoryFileSystem()
	d, err := NewDir(fs, "artifacts")
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	return d, fs
}

func TestNewDirCreatesKindSubdirs(t *testing.T) {
	_, fs := newTestDir(t)
	for _, k := range []string{"artifacts/ply", "artifacts/render", "artifacts/video"} {
		if !fs.Exists(k) {
			t.Errorf("missing subdirectory %s", k)
		}
	}
}

func TestNewDirRejectsEmptyRoot(t *testing.T) {
	if _, err := NewDir(fsutil.NewMemoryFileSystem(), ""); err == nil {
		t.Error("expected error for empty root")
	}
}

func TestPathHelpers(t *testing.T) {
	d, _ := newTestDir(t)

	tests := []struct {
		name string
		call func(string) (string, error)
		id   string
		want string
	}{
		{"ply", d.PLYPath, "abc", "artifacts/ply/gaussians_abc.ply"},
		{"render", d.RenderPath, "abc", "artifacts/render/render_abc.png"},
		{"video", d.VideoPath, "abc", "artifacts/video/rotation_abc.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.call(tt.id)
			if err != nil {
				t.Fatalf("path helper: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPathRejectsTraversal(t *testing.T) {
	d, _ := newTestDir(t)

	for _, id := range []string{
		"../escape",
		"../../etc/passwd",
		"a/b",
	} {
		if _, err := d.PLYPath(id); err == nil {
			t.Errorf("PLYPath(%q) accepted a traversal id", id)
		}
	}
}

func TestCreateOpenRemove(t *testing.T) {
	d, _ := newTestDir(t)

	path, err := d.PLYPath("s1")
	if err != nil {
		t.Fatal(err)
	}

	w, err := d.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write([]byte("ply-data")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if !d.Exists(path) {
		t.Error("Exists = false after Create")
	}

	f, err := d.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil || string(data) != "ply-data" {
		t.Errorf("read %q, %v", data, err)
	}

	if err := d.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if d.Exists(path) {
		t.Error("Exists = true after Remove")
	}

	// second remove of a missing file is not an error
	if err := d.Remove(path); err != nil {
		t.Errorf("Remove of missing file: %v", err)
	}
}

func TestOperationsRejectOutsidePaths(t *testing.T) {
	d, _ := newTestDir(t)

	for _, path := range []string{
		"/etc/passwd",
		"other/ply/gaussians_x.ply",
		"artifacts", // the root itself, not a file under it
	} {
		if _, err := d.Create(path); err == nil {
			t.Errorf("Create(%q) accepted a path outside the root", path)
		}
		if _, err := d.Open(path); err == nil {
			t.Errorf("Open(%q) accepted a path outside the root", path)
		}
		if d.Exists(path) {
			t.Errorf("Exists(%q) = true", path)
		}
		if err := d.Remove(path); err == nil {
			t.Errorf("Remove(%q) accepted a path outside the root", path)
		}
	}
}

func TestSweep(t *testing.T) {
	d, fs := newTestDir(t)

	now := time.Now()
	write := func(id string, age time.Duration) string {
		t.Helper()
		path, err := d.RenderPath(id)
		if err != nil {
			t.Fatal(err)
		}
		w, err := d.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		w.Close()
		fs.SetModTime(path, now.Add(-age))
		return path
	}

	stale := write("old", 48*time.Hour)
	fresh := write("new", time.Hour)

	n, err := d.Sweep(KindRender, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("Sweep removed %d files, want 1", n)
	}
	if d.Exists(stale) {
		t.Error("stale artifact survived sweep")
	}
	if !d.Exists(fresh) {
		t.Error("fresh artifact removed by sweep")
	}
}

func TestSweepLeavesOtherKinds(t *testing.T) {
	d, fs := newTestDir(t)

	path, err := d.PLYPath("keep")
	if err != nil {
		t.Fatal(err)
	}
	w, err := d.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Close()
	fs.SetModTime(path, time.Now().Add(-100*time.Hour))

	if _, err := d.Sweep(KindRender, time.Now()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if !d.Exists(path) {
		t.Error("sweep of renders removed a ply artifact")
	}
}

func TestSweepErrorSurfacesMissingDir(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	d, err := NewDir(fs, "artifacts")
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Remove("artifacts/video"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Sweep(KindVideo, time.Now()); err == nil || !strings.Contains(err.Error(), "sweep") {
		t.Errorf("err = %v, want sweep error", err)
	}
}
