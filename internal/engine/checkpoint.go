package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/splatview/splatview/internal/httputil"
	"github.com/splatview/splatview/internal/monitoring"
)

// DefaultCheckpointURL is the published location of the default model
// checkpoint (~1.6GB). Fetched once on first startup and cached.
const DefaultCheckpointURL = "https://ml-site.cdn-apple.com/models/sharp/sharp_2572gikvuh.pt"

// EnsureCheckpoint makes sure the model checkpoint is present in cacheDir
// and returns its local path. If the file already exists the call is a
// no-op; otherwise it downloads from url into a temp file and renames it
// into place so a crashed download never leaves a truncated checkpoint
// behind. Callers treat an error here as fatal at startup.
func EnsureCheckpoint(ctx context.Context, client httputil.HTTPClient, url, cacheDir string) (string, error) {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}

	name := path.Base(url)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("checkpoint url %q has no file name", url)
	}
	dest := filepath.Join(cacheDir, name)

	if _, err := os.Stat(dest); err == nil {
		monitoring.Logf("engine: checkpoint already cached at %s", dest)
		return dest, nil
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create checkpoint cache dir: %w", err)
	}

	monitoring.Logf("engine: downloading checkpoint %s (first run; this can take several minutes)", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build checkpoint request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download checkpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download checkpoint: status %d from %s", resp.StatusCode, url)
	}

	tmp, err := os.CreateTemp(cacheDir, name+".partial-*")
	if err != nil {
		return "", fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("write checkpoint: %w", err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("finalize checkpoint: %w", err)
	}

	monitoring.Logf("engine: checkpoint cached at %s (%d bytes)", dest, written)
	return dest, nil
}
