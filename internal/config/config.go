// Package config holds the service configuration loaded from an optional
// JSON file. Flags on the server binary override individual fields.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ServiceConfig represents the root configuration for the splat service.
// All fields are pointers so a partial config file only overrides what it
// names; the Get* methods supply defaults for everything else.
type ServiceConfig struct {
	// Server params
	ListenAddr *string `json:"listen_addr,omitempty"`

	// Engine params
	WorkerURL     *string `json:"worker_url,omitempty"`
	CheckpointURL *string `json:"checkpoint_url,omitempty"`
	CheckpointDir *string `json:"checkpoint_dir,omitempty"`

	// Storage params
	ArtifactDir *string `json:"artifact_dir,omitempty"`
	DBPath      *string `json:"db_path,omitempty"`

	// Session params
	SessionTTL      *string `json:"session_ttl,omitempty"`      // duration string like "2h"; "0" disables eviction
	JanitorInterval *string `json:"janitor_interval,omitempty"` // duration string like "5m"

	// Admission params
	MaxPredicts *int `json:"max_predicts,omitempty"`
	MaxRenders  *int `json:"max_renders,omitempty"`

	// Video params
	VideoFrameRate *int    `json:"video_frame_rate,omitempty"`
	FFmpegBinary   *string `json:"ffmpeg_binary,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyServiceConfig returns a ServiceConfig with all fields set to nil.
func EmptyServiceConfig() *ServiceConfig {
	return &ServiceConfig{}
}

// DefaultServiceConfig returns a ServiceConfig populated with every
// default value.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		ListenAddr:      ptrString(":8000"),
		WorkerURL:       ptrString("http://127.0.0.1:9090"),
		CheckpointURL:   ptrString(""),
		CheckpointDir:   ptrString("checkpoints"),
		ArtifactDir:     ptrString("artifacts"),
		DBPath:          ptrString("splatview.db"),
		SessionTTL:      ptrString("2h"),
		JanitorInterval: ptrString("5m"),
		MaxPredicts:     ptrInt(2),
		MaxRenders:      ptrInt(4),
		VideoFrameRate:  ptrInt(30),
		FFmpegBinary:    ptrString("ffmpeg"),
	}
}

// LoadServiceConfig loads a ServiceConfig from a JSON file. The file must
// have a .json extension and be under the max file size. Fields omitted
// from the file fall back to defaults, so partial configs are safe.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyServiceConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks all set fields for sane values.
func (c *ServiceConfig) Validate() error {
	if c.SessionTTL != nil {
		if _, err := time.ParseDuration(*c.SessionTTL); err != nil {
			return fmt.Errorf("session_ttl: %w", err)
		}
	}
	if c.JanitorInterval != nil {
		d, err := time.ParseDuration(*c.JanitorInterval)
		if err != nil {
			return fmt.Errorf("janitor_interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("janitor_interval must be positive, got %v", d)
		}
	}
	if c.MaxPredicts != nil && *c.MaxPredicts < 1 {
		return fmt.Errorf("max_predicts must be at least 1, got %d", *c.MaxPredicts)
	}
	if c.MaxRenders != nil && *c.MaxRenders < 1 {
		return fmt.Errorf("max_renders must be at least 1, got %d", *c.MaxRenders)
	}
	if c.VideoFrameRate != nil && *c.VideoFrameRate < 1 {
		return fmt.Errorf("video_frame_rate must be at least 1, got %d", *c.VideoFrameRate)
	}
	return nil
}

// GetListenAddr returns the listen address or its default.
func (c *ServiceConfig) GetListenAddr() string {
	if c.ListenAddr != nil {
		return *c.ListenAddr
	}
	return ":8000"
}

// GetWorkerURL returns the inference worker base URL or its default.
func (c *ServiceConfig) GetWorkerURL() string {
	if c.WorkerURL != nil {
		return *c.WorkerURL
	}
	return "http://127.0.0.1:9090"
}

// GetCheckpointURL returns the checkpoint download URL; empty means use the
// engine's published default.
func (c *ServiceConfig) GetCheckpointURL() string {
	if c.CheckpointURL != nil {
		return *c.CheckpointURL
	}
	return ""
}

// GetCheckpointDir returns the checkpoint cache directory or its default.
func (c *ServiceConfig) GetCheckpointDir() string {
	if c.CheckpointDir != nil {
		return *c.CheckpointDir
	}
	return "checkpoints"
}

// GetArtifactDir returns the artifact root or its default.
func (c *ServiceConfig) GetArtifactDir() string {
	if c.ArtifactDir != nil {
		return *c.ArtifactDir
	}
	return "artifacts"
}

// GetDBPath returns the sqlite database path or its default.
func (c *ServiceConfig) GetDBPath() string {
	if c.DBPath != nil {
		return *c.DBPath
	}
	return "splatview.db"
}

// GetSessionTTL returns the idle-session eviction TTL. Zero disables
// eviction.
func (c *ServiceConfig) GetSessionTTL() time.Duration {
	if c.SessionTTL != nil {
		if d, err := time.ParseDuration(*c.SessionTTL); err == nil {
			return d
		}
	}
	return 2 * time.Hour
}

// GetJanitorInterval returns how often the session janitor sweeps.
func (c *ServiceConfig) GetJanitorInterval() time.Duration {
	if c.JanitorInterval != nil {
		if d, err := time.ParseDuration(*c.JanitorInterval); err == nil {
			return d
		}
	}
	return 5 * time.Minute
}

// GetMaxPredicts returns the prediction admission limit.
func (c *ServiceConfig) GetMaxPredicts() int {
	if c.MaxPredicts != nil {
		return *c.MaxPredicts
	}
	return 2
}

// GetMaxRenders returns the render admission limit.
func (c *ServiceConfig) GetMaxRenders() int {
	if c.MaxRenders != nil {
		return *c.MaxRenders
	}
	return 4
}

// GetVideoFrameRate returns the orbit video playback rate.
func (c *ServiceConfig) GetVideoFrameRate() int {
	if c.VideoFrameRate != nil {
		return *c.VideoFrameRate
	}
	return 30
}

// GetFFmpegBinary returns the ffmpeg executable name or path.
func (c *ServiceConfig) GetFFmpegBinary() string {
	if c.FFmpegBinary != nil {
		return *c.FFmpegBinary
	}
	return "ffmpeg"
}
