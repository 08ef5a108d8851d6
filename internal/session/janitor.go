package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/splatview/splatview/internal/timeutil"
)

// Janitor periodically evicts idle sessions from a Store. It provides
// context-aware lifecycle management so the server can run it alongside the
// HTTP listener and stop it on shutdown.
type Janitor struct {
	store    *Store
	clock    timeutil.Clock
	interval time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// JanitorConfig contains configuration for Janitor.
type JanitorConfig struct {
	// Store is the session store to sweep.
	Store *Store
	// Clock drives the sweep ticker; nil uses the real clock.
	Clock timeutil.Clock
	// Interval is how often to sweep (e.g. 5*time.Minute).
	Interval time.Duration
	// Logger is optional; if nil, uses log.Default().
	Logger *log.Logger
}

// NewJanitor creates a new Janitor.
func NewJanitor(cfg JanitorConfig) *Janitor {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Janitor{
		store:    cfg.Store,
		clock:    clock,
		interval: cfg.Interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run starts the eviction loop. It blocks until the context is cancelled or
// Stop() is called. Returns nil on clean shutdown.
func (j *Janitor) Run(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil // already running
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	defer func() {
		close(j.doneCh)
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	if j.interval <= 0 {
		j.logger.Printf("session janitor: interval is zero or negative, not starting")
		return nil
	}

	ticker := j.clock.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Printf("session janitor started: interval=%v", j.interval)

	for {
		select {
		case <-ctx.Done():
			j.logger.Printf("session janitor stopping due to context cancellation")
			return nil
		case <-j.stopCh:
			j.logger.Printf("session janitor stopping due to Stop() call")
			return nil
		case <-ticker.C():
			if n := j.store.EvictExpired(); n > 0 {
				j.logger.Printf("session janitor: evicted %d idle sessions", n)
			}
		}
	}
}

// Stop requests the janitor to stop. It is safe to call multiple times.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	select {
	case <-j.stopCh:
	default:
		close(j.stopCh)
	}
	doneCh := j.doneCh
	j.mu.Unlock()

	<-doneCh
}
