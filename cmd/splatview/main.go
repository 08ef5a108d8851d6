// Command splatview runs the Gaussian-splat HTTP service: image upload,
// prediction, PLY export, novel view rendering and orbit video generation.
package main

import (
	"context"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	splatview "github.com/splatview/splatview"
	"github.com/splatview/splatview/internal/api"
	"github.com/splatview/splatview/internal/artifacts"
	"github.com/splatview/splatview/internal/config"
	"github.com/splatview/splatview/internal/db"
	"github.com/splatview/splatview/internal/engine"
	"github.com/splatview/splatview/internal/fsutil"
	"github.com/splatview/splatview/internal/httputil"
	"github.com/splatview/splatview/internal/session"
	"github.com/splatview/splatview/internal/timeutil"
	"github.com/splatview/splatview/internal/version"
	"github.com/splatview/splatview/internal/video"
)

var (
	devMode       = flag.Bool("dev", false, "Run with the synthetic engine instead of the GPU worker")
	listen        = flag.String("listen", "", "Listen address (overrides config)")
	configPath    = flag.String("config", "", "Path to a JSON config file")
	dbPath        = flag.String("db", "", "Path to the sqlite database (overrides config)")
	artifactDir   = flag.String("artifacts", "", "Artifact root directory (overrides config)")
	workerURL     = flag.String("worker-url", "", "Base URL of the inference worker (overrides config)")
	checkpointURL = flag.String("checkpoint-url", "", "Model checkpoint URL (overrides config)")
	checkpointDir = flag.String("checkpoint-dir", "", "Checkpoint cache directory (overrides config)")
	sessionTTL    = flag.Duration("session-ttl", -1, "Idle session eviction TTL, 0 disables (overrides config)")
	migrateOnly   = flag.Bool("migrate", false, "Run pending schema migrations and exit")
)

func main() {
	flag.Parse()

	log.Printf("splatview %s (%s) built %s", version.Version, version.GitSHA, version.BuildTime)

	cfg := config.DefaultServiceConfig()
	if *configPath != "" {
		loaded, err := config.LoadServiceConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	listenAddr := cfg.GetListenAddr()
	if *listen != "" {
		listenAddr = *listen
	}
	databasePath := cfg.GetDBPath()
	if *dbPath != "" {
		databasePath = *dbPath
	}
	artifactRoot := cfg.GetArtifactDir()
	if *artifactDir != "" {
		artifactRoot = *artifactDir
	}
	ttl := cfg.GetSessionTTL()
	if *sessionTTL >= 0 {
		ttl = *sessionTTL
	}

	database, err := db.NewDB(databasePath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if *migrateOnly {
		if err := database.MigrateUp(); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		ver, dirty, err := database.MigrateVersion()
		if err != nil {
			log.Fatalf("failed to read migration version: %v", err)
		}
		log.Printf("database at migration version %d (dirty=%v)", ver, dirty)
		return
	}

	art, err := artifacts.NewDir(fsutil.OSFileSystem{}, artifactRoot)
	if err != nil {
		log.Fatalf("failed to create artifact directory: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := buildEngine(ctx, cfg)
	defer eng.Close()
	caps := eng.Capabilities()
	log.Printf("engine ready: device=%s cuda=%v", caps.Device, caps.CUDAAvailable)

	clock := timeutil.RealClock{}
	store := session.NewStore(clock, ttl)
	store.OnEvict(api.EvictionHook(art, database, clock))

	var videos video.Factory = &video.FFmpegFactory{Binary: cfg.GetFFmpegBinary()}

	// read static files from the embedded filesystem in production or from
	// the local ./static in dev for easier iteration without restarting the
	// server
	var static fs.FS
	if *devMode {
		static = os.DirFS("static")
	} else {
		sub, err := fs.Sub(splatview.StaticFiles, "static")
		if err != nil {
			log.Fatalf("failed to open embedded static files: %v", err)
		}
		static = sub
	}

	server := api.NewServer(api.ServerConfig{
		Engine:      eng,
		Store:       store,
		Artifacts:   art,
		DB:          database,
		Videos:      videos,
		Static:      static,
		Clock:       clock,
		FrameRate:   cfg.GetVideoFrameRate(),
		MaxPredicts: cfg.GetMaxPredicts(),
		MaxRenders:  cfg.GetMaxRenders(),
	})

	var wg sync.WaitGroup

	// session janitor
	janitor := session.NewJanitor(session.JanitorConfig{
		Store:    store,
		Clock:    clock,
		Interval: cfg.GetJanitorInterval(),
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := janitor.Run(ctx); err != nil {
			log.Printf("session janitor error: %v", err)
		}
	}()

	// artifact sweeper for renders and videos, which are not tied to a
	// session lifetime
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweepEvery := cfg.GetJanitorInterval()
		keepFor := ttl
		if keepFor <= 0 {
			keepFor = 24 * time.Hour
		}
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-keepFor)
				for _, kind := range []artifacts.Kind{artifacts.KindRender, artifacts.KindVideo} {
					if n, err := art.Sweep(kind, cutoff); err != nil {
						log.Printf("artifact sweep %s: %v", kind, err)
					} else if n > 0 {
						log.Printf("artifact sweep: removed %d stale %s files", n, kind)
					}
				}
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := server.ServeMux()
		server.AttachDebugRoutes(mux)
		database.AttachAdminRoutes(mux)

		httpServer := &http.Server{
			Addr:    listenAddr,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", listenAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := httpServer.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// buildEngine creates the synthetic engine in dev mode or connects to the
// GPU worker, downloading the model checkpoint first. Worker failures are
// fatal: the service is useless without a predictor.
func buildEngine(ctx context.Context, cfg *config.ServiceConfig) engine.Engine {
	if *devMode {
		log.Printf("dev mode: using synthetic engine")
		return engine.NewSyntheticEngine(engine.Capabilities{
			Device:        "synthetic",
			CUDAAvailable: true,
		})
	}

	client := httputil.NewStandardClient(&http.Client{Timeout: 10 * time.Minute})

	url := cfg.GetCheckpointURL()
	if *checkpointURL != "" {
		url = *checkpointURL
	}
	if url == "" {
		url = engine.DefaultCheckpointURL
	}
	cacheDir := cfg.GetCheckpointDir()
	if *checkpointDir != "" {
		cacheDir = *checkpointDir
	}

	checkpointPath, err := engine.EnsureCheckpoint(ctx, client, url, cacheDir)
	if err != nil {
		log.Fatalf("failed to fetch model checkpoint: %v", err)
	}

	worker := cfg.GetWorkerURL()
	if *workerURL != "" {
		worker = *workerURL
	}
	eng := engine.NewWorkerEngine(worker, client)
	if err := eng.Handshake(ctx); err != nil {
		log.Fatalf("failed to reach inference worker at %s: %v", worker, err)
	}
	if err := eng.LoadModel(ctx, checkpointPath); err != nil {
		log.Fatalf("failed to load model: %v", err)
	}

	if name, ok := engine.DetectLocalGPU(engine.ExecRunner{}); ok {
		log.Printf("local GPU detected: %s", name)
	}
	return eng
}
