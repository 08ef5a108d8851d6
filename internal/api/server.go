// Package api implements the HTTP surface of the splat service: image
// upload, point-cloud export, novel view rendering and orbit video
// generation, plus session management and debug routes.
package api

import (
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/splatview/splatview/internal/artifacts"
	"github.com/splatview/splatview/internal/db"
	"github.com/splatview/splatview/internal/engine"
	"github.com/splatview/splatview/internal/session"
	"github.com/splatview/splatview/internal/timeutil"
	"github.com/splatview/splatview/internal/video"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server wires the engine, session store, artifact directory and database
// behind the HTTP handlers.
type Server struct {
	engine    engine.Engine
	store     *session.Store
	artifacts *artifacts.Dir
	db        *db.DB
	videos    video.Factory
	static    fs.FS
	clock     timeutil.Clock
	frameRate int

	// Channel semaphores bound concurrent engine work. A full channel means
	// the request is rejected with 503 rather than queued.
	predictSem chan struct{}
	renderSem  chan struct{}
}

// ServerConfig contains the dependencies for a Server.
type ServerConfig struct {
	Engine    engine.Engine
	Store     *session.Store
	Artifacts *artifacts.Dir
	// DB is optional; a nil DB disables session and job history.
	DB     *db.DB
	Videos video.Factory
	// Static holds the front-end assets; nil disables the static routes.
	Static fs.FS
	Clock  timeutil.Clock
	// FrameRate is the orbit video playback rate; 0 uses the default.
	FrameRate int
	// MaxPredicts and MaxRenders bound concurrent engine work; values < 1
	// become 1.
	MaxPredicts int
	MaxRenders  int
}

// NewServer creates a Server.
func NewServer(cfg ServerConfig) *Server {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	frameRate := cfg.FrameRate
	if frameRate <= 0 {
		frameRate = video.DefaultFrameRate
	}
	maxPredicts := cfg.MaxPredicts
	if maxPredicts < 1 {
		maxPredicts = 1
	}
	maxRenders := cfg.MaxRenders
	if maxRenders < 1 {
		maxRenders = 1
	}
	return &Server{
		engine:     cfg.Engine,
		store:      cfg.Store,
		artifacts:  cfg.Artifacts,
		db:         cfg.DB,
		videos:     cfg.Videos,
		static:     cfg.Static,
		clock:      clock,
		frameRate:  frameRate,
		predictSem: make(chan struct{}, maxPredicts),
		renderSem:  make(chan struct{}, maxRenders),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the route table for the service.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/check", s.checkSystem)
	mux.HandleFunc("/api/upload", s.uploadImage)
	mux.HandleFunc("/api/ply/", s.getPLY)
	mux.HandleFunc("/api/render", s.renderView)
	mux.HandleFunc("/api/generate-video", s.generateVideo)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/", s.sessionByID)
	if s.static != nil {
		mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.static))))
		mux.HandleFunc("/", s.serveIndex)
	}
	return mux
}

// tryAcquire attempts a non-blocking semaphore acquisition.
func tryAcquire(sem chan struct{}) bool {
	select {
	case sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func release(sem chan struct{}) {
	<-sem
}

// recordJob appends a job record, tolerating a nil database.
func (s *Server) recordJob(kind, sessionID, status string, start time.Time, detail string) {
	if s.db == nil {
		return
	}
	job := &db.JobRow{
		SessionID:   sessionID,
		Kind:        kind,
		Status:      status,
		DurationMs:  float64(s.clock.Since(start).Nanoseconds()) / 1e6,
		Detail:      detail,
		CreatedAtNs: s.clock.Now().UnixNano(),
	}
	if err := s.db.RecordJob(job); err != nil {
		log.Printf("failed to record %s job: %v", kind, err)
	}
}

// EvictionHook returns the callback the session store runs on eviction: it
// deletes the session's PLY artifact and stamps the database row.
func EvictionHook(art *artifacts.Dir, database *db.DB, clock timeutil.Clock) func(*session.Session) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return func(sess *session.Session) {
		if art != nil && sess.PLYPath != "" {
			if err := art.Remove(sess.PLYPath); err != nil {
				log.Printf("failed to remove PLY for evicted session %s: %v", sess.ID, err)
			}
		}
		if database != nil {
			if err := database.MarkSessionEvicted(sess.ID, clock.Now().UnixNano()); err != nil {
				log.Printf("failed to mark session %s evicted: %v", sess.ID, err)
			}
		}
	}
}
