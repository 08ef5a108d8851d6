package api

import (
	"fmt"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"

	"github.com/splatview/splatview/internal/httputil"
)

// AttachDebugRoutes mounts service debugging endpoints on the mux: engine
// capabilities, live session stats and a per-session depth histogram.
func (s *Server) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.Handle("engine", "Engine capabilities and queue occupancy", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caps := s.engine.Capabilities()
		httputil.WriteJSONOK(w, map[string]interface{}{
			"device":           caps.Device,
			"cuda_available":   caps.CUDAAvailable,
			"predicts_running": len(s.predictSem),
			"predicts_max":     cap(s.predictSem),
			"renders_running":  len(s.renderSem),
			"renders_max":      cap(s.renderSem),
		})
	}))

	debug.Handle("splat-sessions", "Live sessions with sizes and ages", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessions := s.store.List()
		httputil.WriteJSONOK(w, map[string]interface{}{
			"count":    len(sessions),
			"sessions": sessions,
		})
	}))

	debug.Handle("depth-histogram", "Depth distribution plot for one session (?session_id=)", http.HandlerFunc(s.depthHistogram))
}

// depthHistogram renders a PNG histogram of primitive depths for a session.
// Useful for judging whether a reconstruction collapsed onto a plane.
func (s *Server) depthHistogram(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		httputil.BadRequest(w, "missing 'session_id' parameter")
		return
	}
	sess, err := s.store.Get(id)
	if err != nil {
		httputil.NotFound(w, "Session not found")
		return
	}
	g := sess.Gaussians
	if g == nil || g.Count() == 0 {
		httputil.NotFound(w, "session has no primitives")
		return
	}

	depths := make(plotter.Values, g.Count())
	for i := range depths {
		depths[i] = float64(g.Means[3*i+2])
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Session %s depth distribution (n=%d)", id, g.Count())
	p.X.Label.Text = "Depth (m)"
	p.Y.Label.Text = "Primitives"

	hist, err := plotter.NewHist(depths, 48)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("build histogram: %v", err))
		return
	}
	p.Add(hist)

	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render histogram: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		// client went away; nothing useful to do
		return
	}
}
