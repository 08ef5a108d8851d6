package api

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/splatview/splatview/internal/camera"
	"github.com/splatview/splatview/internal/db"
	"github.com/splatview/splatview/internal/engine"
	"github.com/splatview/splatview/internal/httputil"
	"github.com/splatview/splatview/internal/imageutil"
	"github.com/splatview/splatview/internal/session"
	"github.com/splatview/splatview/internal/splat"
)

// maxUploadBytes bounds the multipart form size for image uploads.
const maxUploadBytes = 64 << 20

// maxRenderDim bounds requested render resolutions.
const maxRenderDim = 4096

func (s *Server) checkSystem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	caps := s.engine.Capabilities()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"cuda_available": caps.CUDAAvailable,
		"device":         caps.Device,
	})
}

func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if !tryAcquire(s.predictSem) {
		httputil.ServiceUnavailable(w, "prediction queue is full, try again later")
		return
	}
	defer release(s.predictSem)

	start := s.clock.Now()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "missing 'file' upload field")
		return
	}
	defer file.Close()

	img, err := imageutil.Decode(file)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("cannot decode image: %v", err))
		return
	}

	focal := splat.FocalLengthFromFOV(img.Width, img.Height, splat.DefaultFOVDegrees)

	gaussians, err := s.engine.Predict(r.Context(), img.Pixels, img.Width, img.Height, focal)
	if err != nil {
		s.recordJob(db.JobPredict, "", db.JobFailed, start, err.Error())
		s.engineError(w, err)
		return
	}

	id := session.NewID()
	plyPath, err := s.artifacts.PLYPath(id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if err := s.writePLY(plyPath, gaussians); err != nil {
		s.recordJob(db.JobPredict, id, db.JobFailed, start, err.Error())
		httputil.InternalServerError(w, fmt.Sprintf("export PLY: %v", err))
		return
	}

	meta := splat.SceneMetadata{
		FocalLengthPx: focal,
		Width:         img.Width,
		Height:        img.Height,
		ColorSpace:    splat.DefaultColorSpace,
	}
	sess := s.store.Put(&session.Session{
		ID:        id,
		Meta:      meta,
		PLYPath:   plyPath,
		Gaussians: gaussians,
	})

	if s.db != nil {
		row := &db.SessionRow{
			SessionID:     sess.ID,
			Width:         meta.Width,
			Height:        meta.Height,
			FocalLengthPx: meta.FocalLengthPx,
			ColorSpace:    meta.ColorSpace,
			GaussianCount: sess.Count,
			PLYPath:       plyPath,
			CreatedAtNs:   sess.CreatedAt.UnixNano(),
		}
		if err := s.db.InsertSession(row); err != nil {
			log.Printf("failed to persist session %s: %v", sess.ID, err)
		}
	}
	s.recordJob(db.JobPredict, sess.ID, db.JobOK, start, "")

	log.Printf("generated %d gaussians for session %s", sess.Count, sess.ID)

	httputil.WriteJSONOK(w, map[string]interface{}{
		"session_id":   sess.ID,
		"width":        img.Width,
		"height":       img.Height,
		"focal_length": focal,
		"ply_path":     "/api/ply/" + sess.ID,
	})
}

func (s *Server) writePLY(path string, g *splat.Gaussians) error {
	f, err := s.artifacts.Create(path)
	if err != nil {
		return err
	}
	if err := splat.WritePLY(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Server) getPLY(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/ply/")
	if id == "" || strings.Contains(id, "/") {
		httputil.BadRequest(w, "invalid session id")
		return
	}

	sess, err := s.store.Get(id)
	if err != nil {
		httputil.NotFound(w, "PLY file not found")
		return
	}
	if !s.artifacts.Exists(sess.PLYPath) {
		httputil.NotFound(w, "PLY file does not exist")
		return
	}

	f, err := s.artifacts.Open(sess.PLYPath)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("open PLY: %v", err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "gaussians_"+id+".ply"))
	if _, err := io.Copy(w, f); err != nil {
		log.Printf("failed to stream PLY for session %s: %v", id, err)
	}
}

func (s *Server) renderView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	id := q.Get("session_id")
	if id == "" {
		httputil.BadRequest(w, "missing 'session_id' parameter")
		return
	}

	eyeX, err := queryFloat(q.Get("eye_x"), 0)
	if err != nil {
		httputil.BadRequest(w, "invalid 'eye_x' parameter")
		return
	}
	eyeY, err := queryFloat(q.Get("eye_y"), 0)
	if err != nil {
		httputil.BadRequest(w, "invalid 'eye_y' parameter")
		return
	}
	eyeZ, err := queryFloat(q.Get("eye_z"), 0)
	if err != nil {
		httputil.BadRequest(w, "invalid 'eye_z' parameter")
		return
	}
	width, err := queryDim(q.Get("width"), 800)
	if err != nil {
		httputil.BadRequest(w, "invalid 'width' parameter")
		return
	}
	height, err := queryDim(q.Get("height"), 600)
	if err != nil {
		httputil.BadRequest(w, "invalid 'height' parameter")
		return
	}

	// Session lookup comes before the device check so an unknown id is
	// reported as 404 even on CPU-only hosts.
	sess, err := s.store.Get(id)
	if err != nil {
		httputil.NotFound(w, "Session not found")
		return
	}

	if !s.engine.Capabilities().CUDAAvailable {
		httputil.ServiceUnavailable(w, "Rendering requires CUDA GPU. Server-side rendering is not available on this system.")
		return
	}
	if !tryAcquire(s.renderSem) {
		httputil.ServiceUnavailable(w, "render queue is full, try again later")
		return
	}
	defer release(s.renderSem)

	start := s.clock.Now()

	intrinsics := camera.Intrinsics(sess.Meta.FocalLengthPx, width, height)
	model := camera.NewModel(sess.Gaussians, intrinsics, width, height)
	view := model.Compute(eyeX, eyeY, eyeZ)

	frame, err := s.engine.Render(r.Context(), sess.Gaussians, engine.RenderView{
		Extrinsics: camera.Flatten(view.Extrinsics),
		Intrinsics: camera.Flatten(view.Intrinsics),
		Width:      width,
		Height:     height,
		ColorSpace: sess.Meta.ColorSpace,
	})
	if err != nil {
		s.recordJob(db.JobRender, id, db.JobFailed, start, err.Error())
		s.engineError(w, err)
		return
	}

	img, err := imageutil.FrameToImage(frame.Color, frame.Width, frame.Height)
	if err != nil {
		s.recordJob(db.JobRender, id, db.JobFailed, start, err.Error())
		httputil.InternalServerError(w, err.Error())
		return
	}

	renderPath, err := s.artifacts.RenderPath(session.NewID())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	out, err := s.artifacts.Create(renderPath)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("create render artifact: %v", err))
		return
	}
	if err := imageutil.EncodePNG(out, img); err != nil {
		out.Close()
		httputil.InternalServerError(w, err.Error())
		return
	}
	if err := out.Close(); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("finish render artifact: %v", err))
		return
	}
	s.recordJob(db.JobRender, id, db.JobOK, start, "")

	s.serveArtifact(w, renderPath, "image/png", "")
}

func (s *Server) generateVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
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

	if !s.engine.Capabilities().CUDAAvailable {
		httputil.ServiceUnavailable(w, "Video generation requires CUDA. Server-side rendering is not available on this system.")
		return
	}
	if !tryAcquire(s.renderSem) {
		httputil.ServiceUnavailable(w, "render queue is full, try again later")
		return
	}
	defer release(s.renderSem)

	start := s.clock.Now()

	width := sess.Meta.Width
	height := sess.Meta.Height
	focal := sess.Meta.FocalLengthPx

	maxX, maxY := camera.MaxOffset(sess.Gaussians, width, focal)
	trajectory := camera.OrbitTrajectory(maxX, maxY)

	intrinsics := camera.Intrinsics(focal, width, height)
	model := camera.NewModel(sess.Gaussians, intrinsics, width, height)

	videoPath, err := s.artifacts.VideoPath(session.NewID())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	writer, err := s.videos.NewWriter(r.Context(), videoPath, width, height, s.frameRate)
	if err != nil {
		s.recordJob(db.JobVideo, id, db.JobFailed, start, err.Error())
		httputil.InternalServerError(w, fmt.Sprintf("start video encoder: %v", err))
		return
	}

	log.Printf("rendering %d frames for session %s video", len(trajectory), id)
	for i, eye := range trajectory {
		if i%20 == 0 {
			log.Printf("rendering frame %d/%d", i, len(trajectory))
		}
		view := model.Compute(eye[0], eye[1], eye[2])
		frame, err := s.engine.Render(r.Context(), sess.Gaussians, engine.RenderView{
			Extrinsics: camera.Flatten(view.Extrinsics),
			Intrinsics: camera.Flatten(view.Intrinsics),
			Width:      width,
			Height:     height,
			ColorSpace: sess.Meta.ColorSpace,
		})
		if err != nil {
			writer.Abort()
			s.recordJob(db.JobVideo, id, db.JobFailed, start, err.Error())
			s.engineError(w, err)
			return
		}
		rgb, err := imageutil.FrameToRGB24(frame.Color, frame.Width, frame.Height)
		if err != nil {
			writer.Abort()
			s.recordJob(db.JobVideo, id, db.JobFailed, start, err.Error())
			httputil.InternalServerError(w, err.Error())
			return
		}
		if err := writer.WriteFrame(rgb); err != nil {
			writer.Abort()
			s.recordJob(db.JobVideo, id, db.JobFailed, start, err.Error())
			httputil.InternalServerError(w, fmt.Sprintf("encode frame %d: %v", i, err))
			return
		}
	}
	if err := writer.Close(); err != nil {
		s.recordJob(db.JobVideo, id, db.JobFailed, start, err.Error())
		httputil.InternalServerError(w, fmt.Sprintf("finish video: %v", err))
		return
	}
	s.recordJob(db.JobVideo, id, db.JobOK, start, "")

	s.serveArtifact(w, videoPath, "video/mp4", "gaussian-rotation-"+id+".mp4")
}

// serveArtifact streams a finished artifact file to the client. A non-empty
// filename adds an attachment disposition.
func (s *Server) serveArtifact(w http.ResponseWriter, path, contentType, filename string) {
	f, err := s.artifacts.Open(path)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("open artifact: %v", err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	if filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	if _, err := io.Copy(w, f); err != nil {
		log.Printf("failed to stream artifact %s: %v", path, err)
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	sessions := s.store.List()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) sessionByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if id == "" || strings.Contains(id, "/") {
		httputil.BadRequest(w, "invalid session id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		sess, err := s.store.Get(id)
		if err != nil {
			httputil.NotFound(w, "Session not found")
			return
		}
		cp := *sess
		cp.Gaussians = nil
		httputil.WriteJSONOK(w, &cp)
	case http.MethodDelete:
		if err := s.store.Delete(id); err != nil {
			httputil.NotFound(w, "Session not found")
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"deleted": id})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "not found")
		return
	}
	f, err := s.static.Open("index.html")
	if err != nil {
		httputil.InternalServerError(w, "front end not bundled")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := io.Copy(w, f); err != nil {
		log.Printf("failed to serve index: %v", err)
	}
}

// engineError maps engine failures onto the HTTP error taxonomy: a missing
// model is a 503, everything else is a 500 with the message echoed.
func (s *Server) engineError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrNotLoaded) {
		httputil.ServiceUnavailable(w, err.Error())
		return
	}
	httputil.InternalServerError(w, err.Error())
}

func queryFloat(raw string, def float64) (float64, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func queryDim(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < 1 || v > maxRenderDim {
		return 0, fmt.Errorf("dimension %d out of range", v)
	}
	return v, nil
}
