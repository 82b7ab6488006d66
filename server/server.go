// Package server - HTTP surface for remote viewers: the latest annotated
// frame, a live stream of match events and the camera swap action.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// JPEGQuality is used for /frame.jpg.
const JPEGQuality = 85

// CameraController is the part of the session the server drives.
type CameraController interface {
	CameraIndex() int
	SwapCamera() int
}

// Server serves the HTTP API.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	camera     CameraController
	frames     *FrameStore
	hub        *Hub
	logger     zerolog.Logger
}

// New builds the router.
//
// Arguments:
//   - addr: Listen address, e.g. "127.0.0.1:8080".
//   - camera: The running session.
//   - frames: The latest frame store, fed by the session.
//   - hub: The websocket event hub, fed by the notification dispatcher.
//   - logger: Request and lifecycle logger.
//
// Returns:
//   - *Server: A server ready for Start.
func New(addr string, camera CameraController, frames *FrameStore, hub *Hub, logger zerolog.Logger) *Server {
	r := chi.NewRouter()
	s := &Server{
		router: r,
		camera: camera,
		frames: frames,
		hub:    hub,
		logger: logger,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/camera", s.handleCamera)
	r.Post("/camera/swap", s.handleSwap)
	r.Get("/frame.jpg", s.handleFrame)
	r.Get("/events", hub.ServeWS)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.Wrap(err, "http server")
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	return <-errCh
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Msg("request")
	})
}

type cameraResponse struct {
	Index   int  `json:"index"`
	Pending bool `json:"pending,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, cameraResponse{Index: s.camera.CameraIndex()})
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	target := s.camera.SwapCamera()
	writeJSON(w, http.StatusAccepted, cameraResponse{Index: target, Pending: target != s.camera.CameraIndex()})
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	data, id, ok, err := s.frames.JPEG(JPEGQuality)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode frame")
		http.Error(w, "encode frame", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Id", strconv.FormatUint(id, 10))
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
