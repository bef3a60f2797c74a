// Package server exposes the live surface, the bridge view and the widget
// forms over HTTP and a websocket stream.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/m4xw311/strudelgate/bridge"
	"github.com/m4xw311/strudelgate/config"
	"github.com/m4xw311/strudelgate/errors"
	"github.com/m4xw311/strudelgate/surface"
	"github.com/m4xw311/strudelgate/tools"
	"github.com/m4xw311/strudelgate/widget"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type Server struct {
	surface *surface.Service
	bridge  *bridge.Bridge
	widgets *widget.Registry
	cfg     config.Server
	logger  *slog.Logger

	upgrader websocket.Upgrader
	hub      *wsHub
	agent    http.Handler
}

type Option func(*Server)

// WithMCP mounts an MCP handler at /mcp. Its tools must drive the same
// surface as the server so agent commits and rejections reach the error log.
func WithMCP(h http.Handler) Option {
	return func(s *Server) { s.agent = h }
}

func New(svc *surface.Service, br *bridge.Bridge, widgets *widget.Registry, cfg config.Server, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		surface: svc,
		bridge:  br,
		widgets: widgets,
		cfg:     cfg,
		logger:  logger,
		hub:     newWSHub(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.originAllowed}
	br.OnChange(func(v bridge.View) { s.hub.broadcast(wsMessage{Type: "view", View: &v}) })
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.cors)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "ready": s.surface.IsReady()})
	})
	r.Get("/ws", s.handleWS)
	if s.agent != nil {
		r.Mount("/mcp", s.agent)
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/state", s.getState)
		api.Post("/code", s.setCode)
		api.Post("/play", s.play)
		api.Post("/stop", s.stop)
		api.Post("/reset", s.reset)
		api.Post("/errors", s.addError)
		api.Post("/errors/clear", s.clearErrors)

		api.Route("/widgets/{id}", func(r chi.Router) {
			r.Get("/", s.getWidget)
			r.Post("/props", s.widgetProps)
			r.Post("/toggle", s.widgetToggle)
			r.Post("/clear", s.widgetClear)
		})
	})
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.hub.closeAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type stateResponse struct {
	View     bridge.View `json:"view"`
	ThreadID string      `json:"threadId,omitempty"`
}

func (s *Server) getState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{View: s.bridge.Snapshot(), ThreadID: s.surface.ThreadID()})
}

type setCodeRequest struct {
	Code     string `json:"code"`
	Evaluate bool   `json:"evaluate"`
}

func (s *Server) setCode(w http.ResponseWriter, r *http.Request) {
	var req setCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Evaluate {
		if err := s.surface.Init(r.Context()); err != nil {
			writeErr(w, http.StatusServiceUnavailable, "not_ready", err.Error(), nil)
			return
		}
	}
	if err := s.surface.SetCode(r.Context(), req.Code, req.Evaluate); err != nil {
		writeErr(w, http.StatusUnprocessableEntity, "evaluation_failed", err.Error(), tools.RejectionError{
			Diagnostic: err.Error(),
			Candidate:  req.Code,
		})
		return
	}
	writeJSON(w, http.StatusOK, s.surface.State())
}

func (s *Server) play(w http.ResponseWriter, r *http.Request) {
	if err := s.surface.Play(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, surface.ErrNotReady) || errors.Is(err, surface.ErrNothingToPlay) {
			status = http.StatusConflict
		}
		writeErr(w, status, "cannot_play", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, s.surface.State())
}

func (s *Server) stop(w http.ResponseWriter, _ *http.Request) {
	s.surface.Stop()
	writeJSON(w, http.StatusOK, s.surface.State())
}

func (s *Server) reset(w http.ResponseWriter, _ *http.Request) {
	s.surface.Reset()
	writeJSON(w, http.StatusOK, s.surface.State())
}

type errorRequest struct {
	Message string `json:"message"`
}

func (s *Server) addError(w http.ResponseWriter, r *http.Request) {
	var req errorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.bridge.SetError(req.Message)
	writeJSON(w, http.StatusOK, s.bridge.Snapshot())
}

func (s *Server) clearErrors(w http.ResponseWriter, _ *http.Request) {
	s.bridge.ClearErrors()
	writeJSON(w, http.StatusOK, s.bridge.Snapshot())
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, origin) || slices.Contains(s.cfg.AllowedOrigins, "*")
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Mcp-Session-Id")
			w.Header().Set("Access-Control-Expose-Headers", "Mcp-Session-Id")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", err.Error(), nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, code int, errCode, message string, details interface{}) {
	writeJSON(w, code, map[string]apiError{"error": {Code: errCode, Message: message, Details: details}})
}
