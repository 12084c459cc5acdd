// Package web serves the overlay: a page that shows the streamed answer and
// the status line, plus the endpoints that drive captures and sessions.
package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/vbonduro/screensolve/internal/capture"
	"github.com/vbonduro/screensolve/internal/domain"
	"github.com/vbonduro/screensolve/internal/render"
	"github.com/vbonduro/screensolve/internal/session"
)

// WelcomeMessage is the first document shown in the overlay.
const WelcomeMessage = `# Welcome to ScreenSolve

## Quick Instructions
1. Take a screenshot of the problem; files saved to the capture directory are picked up automatically, or use the upload button
2. Press **Process** to analyze the captured screenshots, or **Fast** to skip content detection
3. Press **Reset** to discard the captured screenshots
4. Type a follow-up question when you need help with the solution

The assistant will analyze the problem and provide a solution. If you have questions or encounter errors with the solution, use the follow-up feature to get additional help without losing context.`

// ReadyStatus is the status line shown once the surfaces are up.
const ReadyStatus = "Ready. Capture a screenshot to begin."

// assistant is the subset of session.Assistant the handlers drive.
type assistant interface {
	Start(batch domain.CaptureBatch, fast bool) error
	StartFollowUp(question string) error
	Cancel() bool
	State() session.State
	HasSolution() bool
}

// RunLister reads the run log.
type RunLister interface {
	List(ctx context.Context, limit int) ([]*domain.Run, error)
	Stats(ctx context.Context) (map[domain.RunStatus]int, error)
}

type statusPublisher interface {
	Status(text string)
}

// Deps are the collaborators a Server needs. Runs may be nil when the run
// log is disabled.
type Deps struct {
	Assistant assistant
	Buffer    *capture.Buffer
	Hub       *Hub
	Publisher statusPublisher
	Runs      RunLister
	Normalize capture.NormalizeOptions
}

type Server struct {
	deps      Deps
	templates fs.FS
	renderer  *render.Renderer
	mux       *http.ServeMux
	logger    *slog.Logger
}

func NewServer(deps Deps, tmpl fs.FS, logger *slog.Logger) *Server {
	s := &Server{
		deps:      deps,
		templates: tmpl,
		renderer:  render.New(),
		mux:       http.NewServeMux(),
		logger:    logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleOverlay)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.HandleFunc("POST /captures", s.handleUploadCapture)
	s.mux.HandleFunc("POST /captures/reset", s.handleResetCaptures)
	s.mux.HandleFunc("POST /process", s.handleProcess)
	s.mux.HandleFunc("POST /followup", s.handleFollowUp)
	s.mux.HandleFunc("POST /cancel", s.handleCancel)
	s.mux.HandleFunc("GET /state", s.handleState)
	s.mux.HandleFunc("GET /runs", s.handleListRuns)
}

// securityHeaders sets security response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy",
			"default-src 'self'; "+
				"script-src 'self' 'unsafe-inline'; "+
				"style-src 'self' 'unsafe-inline'; "+
				"img-src 'self' data:; "+
				"connect-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer's Flush
// and deadline methods.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type overlayData struct {
	Output template.HTML
	Status string
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Hub.Snapshot()
	data := overlayData{Output: s.renderer.Fragment(snap.Output), Status: snap.Status}
	if err := s.renderPage(w, data, "overlay.html"); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

// renderPage parses and executes a full-page template set.
func (s *Server) renderPage(w http.ResponseWriter, data any, files ...string) error {
	tmpl, err := template.New("").ParseFS(s.templates, files...)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tmpl.ExecuteTemplate(w, "base", data)
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
