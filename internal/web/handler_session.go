package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vbonduro/screensolve/internal/domain"
	"github.com/vbonduro/screensolve/internal/session"
)

const maxQuestionLen = 4000

// handleProcess submits the buffered screenshots. The buffer is only cleared
// once the session has actually been accepted.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	fast, _ := strconv.ParseBool(r.URL.Query().Get("fast"))

	batch, err := s.deps.Buffer.TakeIf(func(batch domain.CaptureBatch) error {
		return s.deps.Assistant.Start(batch, fast)
	})
	if err != nil {
		s.sessionError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"images": len(batch), "fast": fast}, s.logger)
}

func (s *Server) handleFollowUp(w http.ResponseWriter, r *http.Request) {
	question := strings.TrimSpace(r.FormValue("question"))
	if question == "" {
		http.Error(w, "question required", http.StatusBadRequest)
		return
	}
	if len(question) > maxQuestionLen {
		http.Error(w, "question too long", http.StatusBadRequest)
		return
	}

	if err := s.deps.Assistant.StartFollowUp(question); err != nil {
		s.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true}, s.logger)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": s.deps.Assistant.Cancel()}, s.logger)
}

type stateResponse struct {
	State       string `json:"state"`
	Captures    int    `json:"captures"`
	HasSolution bool   `json:"has_solution"`
	Status      string `json:"status"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		State:       s.deps.Assistant.State().String(),
		Captures:    s.deps.Buffer.Len(),
		HasSolution: s.deps.Assistant.HasSolution(),
		Status:      s.deps.Hub.Snapshot().Status,
	}, s.logger)
}

// RunView is the JSON shape of a run-log entry.
type RunView struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Label      string    `json:"label"`
	Model      string    `json:"model"`
	Status     string    `json:"status"`
	Chunks     int       `json:"chunks"`
	Images     int       `json:"images"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

func NewRunView(r *domain.Run) RunView {
	return RunView{
		ID:         r.ID,
		Kind:       string(r.Kind),
		Label:      r.Label,
		Model:      r.Model,
		Status:     string(r.Status),
		Chunks:     r.Chunks,
		Images:     r.Images,
		DurationMS: r.Duration.Milliseconds(),
		Error:      r.Error,
		StartedAt:  r.StartedAt,
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		http.Error(w, "run log disabled", http.StatusNotFound)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.deps.Runs.List(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		s.logger.Error("list runs failed", "error", err)
		return
	}
	stats, err := s.deps.Runs.Stats(r.Context())
	if err != nil {
		http.Error(w, "failed to count runs", http.StatusInternalServerError)
		s.logger.Error("run stats failed", "error", err)
		return
	}

	views := make([]RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, NewRunView(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": views, "stats": stats}, s.logger)
}

// sessionError maps a rejected trigger to an HTTP status. The assistant has
// already published the matching status line to the overlay.
func (s *Server) sessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrNoContext):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, session.ErrNoImages):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, session.ErrNotConfigured):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, "failed to start session", http.StatusInternalServerError)
		s.logger.Error("start session failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("write json failed", "error", err)
	}
}
