package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vbonduro/screensolve/internal/capture"
	"github.com/vbonduro/screensolve/internal/domain"
	"github.com/vbonduro/screensolve/internal/session"
)

// maxScreenshots bounds a single solve_screenshots call.
const maxScreenshots = 10

type assistant interface {
	Analyze(ctx context.Context, batch domain.CaptureBatch, fast bool) (domain.SolutionRecord, error)
	FollowUp(ctx context.Context, question string) (domain.SolutionRecord, error)
	LastSolution() (domain.SolutionRecord, bool)
}

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	assistant assistant
	opts      capture.NormalizeOptions
	logger    *slog.Logger
}

func NewHandlers(a assistant, opts capture.NormalizeOptions, logger *slog.Logger) *Handlers {
	return &Handlers{assistant: a, opts: opts, logger: logger}
}

type SolveRequest struct {
	Paths []string `json:"paths"`
	Fast  bool     `json:"fast,omitempty"`
}

type FollowUpRequest struct {
	Question string `json:"question"`
}

// Solution is the tool result for a completed session.
type Solution struct {
	RunID      string    `json:"run_id"`
	Category   string    `json:"category"`
	Text       string    `json:"text"`
	DurationMS int64     `json:"duration_ms"`
	Completed  time.Time `json:"completed_at"`
}

func newSolution(rec domain.SolutionRecord) Solution {
	return Solution{
		RunID:      rec.RunID,
		Category:   string(rec.Category),
		Text:       rec.Text,
		DurationMS: rec.Duration.Milliseconds(),
		Completed:  rec.CompletedAt,
	}
}

func (h *Handlers) HandleSolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SolveRequest](req)
	if err != nil {
		return errorResult("INVALID_REQUEST", err.Error()), nil
	}
	if len(input.Paths) == 0 {
		return errorResult("INVALID_REQUEST", "paths must contain at least one screenshot"), nil
	}
	if len(input.Paths) > maxScreenshots {
		return errorResult("INVALID_REQUEST", fmt.Sprintf("at most %d screenshots per request", maxScreenshots)), nil
	}

	batch, err := capture.LoadFiles(input.Paths, h.opts)
	if err != nil {
		return errorResult("INVALID_REQUEST", err.Error()), nil
	}

	rec, err := h.assistant.Analyze(ctx, batch, input.Fast)
	if err != nil {
		return sessionError(err), nil
	}
	return mcp.NewToolResultJSON(newSolution(rec))
}

func (h *Handlers) HandleFollowUp(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FollowUpRequest](req)
	if err != nil {
		return errorResult("INVALID_REQUEST", err.Error()), nil
	}
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return errorResult("INVALID_REQUEST", "question is required"), nil
	}

	rec, err := h.assistant.FollowUp(ctx, question)
	if err != nil {
		return sessionError(err), nil
	}
	return mcp.NewToolResultJSON(newSolution(rec))
}

func (h *Handlers) HandleLastSolution(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rec, ok := h.assistant.LastSolution()
	if !ok {
		return errorResult("NOT_FOUND", "no solution has been produced yet"), nil
	}
	return mcp.NewToolResultJSON(newSolution(rec))
}

func sessionError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, session.ErrBusy):
		return errorResult("BUSY", err.Error())
	case errors.Is(err, session.ErrNoContext):
		return errorResult("NO_CONTEXT", err.Error())
	case errors.Is(err, session.ErrNotConfigured):
		return errorResult("NOT_CONFIGURED", err.Error())
	case errors.Is(err, session.ErrCancelled):
		return errorResult("CANCELLED", err.Error())
	case errors.Is(err, session.ErrNoOutput):
		return errorResult("NO_OUTPUT", err.Error())
	default:
		return errorResult("MODEL_ERROR", err.Error())
	}
}

// errorResult creates an MCP error result with a JSON payload.
func errorResult(code, message string) *mcp.CallToolResult {
	content, _ := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}
