// Package mcp exposes the assistant as MCP tools so an agent can submit
// screenshots and ask follow-up questions.
package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vbonduro/screensolve/internal/capture"
)

var solveToolDef = mcp.NewTool("solve_screenshots",
	mcp.WithDescription("Analyze one or more screenshots of a problem and return a markdown solution. "+
		"The screenshots are sent together, in the given order, as a single request."),
	mcp.WithArray("paths",
		mcp.Required(),
		mcp.Description("Paths of PNG, JPEG, GIF or WebP screenshots, in capture order"),
		mcp.WithStringItems(),
	),
	mcp.WithBoolean("fast",
		mcp.Description("Skip content detection and use the general prompt with the fast model"),
	),
)

var followUpToolDef = mcp.NewTool("follow_up",
	mcp.WithDescription("Ask a follow-up question about the most recent solution."),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("The follow-up question"),
	),
)

var lastSolutionToolDef = mcp.NewTool("last_solution",
	mcp.WithDescription("Return the most recent completed solution, if any."),
)

// NewServer creates an MCP server with the assistant tools registered.
func NewServer(a assistant, opts capture.NormalizeOptions, version string, logger *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		"screensolve",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(a, opts, logger)
	s.AddTool(solveToolDef, h.HandleSolve)
	s.AddTool(followUpToolDef, h.HandleFollowUp)
	s.AddTool(lastSolutionToolDef, h.HandleLastSolution)

	return s
}

// Run serves the MCP tools over stdio until stdin closes.
func Run(a assistant, opts capture.NormalizeOptions, version string, logger *slog.Logger) error {
	return server.ServeStdio(NewServer(a, opts, version, logger))
}
