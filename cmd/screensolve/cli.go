package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/vbonduro/screensolve/internal/capture"
	"github.com/vbonduro/screensolve/internal/capture/inbox"
	"github.com/vbonduro/screensolve/internal/mcp"
	"github.com/vbonduro/screensolve/internal/relay"
	"github.com/vbonduro/screensolve/internal/watch"
	"github.com/vbonduro/screensolve/internal/web"
	"github.com/vbonduro/screensolve/internal/web/templates"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(stdout, stderr io.Writer) *cli.App {
	app := &cli.App{
		Name:           "screensolve",
		Usage:          "Screenshot problem solver",
		Version:        Version,
		Writer:         stdout,
		ErrWriter:      stderr,
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			serveCmd(),
			solveCmd(),
			mcpCmd(),
			runsCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd runs the overlay server and, when CAPTURE_DIR is set, the capture
// directory watcher.
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the overlay server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (overrides LISTEN_ADDR)"},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.cleanup()

			addr := rt.cfg.ListenAddr
			if v := c.String("addr"); v != "" {
				addr = v
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rt, addr)
		},
	}
}

func serve(ctx context.Context, rt *runtime, addr string) error {
	var in *inbox.Inbox
	if rt.cfg.CaptureDir != "" {
		var err error
		if in, err = inbox.New(rt.cfg.CaptureDir); err != nil {
			return fmt.Errorf("failed to open capture directory: %w", err)
		}
	}

	rel := relay.New(relay.WithCoalesce())
	hub := web.NewHub()
	buffer := capture.NewBuffer()
	assistant := rt.newAssistant(rel)

	rel.Output(web.WelcomeMessage)
	if rt.cfg.Validate() != nil {
		rel.Status("Error: API client not initialized.")
	} else {
		rel.Status(web.ReadyStatus)
	}

	var runs web.RunLister
	if rt.runs != nil {
		runs = rt.runs
	}
	server := web.NewServer(web.Deps{
		Assistant: assistant,
		Buffer:    buffer,
		Hub:       hub,
		Publisher: rel,
		Runs:      runs,
		Normalize: rt.normalizeOptions(),
	}, templates.FS, rt.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, addr)
	})
	g.Go(func() error {
		if err := rel.Run(gctx, hub.Handle); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if in != nil {
		w := watch.New(in, buffer, rel, rt.normalizeOptions(), rt.logger)
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	err := g.Wait()
	assistant.Cancel()
	assistant.Wait()
	rt.logger.Info("shut down")
	return err
}

// solveCmd analyzes screenshot files once and prints the answer.
func solveCmd() *cli.Command {
	return &cli.Command{
		Name:      "solve",
		Usage:     "Analyze screenshot files and print the solution",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "fast", Usage: "Skip content detection and use the fast model"},
			&cli.StringFlag{Name: "follow-up", Usage: "Ask a follow-up question about the solution"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Do not print status lines"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return errors.New("at least one screenshot file is required")
			}

			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.cleanup()

			batch, err := capture.LoadFiles(c.Args().Slice(), rt.normalizeOptions())
			if err != nil {
				return err
			}

			pub := consolePublisher{logger: rt.logger}
			if !c.Bool("quiet") {
				pub.status = func(text string) { _, _ = fmt.Fprintln(c.App.ErrWriter, text) }
			}
			assistant := rt.newAssistant(pub)

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rec, err := assistant.Analyze(ctx, batch, c.Bool("fast"))
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(c.App.Writer, rec.Text); err != nil {
				return err
			}

			question := strings.TrimSpace(c.String("follow-up"))
			if question == "" {
				return nil
			}
			rec, err = assistant.FollowUp(ctx, question)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.App.Writer, "\n%s\n", rec.Text)
			return err
		},
	}
}

// mcpCmd serves the assistant as MCP tools over stdio.
func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the assistant as MCP tools over stdio",
		Action: func(c *cli.Context) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.cleanup()

			assistant := rt.newAssistant(consolePublisher{logger: rt.logger})
			return mcp.Run(assistant, rt.normalizeOptions(), Version, rt.logger)
		},
	}
}

// runsCmd prints the most recent entries of the run log.
func runsCmd() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recent runs from the run log",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Maximum number of runs"},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.cleanup()

			if rt.runs == nil {
				return errors.New("run log is disabled (DB_PATH is empty)")
			}

			runs, err := rt.runs.List(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			stats, err := rt.runs.Stats(c.Context)
			if err != nil {
				return err
			}

			views := make([]web.RunView, 0, len(runs))
			for _, r := range runs {
				views = append(views, web.NewRunView(r))
			}
			return outputJSON(c.App.Writer, map[string]any{"runs": views, "stats": stats})
		},
	}
}

// outputJSON writes data as indented JSON.
func outputJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
