package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vbonduro/screensolve/internal/capture"
	"github.com/vbonduro/screensolve/internal/classify"
	"github.com/vbonduro/screensolve/internal/config"
	"github.com/vbonduro/screensolve/internal/db"
	"github.com/vbonduro/screensolve/internal/domain"
	"github.com/vbonduro/screensolve/internal/logging"
	"github.com/vbonduro/screensolve/internal/model"
	"github.com/vbonduro/screensolve/internal/model/claude"
	"github.com/vbonduro/screensolve/internal/model/mock"
	"github.com/vbonduro/screensolve/internal/model/ollama"
	"github.com/vbonduro/screensolve/internal/model/openrouter"
	"github.com/vbonduro/screensolve/internal/session"
	"github.com/vbonduro/screensolve/internal/store"
)

// runtime holds what every command shares: configuration, the logger and
// the optional run log.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	runs    *store.RunStore
	cleanup func()
}

func setup() (*runtime, error) {
	cfg := config.Load()

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile, cfg.MaxLogSizeMB)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger, cleanup: cleanup}
	if cfg.DBPath == "" {
		logger.Info("run log disabled")
		return rt, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0700); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	rt.runs = store.NewRunStore(database)
	rt.cleanup = func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
		cleanup()
	}
	return rt, nil
}

func (rt *runtime) normalizeOptions() capture.NormalizeOptions {
	return capture.NormalizeOptions{
		MaxWidth: rt.cfg.CaptureMaxWidth,
		Quality:  rt.cfg.CaptureJPEGQuality,
	}
}

// newAssistant builds the session pipeline. When the configuration cannot
// reach a model the assistant is still returned; its triggers then fail with
// session.ErrNotConfigured.
func (rt *runtime) newAssistant(pub session.Publisher) *session.Assistant {
	cfg := rt.cfg
	completer := newCompleter(cfg, rt.logger)
	names := modelNamesFor(cfg)

	var classifier *classify.Classifier
	if completer != nil {
		tables := classify.DefaultTables()
		if cfg.ClassifyTables != "" {
			loaded, err := classify.LoadTables(cfg.ClassifyTables)
			if err != nil {
				rt.logger.Error("failed to load classifier tables, using defaults", "path", cfg.ClassifyTables, "error", err)
			} else {
				tables = loaded
			}
		}
		classifier = classify.New(completer, names.detection, tables, rt.logger)
	}

	fastCategory := domain.Category(cfg.FastContentType)
	if !fastCategory.Valid() {
		rt.logger.Warn("unknown fast mode content type, using general", "value", cfg.FastContentType)
		fastCategory = domain.CategoryGeneral
	}

	var runs interface {
		Create(ctx context.Context, run *domain.Run) error
	}
	if rt.runs != nil {
		runs = rt.runs
	}

	return session.New(completer, classifier, session.NewSlot(), pub, runs, session.Options{
		Model:        names.main,
		FastModel:    names.fast,
		FastCategory: fastCategory,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		TopP:         cfg.TopP,
		RetryCount:   cfg.RetryCount,
		Timeout:      cfg.RequestTimeout,
		Streaming:    cfg.Streaming,
	}, rt.logger)
}

type modelNames struct {
	main, fast, detection string
}

// modelNamesFor reports the model identifiers sent with each request. Only
// OpenRouter routes between several models; the other backends serve one.
func modelNamesFor(cfg *config.Config) modelNames {
	switch cfg.ModelBackend {
	case "mock":
		return modelNames{main: "mock", fast: "mock", detection: "mock"}
	case "claude":
		return modelNames{main: cfg.ClaudeModel, fast: cfg.ClaudeModel, detection: cfg.ClaudeModel}
	case "ollama":
		return modelNames{main: cfg.OllamaModel, fast: cfg.OllamaModel, detection: cfg.OllamaModel}
	default:
		return modelNames{main: cfg.ModelName, fast: cfg.FastModelName, detection: cfg.DetectionModelName}
	}
}

// newCompleter returns the configured model backend, or nil when the
// configuration is invalid.
func newCompleter(cfg *config.Config, logger *slog.Logger) model.Completer {
	if err := cfg.Validate(); err != nil {
		logger.Error("model backend not configured", "backend", cfg.ModelBackend, "error", err)
		return nil
	}

	switch cfg.ModelBackend {
	case "mock":
		logger.Info("using mock model backend")
		return mock.New()
	case "claude":
		logger.Info("using Claude model backend", "model", cfg.ClaudeModel)
		return claude.New(cfg.ClaudeAPIKey, cfg.ClaudeModel)
	case "ollama":
		logger.Info("using Ollama model backend", "model", cfg.OllamaModel)
		return ollama.New(cfg.OllamaHost, cfg.OllamaModel)
	default:
		logger.Info("using OpenRouter model backend", "model", cfg.ModelName)
		return openrouter.New(cfg.OpenRouterAPIKey,
			openrouter.WithBaseURL(cfg.OpenRouterBaseURL),
			openrouter.WithAttribution(cfg.ReferrerURL, cfg.SiteTitle),
		)
	}
}

// consolePublisher prints status lines for the one-shot commands. Output
// documents are skipped; the final answer is printed once it completes.
type consolePublisher struct {
	logger *slog.Logger
	status func(string)
}

func (p consolePublisher) Output(string) {}

func (p consolePublisher) Status(text string) {
	p.logger.Debug("status", "text", text)
	if p.status != nil {
		p.status(text)
	}
}
