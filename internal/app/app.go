package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/cranebuild/crane/internal/config"
	"github.com/cranebuild/crane/internal/ctxlog"
	"github.com/cranebuild/crane/internal/registry"
	"github.com/cranebuild/crane/internal/rule"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	cfg        *Config
	model      *config.Model
	registry   *registry.Registry
	extraSets  []*rule.Set
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger, the runtime
// config loaded and flag overrides applied. It panics on unrecoverable
// startup errors; main recovers and reports them.
func NewApp(outW io.Writer, cfg *Config, extraSets ...*rule.Set) *App {
	// Load the runtime config with a bootstrap logger; the real logger
	// needs the merged settings.
	bootCtx := ctxlog.WithLogger(context.Background(), newLogger("info", "text", outW))
	model, err := config.Load(bootCtx, filepath.Join(cfg.Workspace, cfg.ConfigPath))
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}

	// CLI flags win over file settings.
	if cfg.LogLevel != "" {
		model.Log.Level = cfg.LogLevel
	}
	if cfg.LogFormat != "" {
		model.Log.Format = cfg.LogFormat
	}
	if cfg.Workers > 0 {
		model.Workers = cfg.Workers
	}
	if cfg.Watch {
		model.Watch.Enabled = true
	}

	logger := newLogger(model.Log.Level, model.Log.Format, outW)
	logger.Debug("Logger configured successfully.", "level", model.Log.Level, "format", model.Log.Format)

	return &App{
		outW:      outW,
		logger:    logger,
		cfg:       cfg,
		model:     model,
		extraSets: extraSets,
	}
}

// Registry returns the application's registry once Run has built it. This
// is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Model returns the resolved runtime configuration. This is primarily for
// testing.
func (a *App) Model() *config.Model {
	return a.model
}
