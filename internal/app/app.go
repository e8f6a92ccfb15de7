// Package app wires the resolution engine's dependencies and runs the
// configured operating mode: the API server, the deadline watcher, or both.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openquorum/resolved/internal/config"
)

// App owns the configuration, the root logger, and the cleanup stack built
// up during wiring.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies and blocks in the configured mode until the context
// is cancelled. Cleanup happens in Close.
func (a *App) Run(ctx context.Context) error {
	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	mode := strings.ToLower(a.cfg.Mode)
	a.logger.InfoContext(ctx, "dependencies wired", slog.String("mode", mode))

	switch mode {
	case "serve":
		return a.ServeMode(ctx, deps)
	case "watch":
		return a.WatchMode(ctx, deps)
	case "full":
		return a.FullMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close releases wired resources in reverse order. Safe to call repeatedly.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	a.logger.Info("shutdown complete")
}
