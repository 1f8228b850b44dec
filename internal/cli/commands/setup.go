package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmeta/internal/cli/config"
	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/engine"
	"github.com/leapstack-labs/leapmeta/internal/metrics"
	"github.com/leapstack-labs/leapmeta/internal/state"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	return newCommandContext(cmd, nil)
}

func newCommandContext(cmd *cobra.Command, m *metrics.Metrics) (*CommandContext, func(), error) {
	cctx := NewCommandContextWithoutEngine(cmd)

	eng, err := createEngine(cctx.Cfg, cctx.Logger, m)
	if err != nil {
		return nil, nil, err
	}
	cctx.Engine = eng

	cleanup := func() {
		if err := eng.Close(); err != nil {
			cctx.Logger.Warn("failed to close engine", "error", err)
		}
	}
	return cctx, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that don't need the catalog.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := config.FromContext(cmd.Context())
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}
}

func createEngine(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*engine.Engine, error) {
	// Ensure state directory exists
	if cfg.StatePath != state.MemoryPath {
		if dir := filepath.Dir(cfg.StatePath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}

	return engine.New(engine.Config{
		StatePath:     cfg.StatePath,
		GlossaryPath:  cfg.GlossaryPath,
		PipelinesPath: cfg.PipelinesPath,
		RulesDir:      cfg.RulesDir,
		Concurrency:   cfg.Concurrency,
		Metrics:       m,
		Logger:        logger,
	})
}
