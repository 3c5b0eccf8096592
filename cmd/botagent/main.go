// Command botagent is the CLI entrypoint exercising the core runtime
// end to end: load config, build the memory/character/system agent
// pipeline, and run one dialogue turn.
//
// Usage:
//
//	botagent chat --config config.yaml --user alex "My name is Alex"
//	botagent serve --config config.yaml
//	botagent session clear --config config.yaml --user alex
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/CheKilo/bot-agent/pkg/config"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "botagent",
		Short:        "A multi-agent conversational runtime with ReAct reasoning and tiered memory",
		SilenceUsage: true,
	}
	root.AddCommand(buildChatCmd(), buildServeCmd(), buildSessionCmd())
	return root
}

// loadRuntime loads config.yaml from configPath, initializes logging
// per its LoggerConfig, and assembles the runtime.
func loadRuntime(configPath string) (*runtime, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	initLogger(cfg.Logger)

	return buildRuntime(cfg)
}

func initLogger(cfg config.LoggerConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	out := os.Stderr
	if cfg.File != "" {
		if f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			out = f
		} else {
			slog.Warn("botagent: could not open log file, falling back to stderr", "path", cfg.File, "error", err)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
}
