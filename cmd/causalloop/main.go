package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rajithv/CausalLoop/internal/config"
	"github.com/rajithv/CausalLoop/internal/examples"
	"github.com/rajithv/CausalLoop/internal/grammar"
	"github.com/rajithv/CausalLoop/internal/graph"
	"github.com/rajithv/CausalLoop/internal/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "causalloop",
		Short: "Causal loop diagrams - parse, lay out, simulate and render",
		Long: `causalloop works with causal loop diagrams written in a small text grammar:

  Population -> Births (0.8, +)
  Births -> Population (1, +)
  Population: 50 (10)

It lays diagrams out with a force-directed layout, runs the damped
propagation simulation headless, in the terminal or in the browser,
and renders diagrams to SVG, DOT, JSON or a self-contained HTML page.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.causalloop/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newParseCmd(),
		newFmtCmd(),
		newLayoutCmd(),
		newSimulateCmd(),
		newRenderCmd(),
		newServeCmd(),
		newTUICmd(),
		newMCPServerCmd(),
		newExamplesCmd(),
		newConfigCmd(),
	)

	return rootCmd
}

// loadConfig reads the config named by --config, or the default locations,
// and applies --log-level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger returns the stderr logger for cfg.
func newLogger(cfg *config.Config) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, os.Stderr)
}

// traceDir returns where step traces are written.
func traceDir(cfg *config.Config) string {
	if cfg.Logging.TraceDir != "" {
		return cfg.Logging.TraceDir
	}
	dir, err := config.Dir()
	if err != nil {
		return filepath.Join(os.TempDir(), "causalloop")
	}
	return dir
}

// readSource reads a definition from a file, or from stdin when path is "-".
func readSource(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// addSourceFlags adds --example to commands that take a definition file.
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("example", "", "Use a built-in example instead of a file (see 'causalloop examples list')")
}

// loadDefinition returns the definition text and a display name, taken from
// the file argument or from --example.
func loadDefinition(cmd *cobra.Command, args []string) (text, name string, err error) {
	example, _ := cmd.Flags().GetString("example")
	switch {
	case example != "" && len(args) > 0:
		return "", "", fmt.Errorf("give either a file or --example, not both")
	case example != "":
		ex, err := examples.Get(example)
		if err != nil {
			return "", "", err
		}
		return ex.Text, ex.Title, nil
	case len(args) == 0:
		return "", "", fmt.Errorf("no definition given: pass a file, '-' for stdin, or --example")
	}

	text, err = readSource(cmd, args[0])
	if err != nil {
		return "", "", err
	}
	name = args[0]
	if name == "-" {
		name = "stdin"
	}
	return text, name, nil
}

// loadGraph compiles the definition selected by args or --example, logging
// skipped lines at debug level.
func loadGraph(cmd *cobra.Command, args []string, logger *slog.Logger) (*graph.Graph, string, error) {
	text, name, err := loadDefinition(cmd, args)
	if err != nil {
		return nil, "", err
	}
	_, skipped := grammar.ParseWithSkips(text)
	for _, s := range skipped {
		logger.Debug("skipped line", "source", name, "line", s.Line, "text", s.Text)
	}
	g, err := grammar.Compile(text)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", name, err)
	}
	return g, name, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
