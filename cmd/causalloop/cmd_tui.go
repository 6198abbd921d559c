package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rajithv/CausalLoop/internal/logging"
	"github.com/rajithv/CausalLoop/internal/tui"
)

func newTUICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui [file]",
		Short: "Run the interactive terminal simulator",
		Long: `Run the simulation in the terminal. Select a node with the arrow keys,
perturb it with + and -, start and stop with space, tune damping with [ and ]
and speed with < and >. With --watch the diagram reloads whenever the file
is saved.

Without a file the default example is used.

Examples:
  causalloop tui loop.cld --watch
  causalloop tui --example climate`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			watch, _ := cmd.Flags().GetBool("watch")
			trace, _ := cmd.Flags().GetBool("trace")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// The terminal belongs to the TUI; only warnings reach stderr.
			logger := logging.NewLogger("info", cmd.ErrOrStderr())

			if example, _ := cmd.Flags().GetString("example"); example == "" && len(args) == 0 {
				cmd.Flags().Set("example", "default")
			}
			if watch && len(args) == 0 {
				return fmt.Errorf("--watch needs a file")
			}
			g, name, err := loadGraph(cmd, args, logger)
			if err != nil {
				return err
			}

			tracer := logging.NewStepTracer(traceDir(cfg), cfg.Logging.Level, trace)
			defer tracer.Close()

			opts := tui.Options{Title: name, Tracer: tracer, Logger: logger}
			if watch {
				opts.WatchPath = args[0]
			}
			return tui.Run(cmd.Context(), g, cfg.Propagation(), opts)
		},
	}

	cmd.Flags().Bool("watch", false, "Reload the diagram when the file changes")
	cmd.Flags().Bool("trace", false, "Write every step to the JSONL step trace")
	addSourceFlags(cmd)

	return cmd
}
