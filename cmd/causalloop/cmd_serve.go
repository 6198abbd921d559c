package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/rajithv/CausalLoop/internal/graph"
	"github.com/rajithv/CausalLoop/internal/logging"
	"github.com/rajithv/CausalLoop/internal/metrics"
	"github.com/rajithv/CausalLoop/internal/propagation"
	"github.com/rajithv/CausalLoop/internal/visualization"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [file|-]",
		Short: "Serve the live simulation in the browser",
		Long: `Start a local web server with a live view of the simulation. Nodes can
be perturbed from the page, the run started and stopped, and the damping
factor and speed tuned while it runs. Every change is pushed to all open
pages over a WebSocket. Prometheus metrics are served at /metrics.

Without a file the default example is served.

Examples:
  causalloop serve loop.cld --open
  causalloop serve --example population --addr 127.0.0.1:9090`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
			}
			if cmd.Flags().Changed("open") {
				cfg.Server.OpenBrowser, _ = cmd.Flags().GetBool("open")
			}
			logger := newLogger(cfg)

			if example, _ := cmd.Flags().GetString("example"); example == "" && len(args) == 0 {
				cmd.Flags().Set("example", "default")
			}
			g, name, err := loadGraph(cmd, args, logger)
			if err != nil {
				return err
			}

			trace, _ := cmd.Flags().GetBool("trace")
			tracer := logging.NewStepTracer(traceDir(cfg), cfg.Logging.Level, trace)
			defer tracer.Close()

			reg := metrics.DefaultRegistry()
			engine := cfg.LayoutEngine()
			session := propagation.NewSession(g, cfg.Propagation(),
				propagation.WithMetrics(reg),
				propagation.WithTracer(tracer),
				propagation.WithLogger(logger),
				propagation.WithLayout(func(g *graph.Graph) {
					res := engine.Apply(g)
					logger.Debug("layout finished", "iterations", res.Iterations, "converged", res.Converged)
				}),
			)
			defer session.Close()

			server := visualization.NewServer(session,
				visualization.WithMetrics(reg),
				visualization.WithLogger(logger),
				visualization.WithRateLimit(cfg.Server.CommandRate, cfg.Server.CommandBurst),
				visualization.WithSubscriberBuffer(cfg.Server.SubscriberBuffer),
				visualization.WithTitle(name),
			)

			ln, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr, err)
			}

			url := "http://" + ln.Addr().String()
			fmt.Fprintf(cmd.ErrOrStderr(), "Serving %s at %s (Ctrl+C to stop)\n", name, url)
			if cfg.Server.OpenBrowser {
				if err := visualization.OpenBrowser(url); err != nil {
					logger.Warn("could not open browser", "error", err)
				}
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return server.Serve(ctx, ln)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default from config, 127.0.0.1:8080)")
	cmd.Flags().Bool("open", false, "Open the page in the default browser")
	cmd.Flags().Bool("trace", false, "Write every step to the JSONL step trace")
	addSourceFlags(cmd)

	return cmd
}
