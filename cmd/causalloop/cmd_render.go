package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rajithv/CausalLoop/internal/propagation"
	"github.com/rajithv/CausalLoop/internal/visualization"
)

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <file|->",
		Short: "Render a diagram as SVG, DOT, JSON or HTML",
		Long: `Lay out a definition and render it. SVG and HTML are self-contained;
DOT pins nodes at their layout positions for 'neato -n'.

Examples:
  causalloop render loop.cld -o loop.svg
  causalloop render --format dot loop.cld | neato -n -Tpng -o loop.png
  causalloop render --example economic --format html -o economic.html`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatName, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			title, _ := cmd.Flags().GetString("title")

			format, err := visualization.ParseFormat(formatName)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.Layout.Seed, _ = cmd.Flags().GetUint64("seed")
			}
			logger := newLogger(cfg)

			g, name, err := loadGraph(cmd, args, logger)
			if err != nil {
				return err
			}
			if title == "" {
				title = name
			}

			res := cfg.LayoutEngine().Apply(g)
			logger.Debug("layout finished", "iterations", res.Iterations, "converged", res.Converged)

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			snap := propagation.GraphSnapshot(g)
			if err := visualization.Render(w, snap, format, visualization.Options{Title: title}); err != nil {
				return fmt.Errorf("failed to render %s: %w", format, err)
			}

			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", output)
			}
			return nil
		},
	}

	cmd.Flags().StringP("format", "f", "svg", "Output format: svg, dot, json or html")
	cmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	cmd.Flags().String("title", "", "Diagram title (default the source name)")
	cmd.Flags().Uint64("seed", 0, "Layout random seed (0 seeds from the clock)")
	addSourceFlags(cmd)

	return cmd
}
