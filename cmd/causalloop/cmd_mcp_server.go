package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rajithv/CausalLoop/internal/logging"
	"github.com/rajithv/CausalLoop/internal/mcp"
	"github.com/rajithv/CausalLoop/internal/metrics"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve causal loop tools over MCP (stdio)",
		Long: `Run a Model Context Protocol server on stdin/stdout. It exposes tools to
parse, format, lay out, simulate and render diagrams, and resources for the
grammar and the example library.

Tools may read definition files given by path only from the working
directory, or from the directories named with --allow-dir.

Tool calls are appended to ~/.causalloop/audit.jsonl unless --no-audit is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			noAudit, _ := cmd.Flags().GetBool("no-audit")
			allowDirs, _ := cmd.Flags().GetStringArray("allow-dir")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// stdout carries the protocol; logs go to stderr.
			logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())

			auditDir := ""
			if !noAudit {
				auditDir = traceDir(cfg)
			}

			layoutCfg := cfg.LayoutEngine().Config()
			server, err := mcp.NewServer(&mcp.Config{
				Name:        "causalloop",
				Version:     version,
				AuditDir:    auditDir,
				Simulation:  cfg.Propagation(),
				Layout:      layoutCfg,
				LayoutSeed:  cfg.Layout.Seed,
				AllowedDirs: allowDirs,
				Metrics:     metrics.DefaultRegistry(),
				Logger:      logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			return server.Run(cmd.Context())
		},
	}

	cmd.Flags().Bool("no-audit", false, "Do not write the tool-call audit log")
	cmd.Flags().StringArray("allow-dir", nil, "Directory tools may read definition files from (repeatable; default: working directory)")

	return cmd
}
