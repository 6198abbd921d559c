package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rajithv/CausalLoop/internal/grammar"
	"github.com/rajithv/CausalLoop/internal/graph"
	"github.com/rajithv/CausalLoop/internal/logging"
	"github.com/rajithv/CausalLoop/internal/metrics"
	"github.com/rajithv/CausalLoop/internal/propagation"
)

// simulateOutput is the JSON form of a headless run.
type simulateOutput struct {
	Source     string                   `json:"source"`
	Initial    map[string]float64       `json:"initial"`
	Steps      []propagation.StepResult `json:"steps"`
	Final      map[string]float64       `json:"final"`
	StopReason propagation.StopReason   `json:"stop_reason"`
	TracePath  string                   `json:"trace_path,omitempty"`
}

// perturbation is one parsed --perturb flag.
type perturbation struct {
	node string
	dir  graph.Direction
}

// parsePerturbation parses "Node:+" or "Node:decrease".
func parsePerturbation(s string) (perturbation, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return perturbation{}, fmt.Errorf("invalid perturbation %q (want NODE:+ or NODE:-)", s)
	}
	dir, err := graph.ParseDirection(s[i+1:])
	if err != nil {
		return perturbation{}, fmt.Errorf("invalid perturbation %q: %w", s, err)
	}
	return perturbation{node: strings.TrimSpace(s[:i]), dir: dir}, nil
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <file|->",
		Short: "Run the propagation simulation headless",
		Long: `Apply perturbations and run the damped propagation until the graph
settles or the step cap is reached, printing the values after every step.

Damping and --unbounded default to the configuration. --delay and
--max-steps always apply their own defaults (no pause, 100 steps), so the
live-run settings simulation.step_delay and simulation.max_steps do not
affect headless runs.

Examples:
  causalloop simulate loop.cld --perturb Population:+
  causalloop simulate loop.cld --perturb A:+ --perturb B:- --damping 0.5
  causalloop simulate --example climate --max-steps 20 --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			perturbFlags, _ := cmd.Flags().GetStringArray("perturb")
			trace, _ := cmd.Flags().GetBool("trace")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			// Headless runs ignore the live-run delay and cap from config.
			simCfg := cfg.Propagation()
			simCfg.StepDelay, _ = cmd.Flags().GetDuration("delay")
			simCfg.MaxSteps, _ = cmd.Flags().GetInt("max-steps")
			if cmd.Flags().Changed("damping") {
				simCfg.DampingFactor, _ = cmd.Flags().GetFloat64("damping")
			}
			if cmd.Flags().Changed("unbounded") {
				simCfg.Unbounded, _ = cmd.Flags().GetBool("unbounded")
			}
			if err := simCfg.Validate(); err != nil {
				return err
			}

			perturbations := make([]perturbation, 0, len(perturbFlags))
			for _, f := range perturbFlags {
				p, err := parsePerturbation(f)
				if err != nil {
					return err
				}
				perturbations = append(perturbations, p)
			}

			g, name, err := loadGraph(cmd, args, logger)
			if err != nil {
				return err
			}

			tracer := logging.NewStepTracer(traceDir(cfg), cfg.Logging.Level, trace)
			defer tracer.Close()
			reg := metrics.DefaultRegistry()

			sim := propagation.NewSimulator(g, simCfg)
			for _, p := range perturbations {
				v, err := sim.Perturb(p.node, p.dir)
				if err != nil {
					return fmt.Errorf("perturb %s: %w", p.node, err)
				}
				reg.RecordPerturbation(string(p.dir))
				tracer.Log("perturb", map[string]any{"node": p.node, "direction": p.dir, "value": v})
				logger.Debug("perturbed", "node", p.node, "direction", p.dir, "value", v)
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			w := cmd.OutOrStdout()
			out := simulateOutput{Source: name, Initial: g.Values(), TracePath: tracer.Path()}
			if !jsonOut {
				fmt.Fprintf(w, "initial: %s\n", formatValues(g.Order(), out.Initial))
			}

			tracer.Log("start", map[string]any{"source": name, "damping_factor": simCfg.DampingFactor, "max_steps": simCfg.MaxSteps})
			start := time.Now()
			reason := propagation.Run(ctx, sim, func(res propagation.StepResult) {
				reg.RecordStep(len(res.Changed), len(res.ActiveEdges))
				tracer.Log("step", map[string]any{
					"step":         res.Step,
					"changed":      res.Changed,
					"active_edges": res.ActiveEdges,
					"values":       res.Values,
				})
				logger.Log(ctx, logging.LevelTrace, "simulation step", "step", res.Step, "changed", len(res.Changed))
				if jsonOut {
					out.Steps = append(out.Steps, res)
					return
				}
				printStep(w, g.Order(), res)
			})
			reg.RecordRunEnd(string(reason))
			tracer.Log("stop", map[string]any{"reason": reason, "steps": sim.Steps()})
			logger.Debug("simulation finished", "reason", reason, "steps", sim.Steps(), "duration", time.Since(start))

			out.Final = g.Values()
			out.StopReason = reason
			if jsonOut {
				if out.Steps == nil {
					out.Steps = []propagation.StepResult{}
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			fmt.Fprintf(w, "stopped: %s after %d steps\n", reason, sim.Steps())
			if tracer != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "trace written to %s\n", tracer.Path())
			}
			return nil
		},
	}

	cmd.Flags().StringArrayP("perturb", "p", nil, "Perturb a node before the run, as NODE:+ or NODE:- (repeatable)")
	cmd.Flags().Float64("damping", 0, "Damping factor in (0, 1) (default from config)")
	cmd.Flags().Duration("delay", 0, "Pause between steps (replaces simulation.step_delay)")
	cmd.Flags().Int("max-steps", 100, "Stop after this many steps, 0 = until settled (replaces simulation.max_steps)")
	cmd.Flags().Bool("unbounded", false, "Let values grow past 100")
	cmd.Flags().Bool("trace", false, "Write every step to the JSONL step trace")
	addSourceFlags(cmd)

	return cmd
}

func printStep(w io.Writer, order []string, res propagation.StepResult) {
	changed := make([]string, 0, len(res.Changed))
	for _, c := range res.Changed {
		changed = append(changed, c.Name)
	}
	fmt.Fprintf(w, "step %d: %s", res.Step, formatValues(order, res.Values))
	if len(changed) > 0 {
		fmt.Fprintf(w, "  (changed: %s)", strings.Join(changed, ", "))
	}
	fmt.Fprintln(w)
}

func formatValues(order []string, values map[string]float64) string {
	parts := make([]string, 0, len(order))
	for _, name := range order {
		parts = append(parts, name+"="+grammar.FormatNumber(math.Round(values[name]*100)/100))
	}
	return strings.Join(parts, " ")
}
