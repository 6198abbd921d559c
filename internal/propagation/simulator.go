package propagation

import (
	"fmt"
	"time"

	"github.com/rajithv/CausalLoop/internal/graph"
)

// State is the run state of a Simulator.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// StopReason says why a run ended.
type StopReason string

const (
	ReasonNone      StopReason = ""
	ReasonSettled   StopReason = "settled"   // a step committed nothing
	ReasonStopped   StopReason = "stopped"   // Stop was called
	ReasonMaxSteps  StopReason = "max_steps" // MaxSteps reached
	ReasonReset     StopReason = "reset"     // Reset was called
	ReasonCancelled StopReason = "cancelled" // the driving context ended
	ReasonReplaced  StopReason = "replaced"  // the graph was replaced
)

// Simulator is the Stopped/Running state machine around Step. It has a single
// owner and is not safe for concurrent use; the Session type wraps one for
// concurrent callers.
type Simulator struct {
	graph  *graph.Graph
	config Config
	state  State
	steps  int
	reason StopReason
}

// NewSimulator creates a stopped simulator over g.
func NewSimulator(g *graph.Graph, config Config) *Simulator {
	return &Simulator{graph: g, config: config}
}

// Graph returns the simulated graph.
func (s *Simulator) Graph() *graph.Graph { return s.graph }

// Config returns the current parameters.
func (s *Simulator) Config() Config { return s.config }

// State returns the run state.
func (s *Simulator) State() State { return s.state }

// Running reports whether the simulator is in the Running state.
func (s *Simulator) Running() bool { return s.state == Running }

// Steps returns the number of steps taken in the current or last run.
func (s *Simulator) Steps() int { return s.steps }

// StopReason returns why the last run ended.
func (s *Simulator) StopReason() StopReason { return s.reason }

// StepDelay returns the delay to wait before the next scheduled step.
func (s *Simulator) StepDelay() time.Duration { return s.config.StepDelay }

// Start moves Stopped to Running and resets the step counter. The caller
// should schedule the first step immediately. Starting a running simulator
// does nothing and returns false.
func (s *Simulator) Start() bool {
	if s.state == Running {
		return false
	}
	s.state = Running
	s.steps = 0
	s.reason = ReasonNone
	return true
}

// Stop moves Running to Stopped. No step runs after Stop returns.
func (s *Simulator) Stop() bool {
	return s.halt(ReasonStopped)
}

func (s *Simulator) halt(reason StopReason) bool {
	if s.state != Running {
		return false
	}
	s.state = Stopped
	s.reason = reason
	return true
}

// Reset stops any run and restores every node to its build-time value.
func (s *Simulator) Reset() {
	s.halt(ReasonReset)
	s.graph.Reset()
}

// Replace stops any run and swaps in a new graph.
func (s *Simulator) Replace(g *graph.Graph) {
	s.halt(ReasonReplaced)
	s.graph = g
	s.steps = 0
}

// Advance takes one step if running. A step that commits nothing, or that
// reaches MaxSteps, ends the run. The returned bool says whether another step
// should be scheduled after StepDelay.
func (s *Simulator) Advance() (StepResult, bool) {
	if s.state != Running {
		return StepResult{}, false
	}

	res := Step(s.graph, s.config)
	s.steps++
	res.Step = s.steps

	switch {
	case !res.AnyChanged:
		s.halt(ReasonSettled)
	case s.config.MaxSteps > 0 && s.steps >= s.config.MaxSteps:
		s.halt(ReasonMaxSteps)
	}
	return res, s.state == Running
}

// Perturb moves a node by its perturbation amount. It works in both states
// and does not start a run.
func (s *Simulator) Perturb(name string, dir graph.Direction) (float64, error) {
	return s.graph.Perturb(name, dir)
}

// SetValue sets a node's value directly (the slider), clamped.
func (s *Simulator) SetValue(name string, v float64) error {
	return s.graph.SetValue(name, v)
}

// SetDampingFactor changes the damping factor used by the next step.
func (s *Simulator) SetDampingFactor(d float64) error {
	if err := ValidateDampingFactor(d); err != nil {
		return err
	}
	s.config.DampingFactor = d
	return nil
}

// SetStepDelay changes the delay before the next scheduled step.
func (s *Simulator) SetStepDelay(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("step delay must not be negative, got %s", d)
	}
	s.config.StepDelay = d
	return nil
}

// SetMaxSteps changes the step cap. 0 removes it. A running simulator
// already past the new cap stops after its next step.
func (s *Simulator) SetMaxSteps(n int) error {
	if n < 0 {
		return fmt.Errorf("max steps must not be negative, got %d", n)
	}
	s.config.MaxSteps = n
	return nil
}
