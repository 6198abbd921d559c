package propagation

import (
	"context"
	"time"
)

// Run drives sim headlessly: it starts a run, takes the first step at once,
// then one step per StepDelay until the simulator stops or ctx is done.
// onStep, if non-nil, sees every step. Run returns the reason the run ended.
// Cancelling ctx stops the simulator before Run returns.
func Run(ctx context.Context, sim *Simulator, onStep func(StepResult)) StopReason {
	if !sim.Start() {
		return ReasonNone
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			sim.halt(ReasonCancelled)
			return ReasonCancelled
		case <-timer.C:
		}

		// A cancelled context wins over a timer that fired at the same time.
		if ctx.Err() != nil {
			sim.halt(ReasonCancelled)
			return ReasonCancelled
		}

		res, more := sim.Advance()
		if res.Step > 0 && onStep != nil {
			onStep(res)
		}
		if !more {
			return sim.StopReason()
		}
		timer.Reset(sim.StepDelay())
	}
}

// RunSteps takes up to n steps back to back, without delays, and returns
// the results. It stops early once a step commits nothing.
func RunSteps(sim *Simulator, n int) []StepResult {
	if !sim.Running() {
		sim.Start()
	}
	var out []StepResult
	for i := 0; i < n; i++ {
		res, more := sim.Advance()
		if res.Step > 0 {
			out = append(out, res)
		}
		if !more {
			break
		}
	}
	if sim.Running() {
		sim.Stop()
	}
	return out
}
