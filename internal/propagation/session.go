package propagation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rajithv/CausalLoop/internal/graph"
	"github.com/rajithv/CausalLoop/internal/logging"
	"github.com/rajithv/CausalLoop/internal/metrics"
)

// ErrSessionClosed is returned by Session methods after Close.
var ErrSessionClosed = errors.New("session closed")

// EventType identifies what a session event reports.
type EventType string

const (
	EventStep    EventType = "step"
	EventState   EventType = "state"
	EventPerturb EventType = "perturb"
	EventValue   EventType = "value"
	EventReset   EventType = "reset"
	EventLoad    EventType = "load"
	EventTuning  EventType = "tuning"
)

// Event is published to session subscribers. Step events carry the step
// result; every other event carries a full snapshot.
type Event struct {
	Type     EventType   `json:"type"`
	Session  string      `json:"session"`
	Step     *StepResult `json:"step,omitempty"`
	Snapshot *Snapshot   `json:"snapshot,omitempty"`
	Node     string      `json:"node,omitempty"`
	Reason   StopReason  `json:"reason,omitempty"`
}

// NodeState is the observable state of one node.
type NodeState struct {
	Name               string  `json:"name"`
	Value              float64 `json:"value"`
	OriginalValue      float64 `json:"original_value"`
	PerturbationAmount float64 `json:"perturbation_amount"`
	X                  float64 `json:"x"`
	Y                  float64 `json:"y"`
}

// Snapshot is a consistent copy of a session's graph and simulator state.
type Snapshot struct {
	Session       string       `json:"session"`
	State         string       `json:"state"`
	Reason        StopReason   `json:"reason,omitempty"`
	Steps         int          `json:"steps"`
	DampingFactor float64      `json:"damping_factor"`
	StepDelayMs   int64        `json:"step_delay_ms"`
	MaxSteps      int          `json:"max_steps"`
	Nodes         []NodeState  `json:"nodes"`
	Edges         []graph.Edge `json:"edges"`
}

// TakeSnapshot copies the state of sim.
func TakeSnapshot(sim *Simulator) Snapshot {
	cfg := sim.Config()
	snap := GraphSnapshot(sim.Graph())
	snap.State = sim.State().String()
	snap.Reason = sim.StopReason()
	snap.Steps = sim.Steps()
	snap.DampingFactor = cfg.DampingFactor
	snap.StepDelayMs = cfg.StepDelay.Milliseconds()
	snap.MaxSteps = cfg.MaxSteps
	return snap
}

// GraphSnapshot copies the nodes and edges of g into a stopped snapshot with
// no simulator settings.
func GraphSnapshot(g *graph.Graph) Snapshot {
	snap := Snapshot{
		State: Stopped.String(),
		Edges: g.Edges(),
		Nodes: make([]NodeState, 0, g.Len()),
	}
	for _, n := range g.Nodes() {
		snap.Nodes = append(snap.Nodes, NodeState{
			Name:               n.Name,
			Value:              n.Value,
			OriginalValue:      n.OriginalValue,
			PerturbationAmount: n.PerturbationAmount,
			X:                  n.X,
			Y:                  n.Y,
		})
	}
	return snap
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithMetrics records steps, runs and tuning on r.
func WithMetrics(r *metrics.Registry) SessionOption {
	return func(s *Session) { s.metrics = r }
}

// WithTracer writes every step and stop to the JSONL tracer.
func WithTracer(t *logging.StepTracer) SessionOption {
	return func(s *Session) { s.tracer = t }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithLayout runs fn on every graph loaded into the session.
func WithLayout(fn func(*graph.Graph)) SessionOption {
	return func(s *Session) { s.layout = fn }
}

// Session owns one Simulator and serializes all access to it through a
// single goroutine. Steps are scheduled on a timer owned by that goroutine;
// a stop, reset or load cancels the pending timer before it is acknowledged,
// so no step runs after any of them returns.
type Session struct {
	id   string
	cmds chan func()
	quit chan struct{}
	done chan struct{}
	once sync.Once

	// Owned by the loop goroutine.
	sim     *Simulator
	timer   *time.Timer
	timerC  <-chan time.Time
	subs    map[int]chan Event
	nextSub int

	metrics *metrics.Registry
	tracer  *logging.StepTracer
	logger  *slog.Logger
	layout  func(*graph.Graph)
}

// NewSession starts a session around g. Close releases it.
func NewSession(g *graph.Graph, cfg Config, opts ...SessionOption) *Session {
	s := &Session{
		id:   uuid.NewString(),
		cmds: make(chan func()),
		quit: make(chan struct{}),
		done: make(chan struct{}),
		sim:  NewSimulator(g, cfg),
		subs: make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.layout != nil {
		s.layout(g)
	}

	s.metrics.SessionOpened()
	s.metrics.SetTuning(cfg.DampingFactor, cfg.StepDelay)

	go s.loop()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Close stops the session goroutine and closes all subscriber channels.
func (s *Session) Close() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Session) loop() {
	defer close(s.done)
	defer s.shutdown()

	for {
		select {
		case <-s.quit:
			return
		case fn := <-s.cmds:
			fn()
		case <-s.timerC:
			s.timer, s.timerC = nil, nil
			s.step()
		}
	}
}

func (s *Session) shutdown() {
	s.cancelTimer()
	if s.sim.Running() {
		s.sim.halt(ReasonCancelled)
		s.metrics.RecordRunEnd(string(ReasonCancelled))
	}
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
		s.metrics.SubscriberDelta(-1)
	}
	s.metrics.SessionClosed()
}

// do runs fn on the session goroutine and waits for it to finish.
func (s *Session) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

func (s *Session) schedule(d time.Duration) {
	s.cancelTimer()
	s.timer = time.NewTimer(d)
	s.timerC = s.timer.C
}

func (s *Session) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer, s.timerC = nil, nil
}

func (s *Session) step() {
	res, more := s.sim.Advance()
	if res.Step == 0 {
		return
	}

	s.metrics.RecordStep(len(res.Changed), len(res.ActiveEdges))
	s.tracer.Log("step", map[string]any{
		"session":      s.id,
		"step":         res.Step,
		"any_changed":  res.AnyChanged,
		"changed":      res.Changed,
		"active_edges": res.ActiveEdges,
		"values":       res.Values,
	})
	s.logger.Log(context.Background(), logging.LevelTrace, "simulation step",
		"session", s.id, "step", res.Step, "changed", len(res.Changed))

	s.publish(Event{Type: EventStep, Step: &res})

	if more {
		s.schedule(s.sim.StepDelay())
		return
	}
	s.runEnded()
}

func (s *Session) runEnded() {
	reason := s.sim.StopReason()
	s.metrics.RecordRunEnd(string(reason))
	s.tracer.Log("stop", map[string]any{"session": s.id, "reason": reason, "steps": s.sim.Steps()})
	s.logger.Debug("simulation stopped", "session", s.id, "reason", reason, "steps", s.sim.Steps())
	s.publishSnapshot(EventState, "", reason)
}

func (s *Session) publishSnapshot(t EventType, node string, reason StopReason) {
	snap := TakeSnapshot(s.sim)
	snap.Session = s.id
	s.publish(Event{Type: t, Snapshot: &snap, Node: node, Reason: reason})
}

// publish delivers ev to every subscriber without blocking. A subscriber
// whose buffer is full misses the event.
func (s *Session) publish(ev Event) {
	ev.Session = s.id
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Debug("dropping session event for slow subscriber", "session", s.id, "subscriber", id, "type", ev.Type)
		}
	}
}

// Subscribe registers a subscriber with the given channel buffer. The
// returned cancel function unregisters it and closes the channel. After
// Close the channel is closed as well.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	var id int
	err := s.do(context.Background(), func() {
		id = s.nextSub
		s.nextSub++
		s.subs[id] = ch
		s.metrics.SubscriberDelta(1)
	})
	if err != nil {
		close(ch)
		return ch, func() {}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = s.do(context.Background(), func() {
				if c, ok := s.subs[id]; ok {
					close(c)
					delete(s.subs, id)
					s.metrics.SubscriberDelta(-1)
				}
			})
		})
	}
	return ch, cancel
}

// Start begins a run and schedules the first step immediately. It reports
// whether the session was stopped before the call.
func (s *Session) Start(ctx context.Context) (bool, error) {
	var started bool
	err := s.do(ctx, func() {
		started = s.sim.Start()
		if !started {
			return
		}
		s.schedule(0)
		s.tracer.Log("start", map[string]any{"session": s.id, "damping_factor": s.sim.Config().DampingFactor})
		s.logger.Debug("simulation started", "session", s.id)
		s.publishSnapshot(EventState, "", ReasonNone)
	})
	return started, err
}

// Stop ends the current run. It reports whether a run was in progress.
func (s *Session) Stop(ctx context.Context) (bool, error) {
	var stopped bool
	err := s.do(ctx, func() {
		s.cancelTimer()
		stopped = s.sim.Stop()
		if stopped {
			s.runEnded()
		}
	})
	return stopped, err
}

// Reset stops any run and restores every node to its build-time value.
func (s *Session) Reset(ctx context.Context) error {
	return s.do(ctx, func() {
		s.cancelTimer()
		wasRunning := s.sim.Running()
		s.sim.Reset()
		if wasRunning {
			s.metrics.RecordRunEnd(string(ReasonReset))
		}
		s.tracer.Log("reset", map[string]any{"session": s.id})
		s.publishSnapshot(EventReset, "", ReasonReset)
	})
}

// Load stops any run and replaces the graph.
func (s *Session) Load(ctx context.Context, g *graph.Graph) error {
	if g == nil {
		return errors.New("load: nil graph")
	}
	return s.do(ctx, func() {
		s.cancelTimer()
		wasRunning := s.sim.Running()
		if s.layout != nil {
			s.layout(g)
		}
		s.sim.Replace(g)
		if wasRunning {
			s.metrics.RecordRunEnd(string(ReasonReplaced))
		}
		s.metrics.RecordGraphLoad(nil)
		s.logger.Info("graph loaded", "session", s.id, "nodes", g.Len(), "edges", len(g.Edges()))
		s.publishSnapshot(EventLoad, "", ReasonNone)
	})
}

// Perturb moves a node by its perturbation amount and returns its new value.
func (s *Session) Perturb(ctx context.Context, name string, dir graph.Direction) (float64, error) {
	var value float64
	var perr error
	err := s.do(ctx, func() {
		value, perr = s.sim.Perturb(name, dir)
		if perr != nil {
			return
		}
		s.metrics.RecordPerturbation(string(dir))
		s.tracer.Log("perturb", map[string]any{"session": s.id, "node": name, "direction": dir, "value": value})
		s.publishSnapshot(EventPerturb, name, ReasonNone)
	})
	if err != nil {
		return 0, err
	}
	return value, perr
}

// SetValue sets a node's value directly.
func (s *Session) SetValue(ctx context.Context, name string, v float64) error {
	var serr error
	err := s.do(ctx, func() {
		if serr = s.sim.SetValue(name, v); serr == nil {
			s.publishSnapshot(EventValue, name, ReasonNone)
		}
	})
	if err != nil {
		return err
	}
	return serr
}

// SetPerturbationAmount changes a node's perturbation step.
func (s *Session) SetPerturbationAmount(ctx context.Context, name string, amount float64) error {
	var serr error
	err := s.do(ctx, func() {
		if serr = s.sim.Graph().SetPerturbationAmount(name, amount); serr == nil {
			s.publishSnapshot(EventValue, name, ReasonNone)
		}
	})
	if err != nil {
		return err
	}
	return serr
}

// SetDampingFactor changes the damping factor; it applies from the next step.
func (s *Session) SetDampingFactor(ctx context.Context, d float64) error {
	return s.tune(ctx, func() error { return s.sim.SetDampingFactor(d) })
}

// SetStepDelay changes the delay between steps; it applies from the next
// scheduled step.
func (s *Session) SetStepDelay(ctx context.Context, d time.Duration) error {
	return s.tune(ctx, func() error { return s.sim.SetStepDelay(d) })
}

// SetMaxSteps changes the step cap; 0 removes it.
func (s *Session) SetMaxSteps(ctx context.Context, n int) error {
	return s.tune(ctx, func() error { return s.sim.SetMaxSteps(n) })
}

func (s *Session) tune(ctx context.Context, apply func() error) error {
	var terr error
	err := s.do(ctx, func() {
		if terr = apply(); terr != nil {
			return
		}
		cfg := s.sim.Config()
		s.metrics.SetTuning(cfg.DampingFactor, cfg.StepDelay)
		s.publishSnapshot(EventTuning, "", ReasonNone)
	})
	if err != nil {
		return err
	}
	return terr
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() {
		snap = TakeSnapshot(s.sim)
		snap.Session = s.id
	})
	return snap, err
}

// Definition returns the session graph as a definition with current values.
func (s *Session) Definition(ctx context.Context) (*graph.Definition, error) {
	var def *graph.Definition
	err := s.do(ctx, func() {
		def = s.sim.Graph().Definition()
	})
	return def, err
}
