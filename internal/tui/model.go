// Package tui is the interactive terminal simulator. Steps are scheduled
// with tea.Tick, so the simulation advances only while the program runs its
// event loop.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/rajithv/CausalLoop/internal/constants"
	"github.com/rajithv/CausalLoop/internal/grammar"
	"github.com/rajithv/CausalLoop/internal/graph"
	"github.com/rajithv/CausalLoop/internal/logging"
	"github.com/rajithv/CausalLoop/internal/propagation"
)

const (
	historyCapacity = 120
	barWidth        = 30

	dampingStep = 0.05
	minDamping  = 0.05
	maxDamping  = 0.95

	minStepDelay = 50 * time.Millisecond
	maxStepDelay = 5 * time.Second
)

// stepMsg asks the model to take one step. Steps scheduled before the last
// start, stop, reset or reload carry a stale generation and are dropped.
type stepMsg struct {
	gen int
}

// Options configure the terminal simulator.
type Options struct {
	Title string

	// WatchPath, when set, reloads the graph whenever the file changes.
	WatchPath string

	Tracer *logging.StepTracer
	Logger *slog.Logger
}

// Model is the Bubble Tea model of the simulator.
type Model struct {
	sim      *propagation.Simulator
	keys     keyMap
	help     help.Model
	title    string
	selected int
	gen      int
	last     propagation.StepResult
	history  map[string][]float64
	message  string
	err      error
	width    int
	watcher  *fileWatcher
	tracer   *logging.StepTracer
	logger   *slog.Logger
}

// NewModel creates a stopped simulator view over g.
func NewModel(g *graph.Graph, cfg propagation.Config, opts Options) Model {
	m := Model{
		sim:     propagation.NewSimulator(g, cfg),
		keys:    defaultKeyMap(),
		help:    help.New(),
		title:   opts.Title,
		tracer:  opts.Tracer,
		logger:  opts.Logger,
		history: make(map[string][]float64),
	}
	if m.title == "" {
		m.title = "Causal Loop Simulator"
	}
	if m.logger == nil {
		m.logger = logging.Discard()
	}
	m.record()
	return m
}

// Run starts the terminal program and blocks until the user quits or ctx
// is cancelled.
func Run(ctx context.Context, g *graph.Graph, cfg propagation.Config, opts Options) error {
	m := NewModel(g, cfg, opts)
	if opts.WatchPath != "" {
		w, err := newFileWatcher(opts.WatchPath)
		if err != nil {
			return err
		}
		defer w.Close()
		m.watcher = w
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.watcher != nil {
		return m.watcher.wait()
	}
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case stepMsg:
		if msg.gen != m.gen || !m.sim.Running() {
			return m, nil
		}
		return m, m.step()

	case reloadMsg:
		var cmd tea.Cmd
		if m.watcher != nil {
			cmd = m.watcher.wait()
		}
		if msg.err != nil {
			m.err = msg.err
			return m, cmd
		}
		m.gen++
		m.sim.Replace(msg.graph)
		m.selected = 0
		m.last = propagation.StepResult{}
		m.history = make(map[string][]float64)
		m.record()
		m.err = nil
		m.message = fmt.Sprintf("reloaded: %d nodes, %d edges", msg.graph.Len(), len(msg.graph.Edges()))
		m.logger.Info("graph reloaded", "nodes", msg.graph.Len(), "edges", len(msg.graph.Edges()))
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = nil
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.sim.Running() {
			m.sim.Stop()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Toggle):
		m.gen++
		if m.sim.Running() {
			m.sim.Stop()
			m.message = "stopped"
			m.tracer.Log("stop", map[string]any{"reason": m.sim.StopReason(), "steps": m.sim.Steps()})
			return m, nil
		}
		m.sim.Start()
		m.message = "running"
		m.tracer.Log("start", map[string]any{"damping_factor": m.sim.Config().DampingFactor})
		return m, m.schedule(0)

	case key.Matches(msg, m.keys.Reset):
		m.gen++
		m.sim.Reset()
		m.last = propagation.StepResult{}
		m.history = make(map[string][]float64)
		m.record()
		m.message = "reset"
		m.tracer.Log("reset", nil)

	case key.Matches(msg, m.keys.Up):
		if n := m.sim.Graph().Len(); n > 0 {
			m.selected = (m.selected + n - 1) % n
		}

	case key.Matches(msg, m.keys.Down):
		if n := m.sim.Graph().Len(); n > 0 {
			m.selected = (m.selected + 1) % n
		}

	case key.Matches(msg, m.keys.Increase):
		m.perturb(graph.Increase)

	case key.Matches(msg, m.keys.Decrease):
		m.perturb(graph.Decrease)

	case key.Matches(msg, m.keys.DampLess):
		m.adjustDamping(-dampingStep)

	case key.Matches(msg, m.keys.DampMore):
		m.adjustDamping(dampingStep)

	case key.Matches(msg, m.keys.Faster):
		m.adjustDelay(0.5)

	case key.Matches(msg, m.keys.Slower):
		m.adjustDelay(2)

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

// schedule returns a command that delivers a step for the current generation after d.
func (m Model) schedule(d time.Duration) tea.Cmd {
	gen := m.gen
	return tea.Tick(d, func(time.Time) tea.Msg { return stepMsg{gen: gen} })
}

// step advances the simulator once and schedules the next step while the
// run continues.
func (m *Model) step() tea.Cmd {
	res, more := m.sim.Advance()
	if res.Step == 0 {
		return nil
	}
	m.last = res
	m.record()
	m.tracer.Log("step", map[string]any{
		"step":         res.Step,
		"any_changed":  res.AnyChanged,
		"changed":      res.Changed,
		"active_edges": res.ActiveEdges,
		"values":       res.Values,
	})
	m.logger.Log(context.Background(), logging.LevelTrace, "simulation step", "step", res.Step, "changed", len(res.Changed))

	if more {
		return m.schedule(m.sim.StepDelay())
	}
	m.message = fmt.Sprintf("stopped: %s after %d steps", m.sim.StopReason(), m.sim.Steps())
	m.tracer.Log("stop", map[string]any{"reason": m.sim.StopReason(), "steps": m.sim.Steps()})
	return nil
}

func (m *Model) selectedName() string {
	order := m.sim.Graph().Order()
	if m.selected < 0 || m.selected >= len(order) {
		return ""
	}
	return order[m.selected]
}

func (m *Model) perturb(dir graph.Direction) {
	name := m.selectedName()
	if name == "" {
		return
	}
	v, err := m.sim.Perturb(name, dir)
	if err != nil {
		m.err = err
		return
	}
	m.record()
	m.message = fmt.Sprintf("%s %s to %s", dir, name, grammar.FormatNumber(math.Round(v*10)/10))
	m.tracer.Log("perturb", map[string]any{"node": name, "direction": dir, "value": v})
}

func (m *Model) adjustDamping(delta float64) {
	d := math.Round((m.sim.Config().DampingFactor+delta)*100) / 100
	d = min(max(d, minDamping), maxDamping)
	if err := m.sim.SetDampingFactor(d); err != nil {
		m.err = err
		return
	}
	m.message = fmt.Sprintf("damping %.2f", d)
}

func (m *Model) adjustDelay(factor float64) {
	d := time.Duration(float64(m.sim.StepDelay()) * factor)
	d = min(max(d, minStepDelay), maxStepDelay)
	if err := m.sim.SetStepDelay(d); err != nil {
		m.err = err
		return
	}
	m.message = fmt.Sprintf("step delay %s", d)
}

// record appends the current values to the per-node history.
func (m *Model) record() {
	for _, n := range m.sim.Graph().Nodes() {
		h := append(m.history[n.Name], n.Value)
		if len(h) > historyCapacity {
			h = h[len(h)-historyCapacity:]
		}
		m.history[n.Name] = h
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	state := stoppedStyle.Render("stopped")
	if m.sim.Running() {
		state = runningStyle.Render("running")
	}
	cfg := m.sim.Config()
	b.WriteString(titleStyle.Render(m.title) + "  " + state + "\n")
	b.WriteString(statusStyle.Render(fmt.Sprintf("step %d · damping %.2f · delay %s", m.sim.Steps(), cfg.DampingFactor, cfg.StepDelay)) + "\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panelStyle.Render(m.nodesView()), " ", panelStyle.Render(m.edgesView())))
	b.WriteString("\n")

	if chart := m.chartView(); chart != "" {
		b.WriteString(graphStyle.Render(chart) + "\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("error: "+m.err.Error()) + "\n")
	case m.message != "":
		b.WriteString(statusStyle.Render(m.message) + "\n")
	}
	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func (m Model) nodesView() string {
	nodes := m.sim.Graph().Nodes()
	if len(nodes) == 0 {
		return "no nodes"
	}
	lines := make([]string, 0, len(nodes))
	for i, n := range nodes {
		style := labelStyle
		marker := "  "
		if i == m.selected {
			style = selectedStyle
			marker = "▸ "
		}
		filled := int(math.Round(min(n.Value, constants.MaxNodeValue) / constants.MaxNodeValue * barWidth))
		bar := barStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("·", barWidth-filled)
		lines = append(lines, marker+style.Render(n.Name)+valueStyle.Render(fmt.Sprintf("%.1f", n.Value))+"  "+bar)
	}
	return strings.Join(lines, "\n")
}

func (m Model) edgesView() string {
	edges := m.sim.Graph().Edges()
	if len(edges) == 0 {
		return "no edges"
	}
	active := make(map[int]bool, len(m.last.ActiveEdges))
	for _, i := range m.last.ActiveEdges {
		active[i] = true
	}
	lines := make([]string, 0, len(edges))
	for i, e := range edges {
		style := positiveStyle
		if e.Polarity == graph.Negative {
			style = negativeStyle
		}
		if active[i] {
			style = style.Inherit(activeStyle)
		}
		lines = append(lines, style.Render(grammar.FormatEdge(e)))
	}
	return strings.Join(lines, "\n")
}

// chartView plots the value history of the selected node.
func (m Model) chartView() string {
	name := m.selectedName()
	h := m.history[name]
	if len(h) < 2 {
		return ""
	}
	width := 60
	if m.width > 20 {
		width = min(m.width-12, historyCapacity)
	}
	return asciigraph.Plot(h,
		asciigraph.Height(8),
		asciigraph.Width(width),
		asciigraph.Precision(1),
		asciigraph.Caption(name+" history"))
}
