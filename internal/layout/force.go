// Package layout positions causal-loop nodes in the drawing plane with a
// damped force-directed simulation: every pair of nodes repels, every edge
// pulls its endpoints toward a rest length, and nodes are kept inside a
// rectangular working area.
package layout

import (
	"math"
	"math/rand/v2"

	"github.com/rajithv/CausalLoop/internal/graph"
)

// Config holds the tunable parameters of the force simulation. The zero value
// is not useful; start from DefaultConfig.
type Config struct {
	// CenterX and CenterY are the center of the initial ring.
	CenterX float64
	CenterY float64

	// InitialRadius is the minimum ring radius; each node adds U[0, RadiusJitter).
	InitialRadius float64
	RadiusJitter  float64

	// PositionJitter is the width of the uniform noise added to both axes.
	PositionJitter float64

	// Iterations is the maximum number of simulation steps. Default: 200.
	Iterations int

	// Repulsion is the pairwise repulsion strength (k). Below MinSeparation
	// the force is 2k/(d+1), otherwise k/(d²+10).
	Repulsion     float64
	MinSeparation float64

	// SpringConstant and RestLength define the edge spring.
	SpringConstant float64
	RestLength     float64

	// VelocityDamping multiplies velocity every step. Default: 0.85.
	VelocityDamping float64

	// MinTimeStep is the floor for the annealed time step 1 - iter/Iterations.
	MinTimeStep float64

	// Working area. Nodes leaving it are put back on the boundary with their
	// velocity reflected and scaled by Restitution.
	MinX, MinY  float64
	MaxX, MaxY  float64
	Restitution float64

	// Every ConvergenceInterval iterations the total kinetic energy Σ|v|² is
	// compared with ConvergenceEnergy; below it the run stops early.
	ConvergenceInterval int
	ConvergenceEnergy   float64
}

// DefaultConfig returns the default layout parameters for an 800x600 plane.
func DefaultConfig() Config {
	return Config{
		CenterX:             400,
		CenterY:             300,
		InitialRadius:       60,
		RadiusJitter:        40,
		PositionJitter:      50,
		Iterations:          200,
		Repulsion:           2000,
		MinSeparation:       100,
		SpringConstant:      0.05,
		RestLength:          140,
		VelocityDamping:     0.85,
		MinTimeStep:         0.1,
		MinX:                80,
		MinY:                80,
		MaxX:                720,
		MaxY:                520,
		Restitution:         0.5,
		ConvergenceInterval: 10,
		ConvergenceEnergy:   0.1,
	}
}

// Point is a position in the drawing plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Result is the outcome of one layout run.
type Result struct {
	Positions  map[string]Point `json:"positions"`
	Iterations int              `json:"iterations"`
	Converged  bool             `json:"converged"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand sets the random source used for initial placement and for
// separating coincident nodes.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = r
	}
}

// WithSeed seeds a deterministic random source.
func WithSeed(seed uint64) Option {
	return WithRand(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Engine runs force-directed layouts. Velocities and forces live in a
// per-run scratch slice; only final positions leave Layout.
type Engine struct {
	config Config
	rng    *rand.Rand
}

// NewEngine creates a layout engine.
func NewEngine(config Config, opts ...Option) *Engine {
	e := &Engine{config: config}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return e
}

// Config returns the engine's parameters.
func (e *Engine) Config() Config {
	return e.config
}

type body struct {
	x, y   float64
	vx, vy float64
	fx, fy float64
}

// Layout positions names. Edges whose endpoints are not among names are
// ignored. No two returned positions coincide.
func (e *Engine) Layout(names []string, edges []graph.Edge) Result {
	res := Result{Positions: make(map[string]Point, len(names))}
	if len(names) == 0 {
		res.Converged = true
		return res
	}

	cfg := e.config
	index := make(map[string]int, len(names))
	bodies := make([]body, 0, len(names))
	for _, name := range names {
		if _, dup := index[name]; dup {
			continue
		}
		index[name] = len(bodies)
		bodies = append(bodies, body{})
	}

	n := len(bodies)
	for i := range bodies {
		angle := 2 * math.Pi * float64(i) / float64(n)
		radius := cfg.InitialRadius + e.rng.Float64()*cfg.RadiusJitter
		bodies[i].x = cfg.CenterX + radius*math.Cos(angle) + (e.rng.Float64()-0.5)*cfg.PositionJitter
		bodies[i].y = cfg.CenterY + radius*math.Sin(angle) + (e.rng.Float64()-0.5)*cfg.PositionJitter
	}

	type spring struct{ a, b int }
	springs := make([]spring, 0, len(edges))
	for _, edge := range edges {
		a, okA := index[edge.Source]
		b, okB := index[edge.Target]
		if okA && okB && a != b {
			springs = append(springs, spring{a, b})
		}
	}

	for iter := 0; iter < cfg.Iterations; iter++ {
		res.Iterations = iter + 1

		for i := range bodies {
			bodies[i].fx, bodies[i].fy = 0, 0
		}

		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				dx := bodies[j].x - bodies[i].x
				dy := bodies[j].y - bodies[i].y
				d := math.Hypot(dx, dy)

				var ux, uy float64
				if d > 0 {
					ux, uy = dx/d, dy/d
				} else {
					// Coincident: push apart along a random direction.
					ux, uy = e.randomDirection()
				}

				var f float64
				if d < cfg.MinSeparation {
					f = cfg.Repulsion * 2 / (d + 1)
				} else {
					f = cfg.Repulsion / (d*d + 10)
				}

				bodies[i].fx -= ux * f
				bodies[i].fy -= uy * f
				bodies[j].fx += ux * f
				bodies[j].fy += uy * f
			}
		}

		for _, s := range springs {
			dx := bodies[s.b].x - bodies[s.a].x
			dy := bodies[s.b].y - bodies[s.a].y
			d := math.Hypot(dx, dy)
			if d == 0 {
				continue
			}
			f := cfg.SpringConstant * (d - cfg.RestLength)
			fx, fy := dx/d*f, dy/d*f
			bodies[s.a].fx += fx
			bodies[s.a].fy += fy
			bodies[s.b].fx -= fx
			bodies[s.b].fy -= fy
		}

		dt := math.Max(cfg.MinTimeStep, 1-float64(iter)/float64(cfg.Iterations))
		for i := range bodies {
			b := &bodies[i]
			b.vx = (b.vx + b.fx*dt) * cfg.VelocityDamping
			b.vy = (b.vy + b.fy*dt) * cfg.VelocityDamping
			b.x += b.vx
			b.y += b.vy
			e.bounce(b)
		}

		if cfg.ConvergenceInterval > 0 && iter%cfg.ConvergenceInterval == 0 {
			var energy float64
			for _, b := range bodies {
				energy += b.vx*b.vx + b.vy*b.vy
			}
			if energy < cfg.ConvergenceEnergy {
				res.Converged = true
				break
			}
		}
	}

	e.separate(bodies)

	for name, i := range index {
		res.Positions[name] = Point{X: bodies[i].x, Y: bodies[i].y}
	}
	return res
}

// Apply lays out g and writes the positions onto its nodes.
func (e *Engine) Apply(g *graph.Graph) Result {
	res := e.Layout(g.Order(), g.Edges())
	for _, n := range g.Nodes() {
		if p, ok := res.Positions[n.Name]; ok {
			n.X, n.Y = p.X, p.Y
		}
	}
	return res
}

func (e *Engine) randomDirection() (float64, float64) {
	angle := e.rng.Float64() * 2 * math.Pi
	return math.Cos(angle), math.Sin(angle)
}

func (e *Engine) bounce(b *body) {
	cfg := e.config
	if b.x < cfg.MinX {
		b.x = cfg.MinX
		b.vx = math.Abs(b.vx) * cfg.Restitution
	} else if b.x > cfg.MaxX {
		b.x = cfg.MaxX
		b.vx = -math.Abs(b.vx) * cfg.Restitution
	}
	if b.y < cfg.MinY {
		b.y = cfg.MinY
		b.vy = math.Abs(b.vy) * cfg.Restitution
	} else if b.y > cfg.MaxY {
		b.y = cfg.MaxY
		b.vy = -math.Abs(b.vy) * cfg.Restitution
	}
}

// minGap is the distance a coincident node is moved by in the final pass.
const minGap = 1.0

// separate moves any node that sits exactly on an earlier node. Pinning to
// the working-area boundary can make two nodes land on the same corner.
func (e *Engine) separate(bodies []body) {
	for j := 1; j < len(bodies); j++ {
		for coincides(bodies[:j], bodies[j]) {
			ux, uy := e.randomDirection()
			bodies[j].x += ux * minGap
			bodies[j].y += uy * minGap
			e.bounce(&bodies[j])
		}
	}
}

func coincides(placed []body, b body) bool {
	for _, p := range placed {
		if p.x == b.x && p.y == b.y {
			return true
		}
	}
	return false
}
