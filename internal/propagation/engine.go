// Package propagation resolves where phase and neutral signal reach in a
// circuit graph. Contactor coils are energized from the resolved hot-sets and
// their contacts in turn gate the links being traversed, so the engine
// alternates resolution and coil evaluation until no coil changes state.
package propagation

import (
	"sort"

	"github.com/nvandessel/relaysim/internal/netgraph"
)

// DefaultMaxIterations bounds the fixed-point loop.
const DefaultMaxIterations = 12

// Config holds tunable parameters for the solver.
type Config struct {
	// MaxIterations is the number of resolution rounds after which the
	// solver stops even if coils are still changing. Default: 12.
	MaxIterations int
}

// DefaultConfig returns the default solver configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations: DefaultMaxIterations,
	}
}

// Device is a controllable device whose coil sits between two nodes.
type Device struct {
	Prefix     string // Device identifier, e.g. "K1"
	CoilHot    string // Must be phase-hot to energize
	CoilReturn string // Must be neutral-hot to energize
}

// Flip records a device changing state during a solve.
type Flip struct {
	Device    string `json:"device"`
	Round     int    `json:"round"`
	Energized bool   `json:"energized"`
}

// Round summarizes one resolution round.
type Round struct {
	Number     int `json:"round"`
	PhaseHot   int `json:"phase_hot"`
	NeutralHot int `json:"neutral_hot"`
	Flips      int `json:"flips"`
}

// Result is the state the solver settled on.
type Result struct {
	Hot       HotSet
	Energized netgraph.Energization
	Rounds    int  // Resolution rounds executed
	Converged bool // False when MaxIterations was hit with coils still changing
	Flips     []Flip
	History   []Round
}

// Engine runs the energization fixed point. The engine is stateless: the
// graph, sources and current device flags are passed to every Solve call.
type Engine struct {
	config Config
}

// NewEngine creates a solver. A non-positive MaxIterations falls back to
// the default.
func NewEngine(config Config) *Engine {
	if config.MaxIterations < 1 {
		config.MaxIterations = DefaultMaxIterations
	}
	return &Engine{config: config}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Solve iterates resolution and coil evaluation starting from the given
// device flags. Flags for devices not in current are treated as off; flags
// for unknown devices are dropped. When the iteration cap is reached the
// last computed state is returned with Converged set to false.
func (e *Engine) Solve(g *netgraph.Graph, sources Sources, devices []Device, current netgraph.Energization) Result {
	ordered := make([]Device, len(devices))
	copy(ordered, devices)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Prefix < ordered[j].Prefix
	})

	energized := make(netgraph.Energization, len(ordered))
	for _, d := range ordered {
		energized[d.Prefix] = current[d.Prefix]
	}

	result := Result{Energized: energized}

	for round := 1; round <= e.config.MaxIterations; round++ {
		hot := ResolveHot(g, sources, energized)
		result.Hot = hot
		result.Rounds = round

		// All coils are evaluated against the same hot-set.
		changed := false
		flipsBefore := len(result.Flips)
		for _, d := range ordered {
			want := hot.Phase.Has(d.CoilHot) && hot.Neutral.Has(d.CoilReturn)
			if energized[d.Prefix] == want {
				continue
			}
			energized[d.Prefix] = want
			changed = true
			result.Flips = append(result.Flips, Flip{Device: d.Prefix, Round: round, Energized: want})
		}
		result.History = append(result.History, Round{
			Number:     round,
			PhaseHot:   len(hot.Phase),
			NeutralHot: len(hot.Neutral),
			Flips:      len(result.Flips) - flipsBefore,
		})

		if !changed {
			result.Converged = true
			break
		}
	}

	return result
}
