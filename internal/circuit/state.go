package circuit

import (
	"strings"

	"github.com/nvandessel/relaysim/internal/netgraph"
	"github.com/nvandessel/relaysim/internal/propagation"
)

// State is the resolved view of a circuit after one recomputation.
type State struct {
	PhaseHot   propagation.NodeSet
	NeutralHot propagation.NodeSet
	Energized  netgraph.Energization
	Masks      map[string]propagation.PhaseMask

	Shorted    []string // phase-hot and neutral-hot
	InterPhase []string // more than one phase identity
	Faulted    []string // union of Shorted and InterPhase

	Motors map[string]propagation.Direction

	Rounds    int
	Converged bool
}

// IsFaulted reports whether node appears in either fault list.
func (s State) IsFaulted(node string) bool {
	return contains(s.Shorted, node) || contains(s.InterPhase, node)
}

// Status summarizes the fault condition in one line. Inter-phase faults
// take precedence over shorts to neutral.
func (s State) Status() string {
	switch {
	case len(s.InterPhase) > 0:
		return "inter-phase short on: " + strings.Join(s.InterPhase, ", ")
	case len(s.Shorted) > 0:
		return "short on: " + strings.Join(s.Shorted, ", ")
	default:
		return "no shorts"
	}
}

func (s State) clone() State {
	out := s
	out.PhaseHot = s.PhaseHot.Clone()
	out.NeutralHot = s.NeutralHot.Clone()
	out.Energized = copyEnergization(s.Energized)
	out.Masks = make(map[string]propagation.PhaseMask, len(s.Masks))
	for k, v := range s.Masks {
		out.Masks[k] = v
	}
	out.Shorted = append([]string(nil), s.Shorted...)
	out.InterPhase = append([]string(nil), s.InterPhase...)
	out.Faulted = append([]string(nil), s.Faulted...)
	out.Motors = make(map[string]propagation.Direction, len(s.Motors))
	for k, v := range s.Motors {
		out.Motors[k] = v
	}
	return out
}

func contains(sorted []string, node string) bool {
	for _, n := range sorted {
		if n == node {
			return true
		}
	}
	return false
}
