// Package visualization renders resolved circuits in various output formats.
package visualization

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nvandessel/relaysim/internal/circuit"
	"github.com/nvandessel/relaysim/internal/netgraph"
)

// Format specifies the output format for circuit rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// Node fill colors by electrical condition.
const (
	colorFault   = "orange"
	colorPhase   = "indianred1"
	colorNeutral = "lightblue"
	colorIdle    = "white"
)

// edgeStyles maps conductance kinds to DOT styles.
var edgeStyles = map[netgraph.ConductanceKind]string{
	netgraph.KindAlways:          "solid",
	netgraph.KindWhenEnergized:   "dashed",
	netgraph.KindWhenDeenergized: "dotted",
}

// View is everything a renderer needs: the graph plus its resolved state.
type View struct {
	Nodes []string
	Links []netgraph.Link
	State circuit.State
}

// FromCircuit captures a view of c.
func FromCircuit(c *circuit.Circuit) View {
	return View{Nodes: c.Nodes(), Links: c.Links(), State: c.Snapshot()}
}

// Edge is one undirected connection between two nodes.
type Edge struct {
	A           string
	B           string
	Conductance netgraph.Conductance
	Conducting  bool
}

// Edges folds the directed links into undirected edges, one per node pair
// and conductance, sorted by endpoints.
func (v View) Edges() []Edge {
	seen := make(map[string]bool)
	var edges []Edge
	for _, l := range v.Links {
		a, b := l.From, l.To
		if b < a {
			a, b = b, a
		}
		key := a + "|" + b + "|" + l.Conductance.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		edges = append(edges, Edge{
			A:           a,
			B:           b,
			Conductance: l.Conductance,
			Conducting:  l.Conductance.Conducts(v.State.Energized),
		})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].A != edges[j].A {
			return edges[i].A < edges[j].A
		}
		if edges[i].B != edges[j].B {
			return edges[i].B < edges[j].B
		}
		return edges[i].Conductance.String() < edges[j].Conductance.String()
	})
	return edges
}

func nodeColor(s circuit.State, node string) string {
	switch {
	case s.IsFaulted(node):
		return colorFault
	case s.PhaseHot.Has(node):
		return colorPhase
	case s.NeutralHot.Has(node):
		return colorNeutral
	default:
		return colorIdle
	}
}

// RenderDOT produces a Graphviz DOT representation of the circuit. Phase-hot
// nodes are red, neutral-hot nodes blue and faulted nodes orange. Open
// contacts are drawn gray.
func RenderDOT(v View) string {
	var b strings.Builder
	b.WriteString("graph relaysim {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for _, n := range v.Nodes {
		b.WriteString(fmt.Sprintf("  %q [fillcolor=%q, tooltip=\"phases=%#x\"];\n",
			n, nodeColor(v.State, n), uint32(v.State.Masks[n])))
	}
	b.WriteString("\n")

	for _, e := range v.Edges() {
		style := edgeStyles[e.Conductance.Kind]
		color := "black"
		if !e.Conducting {
			color = "gray"
		}
		if e.Conductance.Kind == netgraph.KindAlways {
			b.WriteString(fmt.Sprintf("  %q -- %q [style=%s, color=%s];\n", e.A, e.B, style, color))
			continue
		}
		b.WriteString(fmt.Sprintf("  %q -- %q [label=%q, style=%s, color=%s];\n",
			e.A, e.B, e.Conductance.String(), style, color))
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON-ready map with nodes, edges, devices and the
// fault summary.
func RenderJSON(v View) map[string]any {
	s := v.State

	nodes := make([]map[string]any, 0, len(v.Nodes))
	for _, n := range v.Nodes {
		nodes = append(nodes, map[string]any{
			"id":          n,
			"phase_hot":   s.PhaseHot.Has(n),
			"neutral_hot": s.NeutralHot.Has(n),
			"faulted":     s.IsFaulted(n),
			"phase_mask":  uint32(s.Masks[n]),
		})
	}

	edges := v.Edges()
	jsonEdges := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		jsonEdges = append(jsonEdges, map[string]any{
			"a":           e.A,
			"b":           e.B,
			"conductance": e.Conductance.String(),
			"conducting":  e.Conducting,
		})
	}

	motors := make(map[string]string, len(s.Motors))
	for prefix, dir := range s.Motors {
		motors[prefix] = dir.String()
	}

	return map[string]any{
		"nodes":       nodes,
		"edges":       jsonEdges,
		"energized":   s.Energized,
		"motors":      motors,
		"shorted":     nonNil(s.Shorted),
		"inter_phase": nonNil(s.InterPhase),
		"status":      s.Status(),
		"rounds":      s.Rounds,
		"converged":   s.Converged,
		"node_count":  len(nodes),
		"edge_count":  len(jsonEdges),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
