// Package netgraph stores the conductive links between named terminals of a
// circuit. Every wire or contact is kept as a pair of directed links so that
// reachability over the graph is symmetric.
package netgraph

import "sort"

// Link is a directed conductive connection between two nodes.
type Link struct {
	From        string      `json:"from"`
	To          string      `json:"to"`
	Conductance Conductance `json:"conductance"`
}

// Graph is the link store of a circuit. It is not safe for concurrent use;
// the owning circuit serializes all access.
type Graph struct {
	nodes map[string]struct{}
	links []Link
	out   map[string][]int // node -> indexes into links
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]struct{}),
		links: make([]Link, 0),
		out:   make(map[string][]int),
	}
}

// AddNode registers a node without connecting it.
func (g *Graph) AddNode(id string) {
	g.nodes[id] = struct{}{}
}

// HasNode reports whether id is a known node.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// AddLink inserts a->b and b->a with the same conductance and registers both
// endpoints. Duplicate links are allowed; RemoveLink drops all of them.
func (g *Graph) AddLink(a, b string, c Conductance) {
	g.AddNode(a)
	g.AddNode(b)
	g.out[a] = append(g.out[a], len(g.links))
	g.links = append(g.links, Link{From: a, To: b, Conductance: c})
	g.out[b] = append(g.out[b], len(g.links))
	g.links = append(g.links, Link{From: b, To: a, Conductance: c})
}

// RemoveLink removes every link between a and b, in both directions.
// Removing a link that does not exist is a no-op.
func (g *Graph) RemoveLink(a, b string) {
	g.filter(func(l Link) bool {
		return (l.From == a && l.To == b) || (l.From == b && l.To == a)
	})
}

// RemoveNodesFunc removes every link touching a node for which match
// returns true, then forgets those nodes.
func (g *Graph) RemoveNodesFunc(match func(id string) bool) {
	g.filter(func(l Link) bool {
		return match(l.From) || match(l.To)
	})
	for id := range g.nodes {
		if match(id) {
			delete(g.nodes, id)
		}
	}
}

// Outgoing returns the links leaving id, in insertion order.
func (g *Graph) Outgoing(id string) []Link {
	idx := g.out[id]
	if len(idx) == 0 {
		return nil
	}
	result := make([]Link, len(idx))
	for i, j := range idx {
		result[i] = g.links[j]
	}
	return result
}

// Neighbors returns the nodes reachable from id through a single link that
// conducts under the given device state.
func (g *Graph) Neighbors(id string, state DeviceState) []string {
	var result []string
	for _, j := range g.out[id] {
		l := g.links[j]
		if l.Conductance.Conducts(state) {
			result = append(result, l.To)
		}
	}
	return result
}

// Links returns a copy of every directed link in insertion order.
func (g *Graph) Links() []Link {
	result := make([]Link, len(g.links))
	copy(result, g.links)
	return result
}

// Nodes returns all known nodes, sorted.
func (g *Graph) Nodes() []string {
	result := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// Len returns the number of directed links.
func (g *Graph) Len() int {
	return len(g.links)
}

// Clear drops every node and link.
func (g *Graph) Clear() {
	g.nodes = make(map[string]struct{})
	g.links = g.links[:0]
	g.out = make(map[string][]int)
}

// filter drops every link for which drop returns true.
func (g *Graph) filter(drop func(Link) bool) {
	filtered := make([]Link, 0, len(g.links))
	for _, l := range g.links {
		if !drop(l) {
			filtered = append(filtered, l)
		}
	}
	if len(filtered) == len(g.links) {
		return
	}
	g.links = filtered
	g.reindex()
}

func (g *Graph) reindex() {
	out := make(map[string][]int, len(g.out))
	for i, l := range g.links {
		out[l.From] = append(out[l.From], i)
	}
	g.out = out
}
