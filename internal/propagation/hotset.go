package propagation

import (
	"sort"

	"github.com/nvandessel/relaysim/internal/netgraph"
)

// NodeSet is a set of node identifiers.
type NodeSet map[string]struct{}

// NewNodeSet creates a set holding ids.
func NewNodeSet(ids ...string) NodeSet {
	s := make(NodeSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set. A nil set is empty.
func (s NodeSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id.
func (s NodeSet) Add(id string) {
	s[id] = struct{}{}
}

// Remove deletes id.
func (s NodeSet) Remove(id string) {
	delete(s, id)
}

// Sorted returns the members in lexical order.
func (s NodeSet) Sorted() []string {
	result := make([]string, 0, len(s))
	for id := range s {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// Clone returns an independent copy.
func (s NodeSet) Clone() NodeSet {
	c := make(NodeSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Sources holds the caller-declared origins of phase and neutral signal.
// The two sets may overlap.
type Sources struct {
	Phase   NodeSet
	Neutral NodeSet
}

// HotSet is the result of one resolution: every node reachable from the
// phase sources and from the neutral sources over conducting links.
type HotSet struct {
	Phase   NodeSet
	Neutral NodeSet
}

// ResolveHot runs one breadth-first traversal per source set. Conductance is
// evaluated against state each time a link is considered.
func ResolveHot(g *netgraph.Graph, sources Sources, state netgraph.DeviceState) HotSet {
	return HotSet{
		Phase:   Reach(g, sources.Phase, state),
		Neutral: Reach(g, sources.Neutral, state),
	}
}

// Reach returns every node reachable from seeds, seeds included. Each node is
// enqueued at most once.
func Reach(g *netgraph.Graph, seeds NodeSet, state netgraph.DeviceState) NodeSet {
	visited := make(NodeSet, len(seeds))
	if len(seeds) == 0 {
		return visited
	}

	queue := make([]string, 0, len(seeds))
	for _, s := range seeds.Sorted() {
		visited.Add(s)
		queue = append(queue, s)
	}

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range g.Neighbors(u, state) {
			if visited.Has(v) {
				continue
			}
			visited.Add(v)
			queue = append(queue, v)
		}
	}
	return visited
}
