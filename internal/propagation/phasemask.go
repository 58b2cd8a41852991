package propagation

import (
	"math/bits"
	"strings"

	"github.com/nvandessel/relaysim/internal/netgraph"
)

// MaxPhaseIdentities is the number of distinct phase identities a mask can hold.
const MaxPhaseIdentities = 32

// PhaseMask has one bit per phase identity that reaches a node.
type PhaseMask uint32

// Bit returns the mask for identity index i (0-based).
func Bit(i int) PhaseMask {
	return PhaseMask(1) << uint(i)
}

// Count returns the number of identities in the mask.
func (m PhaseMask) Count() int {
	return bits.OnesCount32(uint32(m))
}

// Single returns the identity index when exactly one bit is set.
func (m PhaseMask) Single() (int, bool) {
	if m.Count() != 1 {
		return -1, false
	}
	return bits.TrailingZeros32(uint32(m)), true
}

// Classifier maps a phase source node to the identities it represents.
// A result of zero means the source carries no tracked identity.
type Classifier interface {
	Identity(node string) PhaseMask
}

// SuffixClassifier assigns bit i to nodes ending with the i-th suffix.
type SuffixClassifier []string

// DefaultSuffixes names the three rails of a three-phase supply.
var DefaultSuffixes = SuffixClassifier{"L1", "L2", "L3"}

// Identity implements Classifier.
func (c SuffixClassifier) Identity(node string) PhaseMask {
	var m PhaseMask
	for i, suffix := range c {
		if i >= MaxPhaseIdentities {
			break
		}
		if strings.HasSuffix(node, suffix) {
			m |= Bit(i)
		}
	}
	return m
}

// TaggedClassifier uses explicit per-node tags, falling back to another
// classifier for untagged nodes.
type TaggedClassifier struct {
	Tags     map[string]PhaseMask
	Fallback Classifier
}

// Identity implements Classifier.
func (c TaggedClassifier) Identity(node string) PhaseMask {
	if m, ok := c.Tags[node]; ok {
		return m
	}
	if c.Fallback == nil {
		return 0
	}
	return c.Fallback.Identity(node)
}

// PhaseMasks runs one traversal per identity from all phase sources of that
// identity and ORs the identity bit into every node it reaches. Nodes no
// identity reaches are absent from the result.
func PhaseMasks(g *netgraph.Graph, phaseSources NodeSet, classifier Classifier, state netgraph.DeviceState) map[string]PhaseMask {
	masks := make(map[string]PhaseMask)
	if classifier == nil || len(phaseSources) == 0 {
		return masks
	}

	perIdentity := make([]NodeSet, MaxPhaseIdentities)
	for _, s := range phaseSources.Sorted() {
		m := classifier.Identity(s)
		for i := 0; i < MaxPhaseIdentities && m != 0; i++ {
			if m&Bit(i) == 0 {
				continue
			}
			if perIdentity[i] == nil {
				perIdentity[i] = make(NodeSet)
			}
			perIdentity[i].Add(s)
		}
	}

	for i, seeds := range perIdentity {
		if len(seeds) == 0 {
			continue
		}
		bit := Bit(i)
		for node := range Reach(g, seeds, state) {
			masks[node] |= bit
		}
	}
	return masks
}
