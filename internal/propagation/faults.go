package propagation

import "sort"

// ShortToNeutral returns the nodes that are both phase-hot and neutral-hot,
// sorted.
func ShortToNeutral(hot HotSet) []string {
	result := make([]string, 0)
	for node := range hot.Phase {
		if hot.Neutral.Has(node) {
			result = append(result, node)
		}
	}
	sort.Strings(result)
	return result
}

// InterPhaseFaults returns the nodes reached by more than one phase identity,
// sorted. A source tagged with two identities is reported here as well since
// its own mask carries both bits.
func InterPhaseFaults(masks map[string]PhaseMask) []string {
	result := make([]string, 0)
	for node, m := range masks {
		if m.Count() > 1 {
			result = append(result, node)
		}
	}
	sort.Strings(result)
	return result
}
