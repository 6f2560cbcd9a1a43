package broadcast

import "sort"

// Mode selects where the gossip neighbor graph comes from.
type Mode string

const (
	// ModeStatic uses the adjacency supplied by the external harness in the
	// topology message. Propagation latency depends on whatever graph the
	// harness chose.
	ModeStatic Mode = "static"

	// ModeTree ignores the harness adjacency and derives a bounded-degree
	// spanning tree over the sorted cluster IDs. Degree is capped at
	// fanout+1, which bounds per-tick message cost at the price of a
	// diameter of log_fanout(n) hops.
	ModeTree Mode = "tree"
)

// Valid reports whether m names a known topology mode.
func (m Mode) Valid() bool {
	return m == ModeStatic || m == ModeTree
}

// Tree returns self's neighbors in a fanout-ary tree laid over the sorted
// cluster IDs: the parent plus up to fanout children. Every node derives the
// same tree independently, so no coordination is needed.
func Tree(clusterIDs []string, self string, fanout int) []string {
	if fanout < 2 {
		fanout = 2
	}

	ids := append([]string(nil), clusterIDs...)
	sort.Strings(ids)

	pos := -1
	for i, id := range ids {
		if id == self {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil
	}

	var neighbors []string
	if pos > 0 {
		neighbors = append(neighbors, ids[(pos-1)/fanout])
	}
	for c := pos*fanout + 1; c <= pos*fanout+fanout && c < len(ids); c++ {
		neighbors = append(neighbors, ids[c])
	}
	return neighbors
}
