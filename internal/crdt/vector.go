package crdt

import (
	"fmt"
	"sort"
	"strings"
)

// Vector represents a grow-only counter vector as a map from node ID to a
// non-negative counter. Thread-safe operations should be handled by the
// caller; in this system the owning actor loop is the only writer.
type Vector map[string]int64

// New creates an empty counter vector.
func New() Vector {
	return make(Vector)
}

// NewForNodes creates a vector with a zero entry for every given node ID.
func NewForNodes(nodeIDs []string) Vector {
	v := New()
	for _, id := range nodeIDs {
		v[id] = 0
	}
	return v
}

// Add increments the counter for the given node ID by delta.
func (v Vector) Add(nodeID string, delta int64) {
	v[nodeID] += delta
}

// Get returns the counter value for the given node ID, or 0 if not present.
func (v Vector) Get(nodeID string) int64 {
	return v[nodeID]
}

// Set sets the counter for the given node ID.
func (v Vector) Set(nodeID string, value int64) {
	v[nodeID] = value
}

// Merge merges another vector into this one, taking the maximum counter
// value for each node ID. Entries never decrease.
func (v Vector) Merge(other Vector) {
	for nodeID, counter := range other {
		if v[nodeID] < counter {
			v[nodeID] = counter
		}
	}
}

// Sum returns the total across all entries.
func (v Vector) Sum() int64 {
	var total int64
	for _, counter := range v {
		total += counter
	}
	return total
}

// Copy creates a deep copy of the vector.
func (v Vector) Copy() Vector {
	out := New()
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Equal checks if two vectors are equal.
func (v Vector) Equal(other Vector) bool {
	if len(v) != len(other) {
		return false
	}
	for nodeID, counter := range v {
		if other[nodeID] != counter {
			return false
		}
	}
	return true
}

// String returns a string representation of the vector.
func (v Vector) String() string {
	if len(v) == 0 {
		return "{}"
	}

	// Sort for deterministic output
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%d", k, v[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
