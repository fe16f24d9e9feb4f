package models

import (
	"bytes"
)

// Registry is the fixed, ordered set of configured neighbors. Its order is the
// tie-break when two neighbors verify the same signature.
type Registry struct {
	neighbors []*Neighbor
}

// NewRegistry creates one Neighbor per address, preserving order.
func NewRegistry(addresses []Address) *Registry {
	neighbors := make([]*Neighbor, 0, len(addresses))
	for _, addr := range addresses {
		neighbors = append(neighbors, NewNeighbor(addr))
	}
	return &Registry{neighbors: neighbors}
}

// All returns the neighbors in configuration order.
func (r *Registry) All() []*Neighbor {
	if r == nil {
		return nil
	}
	return append([]*Neighbor(nil), r.neighbors...)
}

// Len returns the number of configured neighbors.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.neighbors)
}

// Attribute finds the neighbor that sent from source. An exact host and port
// match anywhere in the registry beats a host-only match.
func (r *Registry) Attribute(source Address) *Neighbor {
	if r == nil {
		return nil
	}
	for _, n := range r.neighbors {
		if n.MatchesExact(source) {
			return n
		}
	}
	for _, n := range r.neighbors {
		if n.MatchesHost(source) {
			return n
		}
	}
	return nil
}

// Snapshots returns a copy of every neighbor in configuration order.
func (r *Registry) Snapshots() []NeighborSnapshot {
	if r == nil {
		return nil
	}
	out := make([]NeighborSnapshot, 0, len(r.neighbors))
	for _, n := range r.neighbors {
		out = append(out, n.Snapshot())
	}
	return out
}

// DuplicateKeys returns groups of neighbors currently sharing a public key.
func (r *Registry) DuplicateKeys() [][]*Neighbor {
	if r == nil {
		return nil
	}

	var groups [][]*Neighbor
	seen := make([]bool, len(r.neighbors))
	for i, a := range r.neighbors {
		if seen[i] {
			continue
		}
		keyA := a.PublicKey()
		if keyA == nil {
			continue
		}
		group := []*Neighbor{a}
		for j := i + 1; j < len(r.neighbors); j++ {
			if seen[j] {
				continue
			}
			if bytes.Equal(keyA, r.neighbors[j].PublicKey()) {
				group = append(group, r.neighbors[j])
				seen[j] = true
			}
		}
		if len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}
