package funclet

// CallGraph accumulates the resolved call edges of one region during the
// linear pass. Edges are append-only; the validator owns predecessor-count
// bookkeeping and sealing decisions, the graph only stores and indexes.
type CallGraph struct {
	byTarget map[uint32][]int
	edges    []CallEdge
}

// NewCallGraph returns an empty call graph.
func NewCallGraph() *CallGraph {
	return &CallGraph{byTarget: make(map[uint32][]int)}
}

// AddEdge appends a resolved edge.
func (g *CallGraph) AddEdge(e CallEdge) {
	g.byTarget[e.To] = append(g.byTarget[e.To], len(g.edges))
	g.edges = append(g.edges, e)
}

// Edges returns all edges in the order they were recorded.
func (g *CallGraph) Edges() []CallEdge {
	return g.edges
}

// EdgesTo returns the edges targeting funclet idx, in recording order.
func (g *CallGraph) EdgesTo(idx uint32) []CallEdge {
	indices := g.byTarget[idx]
	out := make([]CallEdge, len(indices))
	for i, n := range indices {
		out[i] = g.edges[n]
	}
	return out
}

// BackwardEdgeCount returns the number of backward edges targeting idx.
func (g *CallGraph) BackwardEdgeCount(idx uint32) uint32 {
	var n uint32
	for _, i := range g.byTarget[idx] {
		if g.edges[i].Backward {
			n++
		}
	}
	return n
}

// Reachable computes the funclets reachable from the region entry by
// fixed-point iteration over the recorded edges.
func (g *CallGraph) Reachable(numFunclets uint32) map[uint32]bool {
	result := make(map[uint32]bool, numFunclets)
	result[0] = true

	changed := true
	for changed {
		changed = false
		for _, e := range g.edges {
			if e.From == RegionEntry {
				continue // entry edge, funclet 0 is already marked
			}
			if result[uint32(e.From)] && !result[e.To] {
				result[e.To] = true
				changed = true
			}
		}
	}

	return result
}
