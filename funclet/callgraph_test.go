package funclet

import (
	"testing"

	"github.com/wippyai/wasm-funclets/wasm"
)

func TestCallGraphEdgesAndCounts(t *testing.T) {
	g := NewCallGraph()
	g.AddEdge(CallEdge{From: RegionEntry, To: 0})
	g.AddEdge(CallEdge{From: 0, To: 1, Args: []wasm.ValType{wasm.ValI32}})
	g.AddEdge(CallEdge{From: 1, To: 0, Backward: true})
	g.AddEdge(CallEdge{From: 1, To: 1, Backward: true})

	if got := len(g.Edges()); got != 4 {
		t.Fatalf("edges = %d, want 4", got)
	}
	if got := len(g.EdgesTo(0)); got != 2 {
		t.Errorf("edges to 0 = %d, want 2", got)
	}
	if got := g.BackwardEdgeCount(0); got != 1 {
		t.Errorf("backward count to 0 = %d, want 1", got)
	}
	if got := g.BackwardEdgeCount(1); got != 1 {
		t.Errorf("backward count to 1 = %d, want 1", got)
	}
}

func TestCallGraphReachability(t *testing.T) {
	// 0 -> 2, 2 -> 1; funclet 3 has no incoming edge.
	g := NewCallGraph()
	g.AddEdge(CallEdge{From: RegionEntry, To: 0})
	g.AddEdge(CallEdge{From: 0, To: 2})
	g.AddEdge(CallEdge{From: 2, To: 1, Backward: true})

	reach := g.Reachable(4)
	for _, idx := range []uint32{0, 1, 2} {
		if !reach[idx] {
			t.Errorf("funclet %d should be reachable", idx)
		}
	}
	if reach[3] {
		t.Error("funclet 3 should be unreachable")
	}
}
