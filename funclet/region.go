package funclet

import (
	"github.com/wippyai/wasm-funclets/ssa"
	"github.com/wippyai/wasm-funclets/wasm"
)

// RegionEntry is the synthetic caller index of the implicit edge from the
// enclosing code into funclet 0. It carries the region's parameters.
const RegionEntry int32 = -1

// Funclet is one code unit inside a region, identified by its 0-based index.
// Its signature is argument types only: a funclet has no results because
// every transfer out of it is a tail call.
type Funclet struct {
	Sig   []wasm.ValType
	Block *ssa.Block

	Index uint32

	// DeclaredPreds is the backward-predecessor count from an explicit
	// funclet_sig, and ObservedBackward the running count of backward edges
	// seen so far.
	DeclaredPreds    uint32
	ObservedBackward uint32

	// StartOffset is the byte offset of the funclet's first instruction.
	StartOffset int

	Declared    bool // carried an explicit funclet_sig
	SigResolved bool
	Started     bool
}

// Sealed reports whether the funclet's predecessor set is final.
func (f *Funclet) Sealed() bool {
	return f.Block != nil && f.Block.Sealed()
}

// CallEdge is one resolved control transfer between funclets. From is
// RegionEntry for the implicit edge into funclet 0.
type CallEdge struct {
	Args     []wasm.ValType
	From     int32
	To       uint32
	Offset   int
	Backward bool
}

// FuncletRegion is a validated region: its signature, funclets, resolved
// call graph, and the SSA exit block collecting the region results.
type FuncletRegion struct {
	Params  []wasm.ValType
	Results []wasm.ValType

	Funclets []*Funclet
	Graph    *CallGraph

	Exit *ssa.Block

	// Depth is the control nesting depth at which the region opened, for
	// branch-target resolution in diagnostics.
	Depth int

	// StartOffset is the byte offset of the funclet_region opcode.
	StartOffset int
}

// NumFunclets returns the fixed funclet count declared at region entry.
func (r *FuncletRegion) NumFunclets() uint32 {
	return uint32(len(r.Funclets))
}

// ValidatedBody is the result of validating one function body: the regions
// it contains in decode order and the SSA form built alongside validation.
type ValidatedBody struct {
	Regions []*FuncletRegion
	SSA     *ssa.Builder

	// Entry is the SSA block holding the code before the first region.
	Entry *ssa.Block
}
