package wasmfunclets

import (
	"github.com/wippyai/wasm-funclets/funclet"
)

// Re-exported pipeline types so simple callers only need the root package.
type (
	// TypeContext supplies the function-level typing environment for
	// validation: the module's types, function signatures, and the current
	// function's params, results, and locals.
	TypeContext = funclet.TypeContext

	// ValidatedBody is the output of validating a function body: its funclet
	// regions, call graphs, and constructed SSA form.
	ValidatedBody = funclet.ValidatedBody

	// FuncletRegion describes one decoded funclet region.
	FuncletRegion = funclet.FuncletRegion

	// Funclet describes one funclet within a region.
	Funclet = funclet.Funclet

	// CallEdge is one recorded funclet call edge.
	CallEdge = funclet.CallEdge
)

// RegionEntry marks a call edge originating at the region entry rather than
// at a funclet.
const RegionEntry = funclet.RegionEntry

// Validate decodes and validates a function body containing funclet regions
// in a single forward pass, building SSA as a side effect.
func Validate(body []byte, ctx *TypeContext) (*ValidatedBody, error) {
	return funclet.ValidateFunctionBody(body, ctx)
}
