// Package wasmfunclets implements decoding, validation, and SSA construction
// for funclet regions: fixed-count units of straight-line code inside a
// WebAssembly function body that transfer control between each other only
// through tail calls.
//
// Regions are decoded and validated in a single forward pass. Forward call
// edges determine the signatures of later funclets; backward edges are
// declared up front per funclet and drive block sealing during SSA
// construction.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmfunclets/        Root package re-exporting the pipeline entry point
//	├── funclet/         Region decoder, validator, and call graph builder
//	├── ssa/             SSA construction with block arguments and on-the-fly
//	│                    phi placement (sealed/unsealed blocks)
//	├── wasm/            Core WASM binary primitives: LEB128, opcodes,
//	│                    instruction decode/encode, minimal module writer
//	├── lower/           Lowers a validated region to plain core wasm
//	│                    (selector-driven dispatch loop)
//	├── errors/          Structured validation error taxonomy
//	└── cmd/funclet-inspect/  CLI and TUI for inspecting function bodies
//
// # Quick Start
//
// Validate a function body containing funclet regions:
//
//	ctx := &wasmfunclets.TypeContext{
//	    Params:  []wasm.ValType{wasm.ValI32},
//	    Results: []wasm.ValType{wasm.ValI32},
//	}
//
//	vb, err := wasmfunclets.Validate(body, ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, region := range vb.Regions {
//	    fmt.Println(region.NumFunclets(), "funclets")
//	}
//	fmt.Println(vb.SSA.Format())
//
// # Single-Pass Guarantee
//
// Validation never re-reads bytes: signatures of funclets reached only by
// forward edges are inferred from the recorded edge argument types, and
// funclets that declare backward predecessors stay unsealed until the
// declared number of backward edges has been observed. Structured errors in
// the errors package carry the byte offset and funclet index of each
// failure.
package wasmfunclets
