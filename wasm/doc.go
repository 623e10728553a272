// Package wasm implements the binary substrate consumed by the funclet
// pipeline: LEB128 integer codecs, value and function types, the core
// instruction subset with its immediates, and the funclet extension opcodes
// (funclet_region, funclet_sig, funclet_call, funclet_call_if,
// funclet_call_table).
//
// Decoding is strictly incremental: DecodeInstruction consumes exactly one
// instruction from a forward-only reader, which is what lets the validator
// in package funclet make a single linear pass over a function body.
package wasm
