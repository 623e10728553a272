// Package lower translates a validated funclet region into plain core
// WebAssembly so it can run on any stock engine.
//
// The strategy is a dispatch loop: one selector local plus a nest of blocks
// inside a loop, entered through a br_table on the selector. Every funclet
// call spills its arguments into the target funclet's dedicated locals, sets
// the selector, and branches back to the loop head. A branch to the region
// label becomes a branch to the exit block, which carries the region results.
//
// The lowered body is wrapped into a single-function module by the wasm
// package's writer, which makes the result directly loadable by an engine
// such as wazero.
package lower
