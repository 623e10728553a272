// Package ssa builds SSA form for validated funclet regions.
//
// The construction follows the lazy, sealing-based algorithm from Braun et al.
// "Simple and Efficient Construction of Static Single Assignment Form": value
// lookups recurse through predecessors on demand, unsealed blocks hold
// placeholder values until all predecessors are known, and redundant block
// parameters are eliminated afterwards. Phi functions are represented as block
// parameters with matching branch arguments on each incoming edge.
package ssa
