// Package funclet validates funclet regions and builds their SSA form in a
// single linear pass over a function body.
//
// A funclet region is a fixed-size ordered collection of funclets forming one
// control-flow nesting level, entered and exited like a structured block. A
// funclet is a single-entry, tail-call-only code unit with no results that
// shares the enclosing function's locals. Control moves between funclets via
// funclet_call, funclet_call_if, and funclet_call_table, or falls through to
// the next funclet on a plain end.
//
// Validation determines every funclet's signature before its body runs,
// resolves forward and backward call edges into a call graph, and drives an
// SSA builder that seals each funclet as soon as its last predecessor is
// known. No byte is visited twice.
//
// The entry point is ValidateFunctionBody.
package funclet
