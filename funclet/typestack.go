package funclet

import (
	"github.com/wippyai/wasm-funclets/ssa"
	"github.com/wippyai/wasm-funclets/wasm"
)

// typeUnknown is the polymorphic bottom type produced when popping inside
// unreachable code.
const typeUnknown wasm.ValType = 0

// stackEntry is one abstract operand: its type and the SSA value that
// produced it. Val is ssa.ValueInvalid for operands materialized in dead
// code.
type stackEntry struct {
	Typ wasm.ValType
	Val ssa.Value
}

// typeStack tracks the abstract operand stack during the linear pass. Marks
// are plain heights owned by the enclosing control frames; values above a
// mark at a control transfer are the transfer's arguments.
type typeStack struct {
	entries []stackEntry
}

func (s *typeStack) push(typ wasm.ValType, val ssa.Value) {
	s.entries = append(s.entries, stackEntry{Typ: typ, Val: val})
}

// pop removes and returns the top entry. The second result is false on
// underflow; the caller decides whether underflow is an error or a
// polymorphic read in unreachable code.
func (s *typeStack) pop() (stackEntry, bool) {
	if len(s.entries) == 0 {
		return stackEntry{}, false
	}
	e := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return e, true
}

// mark returns the current height for later use as a stack floor.
func (s *typeStack) mark() int {
	return len(s.entries)
}

func (s *typeStack) height() int {
	return len(s.entries)
}

// truncate drops all entries above height h.
func (s *typeStack) truncate(h int) {
	s.entries = s.entries[:h]
}

// valuesAbove returns the entries above height h in stack order (bottom
// first). The returned slice is a copy.
func (s *typeStack) valuesAbove(h int) []stackEntry {
	out := make([]stackEntry, len(s.entries)-h)
	copy(out, s.entries[h:])
	return out
}

// typesAbove returns just the types above height h in stack order.
func (s *typeStack) typesAbove(h int) []wasm.ValType {
	out := make([]wasm.ValType, len(s.entries)-h)
	for i, e := range s.entries[h:] {
		out[i] = e.Typ
	}
	return out
}
