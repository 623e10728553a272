package ssa

import (
	"fmt"
	"strings"
)

// Block is a basic block. One block is created per funclet plus one for the
// region entry.
type Block struct {
	lastDefinitions map[Variable]Value
	unknownValues   map[Variable]Value

	// Params are the block parameters. The leading pinned params carry the
	// funclet signature; the rest are phi params added during construction.
	Params []Value
	Instrs []*Instruction

	preds      []predecessor
	singlePred *Block

	ID           int
	pinnedParams int
	sealed       bool
}

// predecessor records one incoming edge and the branch instruction that
// carries its arguments.
type predecessor struct {
	blk    *Block
	branch *Instruction
}

// Sealed reports whether all predecessors of the block are known.
func (blk *Block) Sealed() bool {
	return blk.sealed
}

// Preds returns the predecessor blocks in edge order.
func (blk *Block) Preds() []*Block {
	out := make([]*Block, len(blk.preds))
	for i := range blk.preds {
		out[i] = blk.preds[i].blk
	}
	return out
}

// AddParam appends a new block parameter of the given type.
func (blk *Block) AddParam(b *Builder, typ Type) Value {
	v := b.allocateValue(typ)
	blk.Params = append(blk.Params, v)
	return v
}

// addParamOn promotes an existing placeholder value to a block parameter.
func (blk *Block) addParamOn(v Value) {
	blk.Params = append(blk.Params, v)
}

// PinParams fixes the current parameters as the block's signature. Pinned
// params survive redundant-parameter elimination.
func (blk *Block) PinParams() {
	blk.pinnedParams = len(blk.Params)
}

// FormatHeader renders the block header for debugging output.
func (blk *Block) FormatHeader() string {
	var b strings.Builder
	fmt.Fprintf(&b, "blk%d: (", blk.ID)
	for i, p := range blk.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteByte(')')
	if len(blk.preds) > 0 {
		b.WriteString(" <--")
		for i := range blk.preds {
			fmt.Fprintf(&b, " blk%d", blk.preds[i].blk.ID)
		}
	}
	return b.String()
}
