package ssa

import (
	"fmt"
	"strings"
)

// Instruction is a single SSA instruction. Op carries the originating
// bytecode opcode; branch instructions additionally carry the target block
// and the arguments passed to its parameters.
type Instruction struct {
	Imm    interface{}
	Target *Block // branch target, nil for non-branch instructions
	Args   []Value
	Cond   Value // branch condition or selector, ValueInvalid when absent
	Ret    Value
	Op     byte
}

// IsBranch reports whether the instruction transfers control to Target.
func (i *Instruction) IsBranch() bool {
	return i.Target != nil
}

// addBranchArg appends an argument for a parameter added to the target block
// after this branch was recorded.
func (i *Instruction) addBranchArg(v Value) {
	i.Args = append(i.Args, v)
}

// Format renders the instruction for debugging output.
func (i *Instruction) Format(name func(byte) string) string {
	var b strings.Builder
	if i.Ret.Valid() {
		b.WriteString(i.Ret.String())
		b.WriteString(" = ")
	}
	b.WriteString(name(i.Op))
	if i.Imm != nil {
		fmt.Fprintf(&b, " %v", i.Imm)
	}
	if i.Cond.Valid() {
		fmt.Fprintf(&b, " [%s]", i.Cond)
	}
	if i.Target != nil {
		fmt.Fprintf(&b, " blk%d", i.Target.ID)
	}
	if len(i.Args) > 0 {
		b.WriteString(" (")
		for n, a := range i.Args {
			if n > 0 {
				b.WriteString(", ")
			}
			b.WriteString(a.String())
		}
		b.WriteByte(')')
	}
	return b.String()
}
