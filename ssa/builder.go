package ssa

import (
	"fmt"
	"sort"
	"strings"
)

// Builder builds the SSA form of one funclet region.
type Builder struct {
	aliases    map[Value]Value
	currentBlk *Block
	blocks     []*Block
	variables  []Type
	valueTypes []Type
	opName     func(byte) string
}

// NewBuilder returns a new Builder. opName renders opcodes in debugging
// output; nil falls back to hex.
func NewBuilder(opName func(byte) string) *Builder {
	if opName == nil {
		opName = func(op byte) string { return fmt.Sprintf("op(0x%02x)", op) }
	}
	return &Builder{
		aliases: make(map[Value]Value),
		opName:  opName,
	}
}

// AllocateBlock creates a new basic block.
func (b *Builder) AllocateBlock() *Block {
	blk := &Block{
		ID:              len(b.blocks),
		lastDefinitions: make(map[Variable]Value),
		unknownValues:   make(map[Variable]Value),
	}
	b.blocks = append(b.blocks, blk)
	return blk
}

// Blocks returns all allocated blocks in allocation order.
func (b *Builder) Blocks() []*Block {
	return b.blocks
}

// CurrentBlock returns the block set by the latest SetCurrentBlock.
func (b *Builder) CurrentBlock() *Block {
	return b.currentBlk
}

// SetCurrentBlock sets the instruction insertion target.
func (b *Builder) SetCurrentBlock(blk *Block) {
	b.currentBlk = blk
}

// DeclareVariable declares a variable of the given type.
func (b *Builder) DeclareVariable(typ Type) Variable {
	v := Variable(len(b.variables))
	b.variables = append(b.variables, typ)
	return v
}

// VariableType returns the declared type of the variable.
func (b *Builder) VariableType(v Variable) Type {
	typ := b.variables[v]
	if typ.invalid() {
		panic(fmt.Sprintf("BUG: %s is not declared", v))
	}
	return typ
}

// DefineVariable records value as the latest definition of variable in block.
func (b *Builder) DefineVariable(variable Variable, value Value, blk *Block) {
	blk.lastDefinitions[variable] = value
}

// allocateValue allocates an unused Value of the given type.
func (b *Builder) allocateValue(typ Type) Value {
	v := Value(len(b.valueTypes))
	b.valueTypes = append(b.valueTypes, typ)
	return v
}

// ValueType returns the type of the value.
func (b *Builder) ValueType(v Value) Type {
	return b.valueTypes[v]
}

// FindValue searches the latest definition of variable reaching the current
// block and returns it, materializing block parameters as needed.
func (b *Builder) FindValue(variable Variable) Value {
	typ := b.VariableType(variable)
	return b.findValue(typ, variable, b.currentBlk)
}

// findValue recursively finds the latest definition of a variable. The
// algorithm is described in section 2 of the Braun et al. paper
// https://link.springer.com/content/pdf/10.1007/978-3-642-37051-9_6.pdf.
func (b *Builder) findValue(typ Type, variable Variable, blk *Block) Value {
	if val, ok := blk.lastDefinitions[variable]; ok {
		// The value is already defined in this block.
		return val
	} else if !blk.sealed {
		// The block may gain predecessors later, so define a placeholder
		// here and record it as unknown. It is resolved when the block is
		// sealed.
		value := b.allocateValue(typ)
		blk.lastDefinitions[variable] = value
		blk.unknownValues[variable] = value
		return value
	}

	if pred := blk.singlePred; pred != nil {
		// A sealed block with a single predecessor can use that block's
		// definition without ambiguity.
		return b.findValue(typ, variable, pred)
	}

	// Multiple predecessors: gather the definitions as a block parameter.
	// Redundant parameters are eliminated later.
	paramValue := blk.AddParam(b, typ)
	b.DefineVariable(variable, paramValue, blk)
	for i := range blk.preds {
		pred := &blk.preds[i]
		value := b.findValue(typ, variable, pred.blk)
		pred.branch.addBranchArg(value)
	}
	return paramValue
}

// AddPred records pred as a predecessor of blk, with branch carrying the
// edge arguments. Calling this on a sealed block is a bug in the caller.
func (b *Builder) AddPred(blk, pred *Block, branch *Instruction) {
	if blk.sealed {
		panic(fmt.Sprintf("BUG: adding predecessor to sealed blk%d", blk.ID))
	}
	if branch.Target != blk {
		panic("BUG: branch target does not match predecessor edge")
	}
	blk.preds = append(blk.preds, predecessor{blk: pred, branch: branch})
}

// Seal declares that all predecessors of blk are known. Placeholder values
// recorded while the block was unsealed become block parameters fed by every
// incoming edge.
func (b *Builder) Seal(blk *Block) {
	if blk.sealed {
		return
	}
	if len(blk.preds) == 1 {
		blk.singlePred = blk.preds[0].blk
	}
	blk.sealed = true

	// Sort placeholders by value ID so parameter order is deterministic.
	unknowns := make([]Value, 0, len(blk.unknownValues))
	varOf := make(map[Value]Variable, len(blk.unknownValues))
	for variable, phi := range blk.unknownValues {
		unknowns = append(unknowns, phi)
		varOf[phi] = variable
	}
	sort.Slice(unknowns, func(i, j int) bool { return unknowns[i] < unknowns[j] })

	for _, phi := range unknowns {
		variable := varOf[phi]
		typ := b.VariableType(variable)
		blk.addParamOn(phi)
		for i := range blk.preds {
			pred := &blk.preds[i]
			predValue := b.findValue(typ, variable, pred.blk)
			pred.branch.addBranchArg(predValue)
		}
	}
	blk.unknownValues = nil
}

// Insert appends an instruction with no result to the current block.
func (b *Builder) Insert(op byte, imm interface{}, args ...Value) *Instruction {
	instr := &Instruction{Op: op, Imm: imm, Args: args, Cond: ValueInvalid, Ret: ValueInvalid}
	b.currentBlk.Instrs = append(b.currentBlk.Instrs, instr)
	return instr
}

// InsertWithResult appends an instruction producing one value of type typ.
func (b *Builder) InsertWithResult(typ Type, op byte, imm interface{}, args ...Value) Value {
	instr := b.Insert(op, imm, args...)
	instr.Ret = b.allocateValue(typ)
	return instr.Ret
}

// InsertBranch appends a branch to target. cond is the branch condition or
// selector, ValueInvalid for unconditional branches. args feed the target's
// pinned parameters and must match their count at the time of the call.
func (b *Builder) InsertBranch(op byte, target *Block, cond Value, args []Value) *Instruction {
	instr := &Instruction{Op: op, Target: target, Cond: cond, Args: args, Ret: ValueInvalid}
	b.currentBlk.Instrs = append(b.currentBlk.Instrs, instr)
	return instr
}

// EliminateRedundantParams removes non-pinned block parameters whose incoming
// arguments all resolve to a single value (or the parameter itself), aliasing
// the parameter to that value. Runs to a fixed point, then rewrites all
// instruction operands through the alias map.
func (b *Builder) EliminateRedundantParams() {
	for changed := true; changed; {
		changed = false
		for _, blk := range b.blocks {
			if len(blk.preds) == 0 {
				continue
			}
			for i := blk.pinnedParams; i < len(blk.Params); {
				param := blk.Params[i]
				unique := ValueInvalid
				redundant := true
				for pi := range blk.preds {
					arg := b.ResolveAlias(blk.preds[pi].branch.Args[i])
					if arg == param {
						continue
					}
					if !unique.Valid() {
						unique = arg
						continue
					}
					if arg != unique {
						redundant = false
						break
					}
				}
				if !redundant || !unique.Valid() {
					i++
					continue
				}
				b.aliases[param] = unique
				blk.Params = append(blk.Params[:i], blk.Params[i+1:]...)
				for pi := range blk.preds {
					br := blk.preds[pi].branch
					br.Args = append(br.Args[:i], br.Args[i+1:]...)
				}
				changed = true
			}
		}
	}
	b.resolveAllAliases()
}

// ResolveAlias resolves the alias chain of the given value.
func (b *Builder) ResolveAlias(v Value) Value {
	for {
		src, ok := b.aliases[v]
		if !ok {
			return v
		}
		v = src
	}
}

func (b *Builder) resolveAllAliases() {
	for _, blk := range b.blocks {
		for _, instr := range blk.Instrs {
			for i, v := range instr.Args {
				instr.Args[i] = b.ResolveAlias(v)
			}
			if instr.Cond.Valid() {
				instr.Cond = b.ResolveAlias(instr.Cond)
			}
		}
	}
}

// Format returns the debugging string of the SSA function.
func (b *Builder) Format() string {
	var str strings.Builder
	for _, blk := range b.blocks {
		str.WriteByte('\n')
		str.WriteString(blk.FormatHeader())
		str.WriteByte('\n')
		for _, instr := range blk.Instrs {
			str.WriteByte('\t')
			str.WriteString(instr.Format(b.opName))
			str.WriteByte('\n')
		}
	}
	return str.String()
}
