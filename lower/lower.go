package lower

import (
	"bytes"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-funclets/errors"
	"github.com/wippyai/wasm-funclets/funclet"
	"github.com/wippyai/wasm-funclets/wasm"
)

// lowering carries the computed local layout and region shape while the
// instruction stream is rewritten.
type lowering struct {
	region     *funclet.FuncletRegion
	selLocal   uint32
	condLocal  uint32
	tabLocal   uint32
	spillBase  []uint32 // per funclet, index of its first spill local
	numFunclet int
}

// Function lowers a function body whose single funclet region spans the whole
// body into an equivalent core-wasm body using a selector-driven dispatch
// loop. The body must validate against ctx first.
func Function(body []byte, ctx *funclet.TypeContext) (*wasm.FuncBody, error) {
	vb, err := funclet.ValidateFunctionBody(body, ctx)
	if err != nil {
		return nil, err
	}
	if len(vb.Regions) != 1 {
		return nil, errors.Unsupported(errors.PhaseLower, "lowering requires exactly one funclet region")
	}
	region := vb.Regions[0]
	if region.Depth != 1 {
		return nil, errors.Unsupported(errors.PhaseLower, "lowering a region nested inside another construct")
	}
	if len(region.Results) > 1 {
		return nil, errors.Unsupported(errors.PhaseLower, "lowering a multi-result region")
	}

	instrs, err := wasm.DecodeInstructions(body)
	if err != nil {
		return nil, err
	}
	prefix, funclets, suffix, err := splitFunclets(instrs, region)
	if err != nil {
		return nil, err
	}

	numParams := uint32(len(ctx.Params))
	numLocals := uint32(len(ctx.Locals))
	l := &lowering{
		region:     region,
		selLocal:   numParams + numLocals,
		condLocal:  numParams + numLocals + 1,
		tabLocal:   numParams + numLocals + 2,
		numFunclet: int(region.NumFunclets()),
	}
	next := numParams + numLocals + 3
	for _, f := range region.Funclets {
		l.spillBase = append(l.spillBase, next)
		next += uint32(len(f.Sig))
	}

	var out []wasm.Instruction
	out = append(out, prefix...)

	// Region parameters become funclet 0's spilled arguments.
	out = append(out, l.spillArgs(0)...)
	out = append(out,
		instr(wasm.OpI32Const, wasm.I32Imm{Value: 0}),
		instr(wasm.OpLocalSet, wasm.LocalImm{LocalIdx: l.selLocal}),
	)

	// Exit block, dispatch loop, one block per funclet (funclet 0 innermost).
	out = append(out, instr(wasm.OpBlock, wasm.BlockImm{Type: resultBlockType(region.Results)}))
	out = append(out, instr(wasm.OpLoop, wasm.BlockImm{Type: wasm.BlockTypeVoid}))
	for i := 0; i < l.numFunclet; i++ {
		out = append(out, instr(wasm.OpBlock, wasm.BlockImm{Type: wasm.BlockTypeVoid}))
	}
	labels := make([]uint32, l.numFunclet)
	for i := range labels {
		labels[i] = uint32(i)
	}
	out = append(out,
		instr(wasm.OpLocalGet, wasm.LocalImm{LocalIdx: l.selLocal}),
		instr(wasm.OpBrTable, wasm.BrTableImm{Labels: labels[:l.numFunclet-1], Default: uint32(l.numFunclet - 1)}),
	)

	for i, fn := range funclets {
		out = append(out, instr(wasm.OpEnd, nil))
		// Arguments arrive in the spill locals; restore them to the stack.
		out = append(out, l.reloadArgs(uint32(i))...)
		lowered, err := l.lowerFunclet(uint32(i), fn)
		if err != nil {
			return nil, err
		}
		out = append(out, lowered...)
	}
	out = append(out, instr(wasm.OpEnd, nil)) // loop
	// Control leaves the loop only through branches to the exit block.
	out = append(out, instr(wasm.OpUnreachable, nil))
	out = append(out, instr(wasm.OpEnd, nil)) // exit block
	out = append(out, suffix...)

	code, err := encodeInstrs(out)
	if err != nil {
		return nil, err
	}

	locals := make([]wasm.LocalEntry, 0, 2+l.numFunclet)
	for _, t := range ctx.Locals {
		locals = append(locals, wasm.LocalEntry{Count: 1, Type: t})
	}
	locals = append(locals, wasm.LocalEntry{Count: 3, Type: wasm.ValI32})
	for _, f := range region.Funclets {
		for _, t := range f.Sig {
			locals = append(locals, wasm.LocalEntry{Count: 1, Type: t})
		}
	}

	Logger().Debug("lowered funclet region",
		zap.Int("funclets", l.numFunclet),
		zap.Int("instructions", len(out)))

	return &wasm.FuncBody{Locals: locals, Code: code}, nil
}

// Module wraps a lowered function body into a single-function module
// exporting it under exportName.
func Module(body []byte, ctx *funclet.TypeContext, exportName string) (*wasm.Module, error) {
	fb, err := Function(body, ctx)
	if err != nil {
		return nil, err
	}
	return &wasm.Module{
		Types:   []wasm.FuncType{{Params: ctx.Params, Results: ctx.Results}},
		Funcs:   []uint32{0},
		Exports: []wasm.Export{{Name: exportName, FuncIdx: 0}},
		Code:    []wasm.FuncBody{*fb},
	}, nil
}

// splitFunclets cuts the instruction stream into the code before the region,
// one slice per funclet, and the code after the region.
func splitFunclets(instrs []wasm.Instruction, region *funclet.FuncletRegion) (prefix []wasm.Instruction, funclets [][]wasm.Instruction, suffix []wasm.Instruction, err error) {
	pos := 0
	for pos < len(instrs) && instrs[pos].Opcode != wasm.OpFuncletRegion {
		prefix = append(prefix, instrs[pos])
		pos++
	}
	if pos == len(instrs) {
		return nil, nil, nil, errors.Structural(0, "no funclet region in body")
	}
	pos++ // skip funclet_region

	num := int(region.NumFunclets())
	for fi := 0; fi < num; fi++ {
		var cur []wasm.Instruction
		depth := 0
		done := false
		for pos < len(instrs) && !done {
			in := instrs[pos]
			switch in.Opcode {
			case wasm.OpFuncletRegion:
				return nil, nil, nil, errors.Unsupported(errors.PhaseLower, "lowering nested funclet regions")
			case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
				depth++
			case wasm.OpEnd:
				if depth > 0 {
					depth--
				} else {
					done = true
				}
			case wasm.OpBr, wasm.OpBrTable, wasm.OpReturn, wasm.OpUnreachable,
				wasm.OpFuncletCall, wasm.OpFuncletCallTable:
				if depth == 0 {
					done = true
				}
			}
			cur = append(cur, in)
			pos++
		}
		funclets = append(funclets, cur)
	}
	suffix = instrs[pos:]
	return prefix, funclets, suffix, nil
}

// spillArgs stores the values on the stack into funclet target's argument
// locals, top of stack last.
func (l *lowering) spillArgs(target uint32) []wasm.Instruction {
	sig := l.region.Funclets[target].Sig
	out := make([]wasm.Instruction, 0, len(sig))
	for k := len(sig) - 1; k >= 0; k-- {
		out = append(out, instr(wasm.OpLocalSet, wasm.LocalImm{LocalIdx: l.spillBase[target] + uint32(k)}))
	}
	return out
}

// reloadArgs pushes funclet target's argument locals back onto the stack.
func (l *lowering) reloadArgs(target uint32) []wasm.Instruction {
	sig := l.region.Funclets[target].Sig
	out := make([]wasm.Instruction, 0, len(sig))
	for k := range sig {
		out = append(out, instr(wasm.OpLocalGet, wasm.LocalImm{LocalIdx: l.spillBase[target] + uint32(k)}))
	}
	return out
}

// dispatchDepth is the branch depth from funclet i at inner nesting j back to
// the dispatch loop head.
func (l *lowering) dispatchDepth(i uint32, j int) uint32 {
	return uint32(j + (l.numFunclet - 1 - int(i)))
}

// exitDepth is the branch depth from funclet i at inner nesting j to the
// region exit block.
func (l *lowering) exitDepth(i uint32, j int) uint32 {
	return l.dispatchDepth(i, j) + 1
}

// mapLabel rewrites a branch label from funclet i at nesting j: labels below
// j stay inside the funclet, label j is the region, and label j+1 is the
// function frame.
func (l *lowering) mapLabel(label uint32, i uint32, j int) uint32 {
	switch {
	case int(label) < j:
		return label
	case int(label) == j:
		return l.exitDepth(i, j)
	default:
		return l.exitDepth(i, j) + 1
	}
}

// transfer emits the set-selector-and-loop sequence for a taken funclet call.
func (l *lowering) transfer(target uint32, depth uint32) []wasm.Instruction {
	return []wasm.Instruction{
		instr(wasm.OpI32Const, wasm.I32Imm{Value: int32(target)}),
		instr(wasm.OpLocalSet, wasm.LocalImm{LocalIdx: l.selLocal}),
		instr(wasm.OpBr, wasm.BranchImm{LabelIdx: depth}),
	}
}

func (l *lowering) lowerFunclet(i uint32, instrs []wasm.Instruction) ([]wasm.Instruction, error) {
	var out []wasm.Instruction
	last := i == uint32(l.numFunclet)-1
	j := 0
	for idx, in := range instrs {
		switch in.Opcode {
		case wasm.OpFuncletSig:
			if idx != 0 {
				return nil, errors.Structural(0, "funclet_sig not at funclet start")
			}

		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			j++
			out = append(out, in)

		case wasm.OpEnd:
			if j > 0 {
				j--
				out = append(out, in)
				break
			}
			if last {
				// Region exit with the results on the stack.
				out = append(out, instr(wasm.OpBr, wasm.BranchImm{LabelIdx: l.exitDepth(i, 0)}))
			} else {
				// Fall through into the next funclet's code.
				out = append(out, l.spillArgs(i+1)...)
			}

		case wasm.OpBr:
			imm := in.Imm.(wasm.BranchImm)
			out = append(out, instr(wasm.OpBr, wasm.BranchImm{LabelIdx: l.mapLabel(imm.LabelIdx, i, j)}))

		case wasm.OpBrIf:
			imm := in.Imm.(wasm.BranchImm)
			out = append(out, instr(wasm.OpBrIf, wasm.BranchImm{LabelIdx: l.mapLabel(imm.LabelIdx, i, j)}))

		case wasm.OpBrTable:
			imm := in.Imm.(wasm.BrTableImm)
			mapped := wasm.BrTableImm{Default: l.mapLabel(imm.Default, i, j)}
			for _, lb := range imm.Labels {
				mapped.Labels = append(mapped.Labels, l.mapLabel(lb, i, j))
			}
			out = append(out, instr(wasm.OpBrTable, mapped))

		case wasm.OpFuncletCall:
			target := uint32(int32(i) + in.Imm.(wasm.FuncletCallImm).Delta)
			out = append(out, l.spillArgs(target)...)
			out = append(out, l.transfer(target, l.dispatchDepth(i, j))...)

		case wasm.OpFuncletCallIf:
			target := uint32(int32(i) + in.Imm.(wasm.FuncletCallImm).Delta)
			out = append(out, instr(wasm.OpLocalSet, wasm.LocalImm{LocalIdx: l.condLocal}))
			out = append(out, l.spillArgs(target)...)
			out = append(out,
				instr(wasm.OpLocalGet, wasm.LocalImm{LocalIdx: l.condLocal}),
				instr(wasm.OpIf, wasm.BlockImm{Type: wasm.BlockTypeVoid}),
			)
			out = append(out, l.transfer(target, l.dispatchDepth(i, j+1))...)
			out = append(out, instr(wasm.OpEnd, nil))
			// Not taken: restore the arguments for the fallthrough path.
			out = append(out, l.reloadArgs(target)...)

		case wasm.OpFuncletCallTable:
			lowered, err := l.lowerCallTable(i, j, in.Imm.(wasm.FuncletCallTableImm))
			if err != nil {
				return nil, err
			}
			out = append(out, lowered...)

		default:
			out = append(out, in)
		}
	}
	return out, nil
}

// lowerCallTable expands a funclet_call_table into a br_table over one arm
// per entry. The arguments are spilled once into the default target's locals
// and copied to the chosen target inside its arm.
func (l *lowering) lowerCallTable(i uint32, j int, imm wasm.FuncletCallTableImm) ([]wasm.Instruction, error) {
	targets := make([]uint32, 0, len(imm.Deltas)+1)
	for _, d := range imm.Deltas {
		targets = append(targets, uint32(int32(i)+d))
	}
	def := uint32(int32(i) + imm.Default)
	targets = append(targets, def)
	arms := len(targets)

	var out []wasm.Instruction
	out = append(out, instr(wasm.OpLocalSet, wasm.LocalImm{LocalIdx: l.tabLocal}))
	out = append(out, l.spillArgs(def)...)

	for k := 0; k < arms; k++ {
		out = append(out, instr(wasm.OpBlock, wasm.BlockImm{Type: wasm.BlockTypeVoid}))
	}
	labels := make([]uint32, arms-1)
	for k := range labels {
		labels[k] = uint32(k)
	}
	out = append(out,
		instr(wasm.OpLocalGet, wasm.LocalImm{LocalIdx: l.tabLocal}),
		instr(wasm.OpBrTable, wasm.BrTableImm{Labels: labels, Default: uint32(arms - 1)}),
	)

	sig := l.region.Funclets[def].Sig
	for k, target := range targets {
		out = append(out, instr(wasm.OpEnd, nil))
		if target != def {
			for p := range sig {
				out = append(out,
					instr(wasm.OpLocalGet, wasm.LocalImm{LocalIdx: l.spillBase[def] + uint32(p)}),
					instr(wasm.OpLocalSet, wasm.LocalImm{LocalIdx: l.spillBase[target] + uint32(p)}),
				)
			}
		}
		open := arms - 1 - k
		out = append(out, l.transfer(target, l.dispatchDepth(i, j+open))...)
	}
	return out, nil
}

func resultBlockType(results []wasm.ValType) int64 {
	if len(results) == 0 {
		return wasm.BlockTypeVoid
	}
	switch results[0] {
	case wasm.ValI64:
		return wasm.BlockTypeI64
	case wasm.ValF32:
		return wasm.BlockTypeF32
	case wasm.ValF64:
		return wasm.BlockTypeF64
	default:
		return wasm.BlockTypeI32
	}
}

func encodeInstrs(instrs []wasm.Instruction) ([]byte, error) {
	var buf bytes.Buffer
	for _, in := range instrs {
		if err := wasm.EncodeInstructionTo(&buf, in); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func instr(op byte, imm interface{}) wasm.Instruction {
	return wasm.Instruction{Opcode: op, Imm: imm}
}
