package funclet

import (
	"bytes"
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-funclets/errors"
	"github.com/wippyai/wasm-funclets/ssa"
	"github.com/wippyai/wasm-funclets/wasm"
)

// ctrlFrame is one entry of the control nesting stack: the function itself,
// a block/loop/if, or a funclet region.
type ctrlFrame struct {
	region      *regionState // non-nil for region frames
	startTypes  []wasm.ValType
	endTypes    []wasm.ValType
	dirtyLocals map[uint32]struct{} // locals written inside this construct
	opcode      byte
	height      int
	unreachable bool
}

// labelTypes returns the types a branch to this frame's label carries.
func (f *ctrlFrame) labelTypes() []wasm.ValType {
	if f.opcode == wasm.OpLoop {
		return f.startTypes
	}
	return f.endTypes
}

// regionState is the in-progress decode state of one funclet region.
type regionState struct {
	region   *FuncletRegion
	cur      uint32
	frameIdx int
	atStart  bool
	dead     bool // region opened inside unreachable code
}

func (rs *regionState) current() *Funclet {
	return rs.region.Funclets[rs.cur]
}

type validator struct {
	ctx     *TypeContext
	r       *bytes.Reader
	ssab    *ssa.Builder
	entry   *ssa.Block
	stack   typeStack
	frames  []ctrlFrame
	locals  []ssa.Variable
	regions []*FuncletRegion
	bodyLen int
}

// ValidateFunctionBody validates a function body containing zero or more
// funclet regions against ctx, building the SSA form as it goes. It consumes
// the body in one forward pass and returns either the validated result or
// the first error encountered.
func ValidateFunctionBody(body []byte, ctx *TypeContext) (*ValidatedBody, error) {
	v := &validator{
		ctx:     ctx,
		r:       bytes.NewReader(body),
		ssab:    ssa.NewBuilder(wasm.OpcodeName),
		bodyLen: len(body),
	}

	v.entry = v.ssab.AllocateBlock()
	v.ssab.SetCurrentBlock(v.entry)

	// Function params become pinned entry-block params; locals zero-init.
	v.locals = make([]ssa.Variable, 0, ctx.numLocals())
	for _, t := range ctx.Params {
		variable := v.ssab.DeclareVariable(ssaType(t))
		v.locals = append(v.locals, variable)
		param := v.entry.AddParam(v.ssab, ssaType(t))
		v.ssab.DefineVariable(variable, param, v.entry)
	}
	v.entry.PinParams()
	v.ssab.Seal(v.entry)
	for _, t := range ctx.Locals {
		variable := v.ssab.DeclareVariable(ssaType(t))
		v.locals = append(v.locals, variable)
		zero := v.ssab.InsertWithResult(ssaType(t), constOpcode(t), zeroImm(t))
		v.ssab.DefineVariable(variable, zero, v.entry)
	}

	v.frames = append(v.frames, ctrlFrame{opcode: 0, endTypes: ctx.Results})

	for len(v.frames) > 0 {
		if err := v.step(); err != nil {
			return nil, err
		}
	}

	if v.r.Len() != 0 {
		return nil, errors.Malformed(errors.PhaseDecode, v.offset(),
			"trailing bytes after function end", nil)
	}

	v.ssab.EliminateRedundantParams()

	Logger().Debug("validated function body",
		zap.Int("regions", len(v.regions)),
		zap.Int("blocks", len(v.ssab.Blocks())))

	return &ValidatedBody{
		Regions: v.regions,
		SSA:     v.ssab,
		Entry:   v.entry,
	}, nil
}

func (v *validator) offset() int {
	return v.bodyLen - v.r.Len()
}

func (v *validator) curFrame() *ctrlFrame {
	return &v.frames[len(v.frames)-1]
}

func (v *validator) live() bool {
	return !v.curFrame().unreachable
}

// step decodes and validates a single instruction.
func (v *validator) step() error {
	off := v.offset()
	if v.r.Len() == 0 {
		return errors.Malformed(errors.PhaseDecode, off,
			"function body ended without end opcode", nil)
	}

	instr, err := wasm.DecodeInstruction(v.r)
	if err != nil {
		return errors.Malformed(errors.PhaseDecode, off, "decode instruction", err)
	}

	// A funclet's very first instruction may be its explicit funclet_sig.
	if rs := v.curFrame().region; rs != nil && rs.atStart {
		rs.atStart = false
		if instr.Opcode == wasm.OpFuncletSig {
			imm := instr.Imm.(wasm.FuncletSigImm)
			sig, err := v.ctx.funcletSig(imm.Sig, off)
			if err != nil {
				return err
			}
			return v.beginFunclet(rs, off, sig, imm.NumPreds, true)
		}
		if err := v.beginFunclet(rs, off, nil, 0, false); err != nil {
			return err
		}
	}

	return v.dispatch(instr, off)
}

func (v *validator) dispatch(instr wasm.Instruction, off int) error {
	switch instr.Opcode {
	case wasm.OpNop:
		return nil

	case wasm.OpFuncletSig:
		return errors.Structural(off, "funclet_sig is legal only as a funclet's first instruction")

	case wasm.OpFuncletRegion:
		return v.openRegion(instr.Imm.(wasm.FuncletRegionImm), off)

	case wasm.OpBlock, wasm.OpLoop:
		return v.openBlock(instr.Opcode, instr.Imm.(wasm.BlockImm).Type, off)

	case wasm.OpIf:
		cond, err := v.popExpect(wasm.ValI32, off)
		if err != nil {
			return err
		}
		if v.live() {
			v.ssab.Insert(wasm.OpIf, nil, cond.Val)
		}
		return v.openBlock(wasm.OpIf, instr.Imm.(wasm.BlockImm).Type, off)

	case wasm.OpElse:
		return v.handleElse(off)

	case wasm.OpEnd:
		return v.handleEnd(off)

	case wasm.OpBr:
		return v.handleBr(instr.Imm.(wasm.BranchImm).LabelIdx, off)

	case wasm.OpBrIf:
		return v.handleBrIf(instr.Imm.(wasm.BranchImm).LabelIdx, off)

	case wasm.OpBrTable:
		return v.handleBrTable(instr.Imm.(wasm.BrTableImm), off)

	case wasm.OpReturn:
		return v.handleReturn(off)

	case wasm.OpUnreachable:
		if v.live() {
			v.ssab.Insert(wasm.OpUnreachable, nil)
		}
		if rs := v.curFrame().region; rs != nil {
			return v.advanceFunclet(rs)
		}
		v.setUnreachable()
		return nil

	case wasm.OpFuncletCall:
		return v.handleFuncletCall(instr.Imm.(wasm.FuncletCallImm).Delta, off)

	case wasm.OpFuncletCallIf:
		return v.handleFuncletCallIf(instr.Imm.(wasm.FuncletCallImm).Delta, off)

	case wasm.OpFuncletCallTable:
		return v.handleFuncletCallTable(instr.Imm.(wasm.FuncletCallTableImm), off)

	case wasm.OpCall:
		return v.handleCall(instr.Imm.(wasm.CallImm).FuncIdx, off)

	case wasm.OpDrop:
		_, err := v.popAny(off)
		return err

	case wasm.OpSelect:
		return v.handleSelect(off)

	case wasm.OpLocalGet:
		return v.handleLocalGet(instr.Imm.(wasm.LocalImm).LocalIdx, off)

	case wasm.OpLocalSet:
		return v.handleLocalSet(instr.Imm.(wasm.LocalImm).LocalIdx, off, false)

	case wasm.OpLocalTee:
		return v.handleLocalSet(instr.Imm.(wasm.LocalImm).LocalIdx, off, true)
	}

	eff := stackEffect(instr.Opcode)
	if eff == nil {
		return errors.Unsupported(errors.PhaseValidate,
			wasm.OpcodeName(instr.Opcode))
	}

	args := make([]ssa.Value, len(eff.Pops))
	for i := len(eff.Pops) - 1; i >= 0; i-- {
		e, err := v.popExpect(eff.Pops[i], off)
		if err != nil {
			return err
		}
		args[i] = e.Val
	}
	if len(eff.Pushes) == 1 {
		var val ssa.Value = ssa.ValueInvalid
		if v.live() {
			val = v.ssab.InsertWithResult(ssaType(eff.Pushes[0]), instr.Opcode, instr.Imm, args...)
		}
		v.stack.push(eff.Pushes[0], val)
	} else if v.live() {
		v.ssab.Insert(instr.Opcode, instr.Imm, args...)
	}
	return nil
}

// Stack helpers

func (v *validator) popAny(off int) (stackEntry, error) {
	f := v.curFrame()
	if v.stack.height() == f.height {
		if f.unreachable {
			return stackEntry{Typ: typeUnknown, Val: ssa.ValueInvalid}, nil
		}
		return stackEntry{}, errors.TypeMismatch(off, "stack underflow", "operand", "empty stack")
	}
	e, _ := v.stack.pop()
	return e, nil
}

func (v *validator) popExpect(want wasm.ValType, off int) (stackEntry, error) {
	e, err := v.popAny(off)
	if err != nil {
		return e, err
	}
	if e.Typ != typeUnknown && e.Typ != want {
		return e, errors.TypeMismatch(off, "operand type", want.String(), e.Typ.String())
	}
	return e, nil
}

// popSeq pops want (top of stack last), returning the entries in sequence
// order.
func (v *validator) popSeq(want []wasm.ValType, off int) ([]stackEntry, error) {
	out := make([]stackEntry, len(want))
	for i := len(want) - 1; i >= 0; i-- {
		e, err := v.popExpect(want[i], off)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (v *validator) setUnreachable() {
	f := v.curFrame()
	f.unreachable = true
	v.stack.truncate(f.height)
}

// Blocks and branches

func (v *validator) openBlock(op byte, bt int64, off int) error {
	ft, err := v.ctx.blockType(bt, off)
	if err != nil {
		return err
	}
	params, err := v.popSeq(ft.Params, off)
	if err != nil {
		return err
	}
	unreachable := v.curFrame().unreachable
	v.frames = append(v.frames, ctrlFrame{
		opcode:      op,
		startTypes:  ft.Params,
		endTypes:    ft.Results,
		height:      v.stack.mark(),
		unreachable: unreachable,
	})
	for _, e := range params {
		v.stack.push(e.Typ, e.Val)
	}
	if !unreachable && op != wasm.OpIf {
		v.ssab.Insert(op, nil)
	}
	return nil
}

func (v *validator) handleElse(off int) error {
	f := v.curFrame()
	if f.opcode != wasm.OpIf {
		return errors.Structural(off, "else without matching if")
	}
	if _, err := v.popSeq(f.endTypes, off); err != nil {
		return err
	}
	if !f.unreachable && v.stack.height() != f.height {
		return errors.TypeMismatch(off, "values remain on stack at else",
			"empty", "extra operands")
	}
	v.stack.truncate(f.height)
	f.opcode = wasm.OpElse
	// The else arm starts from the frame's input types; the concrete values
	// flowing in are unknown at this point.
	inheritDead := v.frames[len(v.frames)-2].unreachable
	f.unreachable = inheritDead
	for _, t := range f.startTypes {
		v.stack.push(t, ssa.ValueInvalid)
	}
	if !inheritDead {
		v.ssab.Insert(wasm.OpElse, nil)
	}
	return nil
}

func (v *validator) handleEnd(off int) error {
	f := v.curFrame()

	if rs := f.region; rs != nil {
		return v.funcletNaturalEnd(rs, off)
	}

	results, err := v.popSeq(f.endTypes, off)
	if err != nil {
		return err
	}
	if !f.unreachable && v.stack.height() != f.height {
		return errors.TypeMismatch(off, "values remain on stack at end",
			"empty", "extra operands")
	}

	// An if without an else must be a no-op on the stack.
	if f.opcode == wasm.OpIf && !typesEqual(f.startTypes, f.endTypes) {
		return errors.TypeMismatch(off, "if without else must preserve stack types",
			typesString(f.startTypes), typesString(f.endTypes))
	}

	if len(v.frames) == 1 {
		// Function end.
		if !f.unreachable {
			vals := make([]ssa.Value, len(results))
			for i, e := range results {
				vals[i] = e.Val
			}
			v.ssab.Insert(wasm.OpEnd, nil, vals...)
		}
		v.frames = v.frames[:0]
		return nil
	}

	v.stack.truncate(f.height)
	dirty := f.dirtyLocals
	v.frames = v.frames[:len(v.frames)-1]
	for _, e := range results {
		v.stack.push(e.Typ, e.Val)
	}
	if v.live() {
		v.ssab.Insert(wasm.OpEnd, nil)
		v.flushDirtyLocals(dirty)
	}
	return nil
}

func (v *validator) frameForLabel(label uint32, off int) (*ctrlFrame, error) {
	if int(label) >= len(v.frames) {
		return nil, errors.Structural(off, "branch label out of range")
	}
	return &v.frames[len(v.frames)-1-int(label)], nil
}

func (v *validator) handleBr(label uint32, off int) error {
	target, err := v.frameForLabel(label, off)
	if err != nil {
		return err
	}
	args, err := v.popSeq(target.labelTypes(), off)
	if err != nil {
		return err
	}
	if v.live() {
		vals := entryValues(args)
		if trs := target.region; trs != nil {
			// Branching to a region label exits the region with its results.
			br := v.ssab.InsertBranch(wasm.OpBr, trs.region.Exit, ssa.ValueInvalid, vals)
			v.ssab.AddPred(trs.region.Exit, v.ssab.CurrentBlock(), br)
		} else {
			v.ssab.Insert(wasm.OpBr, wasm.BranchImm{LabelIdx: label}, vals...)
		}
	}
	if rs := v.curFrame().region; rs != nil {
		return v.advanceFunclet(rs)
	}
	v.setUnreachable()
	return nil
}

func (v *validator) handleBrIf(label uint32, off int) error {
	cond, err := v.popExpect(wasm.ValI32, off)
	if err != nil {
		return err
	}
	target, err := v.frameForLabel(label, off)
	if err != nil {
		return err
	}
	args, err := v.popSeq(target.labelTypes(), off)
	if err != nil {
		return err
	}
	if v.live() {
		vals := entryValues(args)
		if trs := target.region; trs != nil {
			br := v.ssab.InsertBranch(wasm.OpBrIf, trs.region.Exit, cond.Val, vals)
			v.ssab.AddPred(trs.region.Exit, v.ssab.CurrentBlock(), br)
		} else {
			v.ssab.Insert(wasm.OpBrIf, wasm.BranchImm{LabelIdx: label}, append(vals, cond.Val)...)
		}
	}
	// The branch may fall through, so the label types stay on the stack.
	for _, e := range args {
		v.stack.push(e.Typ, e.Val)
	}
	return nil
}

func (v *validator) handleBrTable(imm wasm.BrTableImm, off int) error {
	sel, err := v.popExpect(wasm.ValI32, off)
	if err != nil {
		return err
	}
	def, err := v.frameForLabel(imm.Default, off)
	if err != nil {
		return err
	}
	defTypes := def.labelTypes()
	for _, l := range imm.Labels {
		t, err := v.frameForLabel(l, off)
		if err != nil {
			return err
		}
		if !typesEqual(t.labelTypes(), defTypes) {
			return errors.TypeMismatch(off, "br_table labels disagree on types",
				typesString(defTypes), typesString(t.labelTypes()))
		}
	}
	args, err := v.popSeq(defTypes, off)
	if err != nil {
		return err
	}
	if v.live() {
		vals := entryValues(args)
		labels := append(append([]uint32{}, imm.Labels...), imm.Default)
		plain := false
		for _, l := range labels {
			t, _ := v.frameForLabel(l, off)
			if trs := t.region; trs != nil {
				br := v.ssab.InsertBranch(wasm.OpBrTable, trs.region.Exit, sel.Val, append([]ssa.Value{}, vals...))
				v.ssab.AddPred(trs.region.Exit, v.ssab.CurrentBlock(), br)
			} else {
				plain = true
			}
		}
		// A table mixing region-exit labels with ordinary labels keeps the
		// plain instruction so the non-region arms survive in the IR.
		if plain {
			v.ssab.Insert(wasm.OpBrTable, imm, append(vals, sel.Val)...)
		}
	}
	if rs := v.curFrame().region; rs != nil {
		return v.advanceFunclet(rs)
	}
	v.setUnreachable()
	return nil
}

func (v *validator) handleReturn(off int) error {
	results, err := v.popSeq(v.ctx.Results, off)
	if err != nil {
		return err
	}
	if v.live() {
		v.ssab.Insert(wasm.OpReturn, nil, entryValues(results)...)
	}
	if rs := v.curFrame().region; rs != nil {
		return v.advanceFunclet(rs)
	}
	v.setUnreachable()
	return nil
}

// Calls and variable access

func (v *validator) handleCall(funcIdx uint32, off int) error {
	ft, ok := v.ctx.funcType(funcIdx)
	if !ok {
		return errors.Structural(off, "call to unknown function index")
	}
	args, err := v.popSeq(ft.Params, off)
	if err != nil {
		return err
	}
	switch {
	case len(ft.Results) == 1:
		var val ssa.Value = ssa.ValueInvalid
		if v.live() {
			val = v.ssab.InsertWithResult(ssaType(ft.Results[0]), wasm.OpCall,
				wasm.CallImm{FuncIdx: funcIdx}, entryValues(args)...)
		}
		v.stack.push(ft.Results[0], val)
	default:
		if v.live() {
			v.ssab.Insert(wasm.OpCall, wasm.CallImm{FuncIdx: funcIdx}, entryValues(args)...)
		}
		for _, t := range ft.Results {
			v.stack.push(t, ssa.ValueInvalid)
		}
	}
	return nil
}

func (v *validator) handleSelect(off int) error {
	cond, err := v.popExpect(wasm.ValI32, off)
	if err != nil {
		return err
	}
	b, err := v.popAny(off)
	if err != nil {
		return err
	}
	a, err := v.popAny(off)
	if err != nil {
		return err
	}
	typ := a.Typ
	if typ == typeUnknown {
		typ = b.Typ
	} else if b.Typ != typeUnknown && b.Typ != typ {
		return errors.TypeMismatch(off, "select arms disagree", typ.String(), b.Typ.String())
	}
	var val ssa.Value = ssa.ValueInvalid
	if v.live() && typ != typeUnknown {
		val = v.ssab.InsertWithResult(ssaType(typ), wasm.OpSelect, nil, a.Val, b.Val, cond.Val)
	}
	v.stack.push(typ, val)
	return nil
}

// nestedInConstruct reports whether decoding is inside a block, loop, or if
// arm under the current funclet or function body. Local accesses there stay
// explicit instructions: the surrounding SSA block cannot express which path
// performed them.
func (v *validator) nestedInConstruct() bool {
	switch v.curFrame().opcode {
	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpElse:
		return true
	}
	return false
}

// markEnclosingConstructDirty records that a local was written somewhere
// under the nearest enclosing block/loop/if, so its SSA definition is
// refreshed when that construct closes. No-op in straight-line code.
func (v *validator) markEnclosingConstructDirty(idx uint32) {
	for i := len(v.frames) - 1; i >= 0; i-- {
		switch v.frames[i].opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpElse:
			f := &v.frames[i]
			if f.dirtyLocals == nil {
				f.dirtyLocals = make(map[uint32]struct{})
			}
			f.dirtyLocals[idx] = struct{}{}
			return
		}
	}
}

// flushDirtyLocals runs when a construct closes: locals it may have written
// are re-read explicitly so later straight-line code resolves them to the
// merged runtime value rather than one arm's definition. When the construct
// is itself nested the set propagates outward instead.
func (v *validator) flushDirtyLocals(dirty map[uint32]struct{}) {
	if len(dirty) == 0 {
		return
	}
	if v.nestedInConstruct() {
		f := v.curFrame()
		if f.dirtyLocals == nil {
			f.dirtyLocals = make(map[uint32]struct{})
		}
		for idx := range dirty {
			f.dirtyLocals[idx] = struct{}{}
		}
		return
	}
	idxs := make([]uint32, 0, len(dirty))
	for idx := range dirty {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
	for _, idx := range idxs {
		typ, _ := v.ctx.localType(idx)
		val := v.ssab.InsertWithResult(ssaType(typ), wasm.OpLocalGet, wasm.LocalImm{LocalIdx: idx})
		v.ssab.DefineVariable(v.locals[idx], val, v.ssab.CurrentBlock())
		// The write also escapes any construct enclosing the region itself.
		v.markEnclosingConstructDirty(idx)
	}
}

func (v *validator) handleLocalGet(idx uint32, off int) error {
	typ, ok := v.ctx.localType(idx)
	if !ok {
		return errors.Structural(off, "local index out of range")
	}
	var val ssa.Value = ssa.ValueInvalid
	if v.live() {
		if v.nestedInConstruct() {
			val = v.ssab.InsertWithResult(ssaType(typ), wasm.OpLocalGet, wasm.LocalImm{LocalIdx: idx})
		} else {
			val = v.ssab.FindValue(v.locals[idx])
		}
	}
	v.stack.push(typ, val)
	return nil
}

func (v *validator) handleLocalSet(idx uint32, off int, tee bool) error {
	typ, ok := v.ctx.localType(idx)
	if !ok {
		return errors.Structural(off, "local index out of range")
	}
	e, err := v.popExpect(typ, off)
	if err != nil {
		return err
	}
	if v.live() {
		if v.nestedInConstruct() {
			op := wasm.OpLocalSet
			if tee {
				op = wasm.OpLocalTee
			}
			v.ssab.Insert(op, wasm.LocalImm{LocalIdx: idx}, e.Val)
			v.markEnclosingConstructDirty(idx)
		} else {
			if e.Val.Valid() {
				v.ssab.DefineVariable(v.locals[idx], e.Val, v.ssab.CurrentBlock())
			}
			v.markEnclosingConstructDirty(idx)
		}
	}
	if tee {
		v.stack.push(typ, e.Val)
	}
	return nil
}

// Region handling

func (v *validator) openRegion(imm wasm.FuncletRegionImm, off int) error {
	if imm.NumFunclets == 0 {
		return errors.Malformed(errors.PhaseDecode, off, "num_funclets must be non-zero", nil)
	}
	ft, err := v.ctx.blockType(imm.Sig, off)
	if err != nil {
		return err
	}
	params, err := v.popSeq(ft.Params, off)
	if err != nil {
		return err
	}

	region := &FuncletRegion{
		Params:      ft.Params,
		Results:     ft.Results,
		Graph:       NewCallGraph(),
		Depth:       len(v.frames),
		StartOffset: off,
	}
	for i := uint32(0); i < imm.NumFunclets; i++ {
		region.Funclets = append(region.Funclets, &Funclet{
			Index: i,
			Block: v.ssab.AllocateBlock(),
		})
	}
	region.Exit = v.ssab.AllocateBlock()
	for _, t := range ft.Results {
		region.Exit.AddParam(v.ssab, ssaType(t))
	}
	region.Exit.PinParams()

	dead := v.curFrame().unreachable

	// The region entry is an implicit forward edge into funclet 0 carrying
	// the region parameters.
	region.Graph.AddEdge(CallEdge{
		From:   RegionEntry,
		To:     0,
		Args:   ft.Params,
		Offset: off,
	})
	if !dead {
		br := v.ssab.InsertBranch(wasm.OpFuncletRegion, region.Funclets[0].Block,
			ssa.ValueInvalid, entryValues(params))
		v.ssab.AddPred(region.Funclets[0].Block, v.ssab.CurrentBlock(), br)
	}

	rs := &regionState{
		region:   region,
		cur:      0,
		frameIdx: len(v.frames),
		atStart:  true,
		dead:     dead,
	}
	v.frames = append(v.frames, ctrlFrame{
		region:      rs,
		opcode:      wasm.OpFuncletRegion,
		startTypes:  ft.Params,
		endTypes:    ft.Results,
		height:      v.stack.mark(),
		unreachable: dead,
	})
	v.regions = append(v.regions, region)

	Logger().Debug("opened funclet region",
		zap.Int("offset", off),
		zap.Uint32("funclets", imm.NumFunclets))
	return nil
}

// beginFunclet resolves the current funclet's signature and sets up its
// stack and SSA state. explicit carries the funclet_sig parameters when one
// was present.
func (v *validator) beginFunclet(rs *regionState, off int, explicit []wasm.ValType, numPreds uint32, declared bool) error {
	f := rs.current()
	region := rs.region
	f.Started = true
	f.StartOffset = off

	edges := region.Graph.EdgesTo(f.Index)
	switch {
	case declared:
		f.Sig = explicit
		f.Declared = true
		f.DeclaredPreds = numPreds
	case f.Index == 0:
		// An unmarked first funclet defaults to the empty argument list.
		f.Sig = nil
	default:
		if len(edges) == 0 {
			return errors.UnresolvedSignature(int32(f.Index),
				"funclet has no explicit signature and no forward caller")
		}
		f.Sig = edges[0].Args
	}
	f.SigResolved = true

	// Queued forward edges are checked now that the signature is known.
	for _, e := range edges {
		if !sigMatches(e.Args, f.Sig) {
			return errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
				Offset(e.Offset).
				Funclet(int32(f.Index)).
				Expected(typesString(f.Sig)).
				Actual(typesString(e.Args)).
				Detail("forward edge arguments disagree with funclet signature").
				Build()
		}
	}

	blk := f.Block
	for _, t := range f.Sig {
		blk.AddParam(v.ssab, ssaType(t))
	}
	blk.PinParams()

	// A funclet without declared backward predecessors has all its
	// predecessors recorded by now: forward edges can only originate from
	// already-decoded code.
	if !f.Declared || f.DeclaredPreds == 0 {
		v.ssab.Seal(blk)
	}
	v.ssab.SetCurrentBlock(blk)

	frame := &v.frames[rs.frameIdx]
	v.stack.truncate(frame.height)
	frame.unreachable = rs.dead
	for i, t := range f.Sig {
		v.stack.push(t, blk.Params[i])
	}

	Logger().Debug("entered funclet",
		zap.Uint32("index", f.Index),
		zap.String("sig", typesString(f.Sig)),
		zap.Bool("sealed", blk.Sealed()))
	return nil
}

// resolveTarget turns a relative delta into an absolute funclet index.
func (v *validator) resolveTarget(rs *regionState, delta int32, off int) (uint32, error) {
	abs := int64(rs.cur) + int64(delta)
	if abs < 0 || abs >= int64(rs.region.NumFunclets()) {
		return 0, errors.Structural(off, "funclet call delta out of range")
	}
	return uint32(abs), nil
}

// innermostRegion returns the nearest enclosing region frame's state, or nil.
func (v *validator) innermostRegion() *regionState {
	for i := len(v.frames) - 1; i >= 0; i-- {
		if v.frames[i].region != nil {
			return v.frames[i].region
		}
	}
	return nil
}

// recordEdge records one funclet call edge: type-checks the arguments if the
// target signature is known, wires the SSA predecessor, and handles backward
// predecessor accounting and sealing.
func (v *validator) recordEdge(rs *regionState, target uint32, op byte, cond ssa.Value, off int) error {
	region := rs.region
	mark := v.frames[rs.frameIdx].height
	args := v.stack.valuesAbove(mark)
	argTypes := v.stack.typesAbove(mark)
	backward := target <= rs.cur

	tf := region.Funclets[target]
	if tf.SigResolved && !sigMatches(argTypes, tf.Sig) {
		return errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
			Offset(off).
			Funclet(int32(target)).
			Expected(typesString(tf.Sig)).
			Actual(typesString(argTypes)).
			Detail("call arguments disagree with funclet signature").
			Build()
	}

	if backward {
		if !tf.Declared {
			return errors.PredecessorCount(int32(target),
				"backward edge to funclet without declared predecessor count",
				0, tf.ObservedBackward+1)
		}
		if tf.ObservedBackward >= tf.DeclaredPreds {
			return errors.PredecessorCount(int32(target),
				"backward edges exceed declared count",
				tf.DeclaredPreds, tf.ObservedBackward+1)
		}
	}

	region.Graph.AddEdge(CallEdge{
		From:     int32(rs.cur),
		To:       target,
		Args:     argTypes,
		Offset:   off,
		Backward: backward,
	})

	br := v.ssab.InsertBranch(op, tf.Block, cond, entryValues(args))
	v.ssab.AddPred(tf.Block, v.ssab.CurrentBlock(), br)

	if backward {
		tf.ObservedBackward++
		if tf.ObservedBackward == tf.DeclaredPreds {
			v.ssab.Seal(tf.Block)
			Logger().Debug("sealed funclet",
				zap.Uint32("index", target),
				zap.Uint32("preds", tf.DeclaredPreds))
		}
	}
	return nil
}

func (v *validator) handleFuncletCall(delta int32, off int) error {
	rs := v.innermostRegion()
	if rs == nil {
		return errors.Structural(off, "funclet_call outside funclet region")
	}
	target, err := v.resolveTarget(rs, delta, off)
	if err != nil {
		return err
	}
	if v.live() {
		if err := v.recordEdge(rs, target, wasm.OpFuncletCall, ssa.ValueInvalid, off); err != nil {
			return err
		}
	}
	if cur := v.curFrame().region; cur != nil {
		return v.advanceFunclet(cur)
	}
	v.setUnreachable()
	return nil
}

func (v *validator) handleFuncletCallIf(delta int32, off int) error {
	rs := v.innermostRegion()
	if rs == nil {
		return errors.Structural(off, "funclet_call_if outside funclet region")
	}
	cond, err := v.popExpect(wasm.ValI32, off)
	if err != nil {
		return err
	}
	target, err := v.resolveTarget(rs, delta, off)
	if err != nil {
		return err
	}
	if v.live() {
		if err := v.recordEdge(rs, target, wasm.OpFuncletCallIf, cond.Val, off); err != nil {
			return err
		}
	}
	// Conditional: execution continues in the same funclet when not taken,
	// with the would-be arguments still on the stack.
	return nil
}

func (v *validator) handleFuncletCallTable(imm wasm.FuncletCallTableImm, off int) error {
	rs := v.innermostRegion()
	if rs == nil {
		return errors.Structural(off, "funclet_call_table outside funclet region")
	}
	sel, err := v.popExpect(wasm.ValI32, off)
	if err != nil {
		return err
	}
	deltas := append(append([]int32{}, imm.Deltas...), imm.Default)
	for _, d := range deltas {
		target, err := v.resolveTarget(rs, d, off)
		if err != nil {
			return err
		}
		if v.live() {
			if err := v.recordEdge(rs, target, wasm.OpFuncletCallTable, sel.Val, off); err != nil {
				return err
			}
		}
	}
	if cur := v.curFrame().region; cur != nil {
		return v.advanceFunclet(cur)
	}
	v.setUnreachable()
	return nil
}

// funcletNaturalEnd handles a funclet's plain end: an implicit tail call to
// the next funclet, or the region exit if this is the last one.
func (v *validator) funcletNaturalEnd(rs *regionState, off int) error {
	region := rs.region
	frame := &v.frames[rs.frameIdx]
	mark := frame.height
	args := v.stack.valuesAbove(mark)
	argTypes := v.stack.typesAbove(mark)

	if rs.cur == region.NumFunclets()-1 {
		// Last funclet: values above the mark are the region results.
		if !frame.unreachable && !sigMatches(argTypes, region.Results) {
			return errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
				Offset(off).
				Funclet(int32(rs.cur)).
				Expected(typesString(region.Results)).
				Actual(typesString(argTypes)).
				Detail("region exit values disagree with region results").
				Build()
		}
		if !frame.unreachable {
			br := v.ssab.InsertBranch(wasm.OpEnd, region.Exit, ssa.ValueInvalid, entryValues(args))
			v.ssab.AddPred(region.Exit, v.ssab.CurrentBlock(), br)
		}
		return v.advanceFunclet(rs)
	}

	// Mid-region: implicit forward edge to the next funclet. The signature
	// check happens when the next funclet begins.
	if !frame.unreachable {
		next := region.Funclets[rs.cur+1]
		region.Graph.AddEdge(CallEdge{
			From:   int32(rs.cur),
			To:     rs.cur + 1,
			Args:   argTypes,
			Offset: off,
		})
		br := v.ssab.InsertBranch(wasm.OpEnd, next.Block, ssa.ValueInvalid, entryValues(args))
		v.ssab.AddPred(next.Block, v.ssab.CurrentBlock(), br)
	}
	return v.advanceFunclet(rs)
}

// advanceFunclet moves decoding to the next funclet, finalizing the region
// after its last funclet ends.
func (v *validator) advanceFunclet(rs *regionState) error {
	rs.cur++
	if rs.cur < rs.region.NumFunclets() {
		rs.atStart = true
		return nil
	}
	return v.finalizeRegion(rs)
}

func (v *validator) finalizeRegion(rs *regionState) error {
	region := rs.region

	for _, f := range region.Funclets {
		if !f.Started {
			return errors.Structural(region.StartOffset,
				"region ended before all funclets were produced")
		}
		if f.Declared && f.ObservedBackward != f.DeclaredPreds {
			return errors.PredecessorCount(int32(f.Index),
				"declared predecessor count not satisfied",
				f.DeclaredPreds, f.ObservedBackward)
		}
	}

	v.ssab.Seal(region.Exit)
	v.ssab.SetCurrentBlock(region.Exit)

	frame := v.frames[rs.frameIdx]
	v.frames = v.frames[:rs.frameIdx]
	v.stack.truncate(frame.height)
	for i, t := range region.Results {
		val := ssa.ValueInvalid
		if !rs.dead {
			val = region.Exit.Params[i]
		}
		v.stack.push(t, val)
	}

	Logger().Debug("finalized funclet region",
		zap.Int("offset", region.StartOffset),
		zap.Int("edges", len(region.Graph.Edges())))
	return nil
}

// Helpers

func entryValues(entries []stackEntry) []ssa.Value {
	out := make([]ssa.Value, len(entries))
	for i, e := range entries {
		out[i] = e.Val
	}
	return out
}

func sigMatches(got, want []wasm.ValType) bool {
	if len(got) != len(want) {
		return false
	}
	for i, g := range got {
		if g != typeUnknown && g != want[i] {
			return false
		}
	}
	return true
}

func typesEqual(a, b []wasm.ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func typesString(types []wasm.ValType) string {
	if len(types) == 0 {
		return "()"
	}
	s := "("
	for i, t := range types {
		if i > 0 {
			s += ", "
		}
		s += t.String()
	}
	return s + ")"
}

func ssaType(t wasm.ValType) ssa.Type {
	switch t {
	case wasm.ValI32:
		return ssa.TypeI32
	case wasm.ValI64:
		return ssa.TypeI64
	case wasm.ValF32:
		return ssa.TypeF32
	case wasm.ValF64:
		return ssa.TypeF64
	}
	return ssa.TypeI32
}

func constOpcode(t wasm.ValType) byte {
	switch t {
	case wasm.ValI64:
		return wasm.OpI64Const
	case wasm.ValF32:
		return wasm.OpF32Const
	case wasm.ValF64:
		return wasm.OpF64Const
	default:
		return wasm.OpI32Const
	}
}

func zeroImm(t wasm.ValType) interface{} {
	switch t {
	case wasm.ValI64:
		return wasm.I64Imm{}
	case wasm.ValF32:
		return wasm.F32Imm{}
	case wasm.ValF64:
		return wasm.F64Imm{}
	default:
		return wasm.I32Imm{}
	}
}
