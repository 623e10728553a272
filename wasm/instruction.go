package wasm

import (
	"bytes"
	"fmt"
)

// Opcode constants are defined in constants.go

// Instruction represents a decoded instruction
type Instruction struct {
	Imm    interface{}
	Opcode byte
}

// BlockImm holds the block type for block, loop, and if instructions.
type BlockImm struct {
	Type int64 // Block type: -64=void, -1=i32, -2=i64, -3=f32, -4=f64, >=0=type index
}

// BranchImm holds the label index for br and br_if instructions.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the label table for br_table instruction.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the function index for call instruction.
type CallImm struct {
	FuncIdx uint32
}

// LocalImm holds the local index for local.get, local.set, local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// I32Imm holds the constant value for i32.const instruction.
type I32Imm struct {
	Value int32
}

// I64Imm holds the constant value for i64.const instruction.
type I64Imm struct {
	Value int64
}

// F32Imm holds the constant value for f32.const instruction.
type F32Imm struct {
	Value float32
}

// F64Imm holds the constant value for f64.const instruction.
type F64Imm struct {
	Value float64
}

// FuncletRegionImm holds the immediates for funclet_region: the region
// signature as an s33 block type and the fixed funclet count.
type FuncletRegionImm struct {
	Sig         int64
	NumFunclets uint32
}

// FuncletSigImm holds the immediates for funclet_sig: the explicit funclet
// signature as an s33 block type and the declared backward-predecessor count.
type FuncletSigImm struct {
	Sig      int64
	NumPreds uint32
}

// FuncletCallImm holds the signed funclet delta for funclet_call and
// funclet_call_if.
type FuncletCallImm struct {
	Delta int32
}

// FuncletCallTableImm holds the delta table for funclet_call_table.
type FuncletCallTableImm struct {
	Deltas  []int32
	Default int32
}

// DecodeInstruction decodes a single instruction from r, advancing it past
// the opcode and its immediates. Validation walks a body incrementally with
// this so funclet boundaries can be observed as they are crossed.
func DecodeInstruction(r *bytes.Reader) (Instruction, error) {
	op, err := r.ReadByte()
	if err != nil {
		return Instruction{}, err
	}

	instr := Instruction{Opcode: op}

	switch op {
	case OpBlock, OpLoop, OpIf:
		bt, err := ReadLEB128s33(r)
		if err != nil {
			return Instruction{}, err
		}
		instr.Imm = BlockImm{Type: bt}

	case OpBr, OpBrIf:
		idx, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, err
		}
		instr.Imm = BranchImm{LabelIdx: idx}

	case OpBrTable:
		count, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, err
		}
		labels := make([]uint32, count)
		for i := uint32(0); i < count; i++ {
			labels[i], err = ReadLEB128u(r)
			if err != nil {
				return Instruction{}, err
			}
		}
		def, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, err
		}
		instr.Imm = BrTableImm{Labels: labels, Default: def}

	case OpCall:
		idx, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, err
		}
		instr.Imm = CallImm{FuncIdx: idx}

	case OpFuncletRegion:
		sig, err := ReadLEB128s33(r)
		if err != nil {
			return Instruction{}, err
		}
		count, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, err
		}
		instr.Imm = FuncletRegionImm{Sig: sig, NumFunclets: count}

	case OpFuncletSig:
		sig, err := ReadLEB128s33(r)
		if err != nil {
			return Instruction{}, err
		}
		preds, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, err
		}
		instr.Imm = FuncletSigImm{Sig: sig, NumPreds: preds}

	case OpFuncletCall, OpFuncletCallIf:
		delta, err := ReadLEB128s(r)
		if err != nil {
			return Instruction{}, err
		}
		instr.Imm = FuncletCallImm{Delta: delta}

	case OpFuncletCallTable:
		count, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, err
		}
		deltas := make([]int32, count)
		for i := uint32(0); i < count; i++ {
			deltas[i], err = ReadLEB128s(r)
			if err != nil {
				return Instruction{}, err
			}
		}
		def, err := ReadLEB128s(r)
		if err != nil {
			return Instruction{}, err
		}
		instr.Imm = FuncletCallTableImm{Deltas: deltas, Default: def}

	case OpLocalGet, OpLocalSet, OpLocalTee:
		idx, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, err
		}
		instr.Imm = LocalImm{LocalIdx: idx}

	case OpI32Const:
		val, err := ReadLEB128s(r)
		if err != nil {
			return Instruction{}, err
		}
		instr.Imm = I32Imm{Value: val}

	case OpI64Const:
		val, err := ReadLEB128s64(r)
		if err != nil {
			return Instruction{}, err
		}
		instr.Imm = I64Imm{Value: val}

	case OpF32Const:
		val, err := ReadFloat32(r)
		if err != nil {
			return Instruction{}, err
		}
		instr.Imm = F32Imm{Value: val}

	case OpF64Const:
		val, err := ReadFloat64(r)
		if err != nil {
			return Instruction{}, err
		}
		instr.Imm = F64Imm{Value: val}

	default:
		if !knownPlainOpcode(op) {
			return Instruction{}, fmt.Errorf("unknown opcode 0x%02x", op)
		}
	}

	return instr, nil
}

// DecodeInstructions decodes a full instruction sequence from raw bytes.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := bytes.NewReader(code)
	instrs := make([]Instruction, 0, len(code)/2)
	for r.Len() > 0 {
		instr, err := DecodeInstruction(r)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, instr)
	}
	return instrs, nil
}

// knownPlainOpcode reports whether op is a recognized opcode that carries no
// immediates.
func knownPlainOpcode(op byte) bool {
	switch op {
	case OpUnreachable, OpNop, OpElse, OpEnd, OpReturn, OpDrop, OpSelect:
		return true
	}
	// Numeric opcodes form one contiguous range.
	return op >= OpI32Eqz && op <= OpF64ReinterpretI64
}

// EncodeInstructionTo appends the binary encoding of instr to buf.
func EncodeInstructionTo(buf *bytes.Buffer, instr Instruction) error {
	buf.WriteByte(instr.Opcode)

	switch imm := instr.Imm.(type) {
	case nil:
		// No immediates.

	case BlockImm:
		WriteLEB128s64(buf, imm.Type)

	case BranchImm:
		WriteLEB128u(buf, imm.LabelIdx)

	case BrTableImm:
		WriteLEB128u(buf, uint32(len(imm.Labels)))
		for _, l := range imm.Labels {
			WriteLEB128u(buf, l)
		}
		WriteLEB128u(buf, imm.Default)

	case CallImm:
		WriteLEB128u(buf, imm.FuncIdx)

	case FuncletRegionImm:
		WriteLEB128s64(buf, imm.Sig)
		WriteLEB128u(buf, imm.NumFunclets)

	case FuncletSigImm:
		WriteLEB128s64(buf, imm.Sig)
		WriteLEB128u(buf, imm.NumPreds)

	case FuncletCallImm:
		WriteLEB128s(buf, imm.Delta)

	case FuncletCallTableImm:
		WriteLEB128u(buf, uint32(len(imm.Deltas)))
		for _, d := range imm.Deltas {
			WriteLEB128s(buf, d)
		}
		WriteLEB128s(buf, imm.Default)

	case LocalImm:
		WriteLEB128u(buf, imm.LocalIdx)

	case I32Imm:
		WriteLEB128s(buf, imm.Value)

	case I64Imm:
		WriteLEB128s64(buf, imm.Value)

	case F32Imm:
		WriteFloat32(buf, imm.Value)

	case F64Imm:
		WriteFloat64(buf, imm.Value)

	default:
		return fmt.Errorf("unsupported immediate %T for opcode 0x%02x", instr.Imm, instr.Opcode)
	}

	return nil
}

// OpcodeName returns the textual mnemonic for op.
func OpcodeName(op byte) string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("opcode(0x%02x)", op)
}

var opcodeNames = map[byte]string{
	OpUnreachable:      "unreachable",
	OpNop:              "nop",
	OpBlock:            "block",
	OpLoop:             "loop",
	OpIf:               "if",
	OpElse:             "else",
	OpEnd:              "end",
	OpBr:               "br",
	OpBrIf:             "br_if",
	OpBrTable:          "br_table",
	OpReturn:           "return",
	OpCall:             "call",
	OpFuncletRegion:    "funclet_region",
	OpFuncletSig:       "funclet_sig",
	OpFuncletCall:      "funclet_call",
	OpFuncletCallIf:    "funclet_call_if",
	OpFuncletCallTable: "funclet_call_table",
	OpDrop:             "drop",
	OpSelect:           "select",
	OpLocalGet:         "local.get",
	OpLocalSet:         "local.set",
	OpLocalTee:         "local.tee",
	OpI32Const:         "i32.const",
	OpI64Const:         "i64.const",
	OpF32Const:         "f32.const",
	OpF64Const:         "f64.const",
	OpI32Eqz:           "i32.eqz",
	OpI32Eq:            "i32.eq",
	OpI32Ne:            "i32.ne",
	OpI32LtS:           "i32.lt_s",
	OpI32LtU:           "i32.lt_u",
	OpI32GtS:           "i32.gt_s",
	OpI32GtU:           "i32.gt_u",
	OpI32LeS:           "i32.le_s",
	OpI32LeU:           "i32.le_u",
	OpI32GeS:           "i32.ge_s",
	OpI32GeU:           "i32.ge_u",
	OpI64Eqz:           "i64.eqz",
	OpI64Eq:            "i64.eq",
	OpI64Ne:            "i64.ne",
	OpI32Add:           "i32.add",
	OpI32Sub:           "i32.sub",
	OpI32Mul:           "i32.mul",
	OpI32DivS:          "i32.div_s",
	OpI32DivU:          "i32.div_u",
	OpI32RemS:          "i32.rem_s",
	OpI32RemU:          "i32.rem_u",
	OpI32And:           "i32.and",
	OpI32Or:            "i32.or",
	OpI32Xor:           "i32.xor",
	OpI32Shl:           "i32.shl",
	OpI32ShrS:          "i32.shr_s",
	OpI32ShrU:          "i32.shr_u",
	OpI64Add:           "i64.add",
	OpI64Sub:           "i64.sub",
	OpI64Mul:           "i64.mul",
	OpF32Add:           "f32.add",
	OpF32Sub:           "f32.sub",
	OpF32Mul:           "f32.mul",
	OpF32Div:           "f32.div",
	OpF64Add:           "f64.add",
	OpF64Sub:           "f64.sub",
	OpF64Mul:           "f64.mul",
	OpF64Div:           "f64.div",
	OpI32WrapI64:       "i32.wrap_i64",
	OpI64ExtendI32S:    "i64.extend_i32_s",
	OpI64ExtendI32U:    "i64.extend_i32_u",
	OpF32DemoteF64:     "f32.demote_f64",
	OpF64PromoteF32:    "f64.promote_f32",
}
