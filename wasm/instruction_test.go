package wasm

import (
	"bytes"
	"reflect"
	"testing"
)

func TestDecodeInstruction(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  Instruction
	}{
		{
			"nop",
			[]byte{OpNop},
			Instruction{Opcode: OpNop},
		},
		{
			"i32.const",
			[]byte{OpI32Const, 0x2A},
			Instruction{Opcode: OpI32Const, Imm: I32Imm{Value: 42}},
		},
		{
			"local.get",
			[]byte{OpLocalGet, 0x03},
			Instruction{Opcode: OpLocalGet, Imm: LocalImm{LocalIdx: 3}},
		},
		{
			"block void",
			[]byte{OpBlock, 0x40},
			Instruction{Opcode: OpBlock, Imm: BlockImm{Type: BlockTypeVoid}},
		},
		{
			"block with type index",
			[]byte{OpBlock, 0x02},
			Instruction{Opcode: OpBlock, Imm: BlockImm{Type: 2}},
		},
		{
			"funclet_region i32 result, three funclets",
			[]byte{OpFuncletRegion, 0x7F, 0x03},
			Instruction{Opcode: OpFuncletRegion, Imm: FuncletRegionImm{Sig: BlockTypeI32, NumFunclets: 3}},
		},
		{
			"funclet_sig with type index and preds",
			[]byte{OpFuncletSig, 0x01, 0x02},
			Instruction{Opcode: OpFuncletSig, Imm: FuncletSigImm{Sig: 1, NumPreds: 2}},
		},
		{
			"funclet_call forward",
			[]byte{OpFuncletCall, 0x02},
			Instruction{Opcode: OpFuncletCall, Imm: FuncletCallImm{Delta: 2}},
		},
		{
			"funclet_call backward",
			[]byte{OpFuncletCall, 0x7F},
			Instruction{Opcode: OpFuncletCall, Imm: FuncletCallImm{Delta: -1}},
		},
		{
			"funclet_call_if self",
			[]byte{OpFuncletCallIf, 0x00},
			Instruction{Opcode: OpFuncletCallIf, Imm: FuncletCallImm{Delta: 0}},
		},
		{
			"funclet_call_table",
			[]byte{OpFuncletCallTable, 0x02, 0x01, 0x02, 0x7F},
			Instruction{Opcode: OpFuncletCallTable, Imm: FuncletCallTableImm{Deltas: []int32{1, 2}, Default: -1}},
		},
		{
			"br_table",
			[]byte{OpBrTable, 0x01, 0x00, 0x01},
			Instruction{Opcode: OpBrTable, Imm: BrTableImm{Labels: []uint32{0}, Default: 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInstruction(bytes.NewReader(tt.input))
			if err != nil {
				t.Fatalf("DecodeInstruction: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeInstructionUnknownOpcode(t *testing.T) {
	_, err := DecodeInstruction(bytes.NewReader([]byte{0xFF}))
	if err == nil {
		t.Fatal("expected error for unknown opcode")
	}
}

func TestDecodeInstructionTruncatedImmediate(t *testing.T) {
	// funclet_call_table announces two deltas but only one follows.
	_, err := DecodeInstruction(bytes.NewReader([]byte{OpFuncletCallTable, 0x02, 0x01}))
	if err == nil {
		t.Fatal("expected error for truncated immediates")
	}
}

func TestEncodeInstructionRoundTrip(t *testing.T) {
	instrs := []Instruction{
		{Opcode: OpFuncletRegion, Imm: FuncletRegionImm{Sig: BlockTypeVoid, NumFunclets: 2}},
		{Opcode: OpI32Const, Imm: I32Imm{Value: -7}},
		{Opcode: OpFuncletCall, Imm: FuncletCallImm{Delta: 1}},
		{Opcode: OpFuncletSig, Imm: FuncletSigImm{Sig: BlockTypeI32, NumPreds: 1}},
		{Opcode: OpLocalTee, Imm: LocalImm{LocalIdx: 5}},
		{Opcode: OpFuncletCallTable, Imm: FuncletCallTableImm{Deltas: []int32{0, -1}, Default: 1}},
		{Opcode: OpEnd},
	}

	var buf bytes.Buffer
	for _, in := range instrs {
		if err := EncodeInstructionTo(&buf, in); err != nil {
			t.Fatalf("EncodeInstructionTo: %v", err)
		}
	}

	got, err := DecodeInstructions(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}
	if !reflect.DeepEqual(got, instrs) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, instrs)
	}
}

func TestOpcodeName(t *testing.T) {
	if name := OpcodeName(OpFuncletCallIf); name != "funclet_call_if" {
		t.Errorf("got %q", name)
	}
	if name := OpcodeName(0xFE); name != "opcode(0xfe)" {
		t.Errorf("got %q", name)
	}
}
