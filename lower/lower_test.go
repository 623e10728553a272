package lower

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/wasm-funclets/errors"
	"github.com/wippyai/wasm-funclets/funclet"
	"github.com/wippyai/wasm-funclets/wasm"
)

func buildBody(t *testing.T, instrs ...wasm.Instruction) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, in := range instrs {
		if err := wasm.EncodeInstructionTo(&buf, in); err != nil {
			t.Fatalf("encode %s: %v", wasm.OpcodeName(in.Opcode), err)
		}
	}
	return buf.Bytes()
}

func ins(op byte, imm interface{}) wasm.Instruction {
	return wasm.Instruction{Opcode: op, Imm: imm}
}

func runMain(t *testing.T, mod *wasm.Module, args ...uint64) []uint64 {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	inst, err := rt.Instantiate(ctx, mod.Encode())
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	res, err := inst.ExportedFunction("main").Call(ctx, args...)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	return res
}

func TestLowerSelfLoopCounter(t *testing.T) {
	// One funclet looping on itself until a local counter reaches 10.
	ctx := &funclet.TypeContext{
		Results: []wasm.ValType{wasm.ValI32},
		Locals:  []wasm.ValType{wasm.ValI32},
	}
	body := buildBody(t,
		ins(wasm.OpFuncletRegion, wasm.FuncletRegionImm{Sig: wasm.BlockTypeI32, NumFunclets: 1}),
		ins(wasm.OpFuncletSig, wasm.FuncletSigImm{Sig: wasm.BlockTypeVoid, NumPreds: 1}),
		ins(wasm.OpLocalGet, wasm.LocalImm{LocalIdx: 0}),
		ins(wasm.OpI32Const, wasm.I32Imm{Value: 1}),
		ins(wasm.OpI32Add, nil),
		ins(wasm.OpLocalTee, wasm.LocalImm{LocalIdx: 0}),
		ins(wasm.OpI32Const, wasm.I32Imm{Value: 10}),
		ins(wasm.OpI32LtS, nil),
		ins(wasm.OpFuncletCallIf, wasm.FuncletCallImm{Delta: 0}),
		ins(wasm.OpLocalGet, wasm.LocalImm{LocalIdx: 0}),
		ins(wasm.OpEnd, nil),
		ins(wasm.OpEnd, nil),
	)

	mod, err := Module(body, ctx, "main")
	if err != nil {
		t.Fatalf("Module: %v", err)
	}
	res := runMain(t, mod)
	if len(res) != 1 || res[0] != 10 {
		t.Errorf("result = %v, want [10]", res)
	}
}

func TestLowerDiamond(t *testing.T) {
	// Funclet 0 either exits directly with 7 or tail-calls funclet 1, which
	// increments its argument.
	ctx := &funclet.TypeContext{
		Params:  []wasm.ValType{wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	}
	body := buildBody(t,
		ins(wasm.OpFuncletRegion, wasm.FuncletRegionImm{Sig: wasm.BlockTypeI32, NumFunclets: 2}),
		ins(wasm.OpI32Const, wasm.I32Imm{Value: 100}),
		ins(wasm.OpLocalGet, wasm.LocalImm{LocalIdx: 0}),
		ins(wasm.OpFuncletCallIf, wasm.FuncletCallImm{Delta: 1}),
		ins(wasm.OpDrop, nil),
		ins(wasm.OpI32Const, wasm.I32Imm{Value: 7}),
		ins(wasm.OpBr, wasm.BranchImm{LabelIdx: 0}),
		ins(wasm.OpI32Const, wasm.I32Imm{Value: 1}),
		ins(wasm.OpI32Add, nil),
		ins(wasm.OpEnd, nil),
		ins(wasm.OpEnd, nil),
	)

	mod, err := Module(body, ctx, "main")
	if err != nil {
		t.Fatalf("Module: %v", err)
	}

	cases := []struct {
		arg  uint64
		want uint64
	}{
		{0, 7},
		{5, 101},
	}
	for _, tc := range cases {
		res := runMain(t, mod, tc.arg)
		if len(res) != 1 || res[0] != tc.want {
			t.Errorf("main(%d) = %v, want [%d]", tc.arg, res, tc.want)
		}
	}
}

func TestLowerCallTable(t *testing.T) {
	// Funclet 0 dispatches on its parameter: selector 0 goes through the
	// incrementing funclet 1, everything else straight to funclet 2.
	ctx := &funclet.TypeContext{
		Params:  []wasm.ValType{wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	}
	body := buildBody(t,
		ins(wasm.OpFuncletRegion, wasm.FuncletRegionImm{Sig: wasm.BlockTypeI32, NumFunclets: 3}),
		ins(wasm.OpI32Const, wasm.I32Imm{Value: 10}),
		ins(wasm.OpLocalGet, wasm.LocalImm{LocalIdx: 0}),
		ins(wasm.OpFuncletCallTable, wasm.FuncletCallTableImm{Deltas: []int32{1, 2}, Default: 2}),
		ins(wasm.OpI32Const, wasm.I32Imm{Value: 1}),
		ins(wasm.OpI32Add, nil),
		ins(wasm.OpEnd, nil),
		ins(wasm.OpEnd, nil),
		ins(wasm.OpEnd, nil),
	)

	mod, err := Module(body, ctx, "main")
	if err != nil {
		t.Fatalf("Module: %v", err)
	}

	cases := []struct {
		arg  uint64
		want uint64
	}{
		{0, 11}, // via funclet 1
		{1, 10}, // direct to funclet 2
		{9, 10}, // default arm
	}
	for _, tc := range cases {
		res := runMain(t, mod, tc.arg)
		if len(res) != 1 || res[0] != tc.want {
			t.Errorf("main(%d) = %v, want [%d]", tc.arg, res, tc.want)
		}
	}
}

func TestLowerRequiresSingleRegion(t *testing.T) {
	ctx := &funclet.TypeContext{}
	body := buildBody(t,
		ins(wasm.OpNop, nil),
		ins(wasm.OpEnd, nil),
	)

	_, err := Function(body, ctx)
	if err == nil {
		t.Fatal("expected error for body without a region")
	}
	want := errors.New(errors.PhaseLower, errors.KindUnsupported).Build()
	if !errors.Is(err, want) {
		t.Fatalf("error = %v, want unsupported kind", err)
	}
}

func TestLowerRejectsInvalidBody(t *testing.T) {
	ctx := &funclet.TypeContext{}
	body := buildBody(t,
		ins(wasm.OpFuncletRegion, wasm.FuncletRegionImm{Sig: wasm.BlockTypeVoid, NumFunclets: 0}),
		ins(wasm.OpEnd, nil),
	)

	if _, err := Function(body, ctx); err == nil {
		t.Fatal("expected validation error to propagate")
	}
}
