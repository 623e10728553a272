package funclet

import (
	"testing"

	"github.com/wippyai/wasm-funclets/wasm"
)

func TestBlockTypeResolution(t *testing.T) {
	ctx := &TypeContext{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI64}},
		},
	}

	ft, err := ctx.blockType(wasm.BlockTypeVoid, 0)
	if err != nil || len(ft.Params) != 0 || len(ft.Results) != 0 {
		t.Errorf("void: ft=%v err=%v", ft, err)
	}

	ft, err = ctx.blockType(wasm.BlockTypeF64, 0)
	if err != nil || len(ft.Results) != 1 || ft.Results[0] != wasm.ValF64 {
		t.Errorf("shorthand f64: ft=%v err=%v", ft, err)
	}

	ft, err = ctx.blockType(0, 0)
	if err != nil || len(ft.Params) != 1 || len(ft.Results) != 1 {
		t.Errorf("type index: ft=%v err=%v", ft, err)
	}

	if _, err = ctx.blockType(7, 0); err == nil {
		t.Error("out of range type index accepted")
	}
}

func TestFuncletSigResolution(t *testing.T) {
	ctx := &TypeContext{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValF32}},
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		},
	}

	sig, err := ctx.funcletSig(wasm.BlockTypeVoid, 0)
	if err != nil || len(sig) != 0 {
		t.Errorf("void: sig=%v err=%v", sig, err)
	}

	// Shorthand means a single parameter for funclet signatures.
	sig, err = ctx.funcletSig(wasm.BlockTypeI64, 0)
	if err != nil || len(sig) != 1 || sig[0] != wasm.ValI64 {
		t.Errorf("shorthand i64: sig=%v err=%v", sig, err)
	}

	sig, err = ctx.funcletSig(0, 0)
	if err != nil || len(sig) != 2 {
		t.Errorf("type index: sig=%v err=%v", sig, err)
	}

	// Funclets never return directly, so a result-carrying type is invalid.
	if _, err = ctx.funcletSig(1, 0); err == nil {
		t.Error("result-carrying funclet signature accepted")
	}
}

func TestLocalTypeCoversParamsThenLocals(t *testing.T) {
	ctx := &TypeContext{
		Params: []wasm.ValType{wasm.ValI32},
		Locals: []wasm.ValType{wasm.ValF64},
	}
	if typ, ok := ctx.localType(0); !ok || typ != wasm.ValI32 {
		t.Errorf("local 0 = %v %v", typ, ok)
	}
	if typ, ok := ctx.localType(1); !ok || typ != wasm.ValF64 {
		t.Errorf("local 1 = %v %v", typ, ok)
	}
	if _, ok := ctx.localType(2); ok {
		t.Error("local 2 should be out of range")
	}
}
