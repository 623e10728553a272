package funclet

import (
	"github.com/wippyai/wasm-funclets/errors"
	"github.com/wippyai/wasm-funclets/wasm"
)

// TypeContext is the enclosing module context a function body is validated
// against: the type section, the function index space, and the function's
// own signature and locals.
type TypeContext struct {
	// Types is the module's type section.
	Types []wasm.FuncType

	// Funcs maps function indices to type indices, for call.
	Funcs []uint32

	// Params and Results are the signature of the function being validated.
	Params  []wasm.ValType
	Results []wasm.ValType

	// Locals are the declared locals, not counting params.
	Locals []wasm.ValType
}

// numLocals is the combined param+local slot count.
func (c *TypeContext) numLocals() int {
	return len(c.Params) + len(c.Locals)
}

// localType returns the type of local slot idx, params first.
func (c *TypeContext) localType(idx uint32) (wasm.ValType, bool) {
	if int(idx) < len(c.Params) {
		return c.Params[idx], true
	}
	n := int(idx) - len(c.Params)
	if n < len(c.Locals) {
		return c.Locals[n], true
	}
	return 0, false
}

// funcType resolves a function index to its signature.
func (c *TypeContext) funcType(idx uint32) (wasm.FuncType, bool) {
	if int(idx) >= len(c.Funcs) {
		return wasm.FuncType{}, false
	}
	typeIdx := c.Funcs[idx]
	if int(typeIdx) >= len(c.Types) {
		return wasm.FuncType{}, false
	}
	return c.Types[typeIdx], true
}

// blockType resolves an s33 block type to a full signature: negative
// shorthands mean zero or one result, non-negative values index the type
// section.
func (c *TypeContext) blockType(bt int64, offset int) (wasm.FuncType, error) {
	switch bt {
	case wasm.BlockTypeVoid:
		return wasm.FuncType{}, nil
	case wasm.BlockTypeI32:
		return wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}, nil
	case wasm.BlockTypeI64:
		return wasm.FuncType{Results: []wasm.ValType{wasm.ValI64}}, nil
	case wasm.BlockTypeF32:
		return wasm.FuncType{Results: []wasm.ValType{wasm.ValF32}}, nil
	case wasm.BlockTypeF64:
		return wasm.FuncType{Results: []wasm.ValType{wasm.ValF64}}, nil
	}
	if bt < 0 || int(bt) >= len(c.Types) {
		return wasm.FuncType{}, errors.Malformed(errors.PhaseDecode, offset,
			"block type index out of range", nil)
	}
	return c.Types[bt], nil
}

// funcletSig resolves the s33 signature immediate of funclet_sig: a
// shorthand value type means one parameter of that type, void means no
// parameters, and a type index names a func type that must have no results.
func (c *TypeContext) funcletSig(bt int64, offset int) ([]wasm.ValType, error) {
	switch bt {
	case wasm.BlockTypeVoid:
		return nil, nil
	case wasm.BlockTypeI32:
		return []wasm.ValType{wasm.ValI32}, nil
	case wasm.BlockTypeI64:
		return []wasm.ValType{wasm.ValI64}, nil
	case wasm.BlockTypeF32:
		return []wasm.ValType{wasm.ValF32}, nil
	case wasm.BlockTypeF64:
		return []wasm.ValType{wasm.ValF64}, nil
	}
	if bt < 0 || int(bt) >= len(c.Types) {
		return nil, errors.Malformed(errors.PhaseDecode, offset,
			"funclet signature type index out of range", nil)
	}
	ft := c.Types[bt]
	if len(ft.Results) > 0 {
		return nil, errors.Structural(offset,
			"funclet signature must not declare results")
	}
	return ft.Params, nil
}
