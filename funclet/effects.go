package funclet

import (
	"github.com/wippyai/wasm-funclets/wasm"
)

// StackEffect describes the typed operands an instruction pops (top of stack
// last) and the results it pushes.
type StackEffect struct {
	Pops   []wasm.ValType
	Pushes []wasm.ValType
}

// stackEffect returns the effect for op using the static table. Returns nil
// for control flow, variable access, and other instructions with dynamic
// effects, which the validator handles directly.
func stackEffect(op byte) *StackEffect {
	switch op {
	// Constants
	case wasm.OpI32Const:
		return &StackEffect{Pushes: []wasm.ValType{wasm.ValI32}}
	case wasm.OpI64Const:
		return &StackEffect{Pushes: []wasm.ValType{wasm.ValI64}}
	case wasm.OpF32Const:
		return &StackEffect{Pushes: []wasm.ValType{wasm.ValF32}}
	case wasm.OpF64Const:
		return &StackEffect{Pushes: []wasm.ValType{wasm.ValF64}}

	// i32 unary tests
	case wasm.OpI32Eqz:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValI32}, Pushes: []wasm.ValType{wasm.ValI32}}
	case wasm.OpI64Eqz:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValI64}, Pushes: []wasm.ValType{wasm.ValI32}}

	// Comparisons
	case wasm.OpI32Eq, wasm.OpI32Ne, wasm.OpI32LtS, wasm.OpI32LtU, wasm.OpI32GtS,
		wasm.OpI32GtU, wasm.OpI32LeS, wasm.OpI32LeU, wasm.OpI32GeS, wasm.OpI32GeU:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Pushes: []wasm.ValType{wasm.ValI32}}
	case wasm.OpI64Eq, wasm.OpI64Ne, wasm.OpI64LtS, wasm.OpI64LtU, wasm.OpI64GtS,
		wasm.OpI64GtU, wasm.OpI64LeS, wasm.OpI64LeU, wasm.OpI64GeS, wasm.OpI64GeU:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValI64, wasm.ValI64}, Pushes: []wasm.ValType{wasm.ValI32}}
	case wasm.OpF32Eq, wasm.OpF32Ne, wasm.OpF32Lt, wasm.OpF32Gt, wasm.OpF32Le, wasm.OpF32Ge:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValF32, wasm.ValF32}, Pushes: []wasm.ValType{wasm.ValI32}}
	case wasm.OpF64Eq, wasm.OpF64Ne, wasm.OpF64Lt, wasm.OpF64Gt, wasm.OpF64Le, wasm.OpF64Ge:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValF64, wasm.ValF64}, Pushes: []wasm.ValType{wasm.ValI32}}

	// i32 unary arithmetic
	case wasm.OpI32Clz, wasm.OpI32Ctz, wasm.OpI32Popcnt:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValI32}, Pushes: []wasm.ValType{wasm.ValI32}}
	case wasm.OpI64Clz, wasm.OpI64Ctz, wasm.OpI64Popcnt:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValI64}, Pushes: []wasm.ValType{wasm.ValI64}}

	// i32 binary arithmetic
	case wasm.OpI32Add, wasm.OpI32Sub, wasm.OpI32Mul, wasm.OpI32DivS, wasm.OpI32DivU,
		wasm.OpI32RemS, wasm.OpI32RemU, wasm.OpI32And, wasm.OpI32Or, wasm.OpI32Xor,
		wasm.OpI32Shl, wasm.OpI32ShrS, wasm.OpI32ShrU, wasm.OpI32Rotl, wasm.OpI32Rotr:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Pushes: []wasm.ValType{wasm.ValI32}}

	// i64 binary arithmetic
	case wasm.OpI64Add, wasm.OpI64Sub, wasm.OpI64Mul, wasm.OpI64DivS, wasm.OpI64DivU,
		wasm.OpI64RemS, wasm.OpI64RemU, wasm.OpI64And, wasm.OpI64Or, wasm.OpI64Xor,
		wasm.OpI64Shl, wasm.OpI64ShrS, wasm.OpI64ShrU, wasm.OpI64Rotl, wasm.OpI64Rotr:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValI64, wasm.ValI64}, Pushes: []wasm.ValType{wasm.ValI64}}

	// f32 arithmetic
	case wasm.OpF32Abs, wasm.OpF32Neg, wasm.OpF32Ceil, wasm.OpF32Floor, wasm.OpF32Trunc,
		wasm.OpF32Nearest, wasm.OpF32Sqrt:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValF32}, Pushes: []wasm.ValType{wasm.ValF32}}
	case wasm.OpF32Add, wasm.OpF32Sub, wasm.OpF32Mul, wasm.OpF32Div, wasm.OpF32Min,
		wasm.OpF32Max, wasm.OpF32Copysign:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValF32, wasm.ValF32}, Pushes: []wasm.ValType{wasm.ValF32}}

	// f64 arithmetic
	case wasm.OpF64Abs, wasm.OpF64Neg, wasm.OpF64Ceil, wasm.OpF64Floor, wasm.OpF64Trunc,
		wasm.OpF64Nearest, wasm.OpF64Sqrt:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValF64}, Pushes: []wasm.ValType{wasm.ValF64}}
	case wasm.OpF64Add, wasm.OpF64Sub, wasm.OpF64Mul, wasm.OpF64Div, wasm.OpF64Min,
		wasm.OpF64Max, wasm.OpF64Copysign:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValF64, wasm.ValF64}, Pushes: []wasm.ValType{wasm.ValF64}}

	// Conversions
	case wasm.OpI32WrapI64:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValI64}, Pushes: []wasm.ValType{wasm.ValI32}}
	case wasm.OpI64ExtendI32S, wasm.OpI64ExtendI32U:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValI32}, Pushes: []wasm.ValType{wasm.ValI64}}
	case wasm.OpI32TruncF32S, wasm.OpI32TruncF32U:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValF32}, Pushes: []wasm.ValType{wasm.ValI32}}
	case wasm.OpI32TruncF64S, wasm.OpI32TruncF64U:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValF64}, Pushes: []wasm.ValType{wasm.ValI32}}
	case wasm.OpI64TruncF32S, wasm.OpI64TruncF32U:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValF32}, Pushes: []wasm.ValType{wasm.ValI64}}
	case wasm.OpI64TruncF64S, wasm.OpI64TruncF64U:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValF64}, Pushes: []wasm.ValType{wasm.ValI64}}
	case wasm.OpF32ConvertI32S, wasm.OpF32ConvertI32U:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValI32}, Pushes: []wasm.ValType{wasm.ValF32}}
	case wasm.OpF32ConvertI64S, wasm.OpF32ConvertI64U:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValI64}, Pushes: []wasm.ValType{wasm.ValF32}}
	case wasm.OpF64ConvertI32S, wasm.OpF64ConvertI32U:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValI32}, Pushes: []wasm.ValType{wasm.ValF64}}
	case wasm.OpF64ConvertI64S, wasm.OpF64ConvertI64U:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValI64}, Pushes: []wasm.ValType{wasm.ValF64}}
	case wasm.OpF32DemoteF64:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValF64}, Pushes: []wasm.ValType{wasm.ValF32}}
	case wasm.OpF64PromoteF32:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValF32}, Pushes: []wasm.ValType{wasm.ValF64}}
	case wasm.OpI32ReinterpretF32:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValF32}, Pushes: []wasm.ValType{wasm.ValI32}}
	case wasm.OpI64ReinterpretF64:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValF64}, Pushes: []wasm.ValType{wasm.ValI64}}
	case wasm.OpF32ReinterpretI32:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValI32}, Pushes: []wasm.ValType{wasm.ValF32}}
	case wasm.OpF64ReinterpretI64:
		return &StackEffect{Pops: []wasm.ValType{wasm.ValI64}, Pushes: []wasm.ValType{wasm.ValF64}}
	}

	return nil // dynamic or control flow
}
