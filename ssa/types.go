package ssa

import "fmt"

// Type is the type of an SSA value.
type Type byte

const (
	typeInvalid Type = iota
	TypeI32
	TypeI64
	TypeF32
	TypeF64
)

// String returns the textual name of the type.
func (t Type) String() string {
	switch t {
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypeF32:
		return "f32"
	case TypeF64:
		return "f64"
	default:
		return "invalid"
	}
}

func (t Type) invalid() bool {
	return t == typeInvalid
}

// Value identifies an SSA value. Each value is defined exactly once, either
// as a block parameter or as an instruction result.
type Value int32

// ValueInvalid is the zero value marker for no value.
const ValueInvalid Value = -1

// Valid reports whether v refers to an allocated value.
func (v Value) Valid() bool {
	return v != ValueInvalid
}

// String returns the textual form, e.g. "v3".
func (v Value) String() string {
	if !v.Valid() {
		return "v?"
	}
	return fmt.Sprintf("v%d", int32(v))
}

// Variable identifies a storage slot being converted to SSA: a function
// local or a region-level operand position.
type Variable int32

// String returns the textual form, e.g. "var2".
func (v Variable) String() string {
	return fmt.Sprintf("var%d", int32(v))
}
