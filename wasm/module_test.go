package wasm

import (
	"bytes"
	"testing"
)

func TestModuleEncode(t *testing.T) {
	m := &Module{
		Types: []FuncType{
			{Params: []ValType{ValI32}, Results: []ValType{ValI32}},
		},
		Funcs:   []uint32{0},
		Exports: []Export{{Name: "double", FuncIdx: 0}},
		Code: []FuncBody{
			{Code: []byte{OpLocalGet, 0x00, OpLocalGet, 0x00, OpI32Add, OpEnd}},
		},
	}

	bin := m.Encode()

	header := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	if !bytes.HasPrefix(bin, header) {
		t.Fatalf("missing magic header, got % x", bin[:8])
	}

	// Sections must appear in order: type, function, export, code.
	rest := bin[8:]
	var order []byte
	for len(rest) > 0 {
		id := rest[0]
		order = append(order, id)
		size, err := ReadLEB128u(bytes.NewReader(rest[1:]))
		if err != nil {
			t.Fatalf("section size: %v", err)
		}
		// One LEB byte is enough for these sizes.
		rest = rest[2+int(size):]
	}
	want := []byte{SectionType, SectionFunction, SectionExport, SectionCode}
	if !bytes.Equal(order, want) {
		t.Errorf("section order % x, want % x", order, want)
	}
}

func TestFuncTypeEqual(t *testing.T) {
	a := FuncType{Params: []ValType{ValI32, ValI64}, Results: []ValType{ValF64}}
	b := FuncType{Params: []ValType{ValI32, ValI64}, Results: []ValType{ValF64}}
	c := FuncType{Params: []ValType{ValI32}, Results: []ValType{ValF64}}

	if !a.Equal(b) {
		t.Error("identical types reported unequal")
	}
	if a.Equal(c) {
		t.Error("different params reported equal")
	}
}

func TestFuncTypeString(t *testing.T) {
	ft := FuncType{Params: []ValType{ValI32, ValF32}, Results: []ValType{ValI64}}
	if got := ft.String(); got != "(i32, f32) -> (i64)" {
		t.Errorf("got %q", got)
	}
}
