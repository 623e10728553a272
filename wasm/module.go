package wasm

import (
	"github.com/wippyai/wasm-funclets/wasm/internal/binary"
)

// Module is the minimal module shape the lowering path assembles: core
// modules with functions and exports only.
type Module struct {
	Types   []FuncType
	Funcs   []uint32 // Type index per function
	Exports []Export
	Code    []FuncBody
}

// Export is a named function export.
type Export struct {
	Name    string
	FuncIdx uint32
}

// LocalEntry is a run of locals sharing one type.
type LocalEntry struct {
	Count uint32
	Type  ValType
}

// FuncBody is a function body: local declarations plus raw instruction bytes
// ending in the terminating end opcode.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// Encode encodes the module to WebAssembly binary format
func (m *Module) Encode() []byte {
	w := binary.NewWriter()

	// Magic number and version
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	// Type section
	if len(m.Types) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.Byte(FuncTypeByte)
			writeValTypes(sec, ft.Params)
			writeValTypes(sec, ft.Results)
		}
		writeSection(w, SectionType, sec.Bytes())
	}

	// Function section
	if len(m.Funcs) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, typeIdx := range m.Funcs {
			sec.WriteU32(typeIdx)
		}
		writeSection(w, SectionFunction, sec.Bytes())
	}

	// Export section
	if len(m.Exports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Exports)))
		for _, exp := range m.Exports {
			sec.WriteName(exp.Name)
			sec.Byte(KindFunc)
			sec.WriteU32(exp.FuncIdx)
		}
		writeSection(w, SectionExport, sec.Bytes())
	}

	// Code section
	if len(m.Code) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Code)))
		for _, body := range m.Code {
			entry := binary.NewWriter()
			entry.WriteU32(uint32(len(body.Locals)))
			for _, l := range body.Locals {
				entry.WriteU32(l.Count)
				entry.Byte(byte(l.Type))
			}
			entry.WriteBytes(body.Code)
			sec.WriteU32(uint32(entry.Len()))
			sec.WriteBytes(entry.Bytes())
		}
		writeSection(w, SectionCode, sec.Bytes())
	}

	return w.Bytes()
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeSection(w *binary.Writer, id byte, content []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(content)))
	w.WriteBytes(content)
}
