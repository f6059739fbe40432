// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/weftlabs/weft/wasm/leb128"
)

var ErrInvalidMagic = errors.New("magic header not detected")
var ErrUnknownVersion = errors.New("unknown binary version")
var ErrInvalidUTF8 = errors.New("wasm: invalid utf-8 string")

const (
	Magic   uint32 = 0x6d736100
	Version uint32 = 0x1
)

// SectionID is a 1-byte code identifying a section in the binary format.
type SectionID uint8

const (
	SectionIDCustom   SectionID = 0
	SectionIDType     SectionID = 1
	SectionIDImport   SectionID = 2
	SectionIDFunction SectionID = 3
	SectionIDTable    SectionID = 4
	SectionIDMemory   SectionID = 5
	SectionIDGlobal   SectionID = 6
	SectionIDExport   SectionID = 7
	SectionIDStart    SectionID = 8
	SectionIDElement  SectionID = 9
	SectionIDCode     SectionID = 10
	SectionIDData     SectionID = 11
)

func (s SectionID) String() string {
	n, ok := map[SectionID]string{
		SectionIDCustom:   "custom",
		SectionIDType:     "type",
		SectionIDImport:   "import",
		SectionIDFunction: "function",
		SectionIDTable:    "table",
		SectionIDMemory:   "memory",
		SectionIDGlobal:   "global",
		SectionIDExport:   "export",
		SectionIDStart:    "start",
		SectionIDElement:  "element",
		SectionIDCode:     "code",
		SectionIDData:     "data",
	}[s]
	if !ok {
		return "unknown"
	}
	return n
}

type InvalidSectionIDError SectionID

func (e InvalidSectionIDError) Error() string {
	return fmt.Sprintf("wasm: malformed section id %d", uint8(e))
}

type InvalidSectionOrderError SectionID

func (e InvalidSectionOrderError) Error() string {
	return fmt.Sprintf("wasm: %s section out of order", SectionID(e))
}

type SectionSizeMismatchError SectionID

func (e SectionSizeMismatchError) Error() string {
	return fmt.Sprintf("wasm: %s section payload size mismatch", SectionID(e))
}

type DuplicateExportError string

func (e DuplicateExportError) Error() string {
	return fmt.Sprintf("wasm: duplicate export entry %q", string(e))
}

// GlobalEntry declares a global variable.
type GlobalEntry struct {
	Type GlobalVar // value type and mutability of the variable
	Init []byte    // raw initializer expression, terminated by the end opcode
}

// ExportEntry describes a single export declaration.
type ExportEntry struct {
	FieldStr string
	Kind     External
	Index    uint32
}

// Module holds the type-bearing sections of a parsed WebAssembly module:
// everything the validator and linker consult structurally. Code, data,
// element and custom sections are skipped during decoding.
type Module struct {
	Version uint32

	Types     []FunctionSig
	Imports   []ImportEntry
	Functions []uint32 // type indices of the functions defined by the module
	Tables    []Table
	Memories  []Memory
	Globals   []GlobalEntry
	Exports   []ExportEntry
}

// Export returns the export with the given name, if any.
func (m *Module) Export(name string) (ExportEntry, bool) {
	for _, e := range m.Exports {
		if e.FieldStr == name {
			return e, true
		}
	}
	return ExportEntry{}, false
}

// NumImportedFunctions returns the number of functions this module imports.
// Imported functions precede defined functions in the function index space.
func (m *Module) NumImportedFunctions() int {
	n := 0
	for _, i := range m.Imports {
		if _, ok := i.Type.(FuncImport); ok {
			n++
		}
	}
	return n
}

// FunctionSignature returns the signature of the function with the given
// index in the module's function index space.
func (m *Module) FunctionSignature(funcidx uint32) (FunctionSig, bool) {
	idx := int(funcidx)
	for _, i := range m.Imports {
		f, ok := i.Type.(FuncImport)
		if !ok {
			continue
		}
		if idx == 0 {
			return m.Signature(f.Type)
		}
		idx--
	}
	if idx >= len(m.Functions) {
		return FunctionSig{}, false
	}
	return m.Signature(m.Functions[idx])
}

// MemoryType returns the type of the memory with the given index in the
// module's memory index space. Imported memories precede defined memories.
func (m *Module) MemoryType(memidx uint32) (Memory, bool) {
	idx := int(memidx)
	for _, i := range m.Imports {
		mem, ok := i.Type.(MemoryImport)
		if !ok {
			continue
		}
		if idx == 0 {
			return mem.Type, true
		}
		idx--
	}
	if idx >= len(m.Memories) {
		return Memory{}, false
	}
	return m.Memories[idx], true
}

// TableType returns the type of the table with the given index in the
// module's table index space. Imported tables precede defined tables.
func (m *Module) TableType(tableidx uint32) (Table, bool) {
	idx := int(tableidx)
	for _, i := range m.Imports {
		t, ok := i.Type.(TableImport)
		if !ok {
			continue
		}
		if idx == 0 {
			return t.Type, true
		}
		idx--
	}
	if idx >= len(m.Tables) {
		return Table{}, false
	}
	return m.Tables[idx], true
}

// GlobalType returns the type of the global with the given index in the
// module's global index space. Imported globals precede defined globals.
func (m *Module) GlobalType(globalidx uint32) (GlobalVar, bool) {
	idx := int(globalidx)
	for _, i := range m.Imports {
		g, ok := i.Type.(GlobalVarImport)
		if !ok {
			continue
		}
		if idx == 0 {
			return g.Type, true
		}
		idx--
	}
	if idx >= len(m.Globals) {
		return GlobalVar{}, false
	}
	return m.Globals[idx].Type, true
}

// Signature returns the signature with the given type index.
func (m *Module) Signature(typeidx uint32) (FunctionSig, bool) {
	if typeidx >= uint32(len(m.Types)) {
		return FunctionSig{}, false
	}
	return m.Types[typeidx], true
}

// DecodeModule decodes the type-bearing sections of a WASM module.
func DecodeModule(r io.Reader) (*Module, error) {
	m := &Module{}
	magic, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	if m.Version, err = readU32(r); err != nil {
		return nil, err
	}
	if m.Version != Version {
		return nil, ErrUnknownVersion
	}

	if err := m.readSections(r); err != nil {
		return nil, err
	}
	return m, nil
}

// MustDecode decodes a WASM module and panics on failure.
func MustDecode(r io.Reader) *Module {
	m, err := DecodeModule(r)
	if err != nil {
		panic(fmt.Errorf("decoding module: %w", err))
	}
	return m
}

func (m *Module) readSections(r io.Reader) error {
	lastSecOrder := SectionID(0) // previous non-custom section id
	for {
		id, err := readByte(r)
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		logger.Printf("reading section %v", SectionID(id))

		payloadLen, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}

		sec := SectionID(id)
		if sec > SectionIDData {
			return InvalidSectionIDError(sec)
		}
		if sec != SectionIDCustom {
			if sec <= lastSecOrder {
				return InvalidSectionOrderError(sec)
			}
			lastSecOrder = sec
		}

		lr := io.LimitReader(r, int64(payloadLen))
		switch sec {
		case SectionIDType:
			err = m.readTypeSection(lr)
		case SectionIDImport:
			err = m.readImportSection(lr)
		case SectionIDFunction:
			err = m.readFunctionSection(lr)
		case SectionIDTable:
			err = m.readTableSection(lr)
		case SectionIDMemory:
			err = m.readMemorySection(lr)
		case SectionIDGlobal:
			err = m.readGlobalSection(lr)
		case SectionIDExport:
			err = m.readExportSection(lr)
		default:
			// Custom, start, element, code, and data payloads carry no type
			// information; skip them.
		}
		if err != nil {
			return err
		}

		// Decoded sections must consume their payload exactly; skipped
		// sections are drained.
		if n, err := io.Copy(ioutil.Discard, lr); err != nil {
			return err
		} else if n != 0 && sec >= SectionIDType && sec <= SectionIDExport {
			return SectionSizeMismatchError(sec)
		}
	}
}

func (m *Module) readTypeSection(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	m.Types = make([]FunctionSig, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		var sig FunctionSig
		if err := sig.UnmarshalWASM(r); err != nil {
			return err
		}
		m.Types = append(m.Types, sig)
	}
	return nil
}

func (m *Module) readImportSection(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	m.Imports = make([]ImportEntry, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		var entry ImportEntry
		if err := entry.UnmarshalWASM(r); err != nil {
			return err
		}
		m.Imports = append(m.Imports, entry)
	}
	return nil
}

func (m *Module) readFunctionSection(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	m.Functions = make([]uint32, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		t, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}
		m.Functions = append(m.Functions, t)
	}
	return nil
}

func (m *Module) readTableSection(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	m.Tables = make([]Table, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		var entry Table
		if err := entry.UnmarshalWASM(r); err != nil {
			return err
		}
		m.Tables = append(m.Tables, entry)
	}
	return nil
}

func (m *Module) readMemorySection(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	m.Memories = make([]Memory, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		var entry Memory
		if err := entry.UnmarshalWASM(r); err != nil {
			return err
		}
		m.Memories = append(m.Memories, entry)
	}
	return nil
}

func (m *Module) readGlobalSection(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	m.Globals = make([]GlobalEntry, 0, getInitialCap(count))
	logger.Printf("%d global entries", count)
	for i := uint32(0); i < count; i++ {
		var global GlobalEntry
		if err := global.Type.UnmarshalWASM(r); err != nil {
			return err
		}
		init, err := readInitExpr(r)
		if err != nil {
			return err
		}
		global.Init = init
		m.Globals = append(m.Globals, global)
	}
	return nil
}

func (m *Module) readExportSection(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	names := make(map[string]struct{}, getInitialCap(count))
	m.Exports = make([]ExportEntry, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		var entry ExportEntry
		if entry.FieldStr, err = readUTF8StringUint(r); err != nil {
			return err
		}
		if err := entry.Kind.UnmarshalWASM(r); err != nil {
			return err
		}
		if entry.Index, err = leb128.ReadVarUint32(r); err != nil {
			return err
		}
		if _, ok := names[entry.FieldStr]; ok {
			return DuplicateExportError(entry.FieldStr)
		}
		names[entry.FieldStr] = struct{}{}
		m.Exports = append(m.Exports, entry)
	}
	return nil
}
