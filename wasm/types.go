// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"fmt"
	"io"
	"sync/atomic"
	"unsafe"

	"github.com/weftlabs/weft/wasm/leb128"
)

// ValueType represents the type of a value stored on the stack, in a local,
// in a global, or in a table element.
type ValueType uint8

const (
	ValueTypeI32       ValueType = 0x7f
	ValueTypeI64       ValueType = 0x7e
	ValueTypeF32       ValueType = 0x7d
	ValueTypeF64       ValueType = 0x7c
	ValueTypeV128      ValueType = 0x7b
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6f
)

// IsRefType returns true if this value type is in the reference subset
// (funcref or externref).
func (t ValueType) IsRefType() bool {
	return t == ValueTypeFuncref || t == ValueTypeExternref
}

func (t ValueType) String() string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeV128:
		return "v128"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	default:
		return fmt.Sprintf("<unknown value_type 0x%02x>", uint8(t))
	}
}

type InvalidValueTypeError uint8

func (e InvalidValueTypeError) Error() string {
	return fmt.Sprintf("wasm: invalid value type 0x%02x", uint8(e))
}

func readValueType(r io.Reader) (ValueType, error) {
	b, err := readByte(r)
	if err != nil {
		return 0, err
	}
	t := ValueType(b)
	switch t {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64, ValueTypeV128, ValueTypeFuncref, ValueTypeExternref:
		return t, nil
	default:
		return 0, InvalidValueTypeError(b)
	}
}

// External describes the kind of an import or export.
type External uint8

const (
	ExternalFunction External = 0
	ExternalTable    External = 1
	ExternalMemory   External = 2
	ExternalGlobal   External = 3
)

func (e External) String() string {
	switch e {
	case ExternalFunction:
		return "function"
	case ExternalTable:
		return "table"
	case ExternalMemory:
		return "memory"
	case ExternalGlobal:
		return "global"
	default:
		return "<unknown external_kind>"
	}
}

func (e *External) UnmarshalWASM(r io.Reader) error {
	b, err := readByte(r)
	if err != nil {
		return err
	}
	*e = External(b)
	return nil
}

// TypeFunc is the type constructor for function signatures.
const TypeFunc uint8 = 0x60

type InvalidTypeConstructorError struct {
	Wanted uint8
	Got    uint8
}

func (e InvalidTypeConstructorError) Error() string {
	return fmt.Sprintf("wasm: invalid type constructor: wanted 0x%02x, got 0x%02x", e.Wanted, e.Got)
}

// FunctionSig describes a function's calling contract: its ordered
// parameter and result types. The identity of a signature is determined by
// ParamTypes and ReturnTypes alone; the symbol handle bound by the call
// layer never participates in equality.
type FunctionSig struct {
	Form        uint8
	ParamTypes  []ValueType
	ReturnTypes []ValueType

	sym *Symbol
}

// NewFunctionSig creates a signature from the given parameter and result
// types.
func NewFunctionSig(params, results []ValueType) FunctionSig {
	return FunctionSig{Form: TypeFunc, ParamTypes: params, ReturnTypes: results}
}

// Equals returns true if the two signatures have identical parameter and
// result sequences.
func (f FunctionSig) Equals(other FunctionSig) bool {
	if len(f.ParamTypes) != len(other.ParamTypes) || len(f.ReturnTypes) != len(other.ReturnTypes) {
		return false
	}
	for i, t := range f.ParamTypes {
		if other.ParamTypes[i] != t {
			return false
		}
	}
	for i, t := range f.ReturnTypes {
		if other.ReturnTypes[i] != t {
			return false
		}
	}
	return true
}

// Key returns the structural key for this signature. Two signatures have
// equal keys iff they are Equals.
func (f FunctionSig) Key() string {
	b := make([]byte, 0, len(f.ParamTypes)+len(f.ReturnTypes)+1)
	for _, t := range f.ParamTypes {
		b = append(b, byte(t))
	}
	b = append(b, TypeFunc)
	for _, t := range f.ReturnTypes {
		b = append(b, byte(t))
	}
	return string(b)
}

// Symbol returns the call adapter bound to this signature, if any. Symbol
// and SetSymbol may be called concurrently; the handle is published
// atomically.
func (f *FunctionSig) Symbol() *Symbol {
	return (*Symbol)(atomic.LoadPointer((*unsafe.Pointer)(unsafe.Pointer(&f.sym))))
}

// SetSymbol binds a call adapter to this signature. Binding is performed by
// the call layer's trampoline registry; all signatures with equal parameter
// and result sequences converge on the same handle.
func (f *FunctionSig) SetSymbol(s *Symbol) {
	atomic.StorePointer((*unsafe.Pointer)(unsafe.Pointer(&f.sym)), unsafe.Pointer(s))
}

func (f *FunctionSig) UnmarshalWASM(r io.Reader) error {
	form, err := readByte(r)
	if err != nil {
		return err
	}
	if form != TypeFunc {
		return InvalidTypeConstructorError{Wanted: TypeFunc, Got: form}
	}
	f.Form = form

	paramCount, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	f.ParamTypes = make([]ValueType, 0, getInitialCap(paramCount))
	for i := uint32(0); i < paramCount; i++ {
		t, err := readValueType(r)
		if err != nil {
			return err
		}
		f.ParamTypes = append(f.ParamTypes, t)
	}

	returnCount, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	f.ReturnTypes = make([]ValueType, 0, getInitialCap(returnCount))
	for i := uint32(0); i < returnCount; i++ {
		t, err := readValueType(r)
		if err != nil {
			return err
		}
		f.ReturnTypes = append(f.ReturnTypes, t)
	}
	return nil
}

func (f FunctionSig) String() string {
	return fmt.Sprintf("(func%s%s)", typeList("param", f.ParamTypes), typeList("result", f.ReturnTypes))
}

func typeList(label string, types []ValueType) string {
	s := ""
	for _, t := range types {
		s += fmt.Sprintf(" (%s %v)", label, t)
	}
	return s
}

// MemoryPageSize is the size of a linear memory page in bytes.
const MemoryPageSize = 65536

// MaxMemoryPages is the largest legal memory size in pages.
const MaxMemoryPages = 65536

type InvalidMemoryLimitsError Limits

func (e InvalidMemoryLimitsError) Error() string {
	l := Limits(e)
	return fmt.Sprintf("wasm: memory limits %v exceed %d pages", &l, MaxMemoryPages)
}

// Memory is the type of a linear memory: limits expressed in pages.
type Memory struct {
	Limits Limits
}

// NewMemory creates a memory type with the given limits.
func NewMemory(limits Limits) Memory {
	return Memory{Limits: limits}
}

// Validate checks the limits' ordering invariant and the page bound.
func (m *Memory) Validate() error {
	if err := m.Limits.Validate(); err != nil {
		return err
	}
	if m.Limits.Initial > MaxMemoryPages || (m.Limits.HasMax() && m.Limits.Maximum > MaxMemoryPages) {
		return InvalidMemoryLimitsError(m.Limits)
	}
	return nil
}

// SatisfiedBy returns true if a memory of the actual type can satisfy an
// import that requires this type.
func (m *Memory) SatisfiedBy(actual Memory) bool {
	return m.Limits.SatisfiedBy(actual.Limits)
}

func (m *Memory) UnmarshalWASM(r io.Reader) error {
	if err := m.Limits.UnmarshalWASM(r); err != nil {
		return err
	}
	return m.Validate()
}

// An InvalidTableElementTypeError is returned when a table declares a
// non-reference element type. Only the decoder can construct such a table,
// so this is a contract error at the decode boundary.
type InvalidTableElementTypeError ValueType

func (e InvalidTableElementTypeError) Error() string {
	return fmt.Sprintf("wasm: invalid table element type %v", ValueType(e))
}

// Table is the type of a table: a reference element type and limits
// expressed in elements. Tables are never shared.
type Table struct {
	ElementType ValueType
	Limits      Limits
}

// NewTable creates a table type. It returns an error if the element type is
// not a reference type.
func NewTable(elementType ValueType, limits Limits) (Table, error) {
	t := Table{ElementType: elementType, Limits: limits}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Validate checks the reference-type constraint and the limits invariants.
func (t *Table) Validate() error {
	if !t.ElementType.IsRefType() {
		return InvalidTableElementTypeError(t.ElementType)
	}
	if err := t.Limits.Validate(); err != nil {
		return err
	}
	if t.Limits.Flags&LimitsShared != 0 {
		return InvalidLimitsFlagsError(t.Limits.Flags)
	}
	return nil
}

// SatisfiedBy returns true if a table of the actual type can satisfy an
// import that requires this type. Element types are invariant.
func (t *Table) SatisfiedBy(actual Table) bool {
	return t.ElementType == actual.ElementType && t.Limits.SatisfiedBy(actual.Limits)
}

func (t *Table) UnmarshalWASM(r io.Reader) error {
	elemType, err := readValueType(r)
	if err != nil {
		return err
	}
	t.ElementType = elemType
	if err := t.Limits.UnmarshalWASM(r); err != nil {
		return err
	}
	return t.Validate()
}

// GlobalVar is the type of a global variable: a value type and a
// mutability flag.
type GlobalVar struct {
	Type    ValueType
	Mutable bool
}

// Matches returns true if a global of the actual type can satisfy an import
// that requires this type. Both the value type and mutability are
// invariant: a mutable global never satisfies an immutable import, and vice
// versa.
func (g *GlobalVar) Matches(actual GlobalVar) bool {
	return *g == actual
}

func (g *GlobalVar) UnmarshalWASM(r io.Reader) error {
	t, err := readValueType(r)
	if err != nil {
		return err
	}
	m, err := readByte(r)
	if err != nil {
		return err
	}
	if m > 1 {
		return fmt.Errorf("wasm: invalid mutability flag 0x%02x", m)
	}
	g.Type = t
	g.Mutable = m == 1
	return nil
}
