package exec

import (
	"fmt"

	"github.com/willf/bitset"

	"github.com/weftlabs/weft/wasm"
)

// ErrTableLimitExceeded is returned by Grow if growing a table would exceed
// its declared maximum.
var ErrTableLimitExceeded = fmt.Errorf("table limit exceeded")

// Table is a WASM table: a bounded vector of reference-typed elements.
// Element initialization state is tracked per index.
type Table struct {
	typ         wasm.Table
	entries     []Function
	initialized bitset.BitSet
}

// NewTable creates a new table of the given type. The type must have been
// validated.
func NewTable(t wasm.Table) Table {
	return Table{typ: t, entries: make([]Function, t.Limits.Initial)}
}

// Type returns the table's static type.
func (t *Table) Type() wasm.Table {
	return t.typ
}

// Limits returns the minimum and maximum size of the table in elements. If
// the table declares no maximum, the maximum is the full index range.
func (t *Table) Limits() (min uint32, max uint32) {
	max = ^uint32(0)
	if t.typ.Limits.HasMax() {
		max = t.typ.Limits.Maximum
	}
	return t.typ.Limits.Initial, max
}

// Size returns the current size of the table in elements.
func (t *Table) Size() uint32 {
	return uint32(len(t.entries))
}

// Grow grows the table by the given number of elements. It returns the old
// size of the table and an error if growing would exceed the declared
// maximum.
func (t *Table) Grow(elements uint32) (uint32, error) {
	size := t.Size()
	_, max := t.Limits()
	if uint64(size)+uint64(elements) > uint64(max) {
		return size, ErrTableLimitExceeded
	}
	t.entries = append(t.entries, make([]Function, elements)...)
	return size, nil
}

// Get returns the element at the given index and whether it has been
// initialized.
func (t *Table) Get(index uint32) (Function, bool) {
	if index >= t.Size() || !t.initialized.Test(uint(index)) {
		return nil, false
	}
	return t.entries[index], true
}

// Set stores the given function at the given index and marks the element
// initialized.
func (t *Table) Set(index uint32, f Function) {
	t.entries[index] = f
	t.initialized.Set(uint(index))
}

// Entries returns the table's entries. Uninitialized slots are nil.
func (t *Table) Entries() []Function {
	return t.entries
}
