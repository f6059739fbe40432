//go:build !memmap
// +build !memmap

package exec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/weftlabs/weft/wasm"
)

var ErrLimitExceeded = fmt.Errorf("memory limit exceeded")

// Memory is a WASM linear memory.
type Memory struct {
	typ   wasm.Memory
	bytes []byte
}

// NewMemory creates a new linear memory of the given type. The type must
// have been validated.
func NewMemory(t wasm.Memory) Memory {
	return Memory{
		typ:   t,
		bytes: make([]byte, int(t.Limits.Initial)*wasm.MemoryPageSize),
	}
}

// Type returns the memory's static type.
func (m *Memory) Type() wasm.Memory {
	return m.typ
}

// Limits returns the minimum and maximum size of the memory in pages. If
// the memory declares no maximum, the maximum is the page bound.
func (m *Memory) Limits() (min, max uint32) {
	max = wasm.MaxMemoryPages
	if m.typ.Limits.HasMax() {
		max = m.typ.Limits.Maximum
	}
	return m.typ.Limits.Initial, max
}

// Size returns the current size of the memory in pages.
func (m *Memory) Size() uint32 {
	return uint32(len(m.bytes) / wasm.MemoryPageSize)
}

// Grow grows the memory by the given number of pages. It returns the old
// size of the memory in pages and an error if growing the memory by the
// requested amount would exceed the memory's maximum size.
func (m *Memory) Grow(pages uint32) (uint32, error) {
	currentSize := m.Size()
	_, max := m.Limits()
	newSize := uint64(currentSize) + uint64(pages)
	if newSize > uint64(max) || newSize > wasm.MaxMemoryPages {
		return currentSize, ErrLimitExceeded
	}
	newBytes := make([]byte, int(newSize)*wasm.MemoryPageSize)
	copy(newBytes, m.bytes)
	m.bytes = newBytes
	return currentSize, nil
}

// Bytes returns the memory's bytes.
func (m *Memory) Bytes() []byte {
	return m.bytes
}

func effectiveAddress(base, offset uint32) uint64 {
	return uint64(base) + uint64(offset)
}

// Byte returns the byte stored at the given effective address.
func (m *Memory) Byte(base, offset uint32) byte {
	return m.bytes[effectiveAddress(base, offset)]
}

// PutByte writes the given byte to the given effective address.
func (m *Memory) PutByte(v byte, base, offset uint32) {
	m.bytes[effectiveAddress(base, offset)] = v
}

// Uint32 returns the uint32 stored at the given effective address.
func (m *Memory) Uint32(base, offset uint32) uint32 {
	return binary.LittleEndian.Uint32(m.bytes[effectiveAddress(base, offset):])
}

// PutUint32 writes the given uint32 to the given effective address.
func (m *Memory) PutUint32(v uint32, base, offset uint32) {
	binary.LittleEndian.PutUint32(m.bytes[effectiveAddress(base, offset):], v)
}

// Uint64 returns the uint64 stored at the given effective address.
func (m *Memory) Uint64(base, offset uint32) uint64 {
	return binary.LittleEndian.Uint64(m.bytes[effectiveAddress(base, offset):])
}

// PutUint64 writes the given uint64 to the given effective address.
func (m *Memory) PutUint64(v uint64, base, offset uint32) {
	binary.LittleEndian.PutUint64(m.bytes[effectiveAddress(base, offset):], v)
}

// Float32 returns the float32 stored at the given effective address.
func (m *Memory) Float32(base, offset uint32) float32 {
	return math.Float32frombits(m.Uint32(base, offset))
}

// PutFloat32 writes the given float32 to the given effective address.
func (m *Memory) PutFloat32(v float32, base, offset uint32) {
	m.PutUint32(math.Float32bits(v), base, offset)
}

// Float64 returns the float64 stored at the given effective address.
func (m *Memory) Float64(base, offset uint32) float64 {
	return math.Float64frombits(m.Uint64(base, offset))
}

// PutFloat64 writes the given float64 to the given effective address.
func (m *Memory) PutFloat64(v float64, base, offset uint32) {
	m.PutUint64(math.Float64bits(v), base, offset)
}
