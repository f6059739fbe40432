// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"fmt"
	"io"

	"github.com/weftlabs/weft/wasm/leb128"
)

// Limits flag bits as they appear in the binary format.
const (
	LimitsHasMax uint8 = 0x01
	LimitsShared uint8 = 0x02
)

// An InvalidLimitsError is returned when a limits pair declares a maximum
// that is smaller than its minimum.
type InvalidLimitsError struct {
	Initial uint32
	Maximum uint32
}

func (e *InvalidLimitsError) Error() string {
	return fmt.Sprintf("wasm: limits minimum %d is larger than maximum %d", e.Initial, e.Maximum)
}

type InvalidLimitsFlagsError uint8

func (e InvalidLimitsFlagsError) Error() string {
	return fmt.Sprintf("wasm: invalid limits flags 0x%02x", uint8(e))
}

// Limits bounds the size of a linear memory or table. The minimum is always
// present; the maximum is only meaningful if the LimitsHasMax flag is set.
// The LimitsShared flag is only legal on memory limits.
type Limits struct {
	Flags   uint8
	Initial uint32
	Maximum uint32
}

// NewLimits creates an unbounded limits pair with the given minimum.
func NewLimits(min uint32) Limits {
	return Limits{Initial: min, Maximum: min}
}

// NewBoundedLimits creates a bounded limits pair. It returns an error if the
// maximum is smaller than the minimum.
func NewBoundedLimits(min, max uint32, shared bool) (Limits, error) {
	if max < min {
		return Limits{}, &InvalidLimitsError{Initial: min, Maximum: max}
	}
	flags := LimitsHasMax
	if shared {
		flags |= LimitsShared
	}
	return Limits{Flags: flags, Initial: min, Maximum: max}, nil
}

// HasMax returns true if this limits pair declares a maximum.
func (l *Limits) HasMax() bool {
	return l.Flags&LimitsHasMax != 0
}

// Shared returns true if this limits pair describes a shared memory. A
// shared limits pair without a maximum is not considered shared for
// matching purposes.
func (l *Limits) Shared() bool {
	return l.Flags == LimitsHasMax|LimitsShared
}

// Validate checks the ordering invariant. Decoded limits must be validated
// before they are used to allocate or match a definition.
func (l *Limits) Validate() error {
	if l.Flags&^(LimitsHasMax|LimitsShared) != 0 {
		return InvalidLimitsFlagsError(l.Flags)
	}
	if l.HasMax() && l.Maximum < l.Initial {
		return &InvalidLimitsError{Initial: l.Initial, Maximum: l.Maximum}
	}
	return nil
}

// SatisfiedBy returns true if a definition with the actual limits can
// satisfy an import that requires this limits pair. The relation is
// one-directional: the actual minimum may exceed the required minimum, and
// if the importer declares a maximum, the actual maximum must be present
// and no larger.
func (l *Limits) SatisfiedBy(actual Limits) bool {
	if actual.Initial < l.Initial {
		return false
	}
	if l.HasMax() && (!actual.HasMax() || actual.Maximum > l.Maximum) {
		return false
	}
	return actual.Shared() == l.Shared()
}

func (l *Limits) UnmarshalWASM(r io.Reader) error {
	flags, err := readByte(r)
	if err != nil {
		return err
	}
	l.Flags = flags
	if l.Initial, err = leb128.ReadVarUint32(r); err != nil {
		return err
	}
	if l.HasMax() {
		if l.Maximum, err = leb128.ReadVarUint32(r); err != nil {
			return err
		}
	}
	return l.Validate()
}

func (l *Limits) String() string {
	switch {
	case l.Shared():
		return fmt.Sprintf("{min %d, max %d, shared}", l.Initial, l.Maximum)
	case l.HasMax():
		return fmt.Sprintf("{min %d, max %d}", l.Initial, l.Maximum)
	default:
		return fmt.Sprintf("{min %d}", l.Initial)
	}
}
