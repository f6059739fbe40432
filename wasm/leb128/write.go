// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package leb128

import "io"

// WriteVarUint32 writes an unsigned integer of up to 32 bits and returns
// the number of bytes written.
func WriteVarUint32(w io.Writer, v uint32) (int, error) {
	n := 0
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		if _, err := w.Write([]byte{b}); err != nil {
			return n, err
		}
		n++
		if v == 0 {
			return n, nil
		}
	}
}

// WriteVarint32 writes a signed integer of up to 32 bits and returns the
// number of bytes written.
func WriteVarint32(w io.Writer, v int32) (int, error) {
	return WriteVarint64(w, int64(v))
}

// WriteVarint64 writes a signed integer of up to 64 bits and returns the
// number of bytes written.
func WriteVarint64(w io.Writer, v int64) (int, error) {
	n := 0
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		if _, err := w.Write([]byte{b}); err != nil {
			return n, err
		}
		n++
		if done {
			return n, nil
		}
	}
}
