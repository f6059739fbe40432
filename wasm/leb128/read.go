// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package leb128 provides functions for reading and writing integers in
// the Little Endian Base 128 format.
package leb128

import (
	"errors"
	"io"
)

var ErrOverflow = errors.New("leb128: value overflows requested width")

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(r, b[:])
	return b[0], err
}

// ReadVarUint32 reads an unsigned integer of up to 32 bits.
func ReadVarUint32(r io.Reader) (uint32, error) {
	var (
		result uint32
		shift  uint
	)
	for {
		b, err := readByte(r)
		if err != nil {
			return 0, err
		}
		if shift == 28 && b&0xf0 != 0 {
			return 0, ErrOverflow
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// ReadVarint32 reads a signed integer of up to 32 bits.
func ReadVarint32(r io.Reader) (int32, error) {
	v, err := readVarint(r, 32)
	return int32(v), err
}

// ReadVarint64 reads a signed integer of up to 64 bits.
func ReadVarint64(r io.Reader) (int64, error) {
	return readVarint(r, 64)
}

func readVarint(r io.Reader, width uint) (int64, error) {
	var (
		result int64
		shift  uint
	)
	for {
		b, err := readByte(r)
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			if width == 32 && (result > (1<<31)-1 || result < -(1<<31)) {
				return 0, ErrOverflow
			}
			return result, nil
		}
		if shift >= width+7 {
			return 0, ErrOverflow
		}
	}
}
