// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"io/ioutil"
	"unicode/utf8"

	"github.com/weftlabs/weft/wasm/leb128"
)

// maxInitialCap bounds the initial capacity of decoded vectors so that a
// malformed count cannot trigger a huge allocation before the payload runs
// out.
const maxInitialCap = 10 * 1024

func getInitialCap(count uint32) uint32 {
	if count > maxInitialCap {
		return maxInitialCap
	}
	return count
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(r, b[:])
	return b[0], err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readUTF8StringUint(r io.Reader) (string, error) {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// readInitExpr reads the raw bytes of an initializer expression up to and
// including the terminating "end" opcode. The expression is retained
// uninterpreted; evaluating it is an execution-engine concern, but its
// shape must be parsed here so that an 0x0b byte inside an immediate is
// not mistaken for the terminator.
func readInitExpr(r io.Reader) ([]byte, error) {
	const (
		opEnd       = 0x0b
		opGlobalGet = 0x23
		opI32Const  = 0x41
		opI64Const  = 0x42
		opF32Const  = 0x43
		opF64Const  = 0x44
		opRefNull   = 0xd0
		opRefFunc   = 0xd2
	)

	var buf bytes.Buffer
	tee := io.TeeReader(r, &buf)
	for {
		op, err := readByte(tee)
		if err != nil {
			return nil, err
		}
		switch op {
		case opEnd:
			return buf.Bytes(), nil
		case opI32Const:
			_, err = leb128.ReadVarint32(tee)
		case opI64Const:
			_, err = leb128.ReadVarint64(tee)
		case opF32Const:
			_, err = io.CopyN(ioutil.Discard, tee, 4)
		case opF64Const:
			_, err = io.CopyN(ioutil.Discard, tee, 8)
		case opGlobalGet, opRefFunc:
			_, err = leb128.ReadVarUint32(tee)
		case opRefNull:
			_, err = readByte(tee)
		default:
			return nil, InvalidInitExprOpError(op)
		}
		if err != nil {
			return nil, err
		}
	}
}

type InvalidInitExprOpError byte

func (e InvalidInitExprOpError) Error() string {
	return fmt.Sprintf("wasm: invalid opcode 0x%02x in initializer expression", byte(e))
}
