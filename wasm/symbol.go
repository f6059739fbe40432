// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

// A Symbol is an opaque, shared handle to the native call adapter generated
// for one specific signature. Symbols are produced by the call layer's
// trampoline registry: all functions with equal signatures share a single
// handle, so call sites may compare symbols by identity as a fast equality
// proxy. A Symbol is immutable once published.
type Symbol struct {
	adapter interface{}
}

// NewSymbol wraps a generated call adapter in a shareable handle.
func NewSymbol(adapter interface{}) *Symbol {
	return &Symbol{adapter: adapter}
}

// Adapter returns the wrapped call adapter. The concrete type is owned by
// the component that generated it.
func (s *Symbol) Adapter() interface{} {
	return s.adapter
}
