package exec

import (
	"sync"

	"github.com/weftlabs/weft/wasm"
)

// A TrampolineCompiler generates the native call adapter for one specific
// signature. Implementations are provided by the call-dispatch layer; the
// registry only guarantees that at most one adapter is ever generated per
// distinct signature.
type TrampolineCompiler interface {
	Compile(sig wasm.FunctionSig) (*wasm.Symbol, error)
}

// TrampolineCompilerFunc adapts a function to the TrampolineCompiler
// interface.
type TrampolineCompilerFunc func(sig wasm.FunctionSig) (*wasm.Symbol, error)

func (f TrampolineCompilerFunc) Compile(sig wasm.FunctionSig) (*wasm.Symbol, error) {
	return f(sig)
}

// A TrampolineRegistry maps structural signatures to generated call
// adapters. Distinct FunctionSig values with equal parameter and result
// sequences converge on a single shared handle, so call sites may compare
// symbols by identity.
type TrampolineRegistry struct {
	m           sync.Mutex
	trampolines map[string]*trampoline
}

type trampoline struct {
	done chan struct{}
	sym  *wasm.Symbol
	err  error
}

// NewTrampolineRegistry creates an empty trampoline registry.
func NewTrampolineRegistry() *TrampolineRegistry {
	return &TrampolineRegistry{trampolines: map[string]*trampoline{}}
}

// DefaultTrampolines is the registry used by host modules that are not
// attached to an explicit registry.
var DefaultTrampolines = NewTrampolineRegistry()

// LookupOrCreate returns the adapter bound to the given signature,
// generating it with the supplied compiler if no equal signature has been
// seen before. Check-or-create is atomic as a unit: concurrent callers for
// the same signature receive the same handle, and the compiler runs at most
// once per distinct signature. If compilation fails, the failure propagates
// to every waiting caller, nothing is published, and a later call may
// retry.
//
// On success the handle is also bound onto sig, so subsequent lookups
// through the same FunctionSig value short-circuit.
func (r *TrampolineRegistry) LookupOrCreate(sig *wasm.FunctionSig, compiler TrampolineCompiler) (*wasm.Symbol, error) {
	if sym := sig.Symbol(); sym != nil {
		return sym, nil
	}

	key := sig.Key()
	r.m.Lock()
	t, ok := r.trampolines[key]
	if !ok {
		t = &trampoline{done: make(chan struct{})}
		r.trampolines[key] = t
		r.m.Unlock()

		t.sym, t.err = compiler.Compile(*sig)
		if t.err != nil {
			r.m.Lock()
			delete(r.trampolines, key)
			r.m.Unlock()
		}
		close(t.done)
	} else {
		r.m.Unlock()
		<-t.done
	}

	if t.err != nil {
		return nil, t.err
	}
	sig.SetSymbol(t.sym)
	return t.sym, nil
}

// Lookup returns the adapter bound to the given signature, if one has been
// generated, without triggering generation.
func (r *TrampolineRegistry) Lookup(sig wasm.FunctionSig) *wasm.Symbol {
	r.m.Lock()
	t, ok := r.trampolines[sig.Key()]
	r.m.Unlock()
	if !ok {
		return nil
	}
	<-t.done
	if t.err != nil {
		return nil
	}
	return t.sym
}
