package exec_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/exec"
	"github.com/weftlabs/weft/wasm"
)

func i32Sig() wasm.FunctionSig {
	return wasm.NewFunctionSig([]wasm.ValueType{wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32})
}

func countingCompiler(count *int32) exec.TrampolineCompiler {
	return exec.TrampolineCompilerFunc(func(sig wasm.FunctionSig) (*wasm.Symbol, error) {
		atomic.AddInt32(count, 1)
		return wasm.NewSymbol(sig.Key()), nil
	})
}

func TestLookupOrCreateMemoizes(t *testing.T) {
	registry := exec.NewTrampolineRegistry()

	var count int32
	compiler := countingCompiler(&count)

	a, b := i32Sig(), i32Sig()
	symA, err := registry.LookupOrCreate(&a, compiler)
	require.NoError(t, err)
	symB, err := registry.LookupOrCreate(&b, compiler)
	require.NoError(t, err)

	// Structurally equal signatures share one adapter.
	require.Same(t, symA, symB)
	require.Equal(t, int32(1), atomic.LoadInt32(&count))

	// The handle is bound onto the signatures themselves.
	require.Same(t, symA, a.Symbol())
	require.Same(t, symA, b.Symbol())
}

func TestLookupOrCreateDistinctSignatures(t *testing.T) {
	registry := exec.NewTrampolineRegistry()

	var count int32
	compiler := countingCompiler(&count)

	a := i32Sig()
	b := wasm.NewFunctionSig([]wasm.ValueType{wasm.ValueTypeI64}, []wasm.ValueType{wasm.ValueTypeI32})
	symA, err := registry.LookupOrCreate(&a, compiler)
	require.NoError(t, err)
	symB, err := registry.LookupOrCreate(&b, compiler)
	require.NoError(t, err)

	require.NotSame(t, symA, symB)
	require.Equal(t, int32(2), atomic.LoadInt32(&count))
}

func TestLookupOrCreateBoundSymbolShortCircuits(t *testing.T) {
	registry := exec.NewTrampolineRegistry()

	sig := i32Sig()
	bound := wasm.NewSymbol("bound")
	sig.SetSymbol(bound)

	sym, err := registry.LookupOrCreate(&sig, exec.TrampolineCompilerFunc(func(wasm.FunctionSig) (*wasm.Symbol, error) {
		t.Fatal("compiler must not run for a bound signature")
		return nil, nil
	}))
	require.NoError(t, err)
	require.Same(t, bound, sym)
}

func TestLookupOrCreateConcurrent(t *testing.T) {
	registry := exec.NewTrampolineRegistry()

	var count int32
	compiler := exec.TrampolineCompilerFunc(func(sig wasm.FunctionSig) (*wasm.Symbol, error) {
		atomic.AddInt32(&count, 1)
		time.Sleep(10 * time.Millisecond)
		return wasm.NewSymbol(sig.Key()), nil
	})

	const n = 32
	symbols := make([]*wasm.Symbol, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			sig := i32Sig()
			sym, err := registry.LookupOrCreate(&sig, compiler)
			require.NoError(t, err)
			symbols[i] = sym
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&count))
	for i := 1; i < n; i++ {
		require.Same(t, symbols[0], symbols[i])
	}
}

func TestLookupOrCreateSharedSignatureConcurrent(t *testing.T) {
	registry := exec.NewTrampolineRegistry()

	var count int32
	compiler := exec.TrampolineCompilerFunc(func(sig wasm.FunctionSig) (*wasm.Symbol, error) {
		atomic.AddInt32(&count, 1)
		time.Sleep(10 * time.Millisecond)
		return wasm.NewSymbol(sig.Key()), nil
	})

	// Every call site shares one signature value, so the short-circuit read
	// and the binding write hit the same handle.
	sig := i32Sig()

	const n = 8
	symbols := make([]*wasm.Symbol, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			sym, err := registry.LookupOrCreate(&sig, compiler)
			require.NoError(t, err)
			symbols[i] = sym
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&count))
	for i := 1; i < n; i++ {
		require.Same(t, symbols[0], symbols[i])
	}
	require.Same(t, symbols[0], sig.Symbol())
}

func TestLookupOrCreateFailure(t *testing.T) {
	registry := exec.NewTrampolineRegistry()

	compileErr := errors.New("no adapter for you")
	failing := exec.TrampolineCompilerFunc(func(wasm.FunctionSig) (*wasm.Symbol, error) {
		return nil, compileErr
	})

	sig := i32Sig()
	_, err := registry.LookupOrCreate(&sig, failing)
	require.Equal(t, compileErr, err)
	require.Nil(t, sig.Symbol())

	// Nothing was published.
	require.Nil(t, registry.Lookup(sig))

	// A failed generation may be retried.
	var count int32
	sym, err := registry.LookupOrCreate(&sig, countingCompiler(&count))
	require.NoError(t, err)
	require.NotNil(t, sym)
	require.Equal(t, int32(1), count)
	require.Same(t, sym, registry.Lookup(sig))
}

func TestLookup(t *testing.T) {
	registry := exec.NewTrampolineRegistry()

	sig := i32Sig()
	require.Nil(t, registry.Lookup(sig))

	var count int32
	sym, err := registry.LookupOrCreate(&sig, countingCompiler(&count))
	require.NoError(t, err)

	other := i32Sig()
	require.Same(t, sym, registry.Lookup(other))
}
