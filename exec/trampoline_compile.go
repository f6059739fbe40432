package exec

import (
	"fmt"
	"math"
	"reflect"

	"github.com/weftlabs/weft/wasm"
)

// An UnsupportedValueTypeError is returned when adapter generation
// encounters a value type host calls cannot carry.
type UnsupportedValueTypeError wasm.ValueType

func (e UnsupportedValueTypeError) Error() string {
	return fmt.Sprintf("exec: no host call adapter for value type %v", wasm.ValueType(e))
}

// A callAdapter translates between the guest's uint64 value representation
// and Go values for one specific signature. Adapters are generated at most
// once per distinct signature and shared by every host function with that
// signature.
type callAdapter struct {
	sig   wasm.FunctionSig
	raise []func(uint64) reflect.Value
	lower []func(reflect.Value) uint64
}

// compileCallAdapter is the adapter generator registered with the
// trampoline registry for host calls.
func compileCallAdapter(sig wasm.FunctionSig) (*wasm.Symbol, error) {
	a := &callAdapter{
		sig:   sig,
		raise: make([]func(uint64) reflect.Value, len(sig.ParamTypes)),
		lower: make([]func(reflect.Value) uint64, len(sig.ReturnTypes)),
	}

	for i, t := range sig.ParamTypes {
		switch t {
		case wasm.ValueTypeI32:
			a.raise[i] = func(v uint64) reflect.Value { return reflect.ValueOf(int32(v)) }
		case wasm.ValueTypeI64:
			a.raise[i] = func(v uint64) reflect.Value { return reflect.ValueOf(int64(v)) }
		case wasm.ValueTypeF32:
			a.raise[i] = func(v uint64) reflect.Value { return reflect.ValueOf(math.Float32frombits(uint32(v))) }
		case wasm.ValueTypeF64:
			a.raise[i] = func(v uint64) reflect.Value { return reflect.ValueOf(math.Float64frombits(v)) }
		default:
			return nil, UnsupportedValueTypeError(t)
		}
	}

	for i, t := range sig.ReturnTypes {
		switch t {
		case wasm.ValueTypeI32:
			a.lower[i] = func(v reflect.Value) uint64 {
				if v.Kind() == reflect.Uint32 {
					return v.Uint()
				}
				return uint64(int32(v.Int()))
			}
		case wasm.ValueTypeI64:
			a.lower[i] = func(v reflect.Value) uint64 {
				if v.Kind() == reflect.Uint64 {
					return v.Uint()
				}
				return uint64(v.Int())
			}
		case wasm.ValueTypeF32:
			a.lower[i] = func(v reflect.Value) uint64 { return uint64(math.Float32bits(float32(v.Float()))) }
		case wasm.ValueTypeF64:
			a.lower[i] = func(v reflect.Value) uint64 { return math.Float64bits(v.Float()) }
		default:
			return nil, UnsupportedValueTypeError(t)
		}
	}

	return wasm.NewSymbol(a), nil
}

// Invoke calls the given method, lowering and raising values per the
// adapter's signature. The method's parameter and result kinds must be
// convertible to the signature's value types.
func (a *callAdapter) Invoke(method reflect.Value, args, returns []uint64) {
	if len(args) != len(a.raise) {
		panic(fmt.Errorf("expected %v args; got %v", len(a.raise), len(args)))
	}

	t := method.Type()
	vargs := make([]reflect.Value, len(args))
	for i, raise := range a.raise {
		vargs[i] = raise(args[i]).Convert(t.In(i))
	}

	vreturns := method.Call(vargs)

	for i, lower := range a.lower {
		returns[i] = lower(vreturns[i])
	}
}
