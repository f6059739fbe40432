package exec

import (
	"errors"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"

	"github.com/weftlabs/weft/wasm"
)

type hostModuleDefinition struct {
	instantiate reflect.Value
	registry    *TrampolineRegistry
}

// NewHostModuleDefinition creates a module definition whose exports are
// supplied by a Go value. instantiate must be a func() (T, error); it is
// called once per allocation.
func NewHostModuleDefinition(instantiate interface{}) ModuleDefinition {
	f := reflect.ValueOf(instantiate)

	type_ := f.Type()
	if type_.Kind() != reflect.Func || type_.NumIn() != 0 || type_.NumOut() != 2 || !type_.Out(1).ConvertibleTo(reflect.TypeOf((*error)(nil)).Elem()) {
		panic(errors.New("instantiate must be a func() (T, error)"))
	}

	return hostModuleDefinition{instantiate: f, registry: DefaultTrampolines}
}

func (def hostModuleDefinition) Allocate(name string) (AllocatedModule, error) {
	v := def.instantiate.Call(nil)
	if err, ok := v[1].Interface().(error); ok && err != nil {
		return nil, err
	}
	return newHostModule(name, v[0], def.registry), nil
}

// HostFunction is a Function backed by a Go method. Calls from the guest go
// through the call adapter bound to the function's signature; the adapter
// is generated lazily, once per distinct signature, by the trampoline
// registry.
type HostFunction struct {
	module Module
	index  uint32
	sig    wasm.FunctionSig

	method   reflect.Value
	registry *TrampolineRegistry
}

// NewHostFunction creates a host function from the given method, deriving
// its signature from the method's parameter and result types. Adapters are
// drawn from the default trampoline registry.
func NewHostFunction(module Module, index uint32, method reflect.Value) *HostFunction {
	t := method.Type()

	params := make([]wasm.ValueType, t.NumIn())
	for i, n := 0, t.NumIn(); i < n; i++ {
		vt := wasmType(t.In(i).Kind())
		if vt == 0 {
			panic(fmt.Errorf("cannot export method with parameter type %v", t.In(i)))
		}
		params[i] = vt
	}

	returns := make([]wasm.ValueType, t.NumOut())
	for i, n := 0, t.NumOut(); i < n; i++ {
		vt := wasmType(t.Out(i).Kind())
		if vt == 0 {
			panic(fmt.Errorf("cannot export method with return type %v", t.Out(i)))
		}
		returns[i] = vt
	}

	return &HostFunction{
		module:   module,
		index:    index,
		sig:      wasm.NewFunctionSig(params, returns),
		method:   method,
		registry: DefaultTrampolines,
	}
}

func (f *HostFunction) GetSignature() wasm.FunctionSig {
	return f.sig
}

// Symbol returns the call adapter handle bound to this function's
// signature, generating the adapter if this signature has never been
// called.
func (f *HostFunction) Symbol() (*wasm.Symbol, error) {
	return f.registry.LookupOrCreate(&f.sig, TrampolineCompilerFunc(compileCallAdapter))
}

func (f *HostFunction) Call(args ...interface{}) []interface{} {
	vargs := make([]reflect.Value, len(args))
	for i, v := range args {
		vargs[i] = reflect.ValueOf(v)
	}

	vreturns := f.method.Call(vargs)

	returns := make([]interface{}, len(vreturns))
	for i, v := range vreturns {
		returns[i] = v.Interface()
	}

	return returns
}

func (f *HostFunction) UncheckedCall(args, returns []uint64) {
	sym, err := f.Symbol()
	if err != nil {
		panic(err)
	}
	sym.Adapter().(*callAdapter).Invoke(f.method, args, returns)
}

// Func returns the wrapped Go function.
func (f *HostFunction) Func() interface{} {
	return f.method.Interface()
}

type hostModule struct {
	value reflect.Value
	name  string

	exports map[string]interface{}
}

// NewHostModule creates a host module whose exports are the exported
// fields and methods of the given Go value.
func NewHostModule(name string, v interface{}) Module {
	return newHostModule(name, reflect.ValueOf(v), DefaultTrampolines)
}

var tableType = reflect.TypeOf((*Table)(nil)).Elem()
var memoryType = reflect.TypeOf((*Memory)(nil)).Elem()
var globalType = reflect.TypeOf((*Global)(nil)).Elem()

func isExported(n string) bool {
	r, _ := utf8.DecodeRuneInString(n)
	return unicode.IsUpper(r)
}

func exportName(n string) string {
	runes := []rune(n)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

func newHostModule(name string, v reflect.Value, registry *TrampolineRegistry) *hostModule {
	m := hostModule{
		value:   v,
		name:    name,
		exports: map[string]interface{}{},
	}

	value := v
	for value.Kind() == reflect.Ptr {
		value = value.Elem()
	}

	t := value.Type()
	for i, n := 0, t.NumField(); i < n; i++ {
		f := t.Field(i)
		if !isExported(f.Name) {
			continue
		}

		var fv interface{}
		switch f.Type {
		case tableType:
			fv = value.Field(i).Addr().Interface().(*Table)
		case memoryType:
			fv = value.Field(i).Addr().Interface().(*Memory)
		case globalType:
			fv = value.Field(i).Addr().Interface().(*Global)
		default:
			continue
		}
		m.exports[exportName(f.Name)] = fv
	}

	t = v.Type()

	index := uint32(0)
	for i, n := 0, t.NumMethod(); i < n; i++ {
		if name := t.Method(i).Name; isExported(name) {
			f := NewHostFunction(&m, index, v.Method(i))
			f.registry = registry
			m.exports[exportName(name)] = f
			index++
		}
	}

	return &m
}

func (m *hostModule) Instantiate(imports ImportResolver) (Module, error) {
	return m, nil
}

func (m *hostModule) Name() string {
	return m.name
}

func (m *hostModule) GetFunction(name string) (Function, error) {
	f, ok := m.exports[name].(Function)
	if !ok {
		return nil, &ExportNotFoundError{ModuleName: m.name, FieldName: name}
	}
	return f, nil
}

func (m *hostModule) GetTable(name string) (*Table, error) {
	t, ok := m.exports[name].(*Table)
	if !ok {
		return nil, &ExportNotFoundError{ModuleName: m.name, FieldName: name}
	}
	return t, nil
}

func (m *hostModule) GetMemory(name string) (*Memory, error) {
	mem, ok := m.exports[name].(*Memory)
	if !ok {
		return nil, &ExportNotFoundError{ModuleName: m.name, FieldName: name}
	}
	return mem, nil
}

func (m *hostModule) GetGlobal(name string) (*Global, error) {
	g, ok := m.exports[name].(*Global)
	if !ok {
		return nil, &ExportNotFoundError{ModuleName: m.name, FieldName: name}
	}
	return g, nil
}
