// Package link turns decoded modules into allocatable, instantiable
// definitions and resolves their imports. It carries no execution engine:
// defined functions expose their signatures for import matching, but their
// bodies are opaque. Engines layer on top by providing their own
// ModuleDefinition implementations.
package link

import (
	"errors"
	"fmt"
	"io"

	"github.com/weftlabs/weft/exec"
	"github.com/weftlabs/weft/wasm"
)

// ErrInvalidMemoryIndex indicates that an export or import refers to a
// memory other than memory 0.
var ErrInvalidMemoryIndex = fmt.Errorf("invalid memory index")

// ErrNotExecutable is the panic value raised when a function declared by a
// linked module is called. Executing function bodies requires an engine.
var ErrNotExecutable = errors.New("link: module functions are declarations only and cannot be called")

type InvalidTableIndexError uint32

func (e InvalidTableIndexError) Error() string {
	return fmt.Sprintf("wasm: invalid table index %d", uint32(e))
}

type InvalidFunctionIndexError uint32

func (e InvalidFunctionIndexError) Error() string {
	return fmt.Sprintf("wasm: invalid function index %d", uint32(e))
}

type moduleDefinition struct {
	mod *wasm.Module
}

// NewModuleDefinition creates a new ModuleDefinition from the given WASM
// module.
func NewModuleDefinition(module *wasm.Module) exec.ModuleDefinition {
	return &moduleDefinition{mod: module}
}

// LoadModuleDefinition decodes a WASM module from the given Reader and uses
// it to create a ModuleDefinition.
func LoadModuleDefinition(r io.Reader) (exec.ModuleDefinition, error) {
	mod, err := wasm.DecodeModule(r)
	if err != nil {
		return nil, err
	}
	return NewModuleDefinition(mod), nil
}

// declaredFunction is a function defined by a linked module. It carries the
// signature consulted during import resolution; its body is opaque to this
// package.
type declaredFunction struct {
	signature wasm.FunctionSig
	index     uint32
}

func (f *declaredFunction) GetSignature() wasm.FunctionSig {
	return f.signature
}

func (f *declaredFunction) Call(args ...interface{}) []interface{} {
	panic(ErrNotExecutable)
}

func (f *declaredFunction) UncheckedCall(args, returns []uint64) {
	panic(ErrNotExecutable)
}

type module struct {
	name    string
	exports map[string]interface{}

	importedFunctions []exec.Function
	importedGlobals   []*exec.Global

	functions []declaredFunction
	globals   []exec.Global
	mem0      *exec.Memory
	table0    *exec.Table
}

func (m *module) Name() string {
	return m.name
}

func (m *module) getFunction(index uint32) (exec.Function, error) {
	if index < uint32(len(m.importedFunctions)) {
		return m.importedFunctions[index], nil
	}
	index -= uint32(len(m.importedFunctions))
	if index >= uint32(len(m.functions)) {
		return nil, InvalidFunctionIndexError(index)
	}
	return &m.functions[index], nil
}

func (m *module) getGlobal(index uint32) (*exec.Global, error) {
	if index < uint32(len(m.importedGlobals)) {
		return m.importedGlobals[index], nil
	}
	index -= uint32(len(m.importedGlobals))
	if index >= uint32(len(m.globals)) {
		return nil, fmt.Errorf("wasm: invalid global index %d", index)
	}
	return &m.globals[index], nil
}

func (m *module) GetFunction(name string) (exec.Function, error) {
	switch v := m.exports[name].(type) {
	case nil:
		return nil, &exec.ExportNotFoundError{ModuleName: m.name, FieldName: name}
	case exec.Function:
		return v, nil
	default:
		return nil, exec.NewKindMismatchError(m.name, name, wasm.ExternalFunction, exportKind(v))
	}
}

func (m *module) GetTable(name string) (*exec.Table, error) {
	switch v := m.exports[name].(type) {
	case nil:
		return nil, &exec.ExportNotFoundError{ModuleName: m.name, FieldName: name}
	case *exec.Table:
		return v, nil
	default:
		return nil, exec.NewKindMismatchError(m.name, name, wasm.ExternalTable, exportKind(v))
	}
}

func (m *module) GetMemory(name string) (*exec.Memory, error) {
	switch v := m.exports[name].(type) {
	case nil:
		return nil, &exec.ExportNotFoundError{ModuleName: m.name, FieldName: name}
	case *exec.Memory:
		return v, nil
	default:
		return nil, exec.NewKindMismatchError(m.name, name, wasm.ExternalMemory, exportKind(v))
	}
}

func (m *module) GetGlobal(name string) (*exec.Global, error) {
	switch v := m.exports[name].(type) {
	case nil:
		return nil, &exec.ExportNotFoundError{ModuleName: m.name, FieldName: name}
	case *exec.Global:
		return v, nil
	default:
		return nil, exec.NewKindMismatchError(m.name, name, wasm.ExternalGlobal, exportKind(v))
	}
}

func exportKind(v interface{}) wasm.External {
	switch v.(type) {
	case *exec.Table:
		return wasm.ExternalTable
	case *exec.Memory:
		return wasm.ExternalMemory
	case *exec.Global:
		return wasm.ExternalGlobal
	default:
		return wasm.ExternalFunction
	}
}

func (def *moduleDefinition) Allocate(name string) (exec.AllocatedModule, error) {
	m := allocatedModule{
		module: &module{name: name, exports: map[string]interface{}{}},
	}

	// Allocate import entries.
	m.types = def.mod.Types
	m.imports = def.mod.Imports
	funcImports, globalImports := 0, 0
	for _, import_ := range def.mod.Imports {
		switch import_.Type.(type) {
		case wasm.FuncImport:
			funcImports++
		case wasm.GlobalVarImport:
			globalImports++
		}
	}
	m.importedFunctions = make([]exec.Function, funcImports)
	m.importedGlobals = make([]*exec.Global, globalImports)

	// Allocate declared globals, functions, memories, and tables from their
	// static types. Globals start at their type's zero value; evaluating
	// initializer expressions is an engine concern.
	m.module.globals = make([]exec.Global, len(def.mod.Globals))
	for i, entry := range def.mod.Globals {
		m.module.globals[i] = exec.NewGlobal(entry.Type)
	}

	m.module.functions = make([]declaredFunction, len(def.mod.Functions))
	for i, typeidx := range def.mod.Functions {
		sig, ok := def.mod.Signature(typeidx)
		if !ok {
			return nil, exec.ErrInvalidTypeIndex
		}
		m.module.functions[i] = declaredFunction{
			signature: sig,
			index:     uint32(funcImports + i),
		}
	}

	if len(def.mod.Memories) != 0 {
		mem0Def := def.mod.Memories[0]
		if err := mem0Def.Validate(); err != nil {
			return nil, err
		}
		mem := exec.NewMemory(mem0Def)
		m.module.mem0 = &mem
	}

	if len(def.mod.Tables) != 0 {
		table0Def := def.mod.Tables[0]
		if err := table0Def.Validate(); err != nil {
			return nil, err
		}
		table := exec.NewTable(table0Def)
		m.module.table0 = &table
	}

	m.exports = def.mod.Exports
	if err := m.defineExports(); err != nil {
		return nil, err
	}
	return &m, nil
}

type allocatedModule struct {
	*module

	types   []wasm.FunctionSig
	imports []wasm.ImportEntry
	exports []wasm.ExportEntry
}

func (m *allocatedModule) defineExports() error {
	// Exports that refer to unresolved imports are skipped here and defined
	// once the import is resolved during instantiation. Until then the name
	// does not resolve.
	for _, export := range m.exports {
		switch export.Kind {
		case wasm.ExternalFunction:
			f, err := m.getFunction(export.Index)
			if err != nil {
				return err
			}
			if f == nil {
				continue
			}
			m.module.exports[export.FieldStr] = f
		case wasm.ExternalMemory:
			if export.Index != 0 {
				return ErrInvalidMemoryIndex
			}
			if m.mem0 == nil {
				continue
			}
			m.module.exports[export.FieldStr] = m.mem0
		case wasm.ExternalTable:
			if export.Index != 0 {
				return InvalidTableIndexError(export.Index)
			}
			if m.table0 == nil {
				continue
			}
			m.module.exports[export.FieldStr] = m.table0
		case wasm.ExternalGlobal:
			g, err := m.getGlobal(export.Index)
			if err != nil {
				return err
			}
			if g == nil {
				continue
			}
			m.module.exports[export.FieldStr] = g
		}
	}
	return nil
}

func (m *allocatedModule) Instantiate(imports exec.ImportResolver) (exec.Module, error) {
	// Resolve imports. Each resolution applies the match predicate for its
	// kind; a false predicate surfaces as an error from the resolver, never
	// as a panic.
	funcidx, globalidx := 0, 0
	for _, import_ := range m.imports {
		switch type_ := import_.Type.(type) {
		case wasm.FuncImport:
			sig, ok := m.signature(type_.Type)
			if !ok {
				return nil, exec.ErrInvalidTypeIndex
			}
			f, err := imports.ResolveFunction(import_.ModuleName, import_.FieldName, sig)
			if err != nil {
				return nil, err
			}
			m.importedFunctions[funcidx] = f
			funcidx++
		case wasm.MemoryImport:
			if m.mem0 != nil {
				return nil, &exec.InvalidImportError{ModuleName: import_.ModuleName, FieldName: import_.FieldName}
			}
			mem, err := imports.ResolveMemory(import_.ModuleName, import_.FieldName, type_.Type)
			if err != nil {
				return nil, err
			}
			m.mem0 = mem
		case wasm.TableImport:
			if m.table0 != nil {
				return nil, &exec.InvalidImportError{ModuleName: import_.ModuleName, FieldName: import_.FieldName}
			}
			table, err := imports.ResolveTable(import_.ModuleName, import_.FieldName, type_.Type)
			if err != nil {
				return nil, err
			}
			m.table0 = table
		case wasm.GlobalVarImport:
			g, err := imports.ResolveGlobal(import_.ModuleName, import_.FieldName, type_.Type)
			if err != nil {
				return nil, err
			}
			m.importedGlobals[globalidx] = g
			globalidx++
		default:
			panic("unreachable")
		}
	}

	// Re-define exports: imported memories, tables, globals, and functions
	// were unresolved when the module was allocated.
	if err := m.defineExports(); err != nil {
		return nil, err
	}

	return m.module, nil
}

func (m *allocatedModule) signature(typeidx uint32) (wasm.FunctionSig, bool) {
	if typeidx >= uint32(len(m.types)) {
		return wasm.FunctionSig{}, false
	}
	return m.types[typeidx], true
}
