package exec

import (
	"fmt"

	"github.com/weftlabs/weft/wasm"
)

var ErrModuleNotFound = fmt.Errorf("module not found")

// A ModuleResolver resolves module names to module definitions.
type ModuleResolver interface {
	// ResolveModule resolves the given module name to a module definition.
	ResolveModule(name string) (ModuleDefinition, error)
}

// A MapResolver is a ModuleResolver that maps module names to definitions using the contents of a map.
type MapResolver map[string]ModuleDefinition

// ResolveModule resolves the given module name to a module definition.
func (r MapResolver) ResolveModule(name string) (ModuleDefinition, error) {
	def, ok := r[name]
	if !ok {
		return nil, ErrModuleNotFound
	}
	return def, nil
}

// An ExportNotFoundError is returned if a named export could not be found.
type ExportNotFoundError struct {
	ModuleName string
	FieldName  string
}

func (e *ExportNotFoundError) Error() string {
	return fmt.Sprintf("wasm: couldn't find export with name %s in module %s", e.FieldName, e.ModuleName)
}

// A KindMismatchError is returned if an import refers to an export of a
// different kind.
type KindMismatchError struct {
	ModuleName string
	FieldName  string
	Import     wasm.External
	Export     wasm.External
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("wasm: mismatching import and export external kind values for %s.%s (%v, %v)", e.ModuleName, e.FieldName, e.Import, e.Export)
}

// NewKindMismatchError creates a new error that reports a mismatch between an import and export kind. This function
// should be used to create the errors returned by Module.Get{Function,Table,Memory,Global} if the requested name
// refers to an export of a different kind.
func NewKindMismatchError(exportingModuleName, exportName string, importKind, exportKind wasm.External) error {
	return &KindMismatchError{
		FieldName:  exportName,
		ModuleName: exportingModuleName,
		Import:     importKind,
		Export:     exportKind,
	}
}

// An ImportResolver resolves import entries to function, memory, table, and global instances. Each Resolve method
// receives the importer's required type and must verify that the resolved definition satisfies it.
type ImportResolver interface {
	ResolveFunction(moduleName, functionName string, type_ wasm.FunctionSig) (Function, error)
	ResolveMemory(moduleName, memoryName string, type_ wasm.Memory) (*Memory, error)
	ResolveTable(moduleName, tableName string, type_ wasm.Table) (*Table, error)
	ResolveGlobal(moduleName, globalName string, type_ wasm.GlobalVar) (*Global, error)
}

// A ModuleEventHandler responds to module allocations and instantiations.
type ModuleEventHandler interface {
	ModuleAllocated(m AllocatedModule) error
	ModuleInstantiated(m Module) error
}

// ModuleDefinition represents a WASM module definition.
type ModuleDefinition interface {
	// Allocate creates an allocated, uninitialized module with the given name from this module definition.
	Allocate(name string) (AllocatedModule, error)
}

// An AllocatedModule is an allocated but uninitialized WASM module.
type AllocatedModule interface {
	Module

	// Instantiate initializes the allocated module with imports supplied by the given resolver.
	Instantiate(imports ImportResolver) (Module, error)
}

// A Module is an instantiated WASM module.
type Module interface {
	// Name returns the name of this module.
	Name() string
	// GetFunction returns the exported function with the given name. If the function does not exist or the name
	// refers to an export of a different kind, this function returns an error.
	GetFunction(name string) (Function, error)
	// GetTable returns the exported table with the given name. If the table does not exist or the name
	// refers to an export of a different kind, this function returns an error.
	GetTable(name string) (*Table, error)
	// GetMemory returns the exported memory with the given name. If the memory does not exist or the name
	// refers to an export of a different kind, this function returns an error.
	GetMemory(name string) (*Memory, error)
	// GetGlobal returns the exported global with the given name. If the global does not exist or the name
	// refers to an export of a different kind, this function returns an error.
	GetGlobal(name string) (*Global, error)
}
