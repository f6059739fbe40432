package link_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/exec"
	"github.com/weftlabs/weft/link"
	"github.com/weftlabs/weft/wasm"
)

func bounded(t *testing.T, min, max uint32) wasm.Limits {
	l, err := wasm.NewBoundedLimits(min, max, false)
	require.NoError(t, err)
	return l
}

func funcrefTable(t *testing.T, limits wasm.Limits) wasm.Table {
	table, err := wasm.NewTable(wasm.ValueTypeFuncref, limits)
	require.NoError(t, err)
	return table
}

var i32sig = wasm.NewFunctionSig([]wasm.ValueType{wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32})

// provider exports a memory with limits {1, 4}, a funcref table, an
// immutable i32 global, and an (i32) -> i32 function.
func providerModule(t *testing.T) *wasm.Module {
	return &wasm.Module{
		Types:     []wasm.FunctionSig{i32sig},
		Functions: []uint32{0},
		Memories:  []wasm.Memory{wasm.NewMemory(bounded(t, 1, 4))},
		Tables:    []wasm.Table{funcrefTable(t, wasm.NewLimits(2))},
		Globals:   []wasm.GlobalEntry{{Type: wasm.GlobalVar{Type: wasm.ValueTypeI32}}},
		Exports: []wasm.ExportEntry{
			{FieldStr: "mem", Kind: wasm.ExternalMemory, Index: 0},
			{FieldStr: "tbl", Kind: wasm.ExternalTable, Index: 0},
			{FieldStr: "g", Kind: wasm.ExternalGlobal, Index: 0},
			{FieldStr: "get", Kind: wasm.ExternalFunction, Index: 0},
		},
	}
}

func importerModule(imports ...wasm.ImportEntry) *wasm.Module {
	return &wasm.Module{
		Types:   []wasm.FunctionSig{i32sig},
		Imports: imports,
	}
}

func instantiate(t *testing.T, importer *wasm.Module) (exec.Module, error) {
	store := exec.NewStore(exec.MapResolver{
		"a": link.NewModuleDefinition(providerModule(t)),
		"b": link.NewModuleDefinition(importer),
	})
	return store.InstantiateModule("b")
}

func TestInstantiate(t *testing.T) {
	importer := importerModule(
		wasm.ImportEntry{ModuleName: "a", FieldName: "mem", Type: wasm.MemoryImport{Type: wasm.NewMemory(bounded(t, 1, 8))}},
		wasm.ImportEntry{ModuleName: "a", FieldName: "tbl", Type: wasm.TableImport{Type: funcrefTable(t, wasm.NewLimits(1))}},
		wasm.ImportEntry{ModuleName: "a", FieldName: "g", Type: wasm.GlobalVarImport{Type: wasm.GlobalVar{Type: wasm.ValueTypeI32}}},
		wasm.ImportEntry{ModuleName: "a", FieldName: "get", Type: wasm.FuncImport{Type: 0}},
	)
	importer.Exports = []wasm.ExportEntry{
		{FieldStr: "m", Kind: wasm.ExternalMemory, Index: 0},
	}

	store := exec.NewStore(exec.MapResolver{
		"a": link.NewModuleDefinition(providerModule(t)),
		"b": link.NewModuleDefinition(importer),
	})

	b, err := store.InstantiateModule("b")
	require.NoError(t, err)

	// The importer re-exports the provider's memory.
	a, err := store.InstantiateModule("a")
	require.NoError(t, err)
	providerMem, err := a.GetMemory("mem")
	require.NoError(t, err)
	importerMem, err := b.GetMemory("m")
	require.NoError(t, err)
	require.Same(t, providerMem, importerMem)
	require.Equal(t, uint32(1), importerMem.Size())

	// Declared globals start at their type's zero value.
	g, err := a.GetGlobal("g")
	require.NoError(t, err)
	require.Equal(t, int32(0), g.GetI32())

	// Declared functions expose their signatures but cannot be called.
	f, err := a.GetFunction("get")
	require.NoError(t, err)
	require.True(t, f.GetSignature().Equals(i32sig))
	require.PanicsWithError(t, link.ErrNotExecutable.Error(), func() {
		f.Call(int32(0))
	})
}

func TestInstantiateMemoryTooSmall(t *testing.T) {
	// The provider's maximum of 4 exceeds the required maximum of 2.
	importer := importerModule(
		wasm.ImportEntry{ModuleName: "a", FieldName: "mem", Type: wasm.MemoryImport{Type: wasm.NewMemory(bounded(t, 1, 2))}},
	)
	_, err := instantiate(t, importer)
	require.Equal(t, exec.ErrMemoryType, err)
}

func TestInstantiateMemoryRequiresMax(t *testing.T) {
	// An unbounded export cannot satisfy a bounded import; the provider's
	// memory is bounded, so the reverse direction succeeds.
	importer := importerModule(
		wasm.ImportEntry{ModuleName: "a", FieldName: "mem", Type: wasm.MemoryImport{Type: wasm.NewMemory(wasm.NewLimits(1))}},
	)
	_, err := instantiate(t, importer)
	require.NoError(t, err)
}

func TestInstantiateTableElementMismatch(t *testing.T) {
	externref, err := wasm.NewTable(wasm.ValueTypeExternref, wasm.NewLimits(1))
	require.NoError(t, err)
	importer := importerModule(
		wasm.ImportEntry{ModuleName: "a", FieldName: "tbl", Type: wasm.TableImport{Type: externref}},
	)
	_, err = instantiate(t, importer)
	require.Equal(t, exec.ErrTableType, err)
}

func TestInstantiateGlobalMutabilityMismatch(t *testing.T) {
	importer := importerModule(
		wasm.ImportEntry{ModuleName: "a", FieldName: "g", Type: wasm.GlobalVarImport{Type: wasm.GlobalVar{Type: wasm.ValueTypeI32, Mutable: true}}},
	)
	_, err := instantiate(t, importer)
	require.Equal(t, exec.ErrGlobalType, err)
}

func TestInstantiateFunctionSignatureMismatch(t *testing.T) {
	importer := &wasm.Module{
		Types: []wasm.FunctionSig{wasm.NewFunctionSig([]wasm.ValueType{wasm.ValueTypeI64}, nil)},
		Imports: []wasm.ImportEntry{
			{ModuleName: "a", FieldName: "get", Type: wasm.FuncImport{Type: 0}},
		},
	}
	_, err := instantiate(t, importer)
	var invalid *exec.InvalidImportError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "get", invalid.FieldName)
}

func TestInstantiateMissingExport(t *testing.T) {
	importer := importerModule(
		wasm.ImportEntry{ModuleName: "a", FieldName: "nope", Type: wasm.GlobalVarImport{Type: wasm.GlobalVar{Type: wasm.ValueTypeI32}}},
	)
	_, err := instantiate(t, importer)
	var notFound *exec.ExportNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "nope", notFound.FieldName)
}

func TestInstantiateKindMismatch(t *testing.T) {
	importer := importerModule(
		wasm.ImportEntry{ModuleName: "a", FieldName: "mem", Type: wasm.GlobalVarImport{Type: wasm.GlobalVar{Type: wasm.ValueTypeI32}}},
	)
	_, err := instantiate(t, importer)
	var mismatch *exec.KindMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, wasm.ExternalGlobal, mismatch.Import)
	require.Equal(t, wasm.ExternalMemory, mismatch.Export)
}

func TestInstantiateModuleNotFound(t *testing.T) {
	importer := importerModule(
		wasm.ImportEntry{ModuleName: "z", FieldName: "mem", Type: wasm.MemoryImport{Type: wasm.NewMemory(wasm.NewLimits(1))}},
	)
	_, err := instantiate(t, importer)
	require.Equal(t, exec.ErrModuleNotFound, err)
}

func TestAllocateInvalidMemory(t *testing.T) {
	mod := &wasm.Module{
		Memories: []wasm.Memory{wasm.NewMemory(wasm.NewLimits(wasm.MaxMemoryPages + 1))},
	}
	_, err := link.NewModuleDefinition(mod).Allocate("bad")
	require.Error(t, err)
}

func TestAllocateInvalidTypeIndex(t *testing.T) {
	mod := &wasm.Module{
		Functions: []uint32{7},
	}
	_, err := link.NewModuleDefinition(mod).Allocate("bad")
	require.Equal(t, exec.ErrInvalidTypeIndex, err)
}

func TestAllocatedReexportsUnresolved(t *testing.T) {
	// Exports backed by unresolved imports must not resolve to a nil
	// definition before instantiation.
	importer := importerModule(
		wasm.ImportEntry{ModuleName: "a", FieldName: "mem", Type: wasm.MemoryImport{Type: wasm.NewMemory(bounded(t, 1, 8))}},
		wasm.ImportEntry{ModuleName: "a", FieldName: "g", Type: wasm.GlobalVarImport{Type: wasm.GlobalVar{Type: wasm.ValueTypeI32}}},
		wasm.ImportEntry{ModuleName: "a", FieldName: "get", Type: wasm.FuncImport{Type: 0}},
	)
	importer.Exports = []wasm.ExportEntry{
		{FieldStr: "m", Kind: wasm.ExternalMemory, Index: 0},
		{FieldStr: "g2", Kind: wasm.ExternalGlobal, Index: 0},
		{FieldStr: "f", Kind: wasm.ExternalFunction, Index: 0},
	}

	allocated, err := link.NewModuleDefinition(importer).Allocate("b")
	require.NoError(t, err)

	var notFound *exec.ExportNotFoundError
	_, err = allocated.GetMemory("m")
	require.ErrorAs(t, err, &notFound)
	_, err = allocated.GetGlobal("g2")
	require.ErrorAs(t, err, &notFound)
	_, err = allocated.GetFunction("f")
	require.ErrorAs(t, err, &notFound)

	store := exec.NewStore(exec.MapResolver{
		"a": link.NewModuleDefinition(providerModule(t)),
		"b": link.NewModuleDefinition(importer),
	})
	b, err := store.InstantiateModule("b")
	require.NoError(t, err)

	mem, err := b.GetMemory("m")
	require.NoError(t, err)
	require.NotNil(t, mem)
	g, err := b.GetGlobal("g2")
	require.NoError(t, err)
	require.NotNil(t, g)
	f, err := b.GetFunction("f")
	require.NoError(t, err)
	require.NotNil(t, f)
}

func TestInstantiateWithHostModule(t *testing.T) {
	type env struct {
		Mem exec.Memory
	}

	limits := bounded(t, 2, 4)
	host := exec.NewHostModule("env", &env{Mem: exec.NewMemory(wasm.NewMemory(limits))})

	importer := importerModule(
		wasm.ImportEntry{ModuleName: "env", FieldName: "mem", Type: wasm.MemoryImport{Type: wasm.NewMemory(bounded(t, 1, 8))}},
	)

	store := exec.NewStore(exec.MapResolver{
		"b": link.NewModuleDefinition(importer),
	})
	store.RegisterModule("env", host)

	_, err := store.InstantiateModule("b")
	require.NoError(t, err)
}
