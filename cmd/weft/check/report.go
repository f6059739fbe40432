package check

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jszwec/csvutil"

	"github.com/weftlabs/weft/exec"
	"github.com/weftlabs/weft/wasm"
)

const (
	statusOK           = "ok"
	statusMissing      = "missing"
	statusKindMismatch = "kind mismatch"
	statusIncompatible = "incompatible"
	statusInvalidIndex = "invalid index"
)

// A result records the outcome of matching a single import declaration
// against the provider's exports.
type result struct {
	Module   string `csv:"module"`
	Field    string `csv:"field"`
	Kind     string `csv:"kind"`
	Required string `csv:"required"`
	Provided string `csv:"provided"`
	Status   string `csv:"status"`
}

func globalString(g wasm.GlobalVar) string {
	if g.Mutable {
		return fmt.Sprintf("(mut %v)", g.Type)
	}
	return g.Type.String()
}

func tableString(t wasm.Table) string {
	return fmt.Sprintf("%v %v", t.ElementType, &t.Limits)
}

// checkImports applies the per-kind match predicate to each of the
// importer's import declarations, resolving names against the provider's
// exports. If moduleName is non-empty, imports from other modules are
// skipped.
func checkImports(provider, importer *wasm.Module, moduleName string) ([]result, error) {
	var results []result
	for _, import_ := range importer.Imports {
		if moduleName != "" && import_.ModuleName != moduleName {
			continue
		}

		r := result{
			Module: import_.ModuleName,
			Field:  import_.FieldName,
			Kind:   import_.Type.Kind().String(),
		}

		switch type_ := import_.Type.(type) {
		case wasm.FuncImport:
			sig, ok := importer.Signature(type_.Type)
			if !ok {
				return nil, exec.ErrInvalidTypeIndex
			}
			r.Required = sig.String()
		case wasm.TableImport:
			r.Required = tableString(type_.Type)
		case wasm.MemoryImport:
			r.Required = type_.Type.Limits.String()
		case wasm.GlobalVarImport:
			r.Required = globalString(type_.Type)
		}

		export, ok := provider.Export(import_.FieldName)
		switch {
		case !ok:
			r.Status = statusMissing
		case export.Kind != import_.Type.Kind():
			r.Provided = export.Kind.String()
			r.Status = statusKindMismatch
		default:
			switch type_ := import_.Type.(type) {
			case wasm.FuncImport:
				required, _ := importer.Signature(type_.Type)
				provided, ok := provider.FunctionSignature(export.Index)
				if !ok {
					r.Status = statusInvalidIndex
					break
				}
				r.Provided = provided.String()
				r.Status = matchStatus(required.Equals(provided))
			case wasm.TableImport:
				provided, ok := provider.TableType(export.Index)
				if !ok {
					r.Status = statusInvalidIndex
					break
				}
				r.Provided = tableString(provided)
				r.Status = matchStatus(type_.Type.SatisfiedBy(provided))
			case wasm.MemoryImport:
				provided, ok := provider.MemoryType(export.Index)
				if !ok {
					r.Status = statusInvalidIndex
					break
				}
				r.Provided = provided.Limits.String()
				r.Status = matchStatus(type_.Type.SatisfiedBy(provided))
			case wasm.GlobalVarImport:
				provided, ok := provider.GlobalType(export.Index)
				if !ok {
					r.Status = statusInvalidIndex
					break
				}
				r.Provided = globalString(provided)
				r.Status = matchStatus(type_.Type.Matches(provided))
			}
		}

		results = append(results, r)
	}
	return results, nil
}

func matchStatus(ok bool) string {
	if ok {
		return statusOK
	}
	return statusIncompatible
}

func writeReport(w io.Writer, results []result) error {
	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	encoder := csvutil.NewEncoder(csvWriter)
	for i := range results {
		if err := encoder.Encode(&results[i]); err != nil {
			return err
		}
	}
	return nil
}
