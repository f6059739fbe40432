package check

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/wasm"
)

func loadModule(path string) (*wasm.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return wasm.DecodeModule(bufio.NewReader(f))
}

func Command() *cobra.Command {
	var csvOut bool
	var moduleName string

	command := &cobra.Command{
		Use:   "check [path to provider] [path to importer]",
		Short: "Check imports against exports",
		Long:  "Check that the exports of one module can satisfy the imports of another",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return errors.New("expected exactly two arguments")
			}
			provider, err := loadModule(args[0])
			if err != nil {
				return err
			}
			importer, err := loadModule(args[1])
			if err != nil {
				return err
			}

			results, err := checkImports(provider, importer, moduleName)
			if err != nil {
				return err
			}

			if csvOut {
				if err := writeReport(os.Stdout, results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					fmt.Printf("%s %s.%s: %s (required %s, provided %s)\n", r.Kind, r.Module, r.Field, r.Status, r.Required, r.Provided)
				}
			}

			unsatisfied := 0
			for _, r := range results {
				if r.Status != statusOK {
					unsatisfied++
				}
			}
			if unsatisfied != 0 {
				return fmt.Errorf("%d of %d imports cannot be satisfied", unsatisfied, len(results))
			}
			return nil
		},
	}

	command.PersistentFlags().BoolVar(&csvOut, "csv", false, "emit the compatibility report in CSV format")
	command.PersistentFlags().StringVarP(&moduleName, "module", "m", "", "only check imports from the named module")

	return command
}
