package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/cmd/weft/check"
	"github.com/weftlabs/weft/wasm"
)

var version = "<unknown>"

func configureCLI() *cobra.Command {
	var debug bool

	rootCommand := &cobra.Command{
		Use:           "weft",
		Short:         "weft WebAssembly linker tools",
		Long:          "weft - static type and link checking for WebAssembly modules",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			wasm.SetDebugMode(debug)
		},
	}

	rootCommand.AddCommand(check.Command())

	rootCommand.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCommand.PersistentFlags().MarkHidden("debug")

	return rootCommand
}

func main() {
	rootCommand := configureCLI()

	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
