package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/raymyers/asm2wasm/pkg/asm"
	"github.com/raymyers/asm2wasm/pkg/codegen"
	"github.com/raymyers/asm2wasm/pkg/ir"
	"github.com/raymyers/asm2wasm/pkg/lift"
	"github.com/raymyers/asm2wasm/pkg/parser"
	"github.com/raymyers/asm2wasm/pkg/peephole"
	"github.com/raymyers/asm2wasm/pkg/wasm"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// Debug flags for dumping intermediate forms
var (
	dParse bool
	dIR    bool
	dWat   bool
)

// Output options
var (
	wasmPath string
	watPath  string
	noOpt    bool
)

// Exit codes, one per pipeline stage.
const (
	exitUsage   = 1
	exitParse   = 2
	exitLift    = 3
	exitCodegen = 4
	exitIO      = 5
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	// Normalize assembler-style single-dash flags to double-dash for pflag compatibility
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return exitCode(err)
	}
	return 0
}

// exitCode maps a pipeline error back to the stage that produced it.
func exitCode(err error) int {
	var parseErr *parser.Error
	var liftErr *lift.Error
	var genErr *codegen.Error
	var pathErr *os.PathError
	switch {
	case errors.As(err, &parseErr):
		return exitParse
	case errors.As(err, &liftErr):
		return exitLift
	case errors.As(err, &genErr):
		return exitCodegen
	case errors.As(err, &pathErr):
		return exitIO
	}
	return exitUsage
}

// debugFlagNames lists the debug flags that accept single-dash style
var debugFlagNames = []string{"dparse", "dir", "dwat"}

// normalizeFlags converts single-dash debug flags like -dparse to --dparse
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		for _, flagName := range debugFlagNames {
			if arg == "-"+flagName {
				result[i] = "--" + flagName
				break
			}
		}
		if result[i] == "" {
			result[i] = arg
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "asm2wasm [file]",
		Short: "asm2wasm translates x86-style assembly to WebAssembly",
		Long: `asm2wasm reads a file of x86-style assembly, lifts it to an
intermediate form with explicit basic blocks, and emits an equivalent
WebAssembly module in both binary and text formats.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			return translate(args[0], out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVar(&dParse, "dparse", false, "Dump the instruction stream after parsing")
	rootCmd.Flags().BoolVar(&dIR, "dir", false, "Dump the intermediate form after lifting")
	rootCmd.Flags().BoolVar(&dWat, "dwat", false, "Dump the wasm text without writing output files")

	rootCmd.Flags().StringVar(&wasmPath, "wasm", "", "Binary output path (default: input with .wasm extension)")
	rootCmd.Flags().StringVar(&watPath, "wat", "", "Text output path (default: input with .wat extension)")
	rootCmd.Flags().BoolVar(&noOpt, "no-opt", false, "Skip the peephole pass on generated code")

	return rootCmd
}

// translate runs the full pipeline on one input file. Nothing is written
// until every stage has succeeded, so a failing run leaves no partial
// outputs behind.
func translate(filename string, out, errOut io.Writer) error {
	prog, err := parser.ParseFile(filename)
	if err != nil {
		fmt.Fprintf(errOut, "asm2wasm: parse error: %v\n", err)
		return err
	}
	if dParse {
		dumpProgram(out, prog)
		return nil
	}

	mod, err := lift.Lift(prog)
	if err != nil {
		fmt.Fprintf(errOut, "asm2wasm: lift error: %v\n", err)
		return err
	}
	if dIR {
		ir.NewPrinter(out).PrintModule(mod)
		return nil
	}

	wmod, err := codegen.Generate(mod)
	if err != nil {
		fmt.Fprintf(errOut, "asm2wasm: codegen error: %v\n", err)
		return err
	}
	if !noOpt {
		peephole.Optimize(wmod)
	}

	text := wasm.Text(wmod)
	if dWat {
		fmt.Fprint(out, text)
		return nil
	}

	binary := wasm.Encode(wmod)
	if err := os.WriteFile(outputPath(filename, wasmPath, ".wasm"), binary, 0o644); err != nil {
		fmt.Fprintf(errOut, "asm2wasm: output error: %v\n", err)
		return err
	}
	if err := os.WriteFile(outputPath(filename, watPath, ".wat"), []byte(text), 0o644); err != nil {
		fmt.Fprintf(errOut, "asm2wasm: output error: %v\n", err)
		return err
	}
	fmt.Fprint(out, text)
	return nil
}

// outputPath picks the explicit override or swaps the input extension.
func outputPath(input, override, ext string) string {
	if override != "" {
		return override
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ext
}

func dumpProgram(out io.Writer, prog *asm.Program) {
	for i, inst := range prog.Instructions {
		fmt.Fprintf(out, "%4d  %s\n", i, inst)
	}
	if len(prog.Labels) == 0 {
		return
	}
	fmt.Fprintln(out)
	for _, label := range sortedLabels(prog.Labels) {
		fmt.Fprintf(out, "%s -> %d\n", label, prog.Labels[label])
	}
}

func sortedLabels(labels map[string]int) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
