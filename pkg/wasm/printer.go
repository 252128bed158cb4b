// Text (wat) output. The produced form round-trips through ParseText and is
// accepted by standard WebAssembly text assemblers.
package wasm

import (
	"fmt"
	"io"
	"strings"
)

// Printer outputs a module in the s-expression text format.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new text printer.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Text renders the module to a string.
func Text(m *Module) string {
	var b strings.Builder
	NewPrinter(&b).PrintModule(m)
	return b.String()
}

// PrintModule prints the full module form.
func (p *Printer) PrintModule(m *Module) {
	fmt.Fprintln(p.w, "(module")

	fmt.Fprintf(p.w, "  (memory %d", m.MemoryPages)
	if m.MemoryMaxPages > 0 {
		fmt.Fprintf(p.w, " %d", m.MemoryMaxPages)
	}
	fmt.Fprintln(p.w, ")")

	for _, imp := range m.Imports {
		fmt.Fprintf(p.w, "  (import %q %q (func $%s (result i32)))\n", imp.Module, imp.Name, imp.Name)
	}

	for _, fn := range m.Funcs {
		p.PrintFunc(&fn)
	}

	fmt.Fprintln(p.w, ")")
}

// PrintFunc prints one function: header with parameters, result and locals,
// then the linear instruction sequence.
func (p *Printer) PrintFunc(fn *Func) {
	fmt.Fprintf(p.w, "  (func $%s", fn.Name)
	for i, t := range fn.Params {
		fmt.Fprintf(p.w, " (param $%d %s)", i, t)
	}
	fmt.Fprintf(p.w, " (result %s)", fn.Result)
	for i, t := range fn.Locals {
		fmt.Fprintf(p.w, " (local $%d %s)", len(fn.Params)+i, t)
	}
	fmt.Fprintln(p.w)

	indent := 2
	for _, inst := range fn.Body {
		if inst.Op == OpEnd && indent > 2 {
			indent--
		}
		fmt.Fprintf(p.w, "%s%s", strings.Repeat("  ", indent), inst.Op)
		for _, operand := range inst.Operands {
			fmt.Fprintf(p.w, " %d", operand)
		}
		fmt.Fprintln(p.w)
		if inst.Op == OpBlock || inst.Op == OpLoop {
			indent++
		}
	}
	fmt.Fprintln(p.w, "  )")
}
