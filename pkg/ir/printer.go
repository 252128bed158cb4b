// Package ir printing for debug dumps (-dir in the CLI).
package ir

import (
	"fmt"
	"io"
)

// Printer outputs the IR in a readable format.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new IR printer.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintModule prints every function in the module.
func (p *Printer) PrintModule(m *Module) {
	for i, fn := range m.Funcs {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		p.PrintFunction(fn)
	}
}

// PrintFunction prints one function, declarations as a single line.
func (p *Printer) PrintFunction(fn *Function) {
	if !fn.Defined {
		fmt.Fprintf(p.w, "declare %s()\n", fn.Name)
		return
	}
	fmt.Fprintf(p.w, "%s() {\n", fn.Name)
	for _, b := range fn.Blocks {
		fmt.Fprintf(p.w, "%s:\n", b.Label)
		for _, inst := range b.Code {
			fmt.Fprintf(p.w, "  %s\n", formatInstr(inst))
		}
		fmt.Fprintf(p.w, "  %s\n", formatTerm(b.Term))
	}
	fmt.Fprintln(p.w, "}")
}

func formatInstr(inst Instr) string {
	switch i := inst.(type) {
	case Move:
		return fmt.Sprintf("%s = %s", i.Dst, i.Src)
	case Bin:
		return fmt.Sprintf("%s = %s %s, %s", i.Dst, i.Op, i.Left, i.Right)
	case Cmp:
		return fmt.Sprintf("%s = cmp %s %s, %s", i.Dst, i.Pred, i.Left, i.Right)
	case Load:
		return fmt.Sprintf("%s = load [%s]", i.Dst, i.Addr)
	case Store:
		return fmt.Sprintf("store [%s], %s", i.Addr, i.Src)
	case Call:
		return fmt.Sprintf("%s = call %s()", i.Dst, i.Callee)
	}
	return fmt.Sprintf("?%T", inst)
}

func formatTerm(term Terminator) string {
	switch t := term.(type) {
	case nil:
		return "<unterminated>"
	case Goto:
		return fmt.Sprintf("goto %s", t.Target)
	case CondBranch:
		test := "!= 0"
		if t.WhenZero {
			test = "== 0"
		}
		return fmt.Sprintf("if %s %s goto %s else %s", t.Flag, test, t.Target, t.Next)
	case Return:
		return fmt.Sprintf("ret %s", t.Value)
	}
	return fmt.Sprintf("?%T", term)
}
