package lift

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/raymyers/asm2wasm/pkg/asm"
	"github.com/raymyers/asm2wasm/pkg/ir"
)

// memoryAddress lowers a parenthesized address expression to the argument
// holding the effective address. Supported shapes, after stripping parens:
//
//	%base            register dereference
//	1234             absolute constant address
//	%base+offset     constant displacement
//	%base+%reg       register displacement
//	%base+%idx*scale scaled index; the base is optional
//
// The expression splits on the first '+'. Scaled-index and register offsets
// load the registers involved; combining terms goes through temporaries.
func (l *lifter) memoryAddress(inst asm.Instruction, op asm.Operand) (ir.Arg, error) {
	expr := op.Value[1 : len(op.Value)-1]

	if !strings.Contains(expr, "+") {
		if strings.Contains(expr, "%") {
			return l.reg(expr), nil
		}
		v, err := strconv.Atoi(expr)
		if err != nil {
			return nil, l.badAddress(inst, op)
		}
		return ir.Const{Value: int32(v)}, nil
	}

	basePart, offsetPart, _ := strings.Cut(expr, "+")

	var result ir.Arg
	if strings.HasPrefix(basePart, "%") {
		result = l.reg(basePart)
	}

	switch {
	case strings.Contains(offsetPart, "*"):
		indexPart, scalePart, _ := strings.Cut(offsetPart, "*")
		if !strings.HasPrefix(indexPart, "%") {
			return nil, l.badAddress(inst, op)
		}
		scale, err := strconv.Atoi(scalePart)
		if err != nil {
			return nil, l.badAddress(inst, op)
		}
		scaled := l.newTemp()
		l.emit(ir.Bin{Op: ir.OpMul, Dst: scaled, Left: l.reg(indexPart), Right: ir.Const{Value: int32(scale)}})
		result = l.addTerm(result, scaled)
	case isIntegerText(offsetPart):
		off, err := strconv.Atoi(offsetPart)
		if err != nil {
			return nil, l.badAddress(inst, op)
		}
		result = l.addTerm(result, ir.Const{Value: int32(off)})
	case strings.HasPrefix(offsetPart, "%"):
		result = l.addTerm(result, l.reg(offsetPart))
	}

	if result == nil {
		return nil, l.badAddress(inst, op)
	}
	return result, nil
}

// addTerm adds a term to the address computed so far; the first term stands
// alone (pure scaled-index addressing with no base is legal).
func (l *lifter) addTerm(sum ir.Arg, term ir.Arg) ir.Arg {
	if sum == nil {
		return term
	}
	t := l.newTemp()
	l.emit(ir.Bin{Op: ir.OpAdd, Dst: t, Left: sum, Right: term})
	return t
}

func (l *lifter) badAddress(inst asm.Instruction, op asm.Operand) error {
	return &Error{Instr: inst.String(), Msg: fmt.Sprintf("failed to calculate memory address: %s", op.Value)}
}

func isIntegerText(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && c != '-' && c != '+' {
			return false
		}
	}
	return true
}
