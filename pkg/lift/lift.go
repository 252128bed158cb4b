// Package lift reconstructs structured control flow from the flat assembly
// instruction stream, producing an ir.Module of functions and basic blocks
// over function-scoped virtual registers.
//
// Lifting runs in two passes. The first pass partitions the stream into
// functions: a label opens a new function when it is "main" or "start", when
// it is the target of some Call, or when it is the first label and no
// instruction precedes it; every other label names a basic block inside the
// current function. An unlabeled prologue opens the implicit "main" and
// consumes the first-label slot, so a label after it joins main as a block.
// The second pass lowers instruction bodies. Branch targets are resolved
// against the first pass's label partition, so forward references never
// require revisiting an already-lowered block.
package lift

import (
	"fmt"

	"github.com/raymyers/asm2wasm/pkg/asm"
	"github.com/raymyers/asm2wasm/pkg/ir"
)

// Accumulator is the register that carries call results and the implicit
// return value of a function that falls off its entry block.
const Accumulator = "%eax"

// StackPtr is the register backing the simulated descending stack used by
// Push and Pop.
const StackPtr = "STACK_PTR"

// Error is a lifting failure. Instr holds the text of the instruction being
// lowered when the failure was detected.
type Error struct {
	Instr string
	Msg   string
}

func (e *Error) Error() string {
	if e.Instr == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s in %q", e.Msg, e.Instr)
}

// lifter holds the state of one Lift invocation. A fresh value is created
// per call; nothing is shared across invocations.
type lifter struct {
	mod    *ir.Module
	layout *layout

	fn    *ir.Function
	block *ir.Block

	fallthroughN int
	tempN        int
}

// Lift converts a parsed program into an IR module and verifies the result.
func Lift(prog *asm.Program) (*ir.Module, error) {
	l := &lifter{
		mod:    ir.NewModule(),
		layout: planLayout(prog),
	}

	for _, inst := range prog.Instructions {
		if err := l.enterScope(inst); err != nil {
			return nil, err
		}
		if err := l.liftInstruction(inst); err != nil {
			return nil, err
		}
	}

	l.patchTerminators()

	if err := verify(l.mod); err != nil {
		return nil, err
	}
	return l.mod, nil
}

// enterScope moves the function/block cursors when the instruction carries a
// label, opening functions and blocks per the first pass's partition. An
// unlabeled instruction before any label opens the implicit "main".
func (l *lifter) enterScope(inst asm.Instruction) error {
	if inst.Label == "" {
		if l.fn == nil {
			l.openFunction("main")
		}
		return nil
	}

	if l.layout.entries[inst.Label] {
		l.openFunction(inst.Label)
		return nil
	}

	if l.fn == nil {
		l.openFunction("main")
	}
	// A label reached by straight-line execution does not continue the
	// previous block; the unterminated block is patched to return later.
	l.block = l.getOrCreateBlock(inst.Label)
	return nil
}

// openFunction starts (or completes the declaration of) the named function
// and resets all per-function state: registers and blocks are not shared
// across functions.
func (l *lifter) openFunction(name string) {
	fn := l.mod.GetOrDeclare(name)
	fn.Defined = true
	l.fn = fn
	entry := &ir.Block{Label: name}
	fn.AddBlock(entry)
	l.block = entry
}

// getOrCreateBlock returns the block for a label in the current function.
func (l *lifter) getOrCreateBlock(label string) *ir.Block {
	if b, ok := l.fn.Block(label); ok {
		return b
	}
	b := &ir.Block{Label: label}
	l.fn.AddBlock(b)
	return b
}

// openFallthrough terminates nothing itself; it appends a fresh block that
// lifting continues into after a control transfer, preserving any source
// instructions that follow (unreachable code is kept, not discarded).
func (l *lifter) openFallthrough(prefix string) *ir.Block {
	b := &ir.Block{Label: fmt.Sprintf("%s_%d", prefix, l.fallthroughN)}
	l.fallthroughN++
	l.fn.AddBlock(b)
	l.block = b
	return b
}

func (l *lifter) newTemp() ir.Reg {
	name := fmt.Sprintf("t%d", l.tempN)
	l.tempN++
	l.fn.AddReg(name)
	return ir.Reg{Name: name}
}

func (l *lifter) reg(name string) ir.Reg {
	l.fn.AddReg(name)
	return ir.Reg{Name: name}
}

func (l *lifter) flagReg(name string) ir.Reg {
	return l.reg("FLAG_" + name)
}

func (l *lifter) emit(inst ir.Instr) {
	l.block.Code = append(l.block.Code, inst)
}

// patchTerminators gives every unterminated block its implicit return: the
// entry block yields the accumulator's current value, any other block yields
// the constant 0.
func (l *lifter) patchTerminators() {
	for _, fn := range l.mod.Funcs {
		if !fn.Defined {
			continue
		}
		for _, b := range fn.Blocks {
			if b.Term != nil {
				continue
			}
			if b == fn.Entry() {
				fn.AddReg(Accumulator)
				b.Term = ir.Return{Value: ir.Reg{Name: Accumulator}}
			} else {
				b.Term = ir.Return{Value: ir.Const{Value: 0}}
			}
		}
	}
}

// layout is the first pass's partition of the instruction stream.
type layout struct {
	// entries holds labels that start a function.
	entries map[string]bool
	// owner maps every label (including entries) to its function's name.
	owner map[string]string
}

// planLayout collects call targets and assigns each label either to a new
// function or to the function open at that point in the stream.
func planLayout(prog *asm.Program) *layout {
	callTargets := make(map[string]bool)
	for _, inst := range prog.Instructions {
		if inst.Type == asm.Call && len(inst.Operands) == 1 && inst.Operands[0].Kind == asm.OpLabel {
			callTargets[inst.Operands[0].Value] = true
		}
	}

	lay := &layout{
		entries: make(map[string]bool),
		owner:   make(map[string]string),
	}

	current := ""
	firstLabel := true
	for _, inst := range prog.Instructions {
		if inst.Label == "" {
			if current == "" {
				// The implicit main consumes the first-label slot: a label
				// after an unlabeled prologue is a block of main, not a
				// function.
				current = "main"
				lay.owner["main"] = "main"
				firstLabel = false
			}
			continue
		}
		label := inst.Label
		if label == "main" || label == "start" || callTargets[label] || firstLabel {
			lay.entries[label] = true
			lay.owner[label] = label
			current = label
		} else {
			if current == "" {
				current = "main"
				lay.owner["main"] = "main"
			}
			lay.owner[label] = current
		}
		firstLabel = false
	}
	return lay
}
