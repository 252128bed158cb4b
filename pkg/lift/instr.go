package lift

import (
	"fmt"
	"strconv"

	"github.com/raymyers/asm2wasm/pkg/asm"
	"github.com/raymyers/asm2wasm/pkg/ir"
)

func (l *lifter) liftInstruction(inst asm.Instruction) error {
	switch inst.Type {
	case asm.Add, asm.Sub, asm.Mul, asm.Div:
		return l.liftArithmetic(inst)
	case asm.Mov:
		return l.liftMove(inst)
	case asm.Cmp:
		return l.liftCompare(inst)
	case asm.Jmp, asm.Je, asm.Jne, asm.Jl, asm.Jg, asm.Jle, asm.Jge:
		return l.liftJump(inst)
	case asm.Call:
		return l.liftCall(inst)
	case asm.Ret:
		return l.liftReturn(inst)
	case asm.Push, asm.Pop:
		return l.liftStack(inst)
	case asm.Label:
		return nil
	}
	return &Error{Instr: inst.String(), Msg: "unsupported instruction type"}
}

// evalOperand produces the value of an operand. A memory operand evaluates
// to its computed address; only Mov performs indirect loads and stores.
func (l *lifter) evalOperand(inst asm.Instruction, op asm.Operand) (ir.Arg, error) {
	switch op.Kind {
	case asm.OpRegister:
		return l.reg(op.Value), nil
	case asm.OpImmediate:
		v, err := strconv.Atoi(op.Value)
		if err != nil {
			return nil, &Error{Instr: inst.String(), Msg: fmt.Sprintf("invalid immediate %q", op.Value)}
		}
		return ir.Const{Value: int32(v)}, nil
	case asm.OpMemory:
		return l.memoryAddress(inst, op)
	}
	return nil, &Error{Instr: inst.String(), Msg: fmt.Sprintf("label operand %q has no value here", op.Value)}
}

func binOpFor(t asm.Type) ir.BinOp {
	switch t {
	case asm.Add:
		return ir.OpAdd
	case asm.Sub:
		return ir.OpSub
	case asm.Mul:
		return ir.OpMul
	}
	return ir.OpDivS
}

// liftArithmetic lowers Add/Sub/Mul/Div. The result is stored back only when
// operand 0 is a register; otherwise it lands in a discarded temporary.
// Division is signed, and dividing by zero traps when the generated module
// runs; it is never a lifting error.
func (l *lifter) liftArithmetic(inst asm.Instruction) error {
	if len(inst.Operands) < 2 {
		return &Error{Instr: inst.String(), Msg: "arithmetic instruction requires 2 operands"}
	}
	left, err := l.evalOperand(inst, inst.Operands[0])
	if err != nil {
		return err
	}
	right, err := l.evalOperand(inst, inst.Operands[1])
	if err != nil {
		return err
	}

	var dst ir.Reg
	if inst.Operands[0].Kind == asm.OpRegister {
		dst = l.reg(inst.Operands[0].Value)
	} else {
		dst = l.newTemp()
	}
	l.emit(ir.Bin{Op: binOpFor(inst.Type), Dst: dst, Left: left, Right: right})
	return nil
}

func (l *lifter) liftMove(inst asm.Instruction) error {
	if len(inst.Operands) != 2 {
		return &Error{Instr: inst.String(), Msg: "MOV instruction requires 2 operands"}
	}
	dst, src := inst.Operands[0], inst.Operands[1]

	switch {
	case dst.Kind == asm.OpRegister && src.Kind == asm.OpMemory:
		addr, err := l.memoryAddress(inst, src)
		if err != nil {
			return err
		}
		l.emit(ir.Load{Dst: l.reg(dst.Value), Addr: addr})
	case dst.Kind == asm.OpRegister:
		val, err := l.evalOperand(inst, src)
		if err != nil {
			return err
		}
		l.emit(ir.Move{Dst: l.reg(dst.Value), Src: val})
	case dst.Kind == asm.OpMemory:
		if src.Kind != asm.OpRegister && src.Kind != asm.OpImmediate {
			return &Error{Instr: inst.String(), Msg: "source must be a register or immediate for memory destination MOV"}
		}
		val, err := l.evalOperand(inst, src)
		if err != nil {
			return err
		}
		addr, err := l.memoryAddress(inst, dst)
		if err != nil {
			return err
		}
		l.emit(ir.Store{Addr: addr, Src: val})
	default:
		return &Error{Instr: inst.String(), Msg: "MOV destination must be a register or memory access"}
	}
	return nil
}

// liftCompare computes all five comparison predicates and persists each as a
// 0/1 value in its flag register. There is no hardware flag word; every Cmp
// overwrites all five flags.
func (l *lifter) liftCompare(inst asm.Instruction) error {
	if len(inst.Operands) != 2 {
		return &Error{Instr: inst.String(), Msg: "CMP instruction requires 2 operands"}
	}
	left, err := l.evalOperand(inst, inst.Operands[0])
	if err != nil {
		return err
	}
	right, err := l.evalOperand(inst, inst.Operands[1])
	if err != nil {
		return err
	}

	flags := []struct {
		name string
		pred ir.Pred
	}{
		{"ZF", ir.PredEq},
		{"LT", ir.PredLtS},
		{"GT", ir.PredGtS},
		{"LE", ir.PredLeS},
		{"GE", ir.PredGeS},
	}
	for _, f := range flags {
		l.emit(ir.Cmp{Pred: f.pred, Dst: l.flagReg(f.name), Left: left, Right: right})
	}
	return nil
}

// jumpFlags maps each conditional jump to the flag it reads and whether the
// branch fires when the flag is zero (only JNE: jump when FLAG_ZF = 0).
var jumpFlags = map[asm.Type]struct {
	flag     string
	whenZero bool
}{
	asm.Je:  {"ZF", false},
	asm.Jne: {"ZF", true},
	asm.Jl:  {"LT", false},
	asm.Jg:  {"GT", false},
	asm.Jle: {"LE", false},
	asm.Jge: {"GE", false},
}

func (l *lifter) liftJump(inst asm.Instruction) error {
	if len(inst.Operands) != 1 {
		return &Error{Instr: inst.String(), Msg: "jump instruction requires 1 operand"}
	}
	target := inst.Operands[0].Value
	if l.layout.owner[target] != l.fn.Name {
		return &Error{Instr: inst.String(), Msg: fmt.Sprintf("jump target label not found: %s", target)}
	}

	if inst.Type == asm.Jmp {
		l.block.Term = ir.Goto{Target: target}
		l.openFallthrough("cont")
		return nil
	}

	jf := jumpFlags[inst.Type]
	flag := l.flagReg(jf.flag)
	fall := fmt.Sprintf("fallthrough_%d", l.fallthroughN)
	l.block.Term = ir.CondBranch{Flag: flag, WhenZero: jf.whenZero, Target: target, Next: fall}
	l.openFallthrough("fallthrough")
	return nil
}

// liftCall resolves or declares the callee; calling a label that is never
// defined is legal and leaves a declaration behind. Every call stores its
// result into the accumulator.
func (l *lifter) liftCall(inst asm.Instruction) error {
	if len(inst.Operands) != 1 {
		return &Error{Instr: inst.String(), Msg: "CALL instruction requires 1 operand"}
	}
	if inst.Operands[0].Kind != asm.OpLabel {
		return &Error{Instr: inst.String(), Msg: "CALL operand must be a label"}
	}
	callee := inst.Operands[0].Value
	l.mod.GetOrDeclare(callee)
	l.emit(ir.Call{Dst: l.reg(Accumulator), Callee: callee})
	return nil
}

func (l *lifter) liftReturn(inst asm.Instruction) error {
	if len(inst.Operands) == 0 {
		l.block.Term = ir.Return{Value: l.reg(Accumulator)}
	} else {
		val, err := l.evalOperand(inst, inst.Operands[0])
		if err != nil {
			return err
		}
		l.block.Term = ir.Return{Value: val}
	}
	// Source instructions after a return are preserved in a fresh block.
	l.openFallthrough("cont")
	return nil
}

// liftStack simulates a descending stack through the StackPtr register and
// indirect memory access, one 4-byte slot per push.
func (l *lifter) liftStack(inst asm.Instruction) error {
	if len(inst.Operands) != 1 {
		return &Error{Instr: inst.String(), Msg: fmt.Sprintf("%s instruction requires 1 operand", inst.Type)}
	}
	sp := l.reg(StackPtr)

	if inst.Type == asm.Push {
		val, err := l.evalOperand(inst, inst.Operands[0])
		if err != nil {
			return err
		}
		l.emit(ir.Bin{Op: ir.OpSub, Dst: sp, Left: sp, Right: ir.Const{Value: 4}})
		l.emit(ir.Store{Addr: sp, Src: val})
		return nil
	}

	var dst ir.Reg
	if inst.Operands[0].Kind == asm.OpRegister {
		dst = l.reg(inst.Operands[0].Value)
	} else {
		dst = l.newTemp()
	}
	l.emit(ir.Load{Dst: dst, Addr: sp})
	l.emit(ir.Bin{Op: ir.OpAdd, Dst: sp, Left: sp, Right: ir.Const{Value: 4}})
	return nil
}
