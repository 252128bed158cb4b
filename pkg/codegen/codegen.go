// Package codegen lowers the IR to a WebAssembly module. Generation runs
// two passes per function: slot assignment gives every virtual register and
// temporary a dense i32 local index in first-use order, then instruction
// selection emits the stack-machine opcode sequence with structural
// branching computed by the scope pre-pass.
//
// Functions in this dialect are niladic and every one yields a single i32.
// Call targets that are declared but never defined become imports under the
// "env" module, so their call indices resolve.
package codegen

import (
	"fmt"

	"github.com/raymyers/asm2wasm/pkg/ir"
	"github.com/raymyers/asm2wasm/pkg/wasm"
)

// Error is a code generation failure.
type Error struct {
	Func string
	Msg  string
}

func (e *Error) Error() string {
	if e.Func == "" {
		return e.Msg
	}
	return fmt.Sprintf("function %s: %s", e.Func, e.Msg)
}

// Generate lowers a verified IR module to a wasm module.
func Generate(mod *ir.Module) (*wasm.Module, error) {
	out := wasm.NewModule()

	// Function indices are fixed up front: imports first, then defined
	// functions, both in first-mention order. Calls may then reference
	// functions that have not been generated yet.
	indices := make(map[string]int64)
	for _, fn := range mod.Funcs {
		if !fn.Defined {
			indices[fn.Name] = int64(len(out.Imports))
			out.Imports = append(out.Imports, wasm.Import{Module: "env", Name: fn.Name})
		}
	}
	next := int64(len(out.Imports))
	for _, fn := range mod.Funcs {
		if fn.Defined {
			indices[fn.Name] = next
			next++
		}
	}

	for _, fn := range mod.Funcs {
		if !fn.Defined {
			continue
		}
		wf, err := generateFunc(fn, indices)
		if err != nil {
			return nil, err
		}
		out.Funcs = append(out.Funcs, *wf)
	}
	return out, nil
}

// funcGen holds the state for generating one function.
type funcGen struct {
	fn      *ir.Function
	out     *wasm.Func
	plan    *scopePlan
	indices map[string]int64

	slots map[string]int64

	// stack mirrors the open structured constructs during emission;
	// depths indexes them by construct for O(1) branch depth lookups.
	stack  []*scope
	depths map[*scope]int
}

func generateFunc(fn *ir.Function, indices map[string]int64) (*wasm.Func, error) {
	plan, err := planScopes(fn)
	if err != nil {
		return nil, err
	}
	g := &funcGen{
		fn:      fn,
		out:     &wasm.Func{Name: fn.Name, Result: wasm.I32},
		plan:    plan,
		indices: indices,
		depths:  make(map[*scope]int),
	}
	g.assignSlots()
	if err := g.emitBody(); err != nil {
		return nil, err
	}
	return g.out, nil
}

// assignSlots gives each virtual register a local slot in first-use order.
// The lifter records references in that order, temporaries included; slot
// indices start after the (empty) parameter list and are never reused.
func (g *funcGen) assignSlots() {
	g.slots = make(map[string]int64, len(g.fn.Regs))
	for _, name := range g.fn.Regs {
		g.slots[name] = int64(len(g.out.Params) + len(g.out.Locals))
		g.out.Locals = append(g.out.Locals, wasm.I32)
	}
}

func (g *funcGen) emitBody() error {
	for p, b := range g.fn.Blocks {
		if err := g.closeScopes(p); err != nil {
			return err
		}
		g.openScopes(p)

		for _, inst := range b.Code {
			if err := g.selectInstr(inst); err != nil {
				return err
			}
		}
		if err := g.lowerTerminator(p, b.Term); err != nil {
			return err
		}
	}
	return g.closeScopes(len(g.fn.Blocks))
}

func (g *funcGen) openScopes(boundary int) {
	for _, s := range g.plan.opensAt(boundary) {
		op := wasm.OpBlock
		if s.kind == scopeLoop {
			op = wasm.OpLoop
		}
		g.emit(wasm.Ins(op))
		g.depths[s] = len(g.stack)
		g.stack = append(g.stack, s)
	}
}

func (g *funcGen) closeScopes(boundary int) error {
	for len(g.stack) > 0 && g.stack[len(g.stack)-1].end == boundary {
		s := g.stack[len(g.stack)-1]
		g.stack = g.stack[:len(g.stack)-1]
		delete(g.depths, s)
		g.emit(wasm.Ins(wasm.OpEnd))
	}
	for _, s := range g.stack {
		if s.end == boundary {
			return &Error{Func: g.fn.Name, Msg: "control flow cannot be structured"}
		}
	}
	return nil
}

// branchDepth returns how many enclosing constructs a branch at the current
// point exits to reach its target: the block construct ending at a forward
// target, or the loop construct starting at a backward one.
func (g *funcGen) branchDepth(from, target int) (int64, error) {
	kind, boundary := scopeBlock, target
	if target <= from {
		kind = scopeLoop
	}
	for _, s := range g.stack {
		if s.kind != kind {
			continue
		}
		if (kind == scopeBlock && s.end == boundary) || (kind == scopeLoop && s.start == boundary) {
			return int64(len(g.stack) - 1 - g.depths[s]), nil
		}
	}
	return 0, &Error{Func: g.fn.Name, Msg: fmt.Sprintf("no enclosing construct reaches block %d", target)}
}

func (g *funcGen) lowerTerminator(p int, term ir.Terminator) error {
	switch t := term.(type) {
	case ir.Goto:
		target := g.plan.pos[t.Target]
		if target == p+1 {
			return nil // structurally next, fall through
		}
		depth, err := g.branchDepth(p, target)
		if err != nil {
			return err
		}
		g.emit(wasm.Ins(wasm.OpBr, depth))
		return nil

	case ir.CondBranch:
		return g.lowerCondBranch(p, t)

	case ir.Return:
		if err := g.pushArg(t.Value); err != nil {
			return err
		}
		g.emit(wasm.Ins(wasm.OpReturn))
		return nil
	}
	return &Error{Func: g.fn.Name, Msg: fmt.Sprintf("unsupported terminator %T", term)}
}

// lowerCondBranch picks the branch polarity from which successor is
// structurally next: branch-if-true when the fall-through side is next, an
// inverted test when the taken side is next, and an explicit branch pair
// when neither is.
func (g *funcGen) lowerCondBranch(p int, t ir.CondBranch) error {
	target := g.plan.pos[t.Target]
	next := g.plan.pos[t.Next]

	g.emit(wasm.Ins(wasm.OpLocalGet, g.slot(t.Flag.Name)))
	if t.WhenZero {
		g.emit(wasm.Ins(wasm.OpI32Eqz))
	}

	switch {
	case next == p+1:
		depth, err := g.branchDepth(p, target)
		if err != nil {
			return err
		}
		g.emit(wasm.Ins(wasm.OpBrIf, depth))
	case target == p+1:
		depth, err := g.branchDepth(p, next)
		if err != nil {
			return err
		}
		g.emit(wasm.Ins(wasm.OpI32Eqz))
		g.emit(wasm.Ins(wasm.OpBrIf, depth))
	default:
		depth, err := g.branchDepth(p, target)
		if err != nil {
			return err
		}
		g.emit(wasm.Ins(wasm.OpBrIf, depth))
		depth, err = g.branchDepth(p, next)
		if err != nil {
			return err
		}
		g.emit(wasm.Ins(wasm.OpBr, depth))
	}
	return nil
}

var binOpcodes = map[ir.BinOp]wasm.Opcode{
	ir.OpAdd:  wasm.OpI32Add,
	ir.OpSub:  wasm.OpI32Sub,
	ir.OpMul:  wasm.OpI32Mul,
	ir.OpDivS: wasm.OpI32DivS,
}

var predOpcodes = map[ir.Pred]wasm.Opcode{
	ir.PredEq:  wasm.OpI32Eq,
	ir.PredNe:  wasm.OpI32Ne,
	ir.PredLtS: wasm.OpI32LtS,
	ir.PredGtS: wasm.OpI32GtS,
	ir.PredLeS: wasm.OpI32LeS,
	ir.PredGeS: wasm.OpI32GeS,
}

func (g *funcGen) selectInstr(inst ir.Instr) error {
	switch i := inst.(type) {
	case ir.Move:
		if err := g.pushArg(i.Src); err != nil {
			return err
		}
		g.emit(wasm.Ins(wasm.OpLocalSet, g.slot(i.Dst.Name)))

	case ir.Bin:
		if err := g.pushArg(i.Left); err != nil {
			return err
		}
		if err := g.pushArg(i.Right); err != nil {
			return err
		}
		g.emit(wasm.Ins(binOpcodes[i.Op]))
		g.emit(wasm.Ins(wasm.OpLocalSet, g.slot(i.Dst.Name)))

	case ir.Cmp:
		if err := g.pushArg(i.Left); err != nil {
			return err
		}
		if err := g.pushArg(i.Right); err != nil {
			return err
		}
		g.emit(wasm.Ins(predOpcodes[i.Pred]))
		g.emit(wasm.Ins(wasm.OpLocalSet, g.slot(i.Dst.Name)))

	case ir.Load:
		if err := g.pushArg(i.Addr); err != nil {
			return err
		}
		g.emit(wasm.Ins(wasm.OpI32Load))
		g.emit(wasm.Ins(wasm.OpLocalSet, g.slot(i.Dst.Name)))

	case ir.Store:
		if err := g.pushArg(i.Addr); err != nil {
			return err
		}
		if err := g.pushArg(i.Src); err != nil {
			return err
		}
		g.emit(wasm.Ins(wasm.OpI32Store))

	case ir.Call:
		idx, ok := g.indices[i.Callee]
		if !ok {
			return &Error{Func: g.fn.Name, Msg: fmt.Sprintf("call target %s has no index", i.Callee)}
		}
		g.emit(wasm.Ins(wasm.OpCall, idx))
		g.emit(wasm.Ins(wasm.OpLocalSet, g.slot(i.Dst.Name)))

	default:
		return &Error{Func: g.fn.Name, Msg: fmt.Sprintf("unsupported instruction %T", inst)}
	}
	return nil
}

func (g *funcGen) pushArg(a ir.Arg) error {
	switch v := a.(type) {
	case ir.Const:
		g.emit(wasm.Ins(wasm.OpI32Const, int64(v.Value)))
		return nil
	case ir.Reg:
		g.emit(wasm.Ins(wasm.OpLocalGet, g.slot(v.Name)))
		return nil
	}
	return &Error{Func: g.fn.Name, Msg: fmt.Sprintf("unsupported argument %T", a)}
}

func (g *funcGen) slot(name string) int64 {
	return g.slots[name]
}

func (g *funcGen) emit(inst wasm.Instruction) {
	g.out.Body = append(g.out.Body, inst)
}
