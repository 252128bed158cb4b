package lift

import (
	"fmt"

	"github.com/raymyers/asm2wasm/pkg/ir"
)

// verify checks the lifted module before it is handed to code generation:
// every block of a defined function is terminated, every branch target
// resolves to a block of the same function, and every callee resolves in the
// module symbol table.
func verify(mod *ir.Module) error {
	for _, fn := range mod.Funcs {
		if !fn.Defined {
			continue
		}
		if len(fn.Blocks) == 0 {
			return &Error{Msg: fmt.Sprintf("function %s has no blocks", fn.Name)}
		}
		for _, b := range fn.Blocks {
			if b.Term == nil {
				return &Error{Msg: fmt.Sprintf("block %s in function %s is not terminated", b.Label, fn.Name)}
			}
			for _, target := range branchTargets(b.Term) {
				if _, ok := fn.Block(target); !ok {
					return &Error{Msg: fmt.Sprintf("branch target %s not found in function %s", target, fn.Name)}
				}
			}
			for _, inst := range b.Code {
				call, ok := inst.(ir.Call)
				if !ok {
					continue
				}
				if _, ok := mod.Lookup(call.Callee); !ok {
					return &Error{Msg: fmt.Sprintf("callee %s not found in module", call.Callee)}
				}
			}
		}
	}
	return nil
}

func branchTargets(term ir.Terminator) []string {
	switch t := term.(type) {
	case ir.Goto:
		return []string{t.Target}
	case ir.CondBranch:
		return []string{t.Target, t.Next}
	}
	return nil
}
