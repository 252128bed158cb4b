// Package peephole rewrites short instruction windows in generated wasm
// function bodies. The patterns are purely local stack-effect identities, so
// they hold regardless of surrounding control structure.
package peephole

import (
	"github.com/raymyers/asm2wasm/pkg/wasm"
)

// Optimize rewrites every function body in place until no pattern applies.
func Optimize(m *wasm.Module) *wasm.Module {
	for i := range m.Funcs {
		m.Funcs[i].Body = optimizeSequence(m.Funcs[i].Body)
	}
	return m
}

func optimizeSequence(body []wasm.Instruction) []wasm.Instruction {
	for {
		next, changed := rewriteOnce(body)
		if !changed {
			return next
		}
		body = next
	}
}

// rewriteOnce makes one left-to-right pass, applying the widest matching
// pattern at each position.
func rewriteOnce(body []wasm.Instruction) ([]wasm.Instruction, bool) {
	result := make([]wasm.Instruction, 0, len(body))
	changed := false

	i := 0
	for i < len(body) {
		if folded, ok := tryFoldConstArith(body, i); ok {
			result = append(result, folded)
			i += 3
			changed = true
			continue
		}
		if tee, ok := trySetGetToTee(body, i); ok {
			result = append(result, tee)
			i += 2
			changed = true
			continue
		}
		result = append(result, body[i])
		i++
	}
	return result, changed
}

// trySetGetToTee matches `local.set k; local.get k` and replaces the pair
// with `local.tee k`, which has the same stack effect and side effect.
func trySetGetToTee(body []wasm.Instruction, i int) (wasm.Instruction, bool) {
	if i+1 >= len(body) {
		return wasm.Instruction{}, false
	}
	set, get := body[i], body[i+1]
	if set.Op != wasm.OpLocalSet || get.Op != wasm.OpLocalGet {
		return wasm.Instruction{}, false
	}
	if len(set.Operands) != 1 || len(get.Operands) != 1 || set.Operands[0] != get.Operands[0] {
		return wasm.Instruction{}, false
	}
	return wasm.Ins(wasm.OpLocalTee, set.Operands[0]), true
}

// tryFoldConstArith matches two constants followed by add, sub or mul and
// folds them into a single constant with i32 wraparound. Division is left
// alone so a divide-by-zero still traps at run time.
func tryFoldConstArith(body []wasm.Instruction, i int) (wasm.Instruction, bool) {
	if i+2 >= len(body) {
		return wasm.Instruction{}, false
	}
	left, right, op := body[i], body[i+1], body[i+2]
	if left.Op != wasm.OpI32Const || right.Op != wasm.OpI32Const {
		return wasm.Instruction{}, false
	}
	if len(left.Operands) != 1 || len(right.Operands) != 1 {
		return wasm.Instruction{}, false
	}

	a, b := int32(left.Operands[0]), int32(right.Operands[0])
	var v int32
	switch op.Op {
	case wasm.OpI32Add:
		v = a + b
	case wasm.OpI32Sub:
		v = a - b
	case wasm.OpI32Mul:
		v = a * b
	default:
		return wasm.Instruction{}, false
	}
	return wasm.Ins(wasm.OpI32Const, int64(v)), true
}
