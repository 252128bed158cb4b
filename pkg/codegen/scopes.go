// Structured control scope planning. WebAssembly has no arbitrary-address
// jumps: a branch names how many enclosing structured constructs it exits.
// This pre-pass assigns each basic block its position index and computes,
// once per function, the block/loop constructs whose boundaries realize
// every branch, so branch lowering becomes a depth lookup instead of a scan.
//
// Positions split the function into boundaries 0..n (boundary p sits just
// before block p's code). A forward branch to block j needs a `block`
// construct whose `end` lands at boundary j; a backward branch to block h
// needs a `loop` construct opening at boundary h. Constructs must nest, so
// block starts are extended leftward and loop ends rightward until the
// interval set is laminar. A forward branch into the interior of a loop
// cannot be structured and is rejected.
package codegen

import (
	"fmt"
	"sort"

	"github.com/raymyers/asm2wasm/pkg/ir"
)

type scopeKind int

const (
	scopeBlock scopeKind = iota
	scopeLoop
)

// scope is one structured construct: it opens at boundary start and its
// closing `end` is emitted at boundary end. For a block construct the end
// boundary is the branch target; for a loop the start boundary is.
type scope struct {
	kind  scopeKind
	start int
	end   int
}

// scopePlan is the per-function emission plan.
type scopePlan struct {
	// pos maps block labels to position indices.
	pos map[string]int
	// scopes holds every construct, in a deterministic order.
	scopes []*scope
}

type edge struct {
	from, to int
}

// planScopes builds the scope plan for one function.
func planScopes(fn *ir.Function) (*scopePlan, error) {
	plan := &scopePlan{pos: make(map[string]int, len(fn.Blocks))}
	for i, b := range fn.Blocks {
		plan.pos[b.Label] = i
	}

	var forward, backward []edge
	for p, b := range fn.Blocks {
		for _, target := range branchTargets(b.Term) {
			q, ok := plan.pos[target]
			if !ok {
				return nil, &Error{Func: fn.Name, Msg: fmt.Sprintf("branch target %s has no block", target)}
			}
			if q > p {
				forward = append(forward, edge{from: p, to: q})
			} else {
				backward = append(backward, edge{from: p, to: q})
			}
		}
	}

	loops := planLoops(backward)
	blocks, err := planBlocks(fn.Name, forward, loops)
	if err != nil {
		return nil, err
	}

	plan.scopes = append(plan.scopes, loops...)
	plan.scopes = append(plan.scopes, blocks...)
	if err := checkLaminar(fn.Name, plan.scopes); err != nil {
		return nil, err
	}
	return plan, nil
}

// planLoops creates one loop per backward-branch target, spanning to just
// past its furthest source, and extends overlapping loops into each other
// so the set nests.
func planLoops(backward []edge) []*scope {
	ends := make(map[int]int)
	for _, e := range backward {
		if ends[e.to] < e.from+1 {
			ends[e.to] = e.from + 1
		}
	}

	var loops []*scope
	for start, end := range ends {
		loops = append(loops, &scope{kind: scopeLoop, start: start, end: end})
	}
	sort.Slice(loops, func(i, j int) bool { return loops[i].start < loops[j].start })

	// An earlier loop overlapping a later one swallows it.
	for i := 0; i < len(loops); i++ {
		for j := i + 1; j < len(loops); j++ {
			if loops[j].start < loops[i].end && loops[j].end > loops[i].end {
				loops[i].end = loops[j].end
			}
		}
	}
	return loops
}

// planBlocks creates one block construct per forward-branch target that is
// not adjacent to all of its sources, starting at the earliest source and
// widened as needed to nest around loops and around each other.
func planBlocks(fnName string, forward []edge, loops []*scope) ([]*scope, error) {
	starts := make(map[int]int)
	for _, e := range forward {
		if e.to == e.from+1 {
			continue // falls through, no construct needed
		}
		if cur, ok := starts[e.to]; !ok || e.from < cur {
			starts[e.to] = e.from
		}
	}

	var blocks []*scope
	for end, start := range starts {
		blocks = append(blocks, &scope{kind: scopeBlock, start: start, end: end})
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].end < blocks[j].end })

	for changed := true; changed; {
		changed = false
		for _, b := range blocks {
			for _, l := range loops {
				// Ends inside a loop it did not start in: the branch
				// would enter the loop from outside.
				if b.start < l.start && b.end > l.start && b.end < l.end {
					return nil, &Error{Func: fnName, Msg: fmt.Sprintf("branch into loop body at block %d cannot be structured", b.end)}
				}
				// Starts inside a loop it outlives: widen to contain it.
				if b.start > l.start && b.start < l.end && b.end >= l.end {
					b.start = l.start
					changed = true
				}
			}
			for _, other := range blocks {
				// Two blocks overlapping without nesting: widen the
				// later-ending one.
				if other.end > b.end && other.start > b.start && other.start < b.end {
					other.start = b.start
					changed = true
				}
			}
		}
	}
	return blocks, nil
}

// checkLaminar verifies the final interval set nests properly.
func checkLaminar(fnName string, scopes []*scope) error {
	for i, a := range scopes {
		for _, b := range scopes[i+1:] {
			if a.start < b.start && b.start < a.end && b.end > a.end {
				return &Error{Func: fnName, Msg: "control flow cannot be structured"}
			}
			if b.start < a.start && a.start < b.end && a.end > b.end {
				return &Error{Func: fnName, Msg: "control flow cannot be structured"}
			}
		}
	}
	return nil
}

// opensAt returns the scopes opening at a boundary, outermost first: wider
// scopes open before the ones they contain; at equal spans blocks open
// before loops so a loop header inside a block exits correctly.
func (p *scopePlan) opensAt(boundary int) []*scope {
	var opens []*scope
	for _, s := range p.scopes {
		if s.start == boundary {
			opens = append(opens, s)
		}
	}
	sort.Slice(opens, func(i, j int) bool {
		if opens[i].end != opens[j].end {
			return opens[i].end > opens[j].end
		}
		return opens[i].kind == scopeBlock && opens[j].kind == scopeLoop
	})
	return opens
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
