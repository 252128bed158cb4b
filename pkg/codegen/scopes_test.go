package codegen

import (
	"fmt"
	"testing"

	"github.com/raymyers/asm2wasm/pkg/ir"
)

// chainFunc builds a function whose blocks are named b0..bN-1 with the given
// terminators.
func chainFunc(terms ...ir.Terminator) *ir.Function {
	fn := ir.NewFunction("f")
	fn.Defined = true
	for i, term := range terms {
		fn.AddBlock(&ir.Block{Label: blockName(i), Term: term})
	}
	return fn
}

func blockName(i int) string {
	return fmt.Sprintf("b%d", i)
}

func flag() ir.Reg {
	return ir.Reg{Name: "FLAG_ZF"}
}

func TestPlanScopesStraightLine(t *testing.T) {
	fn := chainFunc(
		ir.Goto{Target: "b1"},
		ir.Return{Value: ir.Const{Value: 0}},
	)
	plan, err := planScopes(fn)
	if err != nil {
		t.Fatalf("planScopes failed: %v", err)
	}
	if len(plan.scopes) != 0 {
		t.Errorf("adjacent control flow needs no constructs, got %d", len(plan.scopes))
	}
}

func TestPlanScopesForwardBlock(t *testing.T) {
	fn := chainFunc(
		ir.CondBranch{Flag: flag(), Target: "b2", Next: "b1"},
		ir.Return{Value: ir.Const{Value: 0}},
		ir.Return{Value: ir.Const{Value: 0}},
	)
	plan, err := planScopes(fn)
	if err != nil {
		t.Fatalf("planScopes failed: %v", err)
	}
	if len(plan.scopes) != 1 {
		t.Fatalf("expected 1 scope, got %d", len(plan.scopes))
	}
	s := plan.scopes[0]
	if s.kind != scopeBlock || s.start != 0 || s.end != 2 {
		t.Errorf("expected block [0,2], got kind=%d [%d,%d]", s.kind, s.start, s.end)
	}
}

func TestPlanScopesBackwardLoop(t *testing.T) {
	fn := chainFunc(
		ir.Goto{Target: "b1"},
		ir.CondBranch{Flag: flag(), Target: "b1", Next: "b2"},
		ir.Return{Value: ir.Const{Value: 0}},
	)
	plan, err := planScopes(fn)
	if err != nil {
		t.Fatalf("planScopes failed: %v", err)
	}
	if len(plan.scopes) != 1 {
		t.Fatalf("expected 1 scope, got %d", len(plan.scopes))
	}
	s := plan.scopes[0]
	if s.kind != scopeLoop || s.start != 1 || s.end != 2 {
		t.Errorf("expected loop [1,2], got kind=%d [%d,%d]", s.kind, s.start, s.end)
	}
}

func TestPlanScopesOverlappingLoopsMerge(t *testing.T) {
	fn := chainFunc(
		ir.Goto{Target: "b1"},
		ir.Goto{Target: "b2"},
		ir.CondBranch{Flag: flag(), Target: "b0", Next: "b3"},
		ir.Goto{Target: "b4"},
		ir.CondBranch{Flag: flag(), Target: "b1", Next: "b5"},
		ir.Return{Value: ir.Const{Value: 0}},
	)
	plan, err := planScopes(fn)
	if err != nil {
		t.Fatalf("planScopes failed: %v", err)
	}
	if len(plan.scopes) != 2 {
		t.Fatalf("expected 2 loops, got %d scopes", len(plan.scopes))
	}
	// The outer loop is stretched over the inner one so the two nest.
	outer, inner := plan.scopes[0], plan.scopes[1]
	if outer.start != 0 || outer.end != 5 {
		t.Errorf("expected outer loop [0,5], got [%d,%d]", outer.start, outer.end)
	}
	if inner.start != 1 || inner.end != 5 {
		t.Errorf("expected inner loop [1,5], got [%d,%d]", inner.start, inner.end)
	}
}

func TestPlanScopesBlockWidenedAroundLoop(t *testing.T) {
	fn := chainFunc(
		ir.Goto{Target: "b1"},
		ir.CondBranch{Flag: flag(), Target: "b4", Next: "b2"},
		ir.CondBranch{Flag: flag(), Target: "b0", Next: "b3"},
		ir.Goto{Target: "b4"},
		ir.Return{Value: ir.Const{Value: 0}},
	)
	plan, err := planScopes(fn)
	if err != nil {
		t.Fatalf("planScopes failed: %v", err)
	}

	var block, loop *scope
	for _, s := range plan.scopes {
		switch s.kind {
		case scopeBlock:
			block = s
		case scopeLoop:
			loop = s
		}
	}
	if loop == nil || loop.start != 0 || loop.end != 3 {
		t.Fatalf("expected loop [0,3], got %+v", loop)
	}
	// The forward branch starts inside the loop but lands beyond it, so its
	// block is widened to contain the whole loop.
	if block == nil || block.start != 0 || block.end != 4 {
		t.Fatalf("expected block [0,4], got %+v", block)
	}

	opens := plan.opensAt(0)
	if len(opens) != 2 || opens[0] != block || opens[1] != loop {
		t.Error("the wider block must open before the loop it contains")
	}
}

func TestPlanScopesBranchIntoLoopRejected(t *testing.T) {
	fn := chainFunc(
		ir.Goto{Target: "b2"},
		ir.Goto{Target: "b2"},
		ir.Goto{Target: "b3"},
		ir.CondBranch{Flag: flag(), Target: "b1", Next: "b4"},
		ir.Return{Value: ir.Const{Value: 0}},
	)
	if _, err := planScopes(fn); err == nil {
		t.Fatal("expected structuring failure for a branch into a loop body")
	}
}
