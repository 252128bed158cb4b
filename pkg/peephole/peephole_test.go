package peephole

import (
	"reflect"
	"testing"

	"github.com/raymyers/asm2wasm/pkg/wasm"
)

func optimizeBody(body []wasm.Instruction) []wasm.Instruction {
	m := wasm.NewModule()
	m.Funcs = append(m.Funcs, wasm.Func{Name: "f", Result: wasm.I32, Body: body})
	return Optimize(m).Funcs[0].Body
}

func TestSetGetBecomesTee(t *testing.T) {
	got := optimizeBody([]wasm.Instruction{
		wasm.Ins(wasm.OpI32Const, 5),
		wasm.Ins(wasm.OpLocalSet, 2),
		wasm.Ins(wasm.OpLocalGet, 2),
		wasm.Ins(wasm.OpReturn),
	})
	want := []wasm.Instruction{
		wasm.Ins(wasm.OpI32Const, 5),
		wasm.Ins(wasm.OpLocalTee, 2),
		wasm.Ins(wasm.OpReturn),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSetGetDifferentLocalsUntouched(t *testing.T) {
	body := []wasm.Instruction{
		wasm.Ins(wasm.OpLocalSet, 1),
		wasm.Ins(wasm.OpLocalGet, 2),
	}
	got := optimizeBody(body)
	if !reflect.DeepEqual(got, body) {
		t.Errorf("expected %v unchanged, got %v", body, got)
	}
}

func TestConstArithFolded(t *testing.T) {
	cases := []struct {
		op   wasm.Opcode
		a, b int64
		want int64
	}{
		{wasm.OpI32Add, 2, 3, 5},
		{wasm.OpI32Sub, 2, 3, -1},
		{wasm.OpI32Mul, 4, 5, 20},
	}
	for _, tc := range cases {
		t.Run(tc.op.String(), func(t *testing.T) {
			got := optimizeBody([]wasm.Instruction{
				wasm.Ins(wasm.OpI32Const, tc.a),
				wasm.Ins(wasm.OpI32Const, tc.b),
				wasm.Ins(tc.op),
			})
			want := []wasm.Instruction{wasm.Ins(wasm.OpI32Const, tc.want)}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("expected %v, got %v", want, got)
			}
		})
	}
}

func TestConstDivNotFolded(t *testing.T) {
	body := []wasm.Instruction{
		wasm.Ins(wasm.OpI32Const, 1),
		wasm.Ins(wasm.OpI32Const, 0),
		wasm.Ins(wasm.OpI32DivS),
	}
	got := optimizeBody(body)
	if !reflect.DeepEqual(got, body) {
		t.Errorf("division must be preserved, got %v", got)
	}
}

func TestFoldWrapsAroundInt32(t *testing.T) {
	got := optimizeBody([]wasm.Instruction{
		wasm.Ins(wasm.OpI32Const, 2147483647),
		wasm.Ins(wasm.OpI32Const, 1),
		wasm.Ins(wasm.OpI32Add),
	})
	want := []wasm.Instruction{wasm.Ins(wasm.OpI32Const, -2147483648)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFoldCascades(t *testing.T) {
	// Folding the first pair exposes a second fold.
	got := optimizeBody([]wasm.Instruction{
		wasm.Ins(wasm.OpI32Const, 1),
		wasm.Ins(wasm.OpI32Const, 2),
		wasm.Ins(wasm.OpI32Add),
		wasm.Ins(wasm.OpI32Const, 3),
		wasm.Ins(wasm.OpI32Add),
	})
	want := []wasm.Instruction{wasm.Ins(wasm.OpI32Const, 6)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFoldThenTee(t *testing.T) {
	got := optimizeBody([]wasm.Instruction{
		wasm.Ins(wasm.OpI32Const, 10),
		wasm.Ins(wasm.OpI32Const, 20),
		wasm.Ins(wasm.OpI32Add),
		wasm.Ins(wasm.OpLocalSet, 0),
		wasm.Ins(wasm.OpLocalGet, 0),
	})
	want := []wasm.Instruction{
		wasm.Ins(wasm.OpI32Const, 30),
		wasm.Ins(wasm.OpLocalTee, 0),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
