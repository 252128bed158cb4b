package parser

import (
	"errors"
	"os"
	"testing"

	"github.com/raymyers/asm2wasm/pkg/asm"
	"gopkg.in/yaml.v3"
)

// TestSpec represents a test case from parse.yaml
type TestSpec struct {
	Name         string         `yaml:"name"`
	Input        string         `yaml:"input"`
	Instructions []InstrSpec    `yaml:"instructions"`
	Labels       map[string]int `yaml:"labels"`
	Error        string         `yaml:"error"`
}

// InstrSpec represents one expected instruction
type InstrSpec struct {
	Type     string        `yaml:"type"`
	Label    string        `yaml:"label"`
	Operands []OperandSpec `yaml:"operands"`
}

// OperandSpec represents one expected operand
type OperandSpec struct {
	Kind  string `yaml:"kind"`
	Value string `yaml:"value"`
}

// TestFile represents the parse.yaml file structure
type TestFile struct {
	Tests []TestSpec `yaml:"tests"`
}

func TestParseYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/parse.yaml")
	if err != nil {
		t.Fatalf("failed to read parse.yaml: %v", err)
	}

	var testFile TestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse parse.yaml: %v", err)
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			prog, err := Parse(tc.Input)

			if tc.Error != "" {
				if err == nil {
					t.Fatalf("expected error %q, got none", tc.Error)
				}
				var parseErr *Error
				if !errors.As(err, &parseErr) {
					t.Fatalf("expected *parser.Error, got %T", err)
				}
				if err.Error() != tc.Error {
					t.Errorf("error: expected %q, got %q", tc.Error, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}

			verifyProgram(t, prog, tc)
		})
	}
}

func verifyProgram(t *testing.T, prog *asm.Program, tc TestSpec) {
	t.Helper()

	if len(prog.Instructions) != len(tc.Instructions) {
		t.Fatalf("expected %d instructions, got %d", len(tc.Instructions), len(prog.Instructions))
	}
	for i, want := range tc.Instructions {
		got := prog.Instructions[i]
		if got.Type.String() != want.Type {
			t.Errorf("instruction %d: expected type %s, got %s", i, want.Type, got.Type)
		}
		if got.Label != want.Label {
			t.Errorf("instruction %d: expected label %q, got %q", i, want.Label, got.Label)
		}
		if len(got.Operands) != len(want.Operands) {
			t.Fatalf("instruction %d: expected %d operands, got %d", i, len(want.Operands), len(got.Operands))
		}
		for j, wantOp := range want.Operands {
			gotOp := got.Operands[j]
			if gotOp.Kind.String() != wantOp.Kind {
				t.Errorf("instruction %d operand %d: expected kind %s, got %s", i, j, wantOp.Kind, gotOp.Kind)
			}
			if gotOp.Value != wantOp.Value {
				t.Errorf("instruction %d operand %d: expected value %q, got %q", i, j, wantOp.Value, gotOp.Value)
			}
		}
	}

	for label, idx := range tc.Labels {
		got, ok := prog.Labels[label]
		if !ok {
			t.Errorf("expected label %q in label map", label)
			continue
		}
		if got != idx {
			t.Errorf("label %q: expected index %d, got %d", label, idx, got)
		}
	}
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile("does-not-exist.s")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var pathErr *os.PathError
	if !errors.As(err, &pathErr) {
		t.Errorf("expected *os.PathError, got %T", err)
	}
}

func TestParseCommaSeparators(t *testing.T) {
	for _, input := range []string{
		"add %eax, %ebx",
		"add %eax,%ebx",
		"add %eax %ebx",
		"add %eax, %ebx,",
	} {
		prog, err := Parse(input)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", input, err)
		}
		ops := prog.Instructions[0].Operands
		if len(ops) != 2 {
			t.Fatalf("Parse(%q): expected 2 operands, got %d", input, len(ops))
		}
		if ops[0].Value != "%eax" || ops[1].Value != "%ebx" {
			t.Errorf("Parse(%q): got operands %v", input, ops)
		}
	}
}

func TestParseLabelIndexSkipsBlankLines(t *testing.T) {
	prog, err := Parse("mov %eax, 1\n\n# comment\nend:\nret")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := prog.Labels["end"]; got != 1 {
		t.Errorf("expected label end at index 1, got %d", got)
	}
	if prog.Instructions[1].Type != asm.Label {
		t.Errorf("expected Label placeholder at index 1, got %s", prog.Instructions[1].Type)
	}
}
