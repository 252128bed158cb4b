// Package parser turns assembly source text into an asm.Program.
// Input is line oriented: one instruction or label per line, '#' starts a
// comment, mnemonics are case-insensitive, operands are comma or space
// separated. Operand shapes are classified but not validated here; malformed
// address expressions and immediates are detected by the lifter.
package parser

import (
	"fmt"
	"os"
	"strings"

	"github.com/raymyers/asm2wasm/pkg/asm"
)

// Error is a parse failure with its 1-based source line.
type Error struct {
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// ParseFile reads and parses an assembly source file.
func ParseFile(path string) (*asm.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

// Parse parses assembly source held in memory.
func Parse(source string) (*asm.Program, error) {
	prog := asm.NewProgram()
	for i, line := range strings.Split(source, "\n") {
		if err := parseLine(prog, line, i+1); err != nil {
			return nil, err
		}
	}
	return prog, nil
}

func parseLine(prog *asm.Program, line string, lineNo int) error {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		line = line[:idx]
	}
	// Commas separate operands just like spaces do; "mov %eax,10" and
	// "mov %eax, 10" are the same instruction.
	line = strings.ReplaceAll(line, ",", " ")
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return nil
	}

	label := ""
	if name, ok := strings.CutSuffix(tokens[0], ":"); ok {
		label = name
		prog.Labels[label] = len(prog.Instructions)
		tokens = tokens[1:]
		if len(tokens) == 0 {
			prog.Instructions = append(prog.Instructions, asm.Instruction{
				Type:  asm.Label,
				Label: label,
			})
			return nil
		}
	}

	typ := asm.TypeOf(tokens[0])
	if typ == asm.Unknown {
		return &Error{Line: lineNo, Msg: fmt.Sprintf("unknown instruction: %s", tokens[0])}
	}

	inst := asm.Instruction{Type: typ, Label: label}
	for _, tok := range tokens[1:] {
		inst.Operands = append(inst.Operands, parseOperand(tok))
	}
	prog.Instructions = append(prog.Instructions, inst)
	return nil
}

// parseOperand classifies one operand token. Priority: register, memory,
// immediate, then symbolic label.
func parseOperand(token string) asm.Operand {
	if len(token) >= 2 && token[0] == '%' {
		return asm.Operand{Kind: asm.OpRegister, Value: token}
	}
	if len(token) >= 3 && token[0] == '(' && token[len(token)-1] == ')' {
		return asm.Operand{Kind: asm.OpMemory, Value: token}
	}
	if isIntegerText(token) {
		return asm.Operand{Kind: asm.OpImmediate, Value: token}
	}
	return asm.Operand{Kind: asm.OpLabel, Value: token}
}

// isIntegerText reports whether every character is a digit or a sign. This
// deliberately accepts shapes like "1+2" that fail integer decoding later;
// the lifter owns that diagnosis.
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
