// Package asm defines the assembly instruction stream produced by the parser.
// The dialect is a small x86-like subset: AT&T-style register names (%eax),
// parenthesized memory operands, decimal immediates and symbolic labels.
package asm

import "strings"

// Type identifies an instruction mnemonic. The set is closed; anything the
// parser does not recognize is Unknown and rejected with a line number.
type Type int

const (
	Add Type = iota
	Sub
	Mul
	Div
	Mov
	Cmp
	Jmp
	Je
	Jne
	Jl
	Jg
	Jle
	Jge
	Call
	Ret
	Push
	Pop
	// Label marks a line that held only a label, keeping the slot so the
	// label map can point at it.
	Label
	Unknown
)

var typeNames = map[Type]string{
	Add:     "add",
	Sub:     "sub",
	Mul:     "mul",
	Div:     "div",
	Mov:     "mov",
	Cmp:     "cmp",
	Jmp:     "jmp",
	Je:      "je",
	Jne:     "jne",
	Jl:      "jl",
	Jg:      "jg",
	Jle:     "jle",
	Jge:     "jge",
	Call:    "call",
	Ret:     "ret",
	Push:    "push",
	Pop:     "pop",
	Label:   "label",
	Unknown: "unknown",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unknown"
}

// TypeOf maps a mnemonic to its instruction type, case-insensitively.
// JZ and JNZ are aliases of JE and JNE; the distinction is not kept.
func TypeOf(mnemonic string) Type {
	switch strings.ToUpper(mnemonic) {
	case "ADD":
		return Add
	case "SUB":
		return Sub
	case "MUL":
		return Mul
	case "DIV":
		return Div
	case "MOV":
		return Mov
	case "CMP":
		return Cmp
	case "JMP":
		return Jmp
	case "JE", "JZ":
		return Je
	case "JNE", "JNZ":
		return Jne
	case "JL":
		return Jl
	case "JG":
		return Jg
	case "JLE":
		return Jle
	case "JGE":
		return Jge
	case "CALL":
		return Call
	case "RET":
		return Ret
	case "PUSH":
		return Push
	case "POP":
		return Pop
	}
	return Unknown
}

// IsCondJump returns true for the conditional jump mnemonics (not Jmp).
func (t Type) IsCondJump() bool {
	switch t {
	case Je, Jne, Jl, Jg, Jle, Jge:
		return true
	}
	return false
}

// OperandKind classifies a parsed operand.
type OperandKind int

const (
	// OpRegister is a %-prefixed register name, stored with the prefix.
	OpRegister OperandKind = iota
	// OpImmediate is a decimal integer literal, stored as text and decoded
	// by the lifter.
	OpImmediate
	// OpMemory is a parenthesized address expression, stored verbatim
	// including the parentheses and decoded by the lifter.
	OpMemory
	// OpLabel is a symbolic operand: a jump or call target.
	OpLabel
)

func (k OperandKind) String() string {
	switch k {
	case OpRegister:
		return "reg"
	case OpImmediate:
		return "imm"
	case OpMemory:
		return "mem"
	case OpLabel:
		return "label"
	}
	return "?"
}

// Operand is one instruction operand. Immutable once parsed.
type Operand struct {
	Kind  OperandKind
	Value string
}

func (o Operand) String() string {
	return o.Value
}

// Instruction is one parsed instruction. Label is set when the source line
// began with a label ("loop: add %eax, 1").
type Instruction struct {
	Type     Type
	Operands []Operand
	Label    string
}

func (i Instruction) String() string {
	var b strings.Builder
	if i.Label != "" {
		b.WriteString(i.Label)
		b.WriteString(":")
		if i.Type == Label {
			return b.String()
		}
		b.WriteString(" ")
	}
	b.WriteString(i.Type.String())
	for n, op := range i.Operands {
		if n == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(op.String())
	}
	return b.String()
}

// Program is the finalized instruction stream plus the label map. Labels map
// to the index of the instruction they mark; a label on its own line maps to
// the index of its Label-typed placeholder.
type Program struct {
	Instructions []Instruction
	Labels       map[string]int
}

// NewProgram creates an empty program ready for incremental appends.
func NewProgram() *Program {
	return &Program{Labels: make(map[string]int)}
}
