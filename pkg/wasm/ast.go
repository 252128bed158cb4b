// Package wasm defines the WebAssembly output module: a stack-machine
// instruction sequence per function plus the text and binary encodings.
// Only the small i32 subset the translator needs is modeled: no memory
// growth, no tables, no multi-value returns.
package wasm

// ValType is a WebAssembly value type, encoded as in the binary format.
type ValType byte

const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
	F32 ValType = 0x7D
	F64 ValType = 0x7C
)

func (t ValType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return "i32"
}

// Opcode is a WebAssembly instruction opcode (its binary encoding byte).
type Opcode byte

const (
	OpBlock  Opcode = 0x02
	OpLoop   Opcode = 0x03
	OpEnd    Opcode = 0x0B
	OpBr     Opcode = 0x0C
	OpBrIf   Opcode = 0x0D
	OpReturn Opcode = 0x0F
	OpCall   Opcode = 0x10

	OpLocalGet Opcode = 0x20
	OpLocalSet Opcode = 0x21
	OpLocalTee Opcode = 0x22

	OpI32Load  Opcode = 0x28
	OpI32Store Opcode = 0x36
	OpI32Const Opcode = 0x41

	OpI32Eqz Opcode = 0x45
	OpI32Eq  Opcode = 0x46
	OpI32Ne  Opcode = 0x47
	OpI32LtS Opcode = 0x48
	OpI32LtU Opcode = 0x49
	OpI32GtS Opcode = 0x4A
	OpI32GtU Opcode = 0x4B
	OpI32LeS Opcode = 0x4C
	OpI32LeU Opcode = 0x4D
	OpI32GeS Opcode = 0x4E
	OpI32GeU Opcode = 0x4F

	OpI32Add  Opcode = 0x6A
	OpI32Sub  Opcode = 0x6B
	OpI32Mul  Opcode = 0x6C
	OpI32DivS Opcode = 0x6D
	OpI32DivU Opcode = 0x6E
)

var opcodeNames = map[Opcode]string{
	OpBlock:    "block",
	OpLoop:     "loop",
	OpEnd:      "end",
	OpBr:       "br",
	OpBrIf:     "br_if",
	OpReturn:   "return",
	OpCall:     "call",
	OpLocalGet: "local.get",
	OpLocalSet: "local.set",
	OpLocalTee: "local.tee",
	OpI32Load:  "i32.load",
	OpI32Store: "i32.store",
	OpI32Const: "i32.const",
	OpI32Eqz:   "i32.eqz",
	OpI32Eq:    "i32.eq",
	OpI32Ne:    "i32.ne",
	OpI32LtS:   "i32.lt_s",
	OpI32LtU:   "i32.lt_u",
	OpI32GtS:   "i32.gt_s",
	OpI32GtU:   "i32.gt_u",
	OpI32LeS:   "i32.le_s",
	OpI32LeU:   "i32.le_u",
	OpI32GeS:   "i32.ge_s",
	OpI32GeU:   "i32.ge_u",
	OpI32Add:   "i32.add",
	OpI32Sub:   "i32.sub",
	OpI32Mul:   "i32.mul",
	OpI32DivS:  "i32.div_s",
	OpI32DivU:  "i32.div_u",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return "unknown"
}

// OpcodeByName is the inverse of Opcode.String, used by the text reader.
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := opcodeNamesInverse[name]
	return op, ok
}

var opcodeNamesInverse = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		m[name] = op
	}
	return m
}()

// Instruction is one stack-machine instruction with its immediate operands
// (a local index, a constant, a branch depth or a function index).
type Instruction struct {
	Op       Opcode
	Operands []int64
}

// Ins builds an instruction.
func Ins(op Opcode, operands ...int64) Instruction {
	return Instruction{Op: op, Operands: operands}
}

// Import is an imported niladic function returning i32, used for call
// targets that are declared but never defined in the source.
type Import struct {
	Module string
	Name   string
}

// Func is one generated function. Locals hold the compiler-assigned slots
// beyond the parameters; slot indices are params first, then locals, dense
// and stable. Body is append-only during generation.
type Func struct {
	Name   string
	Params []ValType
	Locals []ValType
	Result ValType
	Body   []Instruction
}

// Module is the generated output: imports first (their function indices
// precede defined functions, per the WebAssembly index space), then defined
// functions, plus one linear memory sized in 64KiB pages.
type Module struct {
	MemoryPages    uint32
	MemoryMaxPages uint32
	Imports        []Import
	Funcs          []Func
}

// NewModule creates a module with a single memory page.
func NewModule() *Module {
	return &Module{MemoryPages: 1}
}

// FuncIndex returns the call index of a named function or import.
func (m *Module) FuncIndex(name string) (uint32, bool) {
	for i, imp := range m.Imports {
		if imp.Name == name {
			return uint32(i), true
		}
	}
	for i, fn := range m.Funcs {
		if fn.Name == name {
			return uint32(len(m.Imports) + i), true
		}
	}
	return 0, false
}
