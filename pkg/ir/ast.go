// Package ir defines the structured intermediate representation between
// assembly lifting and WebAssembly generation. Programs are organized into
// functions of basic blocks; data flows through function-scoped virtual
// registers (named storage slots, always 32-bit integers). Every block ends
// in exactly one terminator once lifting completes.
package ir

import "fmt"

// Arg is a closed interface over instruction argument variants.
type Arg interface {
	implArg()
	String() string
}

// Reg names a virtual register: a user register like "%eax", a comparison
// flag like "FLAG_ZF", the stack cursor "STACK_PTR" or a lifter temporary.
type Reg struct {
	Name string
}

func (Reg) implArg() {}

func (r Reg) String() string { return r.Name }

// Const is a 32-bit integer constant argument.
type Const struct {
	Value int32
}

func (Const) implArg() {}

func (c Const) String() string { return fmt.Sprintf("%d", c.Value) }

// BinOp identifies an arithmetic operation. Division is signed; dividing by
// zero traps in the generated module rather than failing at compile time.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDivS
)

func (op BinOp) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDivS:
		return "div_s"
	}
	return "?"
}

// Pred identifies a signed integer comparison predicate.
type Pred int

const (
	PredEq Pred = iota
	PredNe
	PredLtS
	PredGtS
	PredLeS
	PredGeS
)

func (p Pred) String() string {
	switch p {
	case PredEq:
		return "eq"
	case PredNe:
		return "ne"
	case PredLtS:
		return "lt_s"
	case PredGtS:
		return "gt_s"
	case PredLeS:
		return "le_s"
	case PredGeS:
		return "ge_s"
	}
	return "?"
}

// Instr is the closed interface over non-terminator instructions. The code
// generator matches these variants exhaustively.
type Instr interface {
	implInstr()
}

// Move copies a value into a register.
type Move struct {
	Dst Reg
	Src Arg
}

// Bin computes Left op Right into Dst.
type Bin struct {
	Op    BinOp
	Dst   Reg
	Left  Arg
	Right Arg
}

// Cmp computes one comparison predicate into Dst as 0 or 1.
type Cmp struct {
	Pred  Pred
	Dst   Reg
	Left  Arg
	Right Arg
}

// Load reads a 32-bit value from linear memory at Addr into Dst.
type Load struct {
	Dst  Reg
	Addr Arg
}

// Store writes Src to linear memory at Addr.
type Store struct {
	Addr Arg
	Src  Arg
}

// Call invokes Callee and stores its result into Dst. Every call writes its
// result into the accumulator register "%eax".
type Call struct {
	Dst    Reg
	Callee string
}

func (Move) implInstr()  {}
func (Bin) implInstr()   {}
func (Cmp) implInstr()   {}
func (Load) implInstr()  {}
func (Store) implInstr() {}
func (Call) implInstr()  {}

// Terminator is the closed interface over block-ending control transfers.
type Terminator interface {
	implTerminator()
}

// Goto transfers unconditionally to the named block.
type Goto struct {
	Target string
}

// CondBranch reads one flag register and branches to Target when the
// predicate holds, otherwise to Next. WhenZero inverts the test: the branch
// is taken when the flag is zero (used by JNE, which fires on FLAG_ZF = 0).
type CondBranch struct {
	Flag     Reg
	WhenZero bool
	Target   string
	Next     string
}

// Return leaves the function yielding Value.
type Return struct {
	Value Arg
}

func (Goto) implTerminator()       {}
func (CondBranch) implTerminator() {}
func (Return) implTerminator()     {}

// Block is a straight-line instruction sequence ending in one terminator.
type Block struct {
	Label string
	Code  []Instr
	Term  Terminator
}

// Function is a lifted function: blocks in program order, entry first, plus
// the virtual registers referenced by its body in first-use order. Functions
// in this dialect take no declared parameters; arguments travel through
// registers and the simulated stack.
type Function struct {
	Name   string
	Blocks []*Block
	Regs   []string
	// Defined is false for functions only ever named as a call target.
	Defined bool

	regSet   map[string]bool
	blockIdx map[string]*Block
}

// NewFunction creates an empty function.
func NewFunction(name string) *Function {
	return &Function{
		Name:     name,
		regSet:   make(map[string]bool),
		blockIdx: make(map[string]*Block),
	}
}

// AddReg records a register reference, keeping first-use order.
func (f *Function) AddReg(name string) {
	if !f.regSet[name] {
		f.regSet[name] = true
		f.Regs = append(f.Regs, name)
	}
}

// HasReg reports whether the register has been referenced in this function.
func (f *Function) HasReg(name string) bool {
	return f.regSet[name]
}

// AddBlock appends a block and indexes it by label.
func (f *Function) AddBlock(b *Block) {
	f.Blocks = append(f.Blocks, b)
	f.blockIdx[b.Label] = b
}

// Block looks up a block by label.
func (f *Function) Block(label string) (*Block, bool) {
	b, ok := f.blockIdx[label]
	return b, ok
}

// Entry returns the function's entry block, or nil for a declaration.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Module owns the lifted functions, ordered by first mention, with a symbol
// table from name to function.
type Module struct {
	Funcs   []*Function
	Symbols map[string]*Function
}

// NewModule creates an empty module.
func NewModule() *Module {
	return &Module{Symbols: make(map[string]*Function)}
}

// Lookup finds a function by name.
func (m *Module) Lookup(name string) (*Function, bool) {
	f, ok := m.Symbols[name]
	return f, ok
}

// GetOrDeclare returns the named function, declaring it if unseen. A
// declaration becomes a definition when the lifter reaches its label.
func (m *Module) GetOrDeclare(name string) *Function {
	if f, ok := m.Symbols[name]; ok {
		return f
	}
	f := NewFunction(name)
	m.Funcs = append(m.Funcs, f)
	m.Symbols[name] = f
	return f
}
