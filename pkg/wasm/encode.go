// Binary encoding per the WebAssembly binary format: magic and version,
// then type, import, function, memory, export and code sections with
// LEB128-encoded sizes. Every defined function is exported under its own
// name and the linear memory as "memory", so the module loads standalone.
package wasm

var (
	magic   = []byte{0x00, 0x61, 0x73, 0x6D}
	version = []byte{0x01, 0x00, 0x00, 0x00}
)

// Section ids.
const (
	secType     = 0x01
	secImport   = 0x02
	secFunction = 0x03
	secMemory   = 0x05
	secExport   = 0x07
	secCode     = 0x0A
)

// Export kinds.
const (
	exportFunc   = 0x00
	exportMemory = 0x02
)

// Encode produces the complete binary module.
func Encode(m *Module) []byte {
	e := &encoder{mod: m}
	return e.encode()
}

type encoder struct {
	mod *Module

	types     [][2][]ValType
	typeCache map[string]int
}

func (e *encoder) encode() []byte {
	e.typeCache = make(map[string]int)

	// All functions in this dialect share the niladic i32 signature, but
	// the type section is still deduplicated generically.
	importTypes := make([]int, len(e.mod.Imports))
	for i := range e.mod.Imports {
		importTypes[i] = e.typeIndex(nil, []ValType{I32})
	}
	funcTypes := make([]int, len(e.mod.Funcs))
	for i, fn := range e.mod.Funcs {
		funcTypes[i] = e.typeIndex(fn.Params, []ValType{fn.Result})
	}

	var out []byte
	out = append(out, magic...)
	out = append(out, version...)
	out = append(out, e.typeSection()...)
	if len(e.mod.Imports) > 0 {
		out = append(out, e.importSection(importTypes)...)
	}
	out = append(out, e.functionSection(funcTypes)...)
	out = append(out, e.memorySection()...)
	out = append(out, e.exportSection()...)
	out = append(out, e.codeSection()...)
	return out
}

func (e *encoder) typeIndex(params, results []ValType) int {
	key := sigKey(params, results)
	if idx, ok := e.typeCache[key]; ok {
		return idx
	}
	idx := len(e.types)
	e.types = append(e.types, [2][]ValType{params, results})
	e.typeCache[key] = idx
	return idx
}

func sigKey(params, results []ValType) string {
	key := make([]byte, 0, len(params)+len(results)+1)
	for _, t := range params {
		key = append(key, byte(t))
	}
	key = append(key, '|')
	for _, t := range results {
		key = append(key, byte(t))
	}
	return string(key)
}

func section(id byte, contents []byte) []byte {
	out := []byte{id}
	out = append(out, uleb128(uint64(len(contents)))...)
	return append(out, contents...)
}

func (e *encoder) typeSection() []byte {
	var c []byte
	c = append(c, uleb128(uint64(len(e.types)))...)
	for _, sig := range e.types {
		c = append(c, 0x60)
		c = append(c, uleb128(uint64(len(sig[0])))...)
		for _, t := range sig[0] {
			c = append(c, byte(t))
		}
		c = append(c, uleb128(uint64(len(sig[1])))...)
		for _, t := range sig[1] {
			c = append(c, byte(t))
		}
	}
	return section(secType, c)
}

func (e *encoder) importSection(importTypes []int) []byte {
	var c []byte
	c = append(c, uleb128(uint64(len(e.mod.Imports)))...)
	for i, imp := range e.mod.Imports {
		c = append(c, name(imp.Module)...)
		c = append(c, name(imp.Name)...)
		c = append(c, exportFunc)
		c = append(c, uleb128(uint64(importTypes[i]))...)
	}
	return section(secImport, c)
}

func (e *encoder) functionSection(funcTypes []int) []byte {
	var c []byte
	c = append(c, uleb128(uint64(len(funcTypes)))...)
	for _, tidx := range funcTypes {
		c = append(c, uleb128(uint64(tidx))...)
	}
	return section(secFunction, c)
}

func (e *encoder) memorySection() []byte {
	var c []byte
	c = append(c, uleb128(1)...)
	if e.mod.MemoryMaxPages > 0 {
		c = append(c, 0x01)
		c = append(c, uleb128(uint64(e.mod.MemoryPages))...)
		c = append(c, uleb128(uint64(e.mod.MemoryMaxPages))...)
	} else {
		c = append(c, 0x00)
		c = append(c, uleb128(uint64(e.mod.MemoryPages))...)
	}
	return section(secMemory, c)
}

func (e *encoder) exportSection() []byte {
	var c []byte
	c = append(c, uleb128(uint64(len(e.mod.Funcs)+1))...)
	for i, fn := range e.mod.Funcs {
		c = append(c, name(fn.Name)...)
		c = append(c, exportFunc)
		c = append(c, uleb128(uint64(len(e.mod.Imports)+i))...)
	}
	c = append(c, name("memory")...)
	c = append(c, exportMemory)
	c = append(c, uleb128(0)...)
	return section(secExport, c)
}

func (e *encoder) codeSection() []byte {
	var c []byte
	c = append(c, uleb128(uint64(len(e.mod.Funcs)))...)
	for _, fn := range e.mod.Funcs {
		body := encodeBody(&fn)
		c = append(c, uleb128(uint64(len(body)))...)
		c = append(c, body...)
	}
	return section(secCode, c)
}

func encodeBody(fn *Func) []byte {
	var b []byte
	b = append(b, encodeLocals(fn.Locals)...)
	for _, inst := range fn.Body {
		b = append(b, encodeInstruction(inst)...)
	}
	return append(b, byte(OpEnd))
}

// encodeLocals groups consecutive locals of the same type, per the binary
// format's run-length local declarations.
func encodeLocals(locals []ValType) []byte {
	type group struct {
		count int
		typ   ValType
	}
	var groups []group
	for _, t := range locals {
		if n := len(groups); n > 0 && groups[n-1].typ == t {
			groups[n-1].count++
			continue
		}
		groups = append(groups, group{count: 1, typ: t})
	}

	b := uleb128(uint64(len(groups)))
	for _, g := range groups {
		b = append(b, uleb128(uint64(g.count))...)
		b = append(b, byte(g.typ))
	}
	return b
}

func encodeInstruction(inst Instruction) []byte {
	b := []byte{byte(inst.Op)}
	switch inst.Op {
	case OpBlock, OpLoop:
		b = append(b, 0x40) // empty block type
	case OpI32Const:
		b = append(b, sleb128(operand(inst, 0))...)
	case OpLocalGet, OpLocalSet, OpLocalTee, OpBr, OpBrIf, OpCall:
		b = append(b, uleb128(uint64(operand(inst, 0)))...)
	case OpI32Load, OpI32Store:
		b = append(b, uleb128(2)...) // alignment (2^2 = 4 bytes)
		b = append(b, uleb128(0)...) // offset
	}
	return b
}

func operand(inst Instruction, i int) int64 {
	if i < len(inst.Operands) {
		return inst.Operands[i]
	}
	return 0
}

func name(s string) []byte {
	b := uleb128(uint64(len(s)))
	return append(b, s...)
}

func uleb128(v uint64) []byte {
	var b []byte
	for {
		c := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

func sleb128(v int64) []byte {
	var b []byte
	for {
		c := byte(v & 0x7F)
		v >>= 7
		signBit := c&0x40 != 0
		if (v == 0 && !signBit) || (v == -1 && signBit) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}
