// Text (wat) reading, the inverse of the printer for the subset this
// package emits. Used to validate that generated text round-trips back to
// the same function shapes and opcode sequences.
package wasm

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseText parses the s-expression text form produced by the printer.
func ParseText(text string) (*Module, error) {
	node, rest, err := parseNode(tokenize(text))
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("trailing tokens after module form")
	}
	return readModule(node)
}

// node is either an atom or a parenthesized list.
type node struct {
	atom string
	list []node
}

func (n node) isList() bool { return n.atom == "" && n.list != nil }

func tokenize(text string) []string {
	var tokens []string
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == '(' || c == ')':
			tokens = append(tokens, string(c))
			i++
		case c == '"':
			j := i + 1
			for j < len(text) && text[j] != '"' {
				j++
			}
			tokens = append(tokens, text[i:min(j+1, len(text))])
			i = j + 1
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		default:
			j := i
			for j < len(text) && !strings.ContainsRune("() \t\n\r\"", rune(text[j])) {
				j++
			}
			tokens = append(tokens, text[i:j])
			i = j
		}
	}
	return tokens
}

func parseNode(tokens []string) (node, []string, error) {
	if len(tokens) == 0 {
		return node{}, nil, fmt.Errorf("unexpected end of input")
	}
	tok := tokens[0]
	if tok == "(" {
		rest := tokens[1:]
		list := []node{}
		for {
			if len(rest) == 0 {
				return node{}, nil, fmt.Errorf("unclosed parenthesis")
			}
			if rest[0] == ")" {
				return node{list: list}, rest[1:], nil
			}
			child, r, err := parseNode(rest)
			if err != nil {
				return node{}, nil, err
			}
			list = append(list, child)
			rest = r
		}
	}
	if tok == ")" {
		return node{}, nil, fmt.Errorf("unexpected closing parenthesis")
	}
	return node{atom: tok}, tokens[1:], nil
}

func readModule(n node) (*Module, error) {
	if !n.isList() || len(n.list) == 0 || n.list[0].atom != "module" {
		return nil, fmt.Errorf("expected (module ...) form")
	}
	m := &Module{}
	for _, form := range n.list[1:] {
		if !form.isList() || len(form.list) == 0 {
			return nil, fmt.Errorf("unexpected atom in module body")
		}
		switch form.list[0].atom {
		case "memory":
			if err := readMemory(m, form); err != nil {
				return nil, err
			}
		case "import":
			if err := readImport(m, form); err != nil {
				return nil, err
			}
		case "func":
			fn, err := readFunc(form)
			if err != nil {
				return nil, err
			}
			m.Funcs = append(m.Funcs, *fn)
		default:
			return nil, fmt.Errorf("unsupported module form: %s", form.list[0].atom)
		}
	}
	return m, nil
}

func readMemory(m *Module, form node) error {
	if len(form.list) < 2 {
		return fmt.Errorf("memory form requires a page count")
	}
	pages, err := strconv.ParseUint(form.list[1].atom, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid memory pages: %s", form.list[1].atom)
	}
	m.MemoryPages = uint32(pages)
	if len(form.list) > 2 {
		maxPages, err := strconv.ParseUint(form.list[2].atom, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid memory max pages: %s", form.list[2].atom)
		}
		m.MemoryMaxPages = uint32(maxPages)
	}
	return nil
}

func readImport(m *Module, form node) error {
	if len(form.list) < 4 {
		return fmt.Errorf("import form requires module, name and a descriptor")
	}
	m.Imports = append(m.Imports, Import{
		Module: strings.Trim(form.list[1].atom, `"`),
		Name:   strings.Trim(form.list[2].atom, `"`),
	})
	return nil
}

func readFunc(form node) (*Func, error) {
	fn := &Func{Result: I32}
	rest := form.list[1:]

	if len(rest) == 0 || !strings.HasPrefix(rest[0].atom, "$") {
		return nil, fmt.Errorf("func form requires a $name")
	}
	fn.Name = rest[0].atom[1:]
	rest = rest[1:]

	for len(rest) > 0 && rest[0].isList() {
		decl := rest[0].list
		switch decl[0].atom {
		case "param":
			fn.Params = append(fn.Params, valTypeOf(decl[len(decl)-1].atom))
		case "result":
			fn.Result = valTypeOf(decl[len(decl)-1].atom)
		case "local":
			fn.Locals = append(fn.Locals, valTypeOf(decl[len(decl)-1].atom))
		default:
			return nil, fmt.Errorf("unsupported func form: %s", decl[0].atom)
		}
		rest = rest[1:]
	}

	for len(rest) > 0 {
		op, ok := OpcodeByName(rest[0].atom)
		if !ok {
			return nil, fmt.Errorf("unknown opcode: %s", rest[0].atom)
		}
		inst := Instruction{Op: op}
		rest = rest[1:]
		for len(rest) > 0 && !rest[0].isList() {
			v, err := strconv.ParseInt(rest[0].atom, 10, 64)
			if err != nil {
				break
			}
			inst.Operands = append(inst.Operands, v)
			rest = rest[1:]
		}
		fn.Body = append(fn.Body, inst)
	}
	return fn, nil
}

func valTypeOf(s string) ValType {
	switch s {
	case "i64":
		return I64
	case "f32":
		return F32
	case "f64":
		return F64
	}
	return I32
}
