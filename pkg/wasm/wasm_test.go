package wasm

import (
	"bytes"
	"reflect"
	"testing"
)

func demoModule() *Module {
	m := NewModule()
	m.Imports = append(m.Imports, Import{Module: "env", Name: "external"})
	m.Funcs = append(m.Funcs, Func{
		Name:   "main",
		Result: I32,
		Locals: []ValType{I32},
		Body: []Instruction{
			Ins(OpI32Const, 30),
			Ins(OpLocalSet, 0),
			Ins(OpLocalGet, 0),
			Ins(OpReturn),
		},
	})
	return m
}

func TestText(t *testing.T) {
	got := Text(demoModule())
	want := `(module
  (memory 1)
  (import "env" "external" (func $external (result i32)))
  (func $main (result i32) (local $0 i32)
    i32.const 30
    local.set 0
    local.get 0
    return
  )
)
`
	if got != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, got)
	}
}

func TestTextIndentsStructuredBody(t *testing.T) {
	m := NewModule()
	m.Funcs = append(m.Funcs, Func{
		Name:   "f",
		Result: I32,
		Body: []Instruction{
			Ins(OpBlock),
			Ins(OpLoop),
			Ins(OpBr, 0),
			Ins(OpEnd),
			Ins(OpEnd),
			Ins(OpI32Const, 0),
			Ins(OpReturn),
		},
	})
	got := Text(m)
	want := `(module
  (memory 1)
  (func $f (result i32)
    block
      loop
        br 0
      end
    end
    i32.const 0
    return
  )
)
`
	if got != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, got)
	}
}

func TestParseTextRoundTrip(t *testing.T) {
	m := demoModule()
	parsed, err := ParseText(Text(m))
	if err != nil {
		t.Fatalf("ParseText failed: %v", err)
	}
	if parsed.MemoryPages != m.MemoryPages {
		t.Errorf("expected %d memory pages, got %d", m.MemoryPages, parsed.MemoryPages)
	}
	if !reflect.DeepEqual(parsed.Imports, m.Imports) {
		t.Errorf("expected imports %v, got %v", m.Imports, parsed.Imports)
	}
	if !reflect.DeepEqual(parsed.Funcs, m.Funcs) {
		t.Errorf("expected funcs %+v, got %+v", m.Funcs, parsed.Funcs)
	}
}

func TestParseTextRejectsGarbage(t *testing.T) {
	for _, input := range []string{
		"",
		"(module",
		"(module))",
		"(func $f)",
		"(module (func))",
		"(module (func $f bogus_op))",
	} {
		if _, err := ParseText(input); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}
}

func TestEncodeHeader(t *testing.T) {
	b := Encode(NewModule())
	wantPrefix := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	if !bytes.HasPrefix(b, wantPrefix) {
		t.Errorf("expected magic and version prefix, got % x", b[:8])
	}
}

func TestEncodeSectionOrder(t *testing.T) {
	b := Encode(demoModule())
	// Skip the 8-byte header, then walk section ids.
	var ids []byte
	i := 8
	for i < len(b) {
		ids = append(ids, b[i])
		size, n := readULEB(b[i+1:])
		i += 1 + n + int(size)
	}
	want := []byte{secType, secImport, secFunction, secMemory, secExport, secCode}
	if !bytes.Equal(ids, want) {
		t.Errorf("expected section ids % x, got % x", want, ids)
	}
}

func TestEncodeOmitsEmptyImportSection(t *testing.T) {
	m := demoModule()
	m.Imports = nil
	b := Encode(m)
	i := 8
	for i < len(b) {
		if b[i] == secImport {
			t.Fatal("import section should be omitted when there are no imports")
		}
		size, n := readULEB(b[i+1:])
		i += 1 + n + int(size)
	}
}

func TestEncodeCodeBody(t *testing.T) {
	b := Encode(demoModule())

	// The body of main: one local group (1 x i32), then the instructions,
	// then the closing end opcode.
	want := []byte{
		0x01, 0x01, 0x7F, // locals: 1 group, 1 i32
		0x41, 30, // i32.const 30
		0x21, 0x00, // local.set 0
		0x20, 0x00, // local.get 0
		0x0F,       // return
		byte(OpEnd),
	}
	if !bytes.Contains(b, want) {
		t.Errorf("encoded module does not contain expected body % x", want)
	}
}

func TestEncodeMemoryOperands(t *testing.T) {
	m := NewModule()
	m.Funcs = append(m.Funcs, Func{
		Name:   "f",
		Result: I32,
		Body: []Instruction{
			Ins(OpI32Const, 100),
			Ins(OpI32Load),
			Ins(OpReturn),
		},
	})
	b := Encode(m)
	// i32.load carries alignment 2 and offset 0.
	want := []byte{0x28, 0x02, 0x00}
	if !bytes.Contains(b, want) {
		t.Errorf("expected load with align/offset % x", want)
	}
}

func TestULEB128(t *testing.T) {
	cases := []struct {
		v    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xE5, 0x8E, 0x26}},
	}
	for _, tc := range cases {
		if got := uleb128(tc.v); !bytes.Equal(got, tc.want) {
			t.Errorf("uleb128(%d): expected % x, got % x", tc.v, tc.want, got)
		}
	}
}

func TestSLEB128(t *testing.T) {
	cases := []struct {
		v    int64
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{-1, []byte{0x7F}},
		{63, []byte{0x3F}},
		{64, []byte{0xC0, 0x00}},
		{-64, []byte{0x40}},
		{-65, []byte{0xBF, 0x7F}},
		{-123456, []byte{0xC0, 0xBB, 0x78}},
	}
	for _, tc := range cases {
		if got := sleb128(tc.v); !bytes.Equal(got, tc.want) {
			t.Errorf("sleb128(%d): expected % x, got % x", tc.v, tc.want, got)
		}
	}
}

func TestFuncIndex(t *testing.T) {
	m := demoModule()
	if idx, ok := m.FuncIndex("external"); !ok || idx != 0 {
		t.Errorf("expected external at index 0, got %d %v", idx, ok)
	}
	if idx, ok := m.FuncIndex("main"); !ok || idx != 1 {
		t.Errorf("expected main at index 1, got %d %v", idx, ok)
	}
	if _, ok := m.FuncIndex("absent"); ok {
		t.Error("absent should have no index")
	}
}

func readULEB(b []byte) (uint64, int) {
	var v uint64
	shift := 0
	for i, c := range b {
		v |= uint64(c&0x7F) << shift
		if c&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return v, len(b)
}
