package prismtest

import "github.com/wippyai/rb2js/internal/binary"

const (
	i32 = 0x7F
	i64 = 0x7E

	kindFunc   = 0x00
	kindMemory = 0x02

	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11

	opUnreachable = 0x00
	opCall        = 0x10
	opDrop        = 0x1A
	opLocalGet    = 0x20
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opI32Load     = 0x28
	opI32Store    = 0x36
	opI32Const    = 0x41
	opI32Add      = 0x6A
	opI32And      = 0x71
	opEnd         = 0x0B
)

type funcType struct {
	params, results []byte
}

type importFunc struct {
	module, name string
	typ          uint32
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type segment struct {
	init []byte
	addr uint32
}

// module is a minimal core module: functions, one memory, i32 globals,
// exports and active data segments.
type module struct {
	types    []funcType
	imports  []importFunc
	funcs    []uint32
	bodies   [][]byte
	globals  []uint32
	exports  []export
	segments []segment
	pages    uint32
}

func (m *module) typ(params, results []byte) uint32 {
	m.types = append(m.types, funcType{params: params, results: results})
	return uint32(len(m.types) - 1)
}

// importFunc must be called before fn; imports precede definitions in the
// function index space.
func (m *module) importFunc(mod, name string, typ uint32) uint32 {
	m.imports = append(m.imports, importFunc{module: mod, name: name, typ: typ})
	return uint32(len(m.imports) - 1)
}

func (m *module) fn(typ uint32, body *assembler) uint32 {
	m.funcs = append(m.funcs, typ)
	m.bodies = append(m.bodies, body.buf.Bytes())
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// global adds a mutable i32 global.
func (m *module) global(init uint32) uint32 {
	m.globals = append(m.globals, init)
	return uint32(len(m.globals) - 1)
}

func (m *module) export(name string, kind byte, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: kind, idx: idx})
}

func (m *module) data(addr uint32, init []byte) {
	m.segments = append(m.segments, segment{addr: addr, init: init})
}

func (m *module) encode() []byte {
	w := binary.NewWriter()
	w.WriteBytes([]byte{0x00, 'a', 's', 'm'})
	w.WriteU32LE(1)

	sec := binary.NewWriter()
	sec.WriteU32(uint32(len(m.types)))
	for _, t := range m.types {
		sec.Byte(0x60)
		sec.WriteU32(uint32(len(t.params)))
		sec.WriteBytes(t.params)
		sec.WriteU32(uint32(len(t.results)))
		sec.WriteBytes(t.results)
	}
	writeSection(w, sectionType, sec)

	if len(m.imports) > 0 {
		sec = binary.NewWriter()
		sec.WriteU32(uint32(len(m.imports)))
		for _, imp := range m.imports {
			sec.WriteName(imp.module)
			sec.WriteName(imp.name)
			sec.Byte(kindFunc)
			sec.WriteU32(imp.typ)
		}
		writeSection(w, sectionImport, sec)
	}

	sec = binary.NewWriter()
	sec.WriteU32(uint32(len(m.funcs)))
	for _, t := range m.funcs {
		sec.WriteU32(t)
	}
	writeSection(w, sectionFunction, sec)

	sec = binary.NewWriter()
	sec.WriteU32(1)
	sec.Byte(0x00) // min only
	sec.WriteU32(m.pages)
	writeSection(w, sectionMemory, sec)

	if len(m.globals) > 0 {
		sec = binary.NewWriter()
		sec.WriteU32(uint32(len(m.globals)))
		for _, g := range m.globals {
			sec.Byte(i32)
			sec.Byte(0x01) // mutable
			sec.Byte(opI32Const)
			sec.WriteS64(int64(int32(g)))
			sec.Byte(opEnd)
		}
		writeSection(w, sectionGlobal, sec)
	}

	sec = binary.NewWriter()
	sec.WriteU32(uint32(len(m.exports)))
	for _, e := range m.exports {
		sec.WriteName(e.name)
		sec.Byte(e.kind)
		sec.WriteU32(e.idx)
	}
	writeSection(w, sectionExport, sec)

	sec = binary.NewWriter()
	sec.WriteU32(uint32(len(m.bodies)))
	for _, b := range m.bodies {
		body := binary.NewWriter()
		body.WriteU32(0) // no locals
		body.WriteBytes(b)
		sec.WriteU32(uint32(body.Len()))
		sec.WriteBytes(body.Bytes())
	}
	writeSection(w, sectionCode, sec)

	if len(m.segments) > 0 {
		sec = binary.NewWriter()
		sec.WriteU32(uint32(len(m.segments)))
		for _, d := range m.segments {
			sec.WriteU32(0) // active, memory 0
			sec.Byte(opI32Const)
			sec.WriteS64(int64(int32(d.addr)))
			sec.Byte(opEnd)
			sec.WriteU32(uint32(len(d.init)))
			sec.WriteBytes(d.init)
		}
		writeSection(w, sectionData, sec)
	}
	return w.Bytes()
}

func writeSection(w *binary.Writer, id byte, sec *binary.Writer) {
	w.Byte(id)
	w.WriteU32(uint32(sec.Len()))
	w.WriteBytes(sec.Bytes())
}

// assembler emits a function body.
type assembler struct {
	buf *binary.Writer
}

func code() *assembler { return &assembler{buf: binary.NewWriter()} }

func (a *assembler) op(b byte) *assembler {
	a.buf.Byte(b)
	return a
}

func (a *assembler) i32Const(v int32) *assembler {
	a.buf.Byte(opI32Const)
	a.buf.WriteS64(int64(v))
	return a
}

func (a *assembler) localGet(idx uint32) *assembler {
	a.buf.Byte(opLocalGet)
	a.buf.WriteU32(idx)
	return a
}

func (a *assembler) globalGet(idx uint32) *assembler {
	a.buf.Byte(opGlobalGet)
	a.buf.WriteU32(idx)
	return a
}

func (a *assembler) globalSet(idx uint32) *assembler {
	a.buf.Byte(opGlobalSet)
	a.buf.WriteU32(idx)
	return a
}

func (a *assembler) call(idx uint32) *assembler {
	a.buf.Byte(opCall)
	a.buf.WriteU32(idx)
	return a
}

// load and store are i32 accesses with 4-byte alignment at a static offset.
func (a *assembler) load(offset uint32) *assembler {
	a.buf.Byte(opI32Load)
	a.buf.WriteU32(2)
	a.buf.WriteU32(offset)
	return a
}

func (a *assembler) store(offset uint32) *assembler {
	a.buf.Byte(opI32Store)
	a.buf.WriteU32(2)
	a.buf.WriteU32(offset)
	return a
}

func (a *assembler) end() *assembler {
	return a.op(opEnd)
}
