// Package prismtest builds small WebAssembly modules that stand in for the
// parsing module in tests. A module exports memory, a bump malloc, a no-op
// free, _initialize and pm_serialize_parse. The parse export fills the
// buffer descriptor with a fixed serialized tree from a data segment, or
// echoes the source back, and can write to stdio or exit through WASI.
package prismtest

import (
	"github.com/wippyai/rb2js/internal/binary"
	"github.com/wippyai/rb2js/prismfmt"
)

// Options selects what the generated module does.
type Options struct {
	// Exit, when non-nil, makes the parse export call proc_exit with this
	// code after filling the descriptor.
	Exit *uint32
	// MissingImport adds an import the host does not provide, as "ns#name".
	MissingImport string
	Stdout        string
	Stderr        string
	// AST is the serialized tree the parse export reports.
	AST []byte
	// Pages is the initial memory size; 0 means 2 pages.
	Pages uint32
	// Echo reports the source bytes instead of AST.
	Echo bool
	// NoAllocator omits the malloc and free exports.
	NoAllocator bool
	// BufferAPI adds the pm_buffer_* exports.
	BufferAPI bool
	// Trap makes the parse export execute unreachable.
	Trap bool
	// Forward imports each named WASI function and exports a "call_<name>"
	// function passing its arguments through, so a test can invoke the host
	// function with this module as the caller.
	Forward []string
}

// Exit returns a pointer to code for Options.Exit.
func Exit(code uint32) *uint32 { return &code }

// Fixed layout of the module's data.
const (
	iovAddr      = 16
	nwrittenAddr = 40
	textAddr     = 64
	pageSize     = 65536
	minHeapBase  = 4096
)

// ParserModule returns a module whose parse export reports doc.
func ParserModule(doc *prismfmt.Document, opts Options) ([]byte, error) {
	data, err := prismfmt.Encode(doc)
	if err != nil {
		return nil, err
	}
	opts.AST = data
	return Module(opts), nil
}

// Module builds the module described by opts.
func Module(opts Options) []byte {
	m := &module{}

	tI32I32 := m.typ([]byte{i32}, []byte{i32})
	tI32 := m.typ([]byte{i32}, nil)
	tFdWrite := m.typ([]byte{i32, i32, i32, i32}, []byte{i32})
	tParse := m.typ([]byte{i32, i32, i32, i32}, nil)
	tVoid := m.typ(nil, nil)
	tRetI32 := m.typ(nil, []byte{i32})

	fdWrite := m.importFunc("wasi_snapshot_preview1", "fd_write", tFdWrite)
	procExit := m.importFunc("wasi_snapshot_preview1", "proc_exit", tI32)
	if opts.MissingImport != "" {
		ns, name := splitImport(opts.MissingImport)
		m.importFunc(ns, name, tVoid)
	}
	forwarded := make([]uint32, len(opts.Forward))
	forwardTypes := make([]uint32, len(opts.Forward))
	for i, name := range opts.Forward {
		params, ok := wasiParams[name]
		if !ok {
			panic("prismtest: no signature for " + name)
		}
		forwardTypes[i] = m.typ(params, []byte{i32})
		forwarded[i] = m.importFunc("wasi_snapshot_preview1", name, forwardTypes[i])
	}

	// Data layout: iovecs, nwritten, stdio text, then the serialized tree.
	var iovs []iovec
	addr := uint32(textAddr)
	for _, w := range []struct {
		text string
		fd   uint32
	}{{opts.Stdout, 1}, {opts.Stderr, 2}} {
		if w.text == "" {
			continue
		}
		m.data(addr, []byte(w.text))
		iovs = append(iovs, iovec{fd: w.fd, addr: uint32(iovAddr + 8*len(iovs)), ptr: addr, n: uint32(len(w.text))})
		addr += uint32(len(w.text))
	}
	for _, v := range iovs {
		seg := binary.NewWriter()
		seg.WriteU32LE(v.ptr)
		seg.WriteU32LE(v.n)
		m.data(v.addr, seg.Bytes())
	}
	blobAddr := align(addr, 8)
	if len(opts.AST) > 0 {
		m.data(blobAddr, opts.AST)
	}
	heapBase := align(blobAddr+uint32(len(opts.AST)), 16)
	if heapBase < minHeapBase {
		heapBase = minHeapBase
	}

	pages := opts.Pages
	if pages == 0 {
		pages = 2
	}
	if need := (heapBase + pageSize - 1) / pageSize; pages < need {
		pages = need
	}
	m.pages = pages
	heap := m.global(heapBase)

	m.export("memory", kindMemory, 0)

	initFn := m.fn(tVoid, code().i32Const(int32(heapBase)).globalSet(heap).end())
	m.export("_initialize", kindFunc, initFn)

	if !opts.NoAllocator {
		malloc := m.fn(tI32I32, code().
			globalGet(heap).
			globalGet(heap).
			localGet(0).i32Const(7).op(opI32Add).i32Const(-8).op(opI32And).
			op(opI32Add).
			globalSet(heap).
			end())
		free := m.fn(tI32, code().end())
		m.export("malloc", kindFunc, malloc)
		m.export("free", kindFunc, free)
	}

	if opts.BufferAPI {
		m.export("pm_buffer_sizeof", kindFunc, m.fn(tRetI32, code().i32Const(12).end()))
		m.export("pm_buffer_init", kindFunc, m.fn(tI32I32, code().
			localGet(0).i32Const(0).store(0).
			localGet(0).i32Const(0).store(4).
			localGet(0).i32Const(0).store(8).
			i32Const(1).end()))
		m.export("pm_buffer_value", kindFunc, m.fn(tI32I32, code().localGet(0).load(0).end()))
		m.export("pm_buffer_length", kindFunc, m.fn(tI32I32, code().localGet(0).load(4).end()))
		m.export("pm_buffer_free", kindFunc, m.fn(tI32, code().end()))
	}

	// pm_serialize_parse(buffer, source, length, options)
	body := code()
	if opts.Trap {
		body.op(opUnreachable)
	}
	for _, v := range iovs {
		body.i32Const(int32(v.fd)).i32Const(int32(v.addr)).i32Const(1).i32Const(nwrittenAddr).call(fdWrite).op(opDrop)
	}
	if opts.Echo {
		body.localGet(0).localGet(1).store(0).
			localGet(0).localGet(2).store(4).
			localGet(0).localGet(2).store(8)
	} else {
		n := int32(len(opts.AST))
		body.localGet(0).i32Const(int32(blobAddr)).store(0).
			localGet(0).i32Const(n).store(4).
			localGet(0).i32Const(n).store(8)
	}
	if opts.Exit != nil {
		body.i32Const(int32(*opts.Exit)).call(procExit)
	}
	m.export("pm_serialize_parse", kindFunc, m.fn(tParse, body.end()))

	for i, name := range opts.Forward {
		fwd := code()
		for p := range wasiParams[name] {
			fwd.localGet(uint32(p))
		}
		m.export("call_"+name, kindFunc, m.fn(forwardTypes[i], fwd.call(forwarded[i]).end()))
	}

	return m.encode()
}

// wasiParams holds the parameter types of the functions Forward accepts.
// Every one of them returns an errno.
var wasiParams = map[string][]byte{
	"args_get":            {i32, i32},
	"args_sizes_get":      {i32, i32},
	"environ_get":         {i32, i32},
	"environ_sizes_get":   {i32, i32},
	"clock_res_get":       {i32, i32},
	"clock_time_get":      {i32, i64, i32},
	"random_get":          {i32, i32},
	"fd_close":            {i32},
	"fd_fdstat_get":       {i32, i32},
	"fd_filestat_get":     {i32, i32},
	"fd_prestat_get":      {i32, i32},
	"fd_prestat_dir_name": {i32, i32, i32},
	"fd_read":             {i32, i32, i32, i32},
	"fd_seek":             {i32, i64, i32, i32},
	"path_open":           {i32, i32, i32, i32, i32, i64, i64, i32, i32},
	"path_filestat_get":   {i32, i32, i32, i32, i32},
}

type iovec struct {
	fd, addr, ptr, n uint32
}

func align(v, to uint32) uint32 {
	return (v + to - 1) &^ (to - 1)
}

func splitImport(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '#' {
			return key[:i], key[i+1:]
		}
	}
	return "env", key
}
