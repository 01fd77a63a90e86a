// Package rb2js transpiles a Ruby-like scripting language into JavaScript.
//
// Parsing is delegated to a prism-style parser compiled to WebAssembly
// (wasm32-wasi). The module runs under wazero against a minimal WASI preview1
// shim, returns its syntax tree in a binary serialized form, and that form is
// decoded into the canonical AST of the ast package. The codegen package then
// lowers the AST into JavaScript statements.
//
// # Architecture Overview
//
//	rb2js/               Root package with Memory and Allocator interfaces
//	├── wasi/preview1/   Syscall shim the parsing module links against
//	├── engine/          Module sources, wazero runtime, instance, arena
//	├── prismfmt/        Serialized AST wire format (reader and writer)
//	├── decoder/         Tiered deserializer: external, binary, heuristic
//	├── ast/             Canonical AST schema and parse results
//	├── parser/          Parser façade and single-flight lifecycle manager
//	├── codegen/         AST to JavaScript generator
//	├── transpile/       Parse, generate and hand off in one call
//	├── jsrt/            goja-backed evaluator with the host built-ins
//	├── config/          YAML configuration
//	├── cmd/rb2js/       Command line and interactive REPL
//	└── errors/          Structured error types
//
// # Quick Start
//
//	src, _ := engine.ParseSource("prism.wasm")
//	mgr := parser.NewManager(engine.NewLoader(engine.Config{}, src), parser.Options{})
//	defer mgr.Close(ctx)
//
//	tr := transpile.New(mgr, transpile.Options{})
//	res, err := tr.ProcessSource(ctx, `puts "hi"`)
//	fmt.Println(res.GeneratedCode) // console.log("hi");
//
// The rb2js command wires the same pipeline from a YAML file and can
// evaluate the output with the jsrt package.
//
// # Degradation
//
// Parsing never fails outright. When the module cannot be loaded or its
// output cannot be decoded, a line-oriented heuristic produces a placeholder
// tree and the degradation is reported as a warning diagnostic.
//
// # Thread Safety
//
// Manager, Parser and Transpiler are safe for concurrent use. Calls into the
// parsing module are serialized per instance, so each call's
// allocate/invoke/free sequence never overlaps another's.
package rb2js
