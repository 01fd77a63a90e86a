// Package engine loads the parsing module and runs it under wazero.
//
// A Loader fetches module bytes from an ordered list of sources, compiles
// them, checks the import table against the WASI shim and instantiates the
// result:
//
//	loader := engine.NewLoader(engine.Config{MemoryLimitPages: 512},
//	    engine.FileSource{Path: "prism.wasm"},
//	    engine.HTTPSource{URL: "https://cdn.example.com/prism.wasm"},
//	)
//	inst, err := loader.Load(ctx)
//	if err != nil {
//	    return err
//	}
//	defer inst.Close(ctx)
//
//	out, err := inst.Serialize(ctx, "x = 1")
//
// # Memory
//
// Instances allocate through the module's own malloc and free exports when
// present. Modules without an allocator get an arena: a bump allocator that
// starts at Config.ArenaBase and grows toward the end of linear memory.
// Arena frees are no-ops and exhaustion is reported as KindOutOfMemory.
//
// Serialize runs the allocate, invoke, read and free sequence inside a Scope
// while holding the instance mutex, so every allocation made for one parse is
// released before it returns, whatever the outcome.
//
// # Buffer Descriptor
//
// The parse export writes its result into a 12-byte descriptor:
//
//	offset 0  value     u32  pointer to serialized bytes
//	offset 4  length    u32
//	offset 8  capacity  u32
//
// When the module exports pm_buffer_sizeof, pm_buffer_init, pm_buffer_value,
// pm_buffer_length and pm_buffer_free, those are used instead of the fixed
// layout.
package engine
