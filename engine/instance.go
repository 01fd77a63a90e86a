package engine

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/rb2js"
	"github.com/wippyai/rb2js/errors"
	"github.com/wippyai/rb2js/wasi/preview1"
)

// ParseExport is the export that parses source into a buffer descriptor.
const ParseExport = "pm_serialize_parse"

const descriptorSize = 12

// Serialized is the outcome of one call to the parse export.
type Serialized struct {
	Bytes []byte
	// ExitCode is the code passed to proc_exit when Exited is set.
	ExitCode uint32
	Exited   bool
}

// Stats counts allocator traffic since the instance was created.
type Stats struct {
	Allocations uint64 `yaml:"allocations" json:"allocations"`
	Frees       uint64 `yaml:"frees" json:"frees"`
	// ArenaUsed is the number of arena bytes handed out, 0 when the module
	// provides its own allocator.
	ArenaUsed uint32 `yaml:"arena_used" json:"arena_used"`
}

// bufferAPI holds the optional pm_buffer_* exports.
type bufferAPI struct {
	sizeof api.Function
	init   api.Function
	value  api.Function
	length api.Function
	free   api.Function
}

func bindBufferAPI(mod api.Module) *bufferAPI {
	b := &bufferAPI{
		sizeof: mod.ExportedFunction("pm_buffer_sizeof"),
		init:   mod.ExportedFunction("pm_buffer_init"),
		value:  mod.ExportedFunction("pm_buffer_value"),
		length: mod.ExportedFunction("pm_buffer_length"),
		free:   mod.ExportedFunction("pm_buffer_free"),
	}
	if b.sizeof == nil || b.init == nil || b.value == nil || b.length == nil || b.free == nil {
		return nil
	}
	return b
}

// Instance is an instantiated parsing module. Serialize, InvokeParse,
// ReadBuffer and Call are serialized by a per-instance mutex.
type Instance struct {
	runtime wazero.Runtime
	module  api.Module
	shim    *preview1.Shim
	memory  *Memory
	alloc   rb2js.Allocator
	arena   *arena
	parse   api.Function
	buffer  *bufferAPI
	source  Source
	allocs  atomic.Uint64
	frees   atomic.Uint64
	mu      sync.Mutex
	closed  atomic.Bool
}

func bind(rt wazero.Runtime, mod api.Module, shim *preview1.Shim, cfg Config) (*Instance, error) {
	mem := mod.Memory()
	if mem == nil {
		return nil, errors.MissingExport("memory")
	}
	parse := mod.ExportedFunction(ParseExport)
	if parse == nil {
		return nil, errors.MissingExport(ParseExport)
	}

	inst := &Instance{
		runtime: rt,
		module:  mod,
		shim:    shim,
		memory:  &Memory{mem: mem},
		parse:   parse,
		buffer:  bindBufferAPI(mod),
	}
	if a := newExportAllocator(mod); a != nil {
		inst.alloc = a
	} else {
		inst.arena = newArena(inst.memory, cfg.ArenaBase)
		inst.alloc = inst.arena
		Logger().Debug("module exports no allocator, using arena", zap.Uint32("base", inst.arena.base))
	}
	return inst, nil
}

// Source reports where the module was loaded from, nil when instantiated
// directly from bytes.
func (i *Instance) Source() Source { return i.source }

// Memory exposes the module's linear memory.
func (i *Instance) Memory() *Memory { return i.memory }

// Allocate reserves size bytes in linear memory.
func (i *Instance) Allocate(ctx context.Context, size uint32) (uint32, error) {
	if i.closed.Load() {
		return 0, errors.NotInitialized(errors.PhaseMemory, "instance")
	}
	ptr, err := i.alloc.Alloc(ctx, size)
	if err != nil {
		return 0, err
	}
	i.allocs.Add(1)
	return ptr, nil
}

// Free releases a pointer returned by Allocate.
func (i *Instance) Free(ctx context.Context, ptr uint32) error {
	i.frees.Add(1)
	if i.closed.Load() {
		return nil
	}
	return i.alloc.Free(ctx, ptr)
}

// WriteString copies s into fresh memory followed by a NUL byte. The
// returned length excludes the terminator.
func (i *Instance) WriteString(ctx context.Context, s string) (ptr, length uint32, err error) {
	buf := make([]byte, len(s)+1)
	copy(buf, s)

	ptr, err = i.Allocate(ctx, uint32(len(buf)))
	if err != nil {
		return 0, 0, err
	}
	if err := i.memory.Write(ptr, buf); err != nil {
		_ = i.Free(ctx, ptr)
		return 0, 0, err
	}
	return ptr, uint32(len(s)), nil
}

// InvokeParse creates a zeroed descriptor, calls the parse export and
// returns the descriptor pointer. The caller owns the descriptor and
// releases it with ReleaseDescriptor.
func (i *Instance) InvokeParse(ctx context.Context, srcPtr, srcLen, optionsPtr uint32) (uint32, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	desc, err := i.newDescriptor(ctx)
	if err != nil {
		return 0, err
	}
	if err := i.invoke(ctx, desc, srcPtr, srcLen, optionsPtr); err != nil {
		_ = i.releaseDescriptor(ctx, desc)
		return 0, err
	}
	return desc, nil
}

// ReleaseDescriptor frees a descriptor returned by InvokeParse.
func (i *Instance) ReleaseDescriptor(ctx context.Context, desc uint32) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.releaseDescriptor(ctx, desc)
}

// ReadBuffer copies the serialized bytes the descriptor points at.
func (i *Instance) ReadBuffer(ctx context.Context, desc uint32) ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.readBuffer(ctx, desc)
}

// Serialize parses source and returns a copy of the serialized tree. All
// memory used by the call is released before it returns, including when the
// guest traps or the caller panics.
//
// When the guest calls proc_exit the result reports the exit code, and the
// bytes are still read if the descriptor was filled. On a failure after the
// guest ran, the returned Serialized still carries the exit status.
func (i *Instance) Serialize(ctx context.Context, source string) (out *Serialized, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed.Load() {
		return nil, errors.NotInitialized(errors.PhaseParse, "instance")
	}

	scope := i.NewScope()
	defer func() {
		if rerr := scope.Release(context.WithoutCancel(ctx)); rerr != nil {
			Logger().Warn("release parse allocations", zap.Error(rerr))
		}
	}()

	srcPtr, srcLen, err := scope.WriteString(ctx, source)
	if err != nil {
		return nil, err
	}
	desc, err := i.newDescriptor(ctx)
	if err != nil {
		return nil, err
	}
	scope.Defer(func(ctx context.Context) error { return i.releaseDescriptor(ctx, desc) })

	if err := i.invoke(ctx, desc, srcPtr, srcLen, 0); err != nil {
		return nil, err
	}

	out = &Serialized{}
	out.ExitCode, out.Exited = i.shim.ExitCode()
	if out.Exited {
		Logger().Debug("parse export exited", zap.Uint32("code", out.ExitCode))
	}

	out.Bytes, err = i.readBuffer(ctx, desc)
	if err != nil {
		return out, err
	}
	return out, nil
}

// Call invokes an arbitrary export with raw parameters.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed.Load() {
		return nil, errors.NotInitialized(errors.PhaseParse, "instance")
	}
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.MissingExport(name)
	}
	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, errors.Trap(name, err)
	}
	return results, nil
}

// Stats returns allocator counters.
func (i *Instance) Stats() Stats {
	s := Stats{
		Allocations: i.allocs.Load(),
		Frees:       i.frees.Load(),
	}
	if i.arena != nil {
		s.ArenaUsed = i.arena.Used()
	}
	return s
}

// Close releases the runtime and everything instantiated in it.
func (i *Instance) Close(ctx context.Context) error {
	if !i.closed.CompareAndSwap(false, true) {
		return nil
	}
	return i.runtime.Close(ctx)
}

func (i *Instance) newDescriptor(ctx context.Context) (uint32, error) {
	if i.buffer == nil {
		desc, err := i.Allocate(ctx, descriptorSize)
		if err != nil {
			return 0, err
		}
		if err := i.memory.Zero(desc, descriptorSize); err != nil {
			_ = i.Free(ctx, desc)
			return 0, err
		}
		return desc, nil
	}

	res, err := i.buffer.sizeof.Call(ctx)
	if err != nil {
		return 0, errors.Trap("pm_buffer_sizeof", err)
	}
	desc, err := i.Allocate(ctx, uint32(res[0]))
	if err != nil {
		return 0, err
	}
	if res, err := i.buffer.init.Call(ctx, uint64(desc)); err != nil || uint32(res[0]) == 0 {
		_ = i.Free(ctx, desc)
		if err == nil {
			err = stderrors.New("pm_buffer_init returned false")
		}
		return 0, errors.Trap("pm_buffer_init", err)
	}
	return desc, nil
}

func (i *Instance) releaseDescriptor(ctx context.Context, desc uint32) error {
	var errs []error
	if i.buffer != nil && !i.closed.Load() {
		if _, err := i.buffer.free.Call(ctx, uint64(desc)); err != nil {
			errs = append(errs, errors.Trap("pm_buffer_free", err))
		}
	}
	if err := i.Free(ctx, desc); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}

func (i *Instance) invoke(ctx context.Context, desc, srcPtr, srcLen, optionsPtr uint32) error {
	i.shim.Reset()
	_, err := i.parse.Call(ctx, uint64(desc), uint64(srcPtr), uint64(srcLen), uint64(optionsPtr))
	if err == nil {
		return nil
	}
	var exitErr *sys.ExitError
	if stderrors.As(err, &exitErr) {
		return nil
	}
	return errors.Trap(ParseExport, err)
}

func (i *Instance) readBuffer(ctx context.Context, desc uint32) ([]byte, error) {
	var value, length uint32
	if i.buffer != nil {
		v, err := i.buffer.value.Call(ctx, uint64(desc))
		if err != nil {
			return nil, errors.Trap("pm_buffer_value", err)
		}
		n, err := i.buffer.length.Call(ctx, uint64(desc))
		if err != nil {
			return nil, errors.Trap("pm_buffer_length", err)
		}
		value, length = uint32(v[0]), uint32(n[0])
	} else {
		var err error
		if value, err = i.memory.ReadU32(desc); err != nil {
			return nil, err
		}
		if length, err = i.memory.ReadU32(desc + 4); err != nil {
			return nil, err
		}
	}
	if length == 0 {
		return nil, errors.InvalidData(errors.PhaseParse, nil, "parse export produced an empty buffer")
	}
	return i.memory.Read(value, length)
}
