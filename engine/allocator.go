package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/rb2js"
	"github.com/wippyai/rb2js/errors"
)

// DefaultArenaBase is where the arena starts when Config.ArenaBase is zero:
// the start of the second page, past data and stack of small modules.
const DefaultArenaBase = 65536

const arenaAlign = 8

// exportAllocator calls the module's malloc (or calloc) and free exports.
type exportAllocator struct {
	malloc   api.Function
	calloc   api.Function
	free     api.Function
	stackBuf []uint64
	mu       sync.Mutex
}

func newExportAllocator(mod api.Module) *exportAllocator {
	a := &exportAllocator{
		malloc:   mod.ExportedFunction("malloc"),
		calloc:   mod.ExportedFunction("calloc"),
		free:     mod.ExportedFunction("free"),
		stackBuf: make([]uint64, 2),
	}
	if a.malloc == nil && a.calloc == nil {
		return nil
	}
	return a
}

func (a *exportAllocator) Alloc(ctx context.Context, size uint32) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	if a.malloc != nil {
		a.stackBuf[0] = uint64(size)
		err = a.malloc.CallWithStack(ctx, a.stackBuf[:1])
	} else {
		a.stackBuf[0] = 1
		a.stackBuf[1] = uint64(size)
		err = a.calloc.CallWithStack(ctx, a.stackBuf[:2])
	}
	if err != nil {
		return 0, errors.AllocationFailed(size, err)
	}
	ptr := uint32(a.stackBuf[0])
	if ptr == 0 {
		return 0, errors.AllocationFailed(size, nil)
	}
	return ptr, nil
}

func (a *exportAllocator) Free(ctx context.Context, ptr uint32) error {
	if a.free == nil || ptr == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stackBuf[0] = uint64(ptr)
	if err := a.free.CallWithStack(ctx, a.stackBuf[:1]); err != nil {
		return errors.Wrap(errors.PhaseMemory, errors.KindAllocation, err, "free")
	}
	return nil
}

// arena is a bump allocator over [base, end of memory). Space is never
// reclaimed; Free only validates that the pointer came from the arena.
type arena struct {
	mem  rb2js.MemorySizer
	base uint32
	next uint32
	mu   sync.Mutex
}

func newArena(mem rb2js.MemorySizer, base uint32) *arena {
	if base == 0 {
		base = DefaultArenaBase
	}
	return &arena{mem: mem, base: base, next: base}
}

func (a *arena) Alloc(_ context.Context, size uint32) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	end := uint64(a.mem.Size())
	start := (uint64(a.next) + arenaAlign - 1) &^ (arenaAlign - 1)
	if size == 0 {
		size = 1
	}
	if start+uint64(size) > end {
		var remaining uint32
		if end > start {
			remaining = uint32(end - start)
		}
		return 0, errors.OutOfMemory(size, remaining)
	}
	a.next = uint32(start + uint64(size))
	return uint32(start), nil
}

func (a *arena) Free(_ context.Context, ptr uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ptr < a.base || ptr >= a.next {
		return errors.InvalidInput(errors.PhaseMemory, "free of pointer outside the arena")
	}
	return nil
}

// Used reports how many arena bytes have been handed out.
func (a *arena) Used() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next - a.base
}

var (
	_ rb2js.Allocator = (*exportAllocator)(nil)
	_ rb2js.Allocator = (*arena)(nil)
)
