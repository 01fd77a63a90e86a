package engine

import (
	"context"
	stderrors "errors"
)

// Scope tracks the allocations made for one operation so they can be
// released together. Release frees in reverse order and runs at most once.
type Scope struct {
	inst     *Instance
	ptrs     []uint32
	cleanups []func(context.Context) error
	released bool
}

// NewScope starts a scope on the instance.
func (i *Instance) NewScope() *Scope {
	return &Scope{inst: i}
}

// Allocate reserves size bytes owned by the scope.
func (s *Scope) Allocate(ctx context.Context, size uint32) (uint32, error) {
	ptr, err := s.inst.Allocate(ctx, size)
	if err != nil {
		return 0, err
	}
	s.ptrs = append(s.ptrs, ptr)
	s.cleanups = append(s.cleanups, nil)
	return ptr, nil
}

// WriteString copies str into scope-owned memory. See Instance.WriteString.
func (s *Scope) WriteString(ctx context.Context, str string) (ptr, length uint32, err error) {
	ptr, length, err = s.inst.WriteString(ctx, str)
	if err != nil {
		return 0, 0, err
	}
	s.ptrs = append(s.ptrs, ptr)
	s.cleanups = append(s.cleanups, nil)
	return ptr, length, nil
}

// Defer registers fn to run during Release, before allocations made
// earlier in the scope are freed.
func (s *Scope) Defer(fn func(context.Context) error) {
	s.ptrs = append(s.ptrs, 0)
	s.cleanups = append(s.cleanups, fn)
}

// Release frees everything the scope owns and reports the joined errors.
func (s *Scope) Release(ctx context.Context) error {
	if s.released {
		return nil
	}
	s.released = true

	var errs []error
	for i := len(s.ptrs) - 1; i >= 0; i-- {
		if fn := s.cleanups[i]; fn != nil {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := s.inst.Free(ctx, s.ptrs[i]); err != nil {
			errs = append(errs, err)
		}
	}
	s.ptrs = nil
	s.cleanups = nil
	return stderrors.Join(errs...)
}

// Len reports how many allocations and cleanups are pending.
func (s *Scope) Len() int { return len(s.ptrs) }
