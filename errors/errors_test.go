package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseDecode,
				Kind:   KindInvalidData,
				Path:   []string{"program", "body[2]", "value"},
				Detail: "unknown node type 200",
			},
			contains: []string{"[decode]", "invalid_data", "program.body[2].value", "unknown node type 200"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseMemory,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[memory]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindModuleUnavailable,
				Detail: "no module source available",
				Cause:  errors.New("404 Not Found"),
			},
			contains: []string{"[load]", "module_unavailable", "caused by", "404 Not Found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseParse,
		Kind:  KindTrap,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindModuleUnavailable,
		Path:  []string{"sources"},
	}

	if !err.Is(&Error{Phase: PhaseLoad, Kind: KindModuleUnavailable}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseDecode, Kind: KindModuleUnavailable}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseLoad, Kind: KindOutOfBounds}) {
		t.Error("Is should not match different kind")
	}

	wrapped := fmt.Errorf("initialize: %w", err)
	if !errors.Is(wrapped, &Error{Phase: PhaseLoad, Kind: KindModuleUnavailable}) {
		t.Error("errors.Is should match through fmt wrapping")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseDecode, KindInvalidData).
		Path("program", "body[0]").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "node", "eof").
		Build()

	if err.Phase != PhaseDecode {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseDecode)
	}
	if err.Kind != KindInvalidData {
		t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidData)
	}
	if len(err.Path) != 2 || err.Path[0] != "program" || err.Path[1] != "body[0]" {
		t.Errorf("Path = %v, want [program body[0]]", err.Path)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected node, got eof" {
		t.Errorf("Detail = %v, want 'expected node, got eof'", err.Detail)
	}
}

func TestModuleUnavailable(t *testing.T) {
	first := errors.New("open prism.wasm: no such file")
	second := errors.New("GET https://cdn/prism.wasm: 404 Not Found")
	err := ModuleUnavailable([]error{first, second})

	if err.Kind != KindModuleUnavailable || err.Phase != PhaseLoad {
		t.Fatalf("unexpected classification: %v", err)
	}
	if !strings.Contains(err.Error(), "no module source available") {
		t.Errorf("message %q should mention missing source", err.Error())
	}
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Error("every attempt should be reachable through errors.Is")
	}

	empty := ModuleUnavailable(nil)
	if !strings.Contains(empty.Error(), "no sources configured") {
		t.Errorf("empty attempts message = %q", empty.Error())
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("OutOfMemory", func(t *testing.T) {
		err := OutOfMemory(4096, 12)
		if err.Kind != KindOutOfMemory {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfMemory)
		}
		if !strings.Contains(err.Detail, "4096") || !strings.Contains(err.Detail, "12") {
			t.Errorf("Detail = %v, should contain sizes", err.Detail)
		}
	})

	t.Run("AllocationFailed", func(t *testing.T) {
		err := AllocationFailed(1024, errors.New("trap"))
		if err.Kind != KindAllocation {
			t.Errorf("Kind = %v, want %v", err.Kind, KindAllocation)
		}
		if !strings.Contains(err.Detail, "1024") {
			t.Errorf("Detail = %v, should contain size", err.Detail)
		}
	})

	t.Run("MissingExport", func(t *testing.T) {
		err := MissingExport("pm_serialize_parse")
		if err.Kind != KindMissingExport || err.Value != "pm_serialize_parse" {
			t.Errorf("unexpected error %+v", err)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseMemory, 70000, 16)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
		}
		if err.Value != uint32(70000) {
			t.Errorf("Value = %v, want 70000", err.Value)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		err := Unsupported(PhaseGenerate, "FlipFlopNode")
		if err.Kind != KindUnsupported {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
		}
	})
}

func TestExecution(t *testing.T) {
	cause := errors.New("ReferenceError: foo is not defined")
	err := Execution("foo();", cause)

	wrapped := fmt.Errorf("process source: %w", err)
	code, ok := GeneratedCode(wrapped)
	if !ok {
		t.Fatal("GeneratedCode should find the execution error")
	}
	if code != "foo();" {
		t.Errorf("code = %q, want foo();", code)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("cause should be reachable")
	}

	if _, ok := GeneratedCode(errors.New("plain")); ok {
		t.Error("plain errors carry no generated code")
	}
}

func TestMissingImportsError(t *testing.T) {
	t.Run("single import", func(t *testing.T) {
		err := NewMissingImportsError([]string{"wasi_snapshot_preview1#sock_accept"})
		if len(err.Imports) != 1 {
			t.Errorf("expected 1 import, got %d", len(err.Imports))
		}
		if err.Imports[0].Namespace != "wasi_snapshot_preview1" {
			t.Errorf("namespace = %q, want wasi_snapshot_preview1", err.Imports[0].Namespace)
		}
		if err.Imports[0].Function != "sock_accept" {
			t.Errorf("function = %q, want sock_accept", err.Imports[0].Function)
		}
	})

	t.Run("multiple namespaces grouped", func(t *testing.T) {
		err := NewMissingImportsError([]string{
			"wasi_snapshot_preview1#sock_accept",
			"env#emscripten_notify_memory_growth",
			"wasi_snapshot_preview1#sock_recv",
		})
		msg := err.Error()
		if !strings.Contains(msg, "missing import") {
			t.Errorf("error should contain 'missing import', got %s", msg)
		}
		if !strings.Contains(msg, "3") {
			t.Errorf("error should contain count")
		}
		if !strings.Contains(msg, "wasi_snapshot_preview1:") || !strings.Contains(msg, "env:") {
			t.Errorf("error should group by namespace, got %s", msg)
		}
	})

	t.Run("empty imports", func(t *testing.T) {
		err := NewMissingImportsError([]string{})
		if !strings.Contains(err.Error(), "no imports specified") {
			t.Errorf("empty error should have specific message, got: %s", err.Error())
		}
	})

	t.Run("errors.Is", func(t *testing.T) {
		err := NewMissingImportsError([]string{"ns#fn"})
		if !errors.Is(err, &MissingImportsError{}) {
			t.Error("errors.Is should match MissingImportsError")
		}
		if !errors.Is(err, &Error{Kind: KindMissingImport}) {
			t.Error("errors.Is should match the missing_import kind")
		}
	})
}

func TestIsKind(t *testing.T) {
	wrapped := fmt.Errorf("parse: %w", OutOfMemory(64, 8))
	if !IsKind(wrapped, KindOutOfMemory) {
		t.Error("expected out_of_memory through fmt wrapping")
	}
	if IsKind(wrapped, KindAllocation) {
		t.Error("unexpected allocation match")
	}
	if !IsKind(NewMissingImportsError([]string{"env#abort"}), KindMissingImport) {
		t.Error("expected MissingImportsError to match missing_import")
	}
	if IsKind(nil, KindTrap) {
		t.Error("nil error should match nothing")
	}
}
