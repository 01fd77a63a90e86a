package transpile

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/rb2js/ast"
	"github.com/wippyai/rb2js/codegen"
	"github.com/wippyai/rb2js/engine"
	"github.com/wippyai/rb2js/errors"
	"github.com/wippyai/rb2js/internal/prismtest"
	"github.com/wippyai/rb2js/parser"
	"github.com/wippyai/rb2js/prismfmt"
)

func echoManager(t *testing.T) *parser.Manager {
	t.Helper()
	src := engine.StaticSource{Name: "echo", Data: prismtest.Module(prismtest.Options{Echo: true})}
	m := parser.NewManager(engine.NewLoader(engine.Config{}, src), parser.Options{})
	t.Cleanup(func() { m.Close(context.Background()) })
	return m
}

type recorder struct {
	codes []string
	err   error
}

func (r *recorder) Evaluate(_ context.Context, code string) error {
	r.codes = append(r.codes, code)
	return r.err
}

func TestProcessSourceRoundTrips(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"assignment", "x = 5", "const x = 5;"},
		{"puts", `puts "hi"`, `console.log("hi");`},
		{"comment only", "# note", ""},
		{"program", "x = 1\nx += 2\nputs x", "let x = 1;\nx += 2;\nconsole.log(x);"},
	}

	m := echoManager(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			tr := New(m, Options{Evaluator: rec})
			res, err := tr.ProcessSource(context.Background(), tc.src)
			if err != nil {
				t.Fatalf("ProcessSource failed: %v", err)
			}
			if res.GeneratedCode != tc.want {
				t.Errorf("code = %q, want %q", res.GeneratedCode, tc.want)
			}
			if !res.Success || res.AST == nil || res.AST.Node == nil {
				t.Errorf("result = %+v", res)
			}

			if tc.want == "" {
				if len(rec.codes) != 0 || res.Evaluated {
					t.Errorf("empty code should not be evaluated, got %q", rec.codes)
				}
				return
			}
			if len(rec.codes) != 1 || rec.codes[0] != tc.want || !res.Evaluated {
				t.Errorf("evaluated %q", rec.codes)
			}
		})
	}
}

func TestProcessSourceBinaryTier(t *testing.T) {
	doc := &prismfmt.Document{Root: prismfmt.Program(
		prismfmt.LocalWrite("box", prismfmt.Call(prismfmt.ConstantRead("VisualObject"), "new", []*prismfmt.Record{
			prismfmt.KeywordHash(prismfmt.Assoc(prismfmt.Symbol("id"), prismfmt.String("box"))),
		}, nil)),
	)}
	data, err := prismtest.ParserModule(doc, prismtest.Options{})
	if err != nil {
		t.Fatal(err)
	}
	m := parser.NewManager(engine.NewLoader(engine.Config{}, engine.StaticSource{Name: "doc", Data: data}), parser.Options{})
	defer m.Close(context.Background())

	res, err := New(m, Options{}).ProcessSource(context.Background(), "box = VisualObject.new(id: 'box')")
	if err != nil {
		t.Fatalf("ProcessSource failed: %v", err)
	}
	if res.AST.Tier != ast.TierBinary {
		t.Errorf("tier = %s", res.AST.Tier)
	}
	if want := `const box = new VisualObject({ id: "box" });`; res.GeneratedCode != want {
		t.Errorf("code = %q, want %q", res.GeneratedCode, want)
	}
	if res.Evaluated {
		t.Error("nothing should be evaluated without an evaluator")
	}
}

func TestProcessSourceExecutionFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	rec := &recorder{err: stderrors.New("ReferenceError: nope is not defined")}
	tr := New(echoManager(t), Options{Evaluator: rec, Logger: zap.New(core)})

	res, err := tr.ProcessSource(context.Background(), "nope()")
	if !errors.IsKind(err, errors.KindExecution) {
		t.Fatalf("expected execution error, got %v", err)
	}
	code, ok := errors.GeneratedCode(err)
	if !ok || code != "nope();" {
		t.Errorf("generated code = %q, %v", code, ok)
	}
	if res == nil || res.Success || res.Evaluated || res.GeneratedCode != "nope();" {
		t.Errorf("result = %+v", res)
	}
	if len(rec.codes) != 1 {
		t.Errorf("evaluations = %d, want 1", len(rec.codes))
	}
	if logs.FilterMessage("generated code failed").Len() != 1 {
		t.Error("execution failure not logged")
	}
}

func TestProcessSourceReportsUnsupportedNodes(t *testing.T) {
	stub := parserFunc(func(_ context.Context, text string) (*ast.Result, error) {
		return &ast.Result{
			Success: true,
			Tier:    ast.TierExternal,
			Source:  text,
			Node: &ast.Program{Body: []ast.Node{
				&ast.Unknown{Type: "ClassNode"},
				&ast.Call{Name: "puts", Arguments: []ast.Node{&ast.IntegerLiteral{Value: 1}}},
			}},
		}, nil
	})

	var ran string
	eval := EvaluatorFunc(func(_ context.Context, code string) error {
		ran = code
		return nil
	})
	res, err := New(stub, Options{Evaluator: eval, Generator: codegen.New(codegen.Options{
		Intrinsics: codegen.Intrinsics{Print: "print"},
	})}).ProcessSource(context.Background(), "class Foo; end\nputs 1")
	if err != nil {
		t.Fatalf("ProcessSource failed: %v", err)
	}

	want := "// unsupported node: ClassNode\nprint(1);"
	if res.GeneratedCode != want || ran != want {
		t.Errorf("code = %q, evaluated %q", res.GeneratedCode, ran)
	}
	if res.Stats != (codegen.Stats{Statements: 1, Unsupported: 1}) {
		t.Errorf("stats = %+v", res.Stats)
	}
	if len(res.Diagnostics.Warnings) != 1 || !strings.Contains(res.Diagnostics.Warnings[0].Message, "1 unsupported") {
		t.Errorf("warnings = %+v", res.Diagnostics.Warnings)
	}
}

func TestModuleUnavailableThenRetry(t *testing.T) {
	var fixed atomic.Bool
	module := prismtest.Module(prismtest.Options{Echo: true})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !fixed.Load() {
			http.NotFound(w, nil)
			return
		}
		w.Write(module)
	}))
	defer srv.Close()

	loader := engine.NewLoader(engine.Config{},
		engine.HTTPSource{URL: srv.URL + "/a.wasm"},
		engine.HTTPSource{URL: srv.URL + "/b.wasm"},
	)
	m := parser.NewManager(loader, parser.Options{})
	defer m.Close(context.Background())
	tr := New(m, Options{})
	ctx := context.Background()

	if err := m.InitializePrism(ctx); !errors.IsKind(err, errors.KindModuleUnavailable) {
		t.Fatalf("expected module unavailable, got %v", err)
	}
	if _, err := tr.ProcessSource(ctx, "x = 5"); !errors.IsKind(err, errors.KindModuleUnavailable) {
		t.Fatalf("expected module unavailable from ProcessSource, got %v", err)
	}

	fixed.Store(true)
	res, err := tr.ProcessSource(ctx, "x = 5")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if res.GeneratedCode != "const x = 5;" || m.State() != parser.StateReady {
		t.Errorf("code = %q state = %s", res.GeneratedCode, m.State())
	}
}

type parserFunc func(ctx context.Context, text string) (*ast.Result, error)

func (f parserFunc) ParseRubyCode(ctx context.Context, text string) (*ast.Result, error) {
	return f(ctx, text)
}
