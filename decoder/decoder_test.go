package decoder

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/rb2js/ast"
	"github.com/wippyai/rb2js/errors"
	"github.com/wippyai/rb2js/prismfmt"
)

func encode(t *testing.T, doc *prismfmt.Document) []byte {
	t.Helper()
	data, err := prismfmt.Encode(doc)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return data
}

func TestBinaryLowering(t *testing.T) {
	root := prismfmt.Program(
		prismfmt.LocalWrite("x", prismfmt.Integer(5)),
		prismfmt.InstanceWrite("@speed", prismfmt.Float(1.5)),
		prismfmt.LocalOperatorWrite("x", "+", prismfmt.Integer(1)),
		prismfmt.Call(nil, "puts", []*prismfmt.Record{
			prismfmt.InterpolatedString(prismfmt.String("x is "), prismfmt.Embedded(prismfmt.LocalRead("x"))),
		}, nil),
		prismfmt.Call(nil, "wait", []*prismfmt.Record{prismfmt.Integer(2)},
			prismfmt.Block(nil, prismfmt.Call(nil, "puts", []*prismfmt.Record{prismfmt.String("done")}, nil))),
		prismfmt.Call(prismfmt.ConstantRead("VisualObject"), "new", []*prismfmt.Record{
			prismfmt.KeywordHash(prismfmt.Assoc(prismfmt.Symbol("id"), prismfmt.String("box"))),
		}, nil),
		prismfmt.If(prismfmt.And(prismfmt.True(), prismfmt.LocalRead("x")),
			[]*prismfmt.Record{prismfmt.Nil()},
			prismfmt.If(prismfmt.False(), nil, prismfmt.Else(prismfmt.Self()))),
		prismfmt.Until(prismfmt.Or(prismfmt.False(), prismfmt.GlobalRead("$done"))),
		prismfmt.Def("add", []string{"a", "b"}, prismfmt.Return(
			prismfmt.Call(prismfmt.LocalRead("a"), "+", []*prismfmt.Record{prismfmt.LocalRead("b")}, nil))),
		prismfmt.Array(prismfmt.Integer(-1), prismfmt.Parentheses(prismfmt.Integer(2))),
	)
	data := encode(t, &prismfmt.Document{Root: root})

	res, err := Binary{}.TryDecode(data, "")
	if err != nil {
		t.Fatalf("TryDecode failed: %v", err)
	}
	if res.Tier != ast.TierBinary || !res.Success {
		t.Fatalf("tier = %s success = %v", res.Tier, res.Success)
	}

	want := []ast.Node{
		&ast.Assignment{Name: "x", Value: i(5)},
		&ast.Assignment{Name: "@speed", Scope: ast.ScopeInstance, Value: &ast.FloatLiteral{Value: 1.5}},
		&ast.Assignment{Name: "x", Operator: "+", Value: i(1)},
		call(nil, "puts", call(s("x is "), "+", v("x"))),
		&ast.Call{Name: "wait", Arguments: []ast.Node{i(2)}, Block: &ast.Block{
			Body: []ast.Node{call(nil, "puts", s("done"))},
		}},
		call(v("VisualObject"), "new", &ast.HashLiteral{Pairs: []ast.Pair{
			{Key: &ast.SymbolLiteral{Value: "id"}, Value: s("box")},
		}}),
		&ast.If{
			Condition: call(&ast.BooleanLiteral{Value: true}, "&&", v("x")),
			Then:      []ast.Node{&ast.NilLiteral{}},
			Else: []ast.Node{&ast.If{
				Condition: &ast.BooleanLiteral{},
				Else:      []ast.Node{&ast.Self{}},
			}},
		},
		&ast.While{Condition: call(&ast.BooleanLiteral{}, "||", v("$done")), Negated: true},
		&ast.Def{Name: "add", Params: []string{"a", "b"}, Body: []ast.Node{
			&ast.Return{Value: call(v("a"), "+", v("b"))},
		}},
		&ast.ArrayLiteral{Elements: []ast.Node{i(-1), i(2)}},
	}
	if diff := cmp.Diff(want, res.Body(), ignoreLoc); diff != "" {
		t.Errorf("lowering mismatch (-want +got):\n%s", diff)
	}
}

func TestBinaryDiagnosticsAndComments(t *testing.T) {
	source := "# hi\nx = 1\n"
	doc := &prismfmt.Document{
		Root:     prismfmt.Program(prismfmt.LocalWrite("x", prismfmt.Integer(1)).At(5, 5)),
		Comments: []prismfmt.Comment{{Location: prismfmt.Location{Start: 0, Length: 4}}},
		Errors:   []prismfmt.Diagnostic{{Message: "unexpected end-of-input", Location: prismfmt.Location{Start: 10, Length: 1}}},
	}
	data := encode(t, doc)

	res, err := Binary{KeepComments: true}.TryDecode(data, source)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Body()) != 2 {
		t.Fatalf("expected comment plus assignment, got %d nodes", len(res.Body()))
	}
	if c, ok := res.Body()[0].(*ast.Comment); !ok || c.Text != "# hi" {
		t.Errorf("first node = %#v", res.Body()[0])
	}
	if len(res.Diagnostics.Errors) != 1 || res.Diagnostics.Errors[0].Level != ast.LevelError {
		t.Errorf("errors = %+v", res.Diagnostics.Errors)
	}

	plain, err := Binary{}.TryDecode(data, source)
	if err != nil {
		t.Fatal(err)
	}
	if len(plain.Body()) != 1 {
		t.Errorf("comments should be dropped by default, got %d nodes", len(plain.Body()))
	}
}

func TestChainFallsThroughTiers(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	chain := Default(nil, zap.New(core))

	source := "x = 1\nputs x"
	res, err := chain.Decode([]byte("not a serialized tree"), source)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if res.Tier != ast.TierHeuristic {
		t.Errorf("tier = %s, want heuristic", res.Tier)
	}
	if len(res.Body()) != 2 {
		t.Errorf("expected 2 statements, got %d", len(res.Body()))
	}
	// The empty registry skips silently; only the binary tier warns.
	if len(res.Diagnostics.Warnings) != 1 || !strings.Contains(res.Diagnostics.Warnings[0].Message, "binary decoder failed") {
		t.Errorf("warnings = %+v", res.Diagnostics.Warnings)
	}
	if logs.FilterMessage("decoder tier failed").Len() != 1 {
		t.Errorf("expected one logged tier failure, got %d", logs.Len())
	}
	if res.Source != source {
		t.Errorf("source not carried through")
	}
}

func TestChainPrefersExternal(t *testing.T) {
	reg := NewRegistry()
	chain := Default(reg, nil)
	data := encode(t, &prismfmt.Document{Root: prismfmt.Program(prismfmt.Nil())})

	res, err := chain.Decode(data, "nil")
	if err != nil || res.Tier != ast.TierBinary {
		t.Fatalf("without external: tier = %v, err = %v", res, err)
	}

	reg.Register(Func{Label: "full", Fn: func(_ []byte, src string) (*ast.Result, error) {
		return &ast.Result{Node: &ast.Program{Body: []ast.Node{&ast.NilLiteral{}}}, Success: true}, nil
	}})
	if !reg.Registered() {
		t.Fatal("expected registered decoder")
	}
	res, err = chain.Decode(data, "nil")
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != ast.TierExternal {
		t.Errorf("tier = %s, want external", res.Tier)
	}
	if res.Source != "nil" {
		t.Errorf("source = %q", res.Source)
	}

	reg.Register(Func{Fn: func([]byte, string) (*ast.Result, error) {
		return nil, stderrors.New("decoder crashed")
	}})
	res, err = chain.Decode(data, "nil")
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != ast.TierBinary || len(res.Diagnostics.Warnings) != 1 {
		t.Errorf("tier = %s warnings = %+v", res.Tier, res.Diagnostics.Warnings)
	}

	reg.Unregister()
	if reg.Registered() {
		t.Error("expected empty registry")
	}
}

func TestChainAllFail(t *testing.T) {
	chain := NewChain(nil, Binary{})
	_, err := chain.Decode([]byte{0x00}, "x")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.IsKind(err, errors.KindInvalidData) {
		t.Errorf("unexpected error kind: %v", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatal("expected *errors.Error")
	}
	if d, ok := e.Value.(ast.Diagnostics); !ok || len(d.Warnings) != 1 {
		t.Errorf("value = %#v", e.Value)
	}
}

func TestChainRejectsInvalidResults(t *testing.T) {
	empty := Func{Label: "empty", Fn: func([]byte, string) (*ast.Result, error) { return &ast.Result{Success: true}, nil }}
	failed := Func{Label: "failed", Fn: func([]byte, string) (*ast.Result, error) {
		return &ast.Result{Node: &ast.Program{}}, nil
	}}
	chain := NewChain(nil, empty, failed, Heuristic{})
	if got := chain.Strategies(); !cmp.Equal(got, []string{"empty", "failed", "heuristic"}) {
		t.Errorf("strategies = %v", got)
	}
	res, err := chain.Decode(nil, "a = 1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != ast.TierHeuristic || len(res.Diagnostics.Warnings) != 2 {
		t.Errorf("tier = %s warnings = %d", res.Tier, len(res.Diagnostics.Warnings))
	}
}

func TestBinaryWrappedLocation(t *testing.T) {
	root := prismfmt.Program(
		prismfmt.Parentheses(prismfmt.Integer(1), prismfmt.Integer(2)).At(5, 0xFFFFFFFE),
	)
	data := encode(t, &prismfmt.Document{Root: root})

	res, err := Binary{}.TryDecode(data, "0123456789")
	if err != nil {
		t.Fatalf("TryDecode failed: %v", err)
	}
	unk, ok := res.Body()[0].(*ast.Unknown)
	if !ok || unk.Text != "" {
		t.Errorf("body[0] = %#v, want Unknown with empty text", res.Body()[0])
	}

	res, err = Default(nil, nil).Decode(data, "0123456789")
	if err != nil || res.Tier != ast.TierBinary {
		t.Errorf("Decode = %+v, %v", res, err)
	}
}

func TestChainRecoversPanickingTier(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	boom := Func{Label: "boom", Fn: func([]byte, string) (*ast.Result, error) {
		var s []int
		_ = s[3]
		return nil, nil
	}}
	chain := NewChain(zap.New(core), boom, Heuristic{})

	res, err := chain.Decode([]byte("x"), "x = 1")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if res.Tier != ast.TierHeuristic {
		t.Errorf("tier = %s, want heuristic", res.Tier)
	}
	if len(res.Diagnostics.Warnings) != 1 || !strings.Contains(res.Diagnostics.Warnings[0].Message, "boom decoder failed: panic") {
		t.Errorf("warnings = %+v", res.Diagnostics.Warnings)
	}
	if logs.FilterMessage("decoder tier failed").Len() != 1 {
		t.Error("panicking tier not logged")
	}
}
