package codegen

import (
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/rb2js/ast"
)

func local(name string, value ast.Node) *ast.Assignment {
	return &ast.Assignment{Name: name, Value: value, Scope: ast.ScopeOf(name)}
}

func ref(name string) *ast.Variable {
	return &ast.Variable{Name: name, Scope: ast.ScopeOf(name)}
}

func num(v int64) *ast.IntegerLiteral { return &ast.IntegerLiteral{Value: v} }

func str(s string) *ast.StringLiteral { return &ast.StringLiteral{Value: s} }

func sym(s string) *ast.SymbolLiteral { return &ast.SymbolLiteral{Value: s} }

func call(recv ast.Node, name string, args ...ast.Node) *ast.Call {
	return &ast.Call{Receiver: recv, Name: name, Arguments: args}
}

func puts(args ...ast.Node) *ast.Call { return call(nil, "puts", args...) }

func TestGenerate(t *testing.T) {
	tests := []struct {
		name  string
		nodes []ast.Node
		want  []string
	}{
		{
			name:  "assignment",
			nodes: []ast.Node{local("x", num(5))},
			want:  []string{"const x = 5;"},
		},
		{
			name:  "puts",
			nodes: []ast.Node{puts(str("hi"))},
			want:  []string{`console.log("hi");`},
		},
		{
			name:  "comment only",
			nodes: []ast.Node{&ast.Comment{Text: "# note"}},
			want:  nil,
		},
		{
			name: "literals",
			nodes: []ast.Node{
				local("f", &ast.FloatLiteral{Value: 2}),
				local("t", &ast.BooleanLiteral{Value: true}),
				local("n", &ast.NilLiteral{}),
				local("s", sym("ready")),
				local("list", &ast.ArrayLiteral{Elements: []ast.Node{num(1), num(-2)}}),
				local("empty", &ast.HashLiteral{}),
			},
			want: []string{
				"const f = 2.0;",
				"const t = true;",
				"const n = null;",
				`const s = "ready";`,
				"const list = [1, -2];",
				"const empty = {};",
			},
		},
		{
			name: "hash keys",
			nodes: []ast.Node{local("opts", &ast.HashLiteral{Pairs: []ast.Pair{
				{Key: sym("id"), Value: str("box")},
				{Key: str("data-x"), Value: num(1)},
				{Key: num(3), Value: &ast.NilLiteral{}},
			}})},
			want: []string{`const opts = { id: "box", "data-x": 1, [3]: null };`},
		},
		{
			name: "reassignment uses let",
			nodes: []ast.Node{
				local("x", num(1)),
				local("x", call(ref("x"), "+", num(1))),
				&ast.Assignment{Name: "x", Operator: "*", Value: num(2), Scope: ast.ScopeLocal},
			},
			want: []string{"let x = 1;", "x = x + 1;", "x *= 2;"},
		},
		{
			name: "first assignment in a branch is hoisted",
			nodes: []ast.Node{
				&ast.If{
					Condition: ref("ok"),
					Then:      []ast.Node{local("y", num(1))},
					Else:      []ast.Node{local("y", num(2))},
				},
				puts(ref("y")),
			},
			want: []string{
				"let y;",
				"if (ok) {",
				"  y = 1;",
				"} else {",
				"  y = 2;",
				"}",
				"console.log(y);",
			},
		},
		{
			name: "instance and global variables",
			nodes: []ast.Node{
				local("@count", num(0)),
				local("$debug", &ast.BooleanLiteral{Value: true}),
				puts(ref("@count"), ref("$debug")),
			},
			want: []string{
				"this.count = 0;",
				"globalThis.debug = true;",
				"console.log(this.count, globalThis.debug);",
			},
		},
		{
			name: "wait with block",
			nodes: []ast.Node{&ast.Call{
				Name:      "wait",
				Arguments: []ast.Node{num(2)},
				Block:     &ast.Block{Body: []ast.Node{puts(str("done"))}},
			}},
			want: []string{
				"setTimeout(() => {",
				`  console.log("done");`,
				"}, 2000);",
			},
		},
		{
			name: "wait with fractional and computed delays",
			nodes: []ast.Node{
				call(nil, "wait", &ast.FloatLiteral{Value: 0.5}),
				call(nil, "wait", ref("delay")),
			},
			want: []string{
				"setTimeout(() => {}, 500);",
				"setTimeout(() => {}, delay * 1000);",
			},
		},
		{
			name:  "grab",
			nodes: []ast.Node{local("title", call(nil, "grab", sym("title")))},
			want:  []string{`const title = document.getElementById("title");`},
		},
		{
			name: "constructor on a base type",
			nodes: []ast.Node{
				local("box", call(ref("VisualObject"), "new", &ast.HashLiteral{Pairs: []ast.Pair{
					{Key: sym("id"), Value: str("box")},
				}})),
				local("other", call(ref("Point"), "new", num(1))),
			},
			want: []string{
				`const box = new VisualObject({ id: "box" });`,
				"const other = Point.new(1);",
			},
		},
		{
			name: "calls with receivers",
			nodes: []ast.Node{
				call(ref("box"), "move_to", num(10), num(20)),
				call(ref("list"), "empty?"),
				call(&ast.Self{}, "refresh"),
				call(nil, "redraw"),
			},
			want: []string{
				"box.move_to(10, 20);",
				`list["empty?"]();`,
				"this.refresh();",
				"redraw();",
			},
		},
		{
			name: "index and attribute forms",
			nodes: []ast.Node{
				call(ref("items"), "[]", num(0)),
				call(ref("items"), "[]=", num(1), str("b")),
				call(ref("box"), "color=", str("red")),
				call(ref("items"), "<<", num(3)),
			},
			want: []string{
				"items[0];",
				`items[1] = "b";`,
				`box.color = "red";`,
				"items.push(3);",
			},
		},
		{
			name: "operators",
			nodes: []ast.Node{
				local("ok", call(call(ref("a"), "==", ref("b")), "&&", call(ref("c"), "!"))),
				local("neg", call(call(ref("x"), "**", num(2)), "-@")),
				local("diff", call(ref("a"), "-", num(-1))),
			},
			want: []string{
				"const ok = (a === b) && (!c);",
				"const neg = -(x ** 2);",
				"const diff = a - (-1);",
			},
		},
		{
			name: "block becomes arrow function",
			nodes: []ast.Node{&ast.Call{
				Receiver: ref("list"),
				Name:     "each",
				Block:    &ast.Block{Params: []string{"item"}, Body: []ast.Node{puts(ref("item"))}},
			}},
			want: []string{
				"list.each((item) => {",
				"  return console.log(item);",
				"});",
			},
		},
		{
			name: "block assigns to outer binding",
			nodes: []ast.Node{
				local("total", num(0)),
				&ast.Call{
					Receiver: ref("list"),
					Name:     "each",
					Block: &ast.Block{Params: []string{"n"}, Body: []ast.Node{
						&ast.Assignment{Name: "total", Operator: "+", Value: ref("n")},
						local("last", ref("n")),
					}},
				},
			},
			want: []string{
				"let total = 0;",
				"list.each((n) => {",
				"  total += n;",
				"  const last = n;",
				"  return last;",
				"});",
			},
		},
		{
			name: "elsif chain and unless",
			nodes: []ast.Node{
				&ast.If{
					Condition: call(ref("n"), ">", num(0)),
					Then:      []ast.Node{puts(str("pos"))},
					Else: []ast.Node{&ast.If{
						Condition: call(ref("n"), "<", num(0)),
						Then:      []ast.Node{puts(str("neg"))},
						Else:      []ast.Node{puts(str("zero"))},
					}},
				},
				&ast.If{Condition: ref("done"), Negated: true, Then: []ast.Node{call(nil, "tick")}},
			},
			want: []string{
				"if (n > 0) {",
				`  console.log("pos");`,
				"} else if (n < 0) {",
				`  console.log("neg");`,
				"} else {",
				`  console.log("zero");`,
				"}",
				"if (!done) {",
				"  tick();",
				"}",
			},
		},
		{
			name: "until loop",
			nodes: []ast.Node{&ast.While{
				Condition: ref("done"),
				Negated:   true,
				Body:      []ast.Node{call(nil, "tick")},
			}},
			want: []string{"while (!done) {", "  tick();", "}"},
		},
		{
			name: "def returns its last expression",
			nodes: []ast.Node{&ast.Def{
				Name:   "sign",
				Params: []string{"n"},
				Body: []ast.Node{
					&ast.Comment{Text: "# classify"},
					&ast.If{
						Condition: call(ref("n"), "<", num(0)),
						Then:      []ast.Node{str("negative")},
						Else:      []ast.Node{str("positive")},
					},
					&ast.Comment{Text: "# trailing"},
				},
			}},
			want: []string{
				"function sign(n) {",
				"  if (n < 0) {",
				`    return "negative";`,
				"  } else {",
				`    return "positive";`,
				"  }",
				"}",
			},
		},
		{
			name: "def has its own scope",
			nodes: []ast.Node{
				local("x", num(1)),
				&ast.Def{Name: "reset", Body: []ast.Node{local("x", num(0)), &ast.Return{}}},
			},
			want: []string{
				"const x = 1;",
				"function reset() {",
				"  const x = 0;",
				"  return;",
				"}",
			},
		},
		{
			name: "ternary",
			nodes: []ast.Node{local("label", &ast.If{
				Condition: ref("on"),
				Then:      []ast.Node{str("yes")},
			})},
			want: []string{`const label = on ? "yes" : null;`},
		},
		{
			name: "names",
			nodes: []ast.Node{
				local("class", num(1)),
				call(nil, "valid?", ref("class")),
				call(nil, "save!"),
			},
			want: []string{
				"const class_ = 1;",
				"valid_q(class_);",
				"save_b();",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := New(Options{}).Compile(tc.nodes)
			if diff := cmp.Diff(tc.want, out.Lines); diff != "" {
				t.Errorf("lines mismatch (-want +got):\n%s", diff)
			}
			if out.Stats.Unsupported != 0 {
				t.Errorf("unsupported = %d", out.Stats.Unsupported)
			}
		})
	}
}

func TestGenerateEscapesStrings(t *testing.T) {
	got := Generate([]ast.Node{puts(str("\"); alert(1); //\n</script> "))})
	want := `console.log("\"); alert(1); //\n\u003c/script\u003e\u2028");`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}

	got = Generate([]ast.Node{call(ref("obj"), "it's")})
	if got != `obj["it's"]();` {
		t.Errorf("method name not quoted: %s", got)
	}
}

func TestUnsupportedNodeKeepsOtherStatements(t *testing.T) {
	nodes := []ast.Node{
		local("x", num(1)),
		&ast.Unknown{Type: "ClassNode", Text: "class Foo; end"},
		puts(ref("x")),
		local("y", num(2)),
	}

	core, logs := observer.New(zapcore.WarnLevel)
	out := New(Options{Logger: zap.New(core)}).Compile(nodes)

	want := []string{
		"const x = 1;",
		"// unsupported node: ClassNode",
		"console.log(x);",
		"const y = 2;",
	}
	if diff := cmp.Diff(want, out.Lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
	if out.Stats != (Stats{Statements: 3, Unsupported: 1}) {
		t.Errorf("stats = %+v", out.Stats)
	}
	if n := logs.FilterMessage("generated code contains unsupported nodes").Len(); n != 1 {
		t.Errorf("warnings logged = %d, want 1", n)
	}
}

func TestUnsupportedHashEntry(t *testing.T) {
	nodes := []ast.Node{local("opts", &ast.HashLiteral{Pairs: []ast.Pair{
		{Key: sym("a"), Value: num(1)},
		{Key: sym("b"), Value: &ast.Unknown{Type: "RegularExpressionNode"}},
		{Key: sym("c"), Value: num(3)},
	}})}

	out := Generate(nodes)
	want := strings.Join([]string{
		"const opts = {",
		"  a: 1,",
		"  // unsupported node: RegularExpressionNode",
		"  c: 3",
		"};",
	}, "\n")
	if out != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestUnsupportedArrayElementNested(t *testing.T) {
	nodes := []ast.Node{&ast.Def{Name: "build", Body: []ast.Node{
		local("parts", &ast.ArrayLiteral{Elements: []ast.Node{
			num(1),
			call(nil, "f", &ast.Unknown{Type: "SplatNode"}),
		}}),
	}}}

	out := New(Options{}).Compile(nodes)
	want := []string{
		"function build() {",
		"  const parts = [",
		"    1",
		"    // unsupported node: SplatNode",
		"  ];",
		"  return parts;",
		"}",
	}
	if diff := cmp.Diff(want, out.Lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
	if out.Stats.Unsupported != 1 || out.Stats.Statements != 1 {
		t.Errorf("stats = %+v", out.Stats)
	}
}

func TestUnsupportedExpressionReplacesStatement(t *testing.T) {
	nodes := []ast.Node{
		puts(call(ref("a"), "+", &ast.Unknown{Type: "RangeNode"})),
		&ast.While{Condition: &ast.Unknown{Type: "MatchNode"}},
	}
	out := New(Options{}).Compile(nodes)
	want := []string{
		"// unsupported node: RangeNode",
		"// unsupported node: MatchNode",
	}
	if diff := cmp.Diff(want, out.Lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
	if out.Stats.Statements != 0 || out.Stats.Unsupported != 2 {
		t.Errorf("stats = %+v", out.Stats)
	}
}

func TestCustomOptions(t *testing.T) {
	g := New(Options{
		Intrinsics: Intrinsics{Print: "host.print"},
		BaseTypes:  []string{"Widget"},
		Indent:     "\t",
	})
	nodes := []ast.Node{
		&ast.Call{Name: "wait", Block: &ast.Block{Body: []ast.Node{puts(str("x"))}}},
		call(ref("Widget"), "new"),
		call(ref("VisualObject"), "new"),
	}
	want := strings.Join([]string{
		"setTimeout(() => {",
		"\thost.print(\"x\");",
		"}, 0);",
		"new Widget();",
		"VisualObject.new();",
	}, "\n")
	if got := g.Generate(nodes); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestHandlers(t *testing.T) {
	h := Handlers()
	for _, tag := range []ast.Tag{ast.TagAssignment, ast.TagCall, ast.TagHashLiteral, ast.TagComment} {
		if !slices.Contains(h, tag) {
			t.Errorf("missing handler for %s", tag)
		}
	}
	h[0] = "mutated"
	if Handlers()[0] == "mutated" {
		t.Error("Handlers returned shared slice")
	}
}
