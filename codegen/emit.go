package codegen

import (
	"fmt"
	"strings"

	"github.com/wippyai/rb2js/ast"
)

type status int

const (
	emitted status = iota
	dropped
	unsupported
)

// unsupportedError carries the tag of the innermost node an expression
// could not express. The enclosing statement, entry or element replaces
// itself with a diagnostic comment.
type unsupportedError struct {
	tag ast.Tag
}

func (e *unsupportedError) Error() string {
	return fmt.Sprintf("unsupported node: %s", e.tag)
}

func tagOf(err error) ast.Tag {
	if u, ok := err.(*unsupportedError); ok {
		return u.tag
	}
	return "Unknown"
}

// emitter holds the state of one Compile call.
type emitter struct {
	g     *Generator
	scope *scope
	lines []string
	stats Stats
	depth int
}

func (e *emitter) indent() string {
	return strings.Repeat(e.g.indent, e.depth)
}

// emit appends s at the current depth. Later lines of a multi-line s are
// already indented.
func (e *emitter) emit(s string) {
	first, rest, _ := strings.Cut(s, "\n")
	e.lines = append(e.lines, e.indent()+first)
	if rest != "" {
		e.lines = append(e.lines, strings.Split(rest, "\n")...)
	}
}

func (e *emitter) comment(tag ast.Tag) string {
	e.stats.Unsupported++
	return "// unsupported node: " + string(tag)
}

func (e *emitter) unsupported(tag ast.Tag) status {
	e.emit(e.comment(tag))
	return unsupported
}

// capture runs fn one level deeper and returns the lines it emitted.
func (e *emitter) capture(fn func()) []string {
	saved := e.lines
	e.lines = nil
	e.depth++
	fn()
	e.depth--
	out := e.lines
	e.lines = saved
	return out
}

func (e *emitter) nested(body []ast.Node, ret bool) {
	e.depth++
	e.statements(body, ret)
	e.depth--
}

func (e *emitter) declareHoisted() {
	if len(e.scope.hoisted) == 0 {
		return
	}
	names := make([]string, len(e.scope.hoisted))
	for i, n := range e.scope.hoisted {
		names[i] = ident(n)
	}
	e.emit("let " + strings.Join(names, ", ") + ";")
}

// statements emits body. With ret set, the last non-comment statement
// yields its value.
func (e *emitter) statements(body []ast.Node, ret bool) {
	last := -1
	if ret {
		for i := len(body) - 1; i >= 0; i-- {
			if _, ok := body[i].(*ast.Comment); !ok {
				last = i
				break
			}
		}
	}
	for i, n := range body {
		e.statement(n, i == last)
	}
}

func (e *emitter) statement(n ast.Node, ret bool) status {
	switch n := n.(type) {
	case nil:
		return dropped
	case *ast.Comment:
		return dropped
	case *ast.Unknown:
		return e.unsupported(n.Tag())
	case *ast.Program:
		e.statements(n.Body, ret)
		return emitted
	case *ast.Assignment:
		return e.assignment(n, ret)
	case *ast.If:
		return e.ifStatement(n, ret)
	case *ast.While:
		return e.while(n)
	case *ast.Def:
		e.def(n)
		return emitted
	case *ast.Return:
		return e.returnStatement(n)
	case *ast.Block:
		return e.expressionStatement(n, ret)
	case *ast.Call, *ast.Variable, *ast.Self,
		*ast.StringLiteral, *ast.IntegerLiteral, *ast.FloatLiteral,
		*ast.BooleanLiteral, *ast.NilLiteral, *ast.SymbolLiteral,
		*ast.ArrayLiteral, *ast.HashLiteral:
		return e.expressionStatement(n, ret)
	default:
		return e.unsupported(n.Tag())
	}
}

func (e *emitter) expressionStatement(n ast.Node, ret bool) status {
	s, err := e.expr(n)
	if err != nil {
		return e.unsupported(tagOf(err))
	}
	switch {
	case ret:
		s = "return " + s
	case strings.HasPrefix(s, "{"):
		s = "(" + s + ")"
	}
	e.emit(s + ";")
	return emitted
}

func (e *emitter) assignment(n *ast.Assignment, ret bool) status {
	value, err := e.expr(n.Value)
	if err != nil {
		return e.unsupported(tagOf(err))
	}

	op := "="
	if n.Operator != "" {
		op = n.Operator + "="
	}

	var target, decl string
	switch n.Scope {
	case ast.ScopeInstance:
		target = "this" + member(strings.TrimLeft(n.Name, "@"))
	case ast.ScopeGlobal:
		target = "globalThis" + member(strings.TrimPrefix(n.Name, "$"))
	default:
		target = ident(n.Name)
		if n.Operator == "" && !e.scope.resolves(n.Name) {
			decl = "const "
			if e.scope.mutable[n.Name] {
				decl = "let "
			}
			e.scope.declared[n.Name] = true
		}
	}

	e.emit(decl + target + " " + op + " " + value + ";")
	if ret {
		e.emit("return " + target + ";")
	}
	return emitted
}

func (e *emitter) ifStatement(n *ast.If, ret bool) status {
	cond, err := e.condition(n.Condition, n.Negated)
	if err != nil {
		return e.unsupported(tagOf(err))
	}
	e.emit("if (" + cond + ") {")
	e.nested(n.Then, ret)

	rest := n.Else
	for len(rest) == 1 {
		elif, ok := rest[0].(*ast.If)
		if !ok {
			break
		}
		c, err := e.condition(elif.Condition, elif.Negated)
		if err != nil {
			break
		}
		e.emit("} else if (" + c + ") {")
		e.nested(elif.Then, ret)
		rest = elif.Else
	}
	if len(rest) > 0 {
		e.emit("} else {")
		e.nested(rest, ret)
	}
	e.emit("}")
	return emitted
}

func (e *emitter) while(n *ast.While) status {
	cond, err := e.condition(n.Condition, n.Negated)
	if err != nil {
		return e.unsupported(tagOf(err))
	}
	e.emit("while (" + cond + ") {")
	e.nested(n.Body, false)
	e.emit("}")
	return emitted
}

func (e *emitter) def(n *ast.Def) {
	parent := e.scope
	e.scope = newScope(nil, n.Params, n.Body)
	defer func() { e.scope = parent }()

	e.emit("function " + ident(n.Name) + "(" + params(n.Params) + ") {")
	e.depth++
	e.declareHoisted()
	e.statements(n.Body, true)
	e.depth--
	e.emit("}")
}

func (e *emitter) returnStatement(n *ast.Return) status {
	if n.Value == nil {
		e.emit("return;")
		return emitted
	}
	v, err := e.expr(n.Value)
	if err != nil {
		return e.unsupported(tagOf(err))
	}
	e.emit("return " + v + ";")
	return emitted
}

func (e *emitter) condition(n ast.Node, negated bool) (string, error) {
	if !negated {
		return e.expr(n)
	}
	s, err := e.operand(n)
	if err != nil {
		return "", err
	}
	return "!" + s, nil
}

// block renders a block as an arrow function. With ret set the last
// statement is returned, matching block result semantics.
func (e *emitter) block(b *ast.Block, ret bool) string {
	parent := e.scope
	e.scope = newScope(parent, b.Params, b.Body)
	lines := e.capture(func() {
		e.declareHoisted()
		e.statements(b.Body, ret)
	})
	e.scope = parent

	head := "(" + params(b.Params) + ") => {"
	if len(lines) == 0 {
		return head + "}"
	}
	return head + "\n" + strings.Join(lines, "\n") + "\n" + e.indent() + "}"
}

func params(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = ident(n)
	}
	return strings.Join(out, ", ")
}
