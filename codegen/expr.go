package codegen

import (
	"strconv"
	"strings"

	"github.com/wippyai/rb2js/ast"
)

var binaryOps = map[string]string{
	"+": "+", "-": "-", "*": "*", "/": "/", "%": "%", "**": "**",
	"<": "<", ">": ">", "<=": "<=", ">=": ">=",
	"==": "===", "!=": "!==",
	"&": "&", "|": "|", "^": "^", ">>": ">>",
	"&&": "&&", "||": "||",
}

var unaryOps = map[string]string{
	"-@": "-", "+@": "+", "!": "!", "~": "~",
}

// expr renders n as a single JavaScript expression.
func (e *emitter) expr(n ast.Node) (string, error) {
	switch n := n.(type) {
	case nil:
		return "null", nil
	case *ast.StringLiteral:
		return quote(n.Value), nil
	case *ast.SymbolLiteral:
		return quote(n.Value), nil
	case *ast.IntegerLiteral:
		return strconv.FormatInt(n.Value, 10), nil
	case *ast.FloatLiteral:
		return formatFloat(n.Value), nil
	case *ast.BooleanLiteral:
		return strconv.FormatBool(n.Value), nil
	case *ast.NilLiteral:
		return "null", nil
	case *ast.Self:
		return "this", nil
	case *ast.Variable:
		return variable(n), nil
	case *ast.ArrayLiteral:
		return e.array(n)
	case *ast.HashLiteral:
		return e.hash(n)
	case *ast.Call:
		return e.call(n)
	case *ast.Block:
		return e.block(n, true), nil
	case *ast.If:
		return e.ternary(n)
	case *ast.Program:
		if len(n.Body) == 1 {
			return e.expr(n.Body[0])
		}
		return "", &unsupportedError{tag: n.Tag()}
	case *ast.Assignment, *ast.While, *ast.Def, *ast.Return, *ast.Comment, *ast.Unknown:
		return "", &unsupportedError{tag: n.Tag()}
	default:
		return "", &unsupportedError{tag: n.Tag()}
	}
}

// operand renders n for use inside a larger expression.
func (e *emitter) operand(n ast.Node) (string, error) {
	s, err := e.expr(n)
	if err != nil {
		return "", err
	}
	if needsParens(n, s) {
		return "(" + s + ")", nil
	}
	return s, nil
}

func needsParens(n ast.Node, s string) bool {
	switch n := n.(type) {
	case *ast.Call:
		return isOperator(n)
	case *ast.If, *ast.Block, *ast.HashLiteral:
		return true
	case *ast.IntegerLiteral, *ast.FloatLiteral:
		return strings.HasPrefix(s, "-")
	}
	return false
}

func isOperator(n *ast.Call) bool {
	if n.Receiver == nil || n.Block != nil {
		return false
	}
	if _, ok := binaryOps[n.Name]; ok && len(n.Arguments) == 1 {
		return true
	}
	_, ok := unaryOps[n.Name]
	return ok && len(n.Arguments) == 0
}

func variable(n *ast.Variable) string {
	switch n.Scope {
	case ast.ScopeInstance:
		return "this" + member(strings.TrimLeft(n.Name, "@"))
	case ast.ScopeGlobal:
		return "globalThis" + member(strings.TrimPrefix(n.Name, "$"))
	default:
		return ident(n.Name)
	}
}

func (e *emitter) ternary(n *ast.If) (string, error) {
	if len(n.Then) != 1 || len(n.Else) > 1 {
		return "", &unsupportedError{tag: n.Tag()}
	}
	cond, err := e.condition(n.Condition, n.Negated)
	if err != nil {
		return "", err
	}
	then, err := e.operand(n.Then[0])
	if err != nil {
		return "", err
	}
	els := "null"
	if len(n.Else) == 1 {
		if els, err = e.operand(n.Else[0]); err != nil {
			return "", err
		}
	}
	return cond + " ? " + then + " : " + els, nil
}

func (e *emitter) args(nodes []ast.Node) ([]string, error) {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		s, err := e.expr(n)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (e *emitter) call(n *ast.Call) (string, error) {
	if n.Receiver == nil {
		if s, ok, err := e.intrinsic(n); ok || err != nil {
			return s, err
		}
	} else if isOperator(n) {
		return e.operator(n)
	}

	args, err := e.args(n.Arguments)
	if err != nil {
		return "", err
	}

	if n.Receiver == nil {
		if n.Block != nil {
			args = append(args, e.block(n.Block, true))
		}
		return ident(n.Name) + "(" + strings.Join(args, ", ") + ")", nil
	}

	if v, ok := n.Receiver.(*ast.Variable); ok && n.Name == "new" && v.Scope == ast.ScopeConstant && e.g.baseTypes[v.Name] {
		if n.Block != nil {
			args = append(args, e.block(n.Block, true))
		}
		return "new " + v.Name + "(" + strings.Join(args, ", ") + ")", nil
	}

	recv, err := e.operand(n.Receiver)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(recv, "-") {
		recv = "(" + recv + ")"
	}

	if n.Block == nil {
		switch {
		case n.Name == "[]" && len(args) == 1:
			return recv + "[" + args[0] + "]", nil
		case n.Name == "[]=" && len(args) == 2:
			return recv + "[" + args[0] + "] = " + args[1], nil
		case n.Name == "<<" && len(args) == 1:
			return recv + ".push(" + args[0] + ")", nil
		case isSetter(n.Name) && len(args) == 1:
			return recv + member(strings.TrimSuffix(n.Name, "=")) + " = " + args[0], nil
		}
	} else {
		args = append(args, e.block(n.Block, true))
	}
	return recv + member(n.Name) + "(" + strings.Join(args, ", ") + ")", nil
}

func (e *emitter) operator(n *ast.Call) (string, error) {
	recv, err := e.operand(n.Receiver)
	if err != nil {
		return "", err
	}
	if op, ok := unaryOps[n.Name]; ok && len(n.Arguments) == 0 {
		return op + recv, nil
	}
	rhs, err := e.operand(n.Arguments[0])
	if err != nil {
		return "", err
	}
	return recv + " " + binaryOps[n.Name] + " " + rhs, nil
}

// intrinsic lowers the DSL built-ins. ok is false for any other call.
func (e *emitter) intrinsic(n *ast.Call) (s string, ok bool, err error) {
	in := e.g.intrinsics
	switch n.Name {
	case "puts":
		args, err := e.args(n.Arguments)
		if err != nil {
			return "", true, err
		}
		return in.Print + "(" + strings.Join(args, ", ") + ")", true, nil

	case "grab":
		if len(n.Arguments) != 1 || n.Block != nil {
			return "", false, nil
		}
		id, err := e.expr(n.Arguments[0])
		if err != nil {
			return "", true, err
		}
		return in.Lookup + "(" + id + ")", true, nil

	case "wait":
		if len(n.Arguments) > 1 {
			return "", false, nil
		}
		ms, err := e.milliseconds(n.Arguments)
		if err != nil {
			return "", true, err
		}
		fn := "() => {}"
		if n.Block != nil {
			fn = e.block(n.Block, false)
		}
		return in.Timer + "(" + fn + ", " + ms + ")", true, nil
	}
	return "", false, nil
}

// milliseconds converts a wait duration in seconds.
func (e *emitter) milliseconds(args []ast.Node) (string, error) {
	if len(args) == 0 {
		return "0", nil
	}
	switch v := args[0].(type) {
	case *ast.IntegerLiteral:
		return strconv.FormatInt(v.Value*1000, 10), nil
	case *ast.FloatLiteral:
		return strconv.FormatFloat(v.Value*1000, 'f', -1, 64), nil
	}
	s, err := e.operand(args[0])
	if err != nil {
		return "", err
	}
	return s + " * 1000", nil
}

func (e *emitter) array(n *ast.ArrayLiteral) (string, error) {
	if len(n.Elements) == 0 {
		return "[]", nil
	}
	items := e.entries(len(n.Elements), func(i int) (string, error) {
		return e.expr(n.Elements[i])
	})
	return e.literal("[", "]", items), nil
}

func (e *emitter) hash(n *ast.HashLiteral) (string, error) {
	if len(n.Pairs) == 0 {
		return "{}", nil
	}
	items := e.entries(len(n.Pairs), func(i int) (string, error) {
		k, err := e.key(n.Pairs[i].Key)
		if err != nil {
			return "", err
		}
		v, err := e.expr(n.Pairs[i].Value)
		if err != nil {
			return "", err
		}
		return k + ": " + v, nil
	})
	return e.literal("{ ", " }", items), nil
}

func (e *emitter) key(n ast.Node) (string, error) {
	switch k := n.(type) {
	case *ast.SymbolLiteral:
		return propertyName(k.Value), nil
	case *ast.StringLiteral:
		return propertyName(k.Value), nil
	}
	s, err := e.expr(n)
	if err != nil {
		return "", err
	}
	return "[" + s + "]", nil
}

type entry struct {
	text    string
	comment bool
}

// entries renders count items one level deeper. A failing item becomes a
// diagnostic comment.
func (e *emitter) entries(count int, render func(int) (string, error)) []entry {
	out := make([]entry, count)
	e.depth++
	for i := range count {
		s, err := render(i)
		if err != nil {
			out[i] = entry{text: e.comment(tagOf(err)), comment: true}
			continue
		}
		out[i] = entry{text: s}
	}
	e.depth--
	return out
}

// literal joins items on one line when possible, otherwise one item per
// line with a trailing comma on all but the last real item.
func (e *emitter) literal(open, end string, items []entry) string {
	multi := false
	lastReal := -1
	for i, it := range items {
		if it.comment || strings.Contains(it.text, "\n") {
			multi = true
		}
		if !it.comment {
			lastReal = i
		}
	}
	if !multi {
		texts := make([]string, len(items))
		for i, it := range items {
			texts[i] = it.text
		}
		return open + strings.Join(texts, ", ") + end
	}

	inner := e.indent() + e.g.indent
	var b strings.Builder
	b.WriteString(strings.TrimSpace(open))
	for i, it := range items {
		b.WriteString("\n" + inner + it.text)
		if !it.comment && i < lastReal {
			b.WriteString(",")
		}
	}
	b.WriteString("\n" + e.indent() + strings.TrimSpace(end))
	return b.String()
}
