package decoder

import (
	"github.com/wippyai/rb2js/ast"
	"github.com/wippyai/rb2js/prismfmt"
)

// Binary decodes the prismfmt serialization and lowers its records into
// ast nodes. Any record type outside the known schema fails the tier.
type Binary struct {
	// KeepComments adds header comments to the top-level body as
	// ast.Comment nodes, ordered by position.
	KeepComments bool
}

func (Binary) Name() string { return string(ast.TierBinary) }

func (b Binary) TryDecode(data []byte, source string) (*ast.Result, error) {
	doc, err := prismfmt.Decode(data)
	if err != nil {
		return nil, err
	}

	l := &lowering{source: source}
	prog := &ast.Program{Location: l.loc(doc.Root.Location), Body: []ast.Node{}}
	if stmts := doc.Root.Node("statements"); stmts != nil {
		prog.Body = l.statements(stmts)
	}
	if b.KeepComments {
		prog.Body = l.interleaveComments(prog.Body, doc.Comments)
	}

	res := &ast.Result{
		Node:    prog,
		Source:  source,
		Tier:    ast.TierBinary,
		Success: true,
	}
	for _, d := range doc.Errors {
		res.Diagnostics.Errors = append(res.Diagnostics.Errors, l.diagnostic(d, ast.LevelError))
	}
	for _, d := range doc.Warnings {
		res.Diagnostics.Warnings = append(res.Diagnostics.Warnings, l.diagnostic(d, ast.LevelWarning))
	}
	return res, nil
}

type lowering struct {
	source string
}

func (l *lowering) loc(loc prismfmt.Location) ast.Location {
	return ast.Location{StartOffset: int(loc.Start), EndOffset: int(loc.End())}
}

func (l *lowering) text(loc prismfmt.Location) string {
	end := loc.End()
	if end > uint64(len(l.source)) {
		return ""
	}
	return l.source[loc.Start:end]
}

func (l *lowering) diagnostic(d prismfmt.Diagnostic, level ast.Level) ast.Diagnostic {
	return ast.Diagnostic{Message: d.Message, Level: level, Location: l.loc(d.Location)}
}

func (l *lowering) unknown(r *prismfmt.Record) ast.Node {
	return &ast.Unknown{Type: r.Type.String(), Text: l.text(r.Location), Location: l.loc(r.Location)}
}

// statements lowers a StatementsNode, or any single node, to a list.
func (l *lowering) statements(r *prismfmt.Record) []ast.Node {
	if r == nil {
		return nil
	}
	if r.Type != prismfmt.NodeStatements {
		return []ast.Node{l.node(r)}
	}
	body := r.Nodes("body")
	out := make([]ast.Node, 0, len(body))
	for _, n := range body {
		out = append(out, l.node(n))
	}
	return out
}

func (l *lowering) list(rs []*prismfmt.Record) []ast.Node {
	out := make([]ast.Node, 0, len(rs))
	for _, r := range rs {
		out = append(out, l.node(r))
	}
	return out
}

func (l *lowering) node(r *prismfmt.Record) ast.Node {
	loc := l.loc(r.Location)
	switch r.Type {
	case prismfmt.NodeLocalVariableWrite, prismfmt.NodeInstanceVariableWrite,
		prismfmt.NodeGlobalVariableWrite, prismfmt.NodeConstantWrite:
		name := r.Const("name")
		return &ast.Assignment{Name: name, Scope: ast.ScopeOf(name), Value: l.node(r.Node("value")), Location: loc}

	case prismfmt.NodeLocalVariableOperatorWrite:
		name := r.Const("name")
		return &ast.Assignment{
			Name:     name,
			Scope:    ast.ScopeOf(name),
			Operator: r.Const("binary_operator"),
			Value:    l.node(r.Node("value")),
			Location: loc,
		}

	case prismfmt.NodeLocalVariableRead, prismfmt.NodeInstanceVariableRead,
		prismfmt.NodeGlobalVariableRead, prismfmt.NodeConstantRead:
		name := r.Const("name")
		return &ast.Variable{Name: name, Scope: ast.ScopeOf(name), Location: loc}

	case prismfmt.NodeCall:
		return l.call(r)

	case prismfmt.NodeAnd, prismfmt.NodeOr:
		op := "&&"
		if r.Type == prismfmt.NodeOr {
			op = "||"
		}
		return &ast.Call{
			Receiver:  l.node(r.Node("left")),
			Name:      op,
			Arguments: []ast.Node{l.node(r.Node("right"))},
			Location:  loc,
		}

	case prismfmt.NodeParentheses:
		body := l.statements(r.Node("body"))
		switch len(body) {
		case 0:
			return &ast.NilLiteral{Location: loc}
		case 1:
			return body[0]
		}
		return l.unknown(r)

	case prismfmt.NodeString:
		return &ast.StringLiteral{Value: r.Field("unescaped").String, Location: loc}

	case prismfmt.NodeSymbol:
		return &ast.SymbolLiteral{Value: r.Field("unescaped").String, Location: loc}

	case prismfmt.NodeInterpolatedString:
		return l.interpolated(r)

	case prismfmt.NodeInteger:
		v, ok := r.Field("value").Int()
		if !ok {
			return l.unknown(r)
		}
		return &ast.IntegerLiteral{Value: v, Location: loc}

	case prismfmt.NodeFloat:
		return &ast.FloatLiteral{Value: r.Field("value").Float, Location: loc}

	case prismfmt.NodeTrue, prismfmt.NodeFalse:
		return &ast.BooleanLiteral{Value: r.Type == prismfmt.NodeTrue, Location: loc}

	case prismfmt.NodeNil:
		return &ast.NilLiteral{Location: loc}

	case prismfmt.NodeSelf:
		return &ast.Self{Location: loc}

	case prismfmt.NodeArray:
		return &ast.ArrayLiteral{Elements: l.list(r.Nodes("elements")), Location: loc}

	case prismfmt.NodeHash, prismfmt.NodeKeywordHash:
		return l.hash(r)

	case prismfmt.NodeIf:
		n := &ast.If{
			Condition: l.node(r.Node("predicate")),
			Then:      l.statements(r.Node("statements")),
			Location:  loc,
		}
		n.Else = l.elseBranch(r.Node("subsequent"))
		return n

	case prismfmt.NodeUnless:
		return &ast.If{
			Condition: l.node(r.Node("predicate")),
			Then:      l.statements(r.Node("statements")),
			Else:      l.elseBranch(r.Node("else_clause")),
			Negated:   true,
			Location:  loc,
		}

	case prismfmt.NodeWhile, prismfmt.NodeUntil:
		return &ast.While{
			Condition: l.node(r.Node("predicate")),
			Body:      l.statements(r.Node("statements")),
			Negated:   r.Type == prismfmt.NodeUntil,
			Location:  loc,
		}

	case prismfmt.NodeDef:
		if r.Node("receiver") != nil {
			return l.unknown(r)
		}
		return &ast.Def{
			Name:     r.Const("name"),
			Params:   l.params(r.Node("parameters")),
			Body:     l.statements(r.Node("body")),
			Location: loc,
		}

	case prismfmt.NodeReturn:
		n := &ast.Return{Location: loc}
		if args := r.Node("arguments"); args != nil {
			vals := l.list(args.Nodes("arguments"))
			switch len(vals) {
			case 0:
			case 1:
				n.Value = vals[0]
			default:
				n.Value = &ast.ArrayLiteral{Elements: vals, Location: l.loc(args.Location)}
			}
		}
		return n

	case prismfmt.NodeEmbeddedStatements:
		body := l.statements(r.Node("statements"))
		if len(body) == 0 {
			return &ast.StringLiteral{Location: loc}
		}
		return body[len(body)-1]
	}
	return l.unknown(r)
}

func (l *lowering) elseBranch(r *prismfmt.Record) []ast.Node {
	if r == nil {
		return nil
	}
	switch r.Type {
	case prismfmt.NodeElse:
		body := l.statements(r.Node("statements"))
		if body == nil {
			body = []ast.Node{}
		}
		return body
	case prismfmt.NodeIf:
		return []ast.Node{l.node(r)}
	}
	return []ast.Node{l.unknown(r)}
}

func (l *lowering) call(r *prismfmt.Record) ast.Node {
	n := &ast.Call{Name: r.Const("name"), Location: l.loc(r.Location)}
	if recv := r.Node("receiver"); recv != nil {
		n.Receiver = l.node(recv)
	}
	if args := r.Node("arguments"); args != nil {
		n.Arguments = l.list(args.Nodes("arguments"))
	}
	if blk := r.Node("block"); blk != nil {
		if blk.Type != prismfmt.NodeBlock {
			n.Arguments = append(n.Arguments, l.unknown(blk))
			return n
		}
		b := &ast.Block{Body: l.statements(blk.Node("body")), Location: l.loc(blk.Location)}
		if bp := blk.Node("parameters"); bp != nil && bp.Type == prismfmt.NodeBlockParameters {
			b.Params = l.params(bp.Node("parameters"))
		}
		n.Block = b
	}
	return n
}

func (l *lowering) hash(r *prismfmt.Record) ast.Node {
	h := &ast.HashLiteral{Location: l.loc(r.Location)}
	for _, e := range r.Nodes("elements") {
		if e.Type != prismfmt.NodeAssoc {
			// A pair the generator cannot express still keeps its slot.
			h.Pairs = append(h.Pairs, ast.Pair{Key: l.unknown(e), Value: &ast.NilLiteral{}})
			continue
		}
		h.Pairs = append(h.Pairs, ast.Pair{Key: l.node(e.Node("key")), Value: l.node(e.Node("value"))})
	}
	return h
}

// params collects required and optional parameter names.
func (l *lowering) params(r *prismfmt.Record) []string {
	if r == nil || r.Type != prismfmt.NodeParameters {
		return nil
	}
	var names []string
	for _, group := range []string{"requireds", "optionals", "posts"} {
		for _, p := range r.Nodes(group) {
			if name := p.Const("name"); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

// interpolated folds parts into a left-leaning "+" chain that starts with a
// string, so the result is always a string concatenation.
func (l *lowering) interpolated(r *prismfmt.Record) ast.Node {
	loc := l.loc(r.Location)
	parts := l.list(r.Nodes("parts"))
	if len(parts) == 0 {
		return &ast.StringLiteral{Location: loc}
	}
	var acc ast.Node = parts[0]
	if _, ok := acc.(*ast.StringLiteral); !ok {
		acc = &ast.Call{Receiver: &ast.StringLiteral{Location: loc}, Name: "+", Arguments: []ast.Node{acc}, Location: loc}
	}
	for _, p := range parts[1:] {
		acc = &ast.Call{Receiver: acc, Name: "+", Arguments: []ast.Node{p}, Location: loc}
	}
	return acc
}

func (l *lowering) interleaveComments(body []ast.Node, comments []prismfmt.Comment) []ast.Node {
	if len(comments) == 0 {
		return body
	}
	out := make([]ast.Node, 0, len(body)+len(comments))
	i := 0
	for _, c := range comments {
		for i < len(body) && body[i].Loc().StartOffset < int(c.Location.Start) {
			out = append(out, body[i])
			i++
		}
		out = append(out, &ast.Comment{Text: l.text(c.Location), Location: l.loc(c.Location)})
	}
	return append(out, body[i:]...)
}

