package decoder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/rb2js/ast"
)

// Binding powers, loosest first.
const (
	bpLowest = 0
	bpNot    = 10
	bpUnary  = 75
)

var infixBP = map[string]int{
	"or": 10, "and": 10,
	"||": 20,
	"&&": 30,
	"==": 40, "!=": 40, "=~": 40, "!~": 40, "===": 40, "<=>": 40,
	"<": 50, ">": 50, "<=": 50, ">=": 50,
	"|": 55, "^": 55,
	"&": 57,
	"<<": 58, ">>": 58,
	"+": 60, "-": 60,
	"*": 70, "/": 70, "%": 70,
	"**": 80,
}

var compoundOps = map[string]string{
	"+=": "+", "-=": "-", "*=": "*", "/=": "/", "%=": "%", "**=": "**",
	"||=": "||", "&&=": "&&", "|=": "|", "&=": "&",
}

// Keywords that open or close multi-line structure the heuristic does not
// rebuild.
var structuralKeywords = map[string]bool{
	"end": true, "else": true, "begin": true, "class": true, "module": true,
	"rescue": true, "ensure": true, "case": true, "when": true, "do": true,
	"then": true, "yield": true, "break": true, "next": true, "redo": true, "retry": true,
}

type parser struct {
	locals map[string]bool
	toks   []token
	i      int
	// noDo leaves a trailing `do` to the enclosing while/until.
	noDo bool
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) peekAt(n int) token {
	if p.i+n < len(p.toks) {
		return p.toks[p.i+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) advance() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) atEnd() bool { return p.peek().kind == tokEOF }

// lastEnd is the end offset of the most recently consumed token.
func (p *parser) lastEnd() int {
	if p.i == 0 {
		return p.toks[0].pos
	}
	return p.toks[p.i-1].end
}

func (p *parser) span(start int) ast.Location {
	return ast.Location{StartOffset: start, EndOffset: p.lastEnd()}
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", p.peek().pos, fmt.Sprintf(format, args...))
}

func (p *parser) expectOp(op string) error {
	if !p.peek().op(op) {
		return p.errorf("expected %q, found %q", op, p.peek().text)
	}
	p.advance()
	return nil
}

func (p *parser) expectEnd() error {
	if !p.atEnd() {
		return p.errorf("unexpected %q", p.peek().text)
	}
	return nil
}

// line parses a whole source line as one top-level node.
func (p *parser) line() (ast.Node, error) {
	t := p.peek()
	if t.kind == tokKeyword {
		switch t.text {
		case "if", "unless", "elsif":
			return p.conditional()
		case "while", "until":
			return p.loop()
		case "def":
			return p.def()
		}
		if structuralKeywords[t.text] {
			return &ast.Unknown{Type: t.text, Text: t.text, Location: ast.Location{StartOffset: t.pos, EndOffset: t.end}}, nil
		}
	}
	n, err := p.statement()
	if err != nil {
		return nil, err
	}
	return n, p.expectEnd()
}

// conditional parses `if cond`, `unless cond` or `elsif cond`, with an
// optional `then` and inline body.
func (p *parser) conditional() (ast.Node, error) {
	kw := p.advance()
	cond, err := p.expr(bpLowest)
	if err != nil {
		return nil, err
	}
	n := &ast.If{Condition: cond, Negated: kw.text == "unless", Then: []ast.Node{}}
	if p.peek().kw("then") {
		p.advance()
		if n.Then, err = p.inlineBody("else", "end"); err != nil {
			return nil, err
		}
		if p.peek().kw("else") {
			p.advance()
			if n.Else, err = p.inlineBody("end"); err != nil {
				return nil, err
			}
		}
		if p.peek().kw("end") {
			p.advance()
		}
	}
	n.Location = p.span(kw.pos)
	return n, p.expectEnd()
}

func (p *parser) loop() (ast.Node, error) {
	kw := p.advance()
	p.noDo = true
	cond, err := p.expr(bpLowest)
	p.noDo = false
	if err != nil {
		return nil, err
	}
	if p.peek().kw("do") {
		p.advance()
	}
	n := &ast.While{Condition: cond, Negated: kw.text == "until", Body: []ast.Node{}, Location: p.span(kw.pos)}
	return n, p.expectEnd()
}

// def parses a method header: `def name`, `def name(a, b = 1)`,
// `def name a, b` or the endless `def name(a) = expr`.
func (p *parser) def() (ast.Node, error) {
	kw := p.advance()
	name := p.advance()
	if name.kind != tokIdent && name.kind != tokConst && name.kind != tokKeyword {
		return nil, p.errorf("expected method name")
	}
	n := &ast.Def{Name: name.text, Body: []ast.Node{}}
	if p.peek().op("=") && !p.peek().spaceBefore {
		p.advance()
		n.Name += "="
	}

	paren := p.peek().op("(")
	if paren {
		p.advance()
	}
	for !p.atEnd() && !p.peek().op(")") && !p.peek().op("=") {
		for p.peek().op("*") || p.peek().op("**") || p.peek().op("&") {
			p.advance()
		}
		param := p.advance()
		if param.kind != tokIdent && param.kind != tokLabel {
			return nil, p.errorf("expected parameter name")
		}
		n.Params = append(n.Params, param.text)
		p.locals[param.text] = true
		if param.kind == tokLabel && !p.peek().op(",") && !p.peek().op(")") && !p.atEnd() {
			if _, err := p.expr(bpLowest); err != nil {
				return nil, err
			}
		}
		if p.peek().op("=") && (paren || param.kind == tokIdent) {
			p.advance()
			if _, err := p.expr(bpLowest); err != nil {
				return nil, err
			}
		}
		if !p.peek().op(",") {
			break
		}
		p.advance()
	}
	if paren {
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
	}
	if p.peek().op("=") {
		p.advance()
		body, err := p.expr(bpLowest)
		if err != nil {
			return nil, err
		}
		n.Body = []ast.Node{body}
	}
	n.Location = p.span(kw.pos)
	return n, p.expectEnd()
}

// inlineBody parses `;`-separated statements up to one of the stop
// keywords, a closing brace or the end of the line.
func (p *parser) inlineBody(stop ...string) ([]ast.Node, error) {
	body := []ast.Node{}
	for {
		for p.peek().op(";") {
			p.advance()
		}
		t := p.peek()
		if t.kind == tokEOF || t.op("}") {
			return body, nil
		}
		for _, kw := range stop {
			if t.kw(kw) {
				return body, nil
			}
		}
		n, err := p.statement()
		if err != nil {
			return nil, err
		}
		body = append(body, n)
		if !p.peek().op(";") {
			return body, nil
		}
	}
}

// statement parses an assignment or expression with optional trailing
// modifier (`x if y`, `x while y`).
func (p *parser) statement() (ast.Node, error) {
	start := p.peek().pos
	var n ast.Node
	var err error
	if p.peek().kw("return") {
		p.advance()
		r := &ast.Return{}
		if !p.atEnd() && !p.peek().op(";") && !p.peek().op("}") && !isModifier(p.peek()) {
			if r.Value, err = p.expr(bpLowest); err != nil {
				return nil, err
			}
		}
		r.Location = p.span(start)
		n = r
	} else if n, err = p.expr(bpLowest); err != nil {
		return nil, err
	}

	if t := p.peek(); t.op("=") {
		p.advance()
		if n, err = p.assignment(n, "", start); err != nil {
			return nil, err
		}
	} else if op, ok := compoundOps[t.text]; ok && t.kind == tokOp {
		p.advance()
		if n, err = p.assignment(n, op, start); err != nil {
			return nil, err
		}
	}

	for isModifier(p.peek()) {
		kw := p.advance()
		cond, err := p.expr(bpLowest)
		if err != nil {
			return nil, err
		}
		switch kw.text {
		case "if", "unless":
			n = &ast.If{Condition: cond, Then: []ast.Node{n}, Negated: kw.text == "unless", Location: p.span(start)}
		default:
			n = &ast.While{Condition: cond, Body: []ast.Node{n}, Negated: kw.text == "until", Location: p.span(start)}
		}
	}
	return n, nil
}

func isModifier(t token) bool {
	return t.kind == tokKeyword && (t.text == "if" || t.text == "unless" || t.text == "while" || t.text == "until")
}

// assignment builds the node for `target = value` or `target op= value`.
// Attribute and index targets become setter calls.
func (p *parser) assignment(target ast.Node, op string, start int) (ast.Node, error) {
	value, err := p.expr(bpLowest)
	if err != nil {
		return nil, err
	}
	switch t := target.(type) {
	case *ast.Variable:
		if t.Scope == ast.ScopeLocal {
			p.locals[t.Name] = true
		}
		return &ast.Assignment{Name: t.Name, Scope: t.Scope, Operator: op, Value: value, Location: p.span(start)}, nil

	case *ast.Call:
		if op != "" {
			value = &ast.Call{Receiver: target, Name: op, Arguments: []ast.Node{value}, Location: p.span(start)}
		}
		switch {
		case t.Name == "[]" && t.Receiver != nil && t.Block == nil:
			args := append(append([]ast.Node{}, t.Arguments...), value)
			return &ast.Call{Receiver: t.Receiver, Name: "[]=", Arguments: args, Location: p.span(start)}, nil
		case t.Receiver != nil && len(t.Arguments) == 0 && t.Block == nil && isIdentName(t.Name):
			return &ast.Call{Receiver: t.Receiver, Name: t.Name + "=", Arguments: []ast.Node{value}, Location: p.span(start)}, nil
		}
	}
	return nil, p.errorf("invalid assignment target")
}

func isIdentName(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}

// expr is the Pratt loop: a prefix form, postfix calls and indexing, then
// infix operators binding tighter than minBP.
func (p *parser) expr(minBP int) (ast.Node, error) {
	start := p.peek().pos
	left, err := p.prefix()
	if err != nil {
		return nil, err
	}
	if left, err = p.postfix(left, start); err != nil {
		return nil, err
	}

	for {
		t := p.peek()
		if t.kind != tokOp && !t.kw("and") && !t.kw("or") {
			return left, nil
		}
		bp, ok := infixBP[t.text]
		if !ok || bp <= minBP {
			return left, nil
		}
		p.advance()
		next := bp
		if t.text != "**" {
			next = bp + 1
		}
		right, err := p.expr(next - 1)
		if err != nil {
			return nil, err
		}
		name := t.text
		switch name {
		case "and":
			name = "&&"
		case "or":
			name = "||"
		}
		left = &ast.Call{Receiver: left, Name: name, Arguments: []ast.Node{right}, Location: p.span(start)}
	}
}

func (p *parser) prefix() (ast.Node, error) {
	t := p.advance()
	loc := ast.Location{StartOffset: t.pos, EndOffset: t.end}
	switch t.kind {
	case tokInt:
		v, err := strconv.ParseInt(strings.ReplaceAll(t.text, "_", ""), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("integer %q: %w", t.text, err)
		}
		return &ast.IntegerLiteral{Value: v, Location: loc}, nil

	case tokFloat:
		v, err := strconv.ParseFloat(strings.ReplaceAll(t.text, "_", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("float %q: %w", t.text, err)
		}
		return &ast.FloatLiteral{Value: v, Location: loc}, nil

	case tokString:
		return p.str(t)

	case tokSymbol:
		return &ast.SymbolLiteral{Value: t.text, Location: loc}, nil

	case tokIVar, tokGVar, tokConst:
		return &ast.Variable{Name: t.text, Scope: ast.ScopeOf(t.text), Location: loc}, nil

	case tokIdent:
		return p.identifier(t)

	case tokKeyword:
		switch t.text {
		case "true", "false":
			return &ast.BooleanLiteral{Value: t.text == "true", Location: loc}, nil
		case "nil":
			return &ast.NilLiteral{Location: loc}, nil
		case "self":
			return &ast.Self{Location: loc}, nil
		case "not":
			operand, err := p.expr(bpNot)
			if err != nil {
				return nil, err
			}
			return &ast.Call{Receiver: operand, Name: "!", Location: p.span(t.pos)}, nil
		}

	case tokOp:
		switch t.text {
		case "!":
			operand, err := p.expr(bpUnary)
			if err != nil {
				return nil, err
			}
			return &ast.Call{Receiver: operand, Name: "!", Location: p.span(t.pos)}, nil
		case "-":
			operand, err := p.expr(bpUnary)
			if err != nil {
				return nil, err
			}
			switch lit := operand.(type) {
			case *ast.IntegerLiteral:
				lit.Value = -lit.Value
				lit.Location.StartOffset = t.pos
				return lit, nil
			case *ast.FloatLiteral:
				lit.Value = -lit.Value
				lit.Location.StartOffset = t.pos
				return lit, nil
			}
			return &ast.Call{Receiver: operand, Name: "-@", Location: p.span(t.pos)}, nil
		case "(":
			if p.peek().op(")") {
				p.advance()
				return &ast.NilLiteral{Location: p.span(t.pos)}, nil
			}
			inner, err := p.statement()
			if err != nil {
				return nil, err
			}
			return inner, p.expectOp(")")
		case "[":
			elems, err := p.list("]")
			if err != nil {
				return nil, err
			}
			return &ast.ArrayLiteral{Elements: elems, Location: p.span(t.pos)}, nil
		case "{":
			return p.hash(t.pos)
		}
	}
	if t.kind == tokEOF {
		return nil, p.errorf("unexpected end of line")
	}
	return nil, fmt.Errorf("offset %d: unexpected %q", t.pos, t.text)
}

// str builds a string literal, folding interpolations into a "+" chain
// that starts with a string.
func (p *parser) str(t token) (ast.Node, error) {
	loc := ast.Location{StartOffset: t.pos, EndOffset: t.end}
	var acc ast.Node
	for _, part := range t.parts {
		var n ast.Node
		if part.isCode {
			toks, err := lex(part.text, part.pos)
			if err != nil {
				return nil, err
			}
			sub := &parser{toks: toks, locals: p.locals}
			if sub.atEnd() {
				n = &ast.StringLiteral{Location: loc}
			} else {
				if n, err = sub.statement(); err != nil {
					return nil, err
				}
				if err := sub.expectEnd(); err != nil {
					return nil, err
				}
			}
		} else {
			n = &ast.StringLiteral{Value: part.text, Location: loc}
		}
		switch {
		case acc == nil && part.isCode:
			acc = &ast.Call{Receiver: &ast.StringLiteral{Location: loc}, Name: "+", Arguments: []ast.Node{n}, Location: loc}
		case acc == nil:
			acc = n
		default:
			acc = &ast.Call{Receiver: acc, Name: "+", Arguments: []ast.Node{n}, Location: loc}
		}
	}
	if acc == nil {
		acc = &ast.StringLiteral{Location: loc}
	}
	return acc, nil
}

// identifier resolves a bare name: a call when followed by parenthesized
// or command arguments or a block, otherwise a local variable read.
func (p *parser) identifier(t token) (ast.Node, error) {
	next := p.peek()
	call := &ast.Call{Name: t.text}
	switch {
	case next.op("(") && !next.spaceBefore:
		p.advance()
		args, err := p.list(")")
		if err != nil {
			return nil, err
		}
		call.Arguments = args
	case !p.locals[t.text] && p.startsCommandArg():
		args, err := p.commandArgs()
		if err != nil {
			return nil, err
		}
		call.Arguments = args
	case (next.kw("do") && !p.noDo) || (next.op("{") && !p.locals[t.text]):
	default:
		return &ast.Variable{Name: t.text, Scope: ast.ScopeLocal, Location: ast.Location{StartOffset: t.pos, EndOffset: t.end}}, nil
	}
	if err := p.block(call); err != nil {
		return nil, err
	}
	call.Location = p.span(t.pos)
	return call, nil
}

// startsCommandArg reports whether the next token begins an argument of a
// parenthesis-free call such as `puts "hi"`.
func (p *parser) startsCommandArg() bool {
	t := p.peek()
	if !t.spaceBefore {
		return false
	}
	switch t.kind {
	case tokInt, tokFloat, tokString, tokSymbol, tokIdent, tokConst, tokIVar, tokGVar, tokLabel:
		return true
	case tokKeyword:
		switch t.text {
		case "true", "false", "nil", "self", "not":
			return true
		}
	case tokOp:
		switch t.text {
		case "[", "(", "!":
			return true
		case "-":
			return !p.peekAt(1).spaceBefore && p.peekAt(1).kind != tokEOF
		}
	}
	return false
}

func (p *parser) commandArgs() ([]ast.Node, error) {
	var args []ast.Node
	var kw *ast.HashLiteral
	for {
		if err := p.argument(&args, &kw); err != nil {
			return nil, err
		}
		if !p.peek().op(",") {
			break
		}
		p.advance()
	}
	if kw != nil {
		args = append(args, kw)
	}
	return args, nil
}

// argument parses one call argument, collecting `key: v` and `k => v`
// pairs into a trailing hash.
func (p *parser) argument(args *[]ast.Node, kw **ast.HashLiteral) error {
	start := p.peek().pos
	if t := p.peek(); t.kind == tokLabel {
		p.advance()
		v, err := p.expr(bpLowest)
		if err != nil {
			return err
		}
		p.addPair(kw, &ast.SymbolLiteral{Value: t.text, Location: ast.Location{StartOffset: t.pos, EndOffset: t.end}}, v, start)
		return nil
	}
	v, err := p.expr(bpLowest)
	if err != nil {
		return err
	}
	if p.peek().op("=>") {
		p.advance()
		val, err := p.expr(bpLowest)
		if err != nil {
			return err
		}
		p.addPair(kw, v, val, start)
		return nil
	}
	*args = append(*args, v)
	return nil
}

func (p *parser) addPair(kw **ast.HashLiteral, key, value ast.Node, start int) {
	if *kw == nil {
		*kw = &ast.HashLiteral{Location: ast.Location{StartOffset: start}}
	}
	(*kw).Pairs = append((*kw).Pairs, ast.Pair{Key: key, Value: value})
	(*kw).Location.EndOffset = p.lastEnd()
}

// list parses comma-separated arguments up to the closing delimiter.
func (p *parser) list(closer string) ([]ast.Node, error) {
	args := []ast.Node{}
	var kw *ast.HashLiteral
	for !p.peek().op(closer) {
		if err := p.argument(&args, &kw); err != nil {
			return nil, err
		}
		if !p.peek().op(",") {
			break
		}
		p.advance()
	}
	if kw != nil {
		args = append(args, kw)
	}
	return args, p.expectOp(closer)
}

func (p *parser) hash(start int) (ast.Node, error) {
	h := &ast.HashLiteral{}
	for !p.peek().op("}") {
		var key ast.Node
		if t := p.peek(); t.kind == tokLabel {
			p.advance()
			key = &ast.SymbolLiteral{Value: t.text, Location: ast.Location{StartOffset: t.pos, EndOffset: t.end}}
		} else {
			k, err := p.expr(bpLowest)
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("=>"); err != nil {
				return nil, err
			}
			key = k
		}
		v, err := p.expr(bpLowest)
		if err != nil {
			return nil, err
		}
		h.Pairs = append(h.Pairs, ast.Pair{Key: key, Value: v})
		if !p.peek().op(",") {
			break
		}
		p.advance()
	}
	if err := p.expectOp("}"); err != nil {
		return nil, err
	}
	h.Location = p.span(start)
	return h, nil
}

// postfix applies method calls, constant paths and indexing to left.
func (p *parser) postfix(left ast.Node, start int) (ast.Node, error) {
	for {
		t := p.peek()
		switch {
		case t.op(".") || t.op("&."):
			p.advance()
			name := p.advance()
			switch name.kind {
			case tokIdent, tokConst, tokKeyword:
			default:
				return nil, p.errorf("expected method name after %q", t.text)
			}
			call := &ast.Call{Receiver: left, Name: name.text}
			if err := p.callTail(call); err != nil {
				return nil, err
			}
			call.Location = p.span(start)
			left = call

		case t.op("::"):
			p.advance()
			name := p.advance()
			if name.kind != tokConst && name.kind != tokIdent {
				return nil, p.errorf("expected name after '::'")
			}
			call := &ast.Call{Receiver: left, Name: name.text}
			if name.kind == tokIdent {
				if err := p.callTail(call); err != nil {
					return nil, err
				}
			}
			call.Location = p.span(start)
			left = call

		case t.op("[") && !t.spaceBefore:
			p.advance()
			args, err := p.list("]")
			if err != nil {
				return nil, err
			}
			left = &ast.Call{Receiver: left, Name: "[]", Arguments: args, Location: p.span(start)}

		default:
			return left, nil
		}
	}
}

// callTail parses the arguments and block following a method name.
func (p *parser) callTail(call *ast.Call) error {
	switch next := p.peek(); {
	case next.op("(") && !next.spaceBefore:
		p.advance()
		args, err := p.list(")")
		if err != nil {
			return err
		}
		call.Arguments = args
	case p.startsCommandArg():
		args, err := p.commandArgs()
		if err != nil {
			return err
		}
		call.Arguments = args
	}
	return p.block(call)
}

// block attaches a trailing `do |x|` (body on following lines) or an inline
// `{ |x| stmt; stmt }` block to call.
func (p *parser) block(call *ast.Call) error {
	t := p.peek()
	var closer string
	switch {
	case t.kw("do") && !p.noDo:
	case t.op("{"):
		closer = "}"
	default:
		return nil
	}
	p.advance()
	b := &ast.Block{Body: []ast.Node{}}
	if p.peek().op("|") {
		p.advance()
		for !p.peek().op("|") {
			param := p.advance()
			if param.kind != tokIdent {
				return p.errorf("expected block parameter")
			}
			b.Params = append(b.Params, param.text)
			p.locals[param.text] = true
			if !p.peek().op(",") {
				break
			}
			p.advance()
		}
		if err := p.expectOp("|"); err != nil {
			return err
		}
	}
	if closer != "" {
		body, err := p.inlineBody()
		if err != nil {
			return err
		}
		b.Body = body
		if err := p.expectOp(closer); err != nil {
			return err
		}
	}
	b.Location = p.span(t.pos)
	call.Block = b
	return nil
}
