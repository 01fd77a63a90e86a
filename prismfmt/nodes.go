package prismfmt

// Record constructors for fixtures and tooling. Locations default to zero;
// use At to set one.

var noLoc = LocValue(Location{})

func rec(t NodeType, fields ...Value) *Record {
	return &Record{Type: t, Fields: fields}
}

// At sets the record's location and returns it.
func (r *Record) At(start, length uint32) *Record {
	r.Location = Location{Start: start, Length: length}
	return r
}

func optStatements(body []*Record) Value {
	if len(body) == 0 {
		return OptNodeValue(nil)
	}
	return OptNodeValue(Statements(body...))
}

func Program(body ...*Record) *Record {
	return rec(NodeProgram, ConstListValue(), NodeValue(Statements(body...)))
}

func Statements(body ...*Record) *Record {
	return rec(NodeStatements, NodeListValue(body...))
}

func writeNode(t NodeType, name string, value *Record) *Record {
	return rec(t, ConstValue(name), noLoc, NodeValue(value), noLoc)
}

func LocalWrite(name string, value *Record) *Record {
	return rec(NodeLocalVariableWrite, ConstValue(name), UintValue(0), noLoc, NodeValue(value), noLoc)
}

// LocalOperatorWrite is `name op= value`; op excludes the '='.
func LocalOperatorWrite(name, op string, value *Record) *Record {
	return rec(NodeLocalVariableOperatorWrite, noLoc, noLoc, NodeValue(value),
		ConstValue(name), ConstValue(op), UintValue(0))
}

func InstanceWrite(name string, value *Record) *Record {
	return writeNode(NodeInstanceVariableWrite, name, value)
}

func GlobalWrite(name string, value *Record) *Record {
	return writeNode(NodeGlobalVariableWrite, name, value)
}

func ConstantWrite(name string, value *Record) *Record {
	return writeNode(NodeConstantWrite, name, value)
}

func LocalRead(name string) *Record {
	return rec(NodeLocalVariableRead, ConstValue(name), UintValue(0))
}

func InstanceRead(name string) *Record { return rec(NodeInstanceVariableRead, ConstValue(name)) }
func GlobalRead(name string) *Record   { return rec(NodeGlobalVariableRead, ConstValue(name)) }
func ConstantRead(name string) *Record { return rec(NodeConstantRead, ConstValue(name)) }

// Call builds a call. Receiver and block may be nil; no arguments omits the
// arguments node.
func Call(receiver *Record, name string, args []*Record, block *Record) *Record {
	var argNode *Record
	if len(args) > 0 {
		argNode = rec(NodeArguments, NodeListValue(args...))
	}
	return rec(NodeCall,
		OptNodeValue(receiver), OptLocValue(nil), ConstValue(name), OptLocValue(nil),
		OptLocValue(nil), OptNodeValue(argNode), OptLocValue(nil), OptNodeValue(block))
}

func String(s string) *Record {
	return rec(NodeString, OptLocValue(nil), noLoc, OptLocValue(nil), StringValue(s))
}

func Symbol(s string) *Record {
	return rec(NodeSymbol, OptLocValue(nil), OptLocValue(nil), OptLocValue(nil), StringValue(s))
}

func Integer(i int64) *Record   { return rec(NodeInteger, IntegerValue(i)) }
func Float(f float64) *Record   { return rec(NodeFloat, DoubleValue(f)) }
func True() *Record             { return rec(NodeTrue) }
func False() *Record            { return rec(NodeFalse) }
func Nil() *Record              { return rec(NodeNil) }
func Self() *Record             { return rec(NodeSelf) }
func And(l, r *Record) *Record  { return rec(NodeAnd, NodeValue(l), NodeValue(r), noLoc) }
func Or(l, r *Record) *Record   { return rec(NodeOr, NodeValue(l), NodeValue(r), noLoc) }

func Array(elems ...*Record) *Record {
	return rec(NodeArray, NodeListValue(elems...), OptLocValue(nil), OptLocValue(nil))
}

func Hash(assocs ...*Record) *Record {
	return rec(NodeHash, noLoc, NodeListValue(assocs...), noLoc)
}

func KeywordHash(assocs ...*Record) *Record {
	return rec(NodeKeywordHash, NodeListValue(assocs...))
}

func Assoc(key, value *Record) *Record {
	return rec(NodeAssoc, NodeValue(key), NodeValue(value), OptLocValue(nil))
}

func Parentheses(body ...*Record) *Record {
	return rec(NodeParentheses, optStatements(body), noLoc, noLoc)
}

// If builds an if node; subsequent is an Else or a nested If (elsif) or nil.
func If(predicate *Record, then []*Record, subsequent *Record) *Record {
	return rec(NodeIf, OptLocValue(nil), NodeValue(predicate), OptLocValue(nil),
		optStatements(then), OptNodeValue(subsequent), OptLocValue(nil))
}

func Unless(predicate *Record, then []*Record, elseClause *Record) *Record {
	return rec(NodeUnless, noLoc, NodeValue(predicate), OptLocValue(nil),
		optStatements(then), OptNodeValue(elseClause), OptLocValue(nil))
}

func Else(body ...*Record) *Record {
	return rec(NodeElse, noLoc, optStatements(body), OptLocValue(nil))
}

func loop(t NodeType, predicate *Record, body []*Record) *Record {
	return rec(t, noLoc, OptLocValue(nil), OptLocValue(nil), NodeValue(predicate), optStatements(body))
}

func While(predicate *Record, body ...*Record) *Record { return loop(NodeWhile, predicate, body) }
func Until(predicate *Record, body ...*Record) *Record { return loop(NodeUntil, predicate, body) }

func parameters(names []string) *Record {
	if len(names) == 0 {
		return nil
	}
	reqs := make([]*Record, len(names))
	for i, n := range names {
		reqs[i] = rec(NodeRequiredParameter, ConstValue(n))
	}
	return rec(NodeParameters, NodeListValue(reqs...), NodeListValue(), OptNodeValue(nil),
		NodeListValue(), NodeListValue(), OptNodeValue(nil), OptNodeValue(nil))
}

func Def(name string, params []string, body ...*Record) *Record {
	return rec(NodeDef, ConstValue(name), noLoc, OptNodeValue(nil), OptNodeValue(parameters(params)),
		optStatements(body), ConstListValue(params...), noLoc, OptLocValue(nil), OptLocValue(nil),
		OptLocValue(nil), OptLocValue(nil), OptLocValue(nil))
}

func Block(params []string, body ...*Record) *Record {
	var bp *Record
	if p := parameters(params); p != nil {
		bp = rec(NodeBlockParameters, OptNodeValue(p), NodeListValue(), OptLocValue(nil), OptLocValue(nil))
	}
	return rec(NodeBlock, ConstListValue(params...), OptNodeValue(bp), optStatements(body), noLoc, noLoc)
}

func Return(value *Record) *Record {
	var args *Record
	if value != nil {
		args = rec(NodeArguments, NodeListValue(value))
	}
	return rec(NodeReturn, noLoc, OptNodeValue(args))
}

// InterpolatedString joins literal parts and embedded statements.
func InterpolatedString(parts ...*Record) *Record {
	return rec(NodeInterpolatedString, OptLocValue(nil), NodeListValue(parts...), OptLocValue(nil))
}

func Embedded(body ...*Record) *Record {
	return rec(NodeEmbeddedStatements, noLoc, optStatements(body), noLoc)
}
