// Package prismfmt reads and writes the serialized syntax tree emitted by the
// parsing module's serialize entry point.
//
// # Layout
//
//	"PRISM" major minor patch      magic and version, one byte each
//	flags                          u8, reserved
//	encoding                       varuint length + bytes
//	start line                     signed LEB128
//	comments                       varuint count, then {kind u8, location}
//	errors, warnings               varuint count, then {message, location, level u8}
//	constant pool offset           u32 little-endian, absolute
//	constant pool count            varuint
//	root node                      node record
//	constant pool                  count length-prefixed strings
//
// A location is two varuints: start offset and length. A node record is a
// type byte, varuint id, location, varuint flags, then the fields listed in
// the node's schema. Type byte 0 marks an absent optional node. Constants are
// 1-based varuint indexes into the pool. There are no record lengths, so a
// reader that meets an unknown type cannot skip it.
package prismfmt

import "fmt"

// Magic opens every serialized document.
const Magic = "PRISM"

// Versions this package reads and writes.
const (
	MajorVersion = 1
	MinorVersion = 4
	PatchVersion = 0
)

// maxDepth bounds node nesting while reading.
const maxDepth = 1024

// NodeType is the type byte of a node record.
type NodeType uint8

const (
	NodeNone NodeType = iota
	NodeArguments
	NodeArray
	NodeAssoc
	NodeBlock
	NodeBlockParameters
	NodeCall
	NodeConstantRead
	NodeConstantWrite
	NodeDef
	NodeElse
	NodeFalse
	NodeFloat
	NodeGlobalVariableRead
	NodeGlobalVariableWrite
	NodeHash
	NodeIf
	NodeInstanceVariableRead
	NodeInstanceVariableWrite
	NodeInteger
	NodeKeywordHash
	NodeLocalVariableOperatorWrite
	NodeLocalVariableRead
	NodeLocalVariableWrite
	NodeNil
	NodeParameters
	NodeParentheses
	NodeProgram
	NodeRequiredParameter
	NodeReturn
	NodeSelf
	NodeStatements
	NodeString
	NodeSymbol
	NodeTrue
	NodeUnless
	NodeUntil
	NodeWhile
	NodeAnd
	NodeOr
	NodeOptionalParameter
	NodeInterpolatedString
	NodeEmbeddedStatements
	nodeTypeCount
)

// FieldKind is the encoding of one schema field.
type FieldKind uint8

const (
	FieldNode FieldKind = iota + 1
	FieldOptNode
	FieldNodeList
	FieldConst
	FieldConstList
	FieldLoc
	FieldOptLoc
	FieldString
	FieldInteger
	FieldDouble
	FieldUint
)

func (k FieldKind) String() string {
	switch k {
	case FieldNode:
		return "node"
	case FieldOptNode:
		return "node?"
	case FieldNodeList:
		return "node[]"
	case FieldConst:
		return "constant"
	case FieldConstList:
		return "constant[]"
	case FieldLoc:
		return "location"
	case FieldOptLoc:
		return "location?"
	case FieldString:
		return "string"
	case FieldInteger:
		return "integer"
	case FieldDouble:
		return "double"
	case FieldUint:
		return "uint32"
	}
	return fmt.Sprintf("field(%d)", uint8(k))
}

// FieldSpec names one field of a node schema.
type FieldSpec struct {
	Name string
	Kind FieldKind
}

// Schema is the record shape of a node type.
type Schema struct {
	Name   string
	Fields []FieldSpec
}

func f(name string, kind FieldKind) FieldSpec { return FieldSpec{Name: name, Kind: kind} }

var writeFields = []FieldSpec{
	f("name", FieldConst), f("name_loc", FieldLoc), f("value", FieldNode), f("operator_loc", FieldLoc),
}

var schemas = [nodeTypeCount]Schema{
	NodeArguments: {"ArgumentsNode", []FieldSpec{f("arguments", FieldNodeList)}},
	NodeArray: {"ArrayNode", []FieldSpec{
		f("elements", FieldNodeList), f("opening_loc", FieldOptLoc), f("closing_loc", FieldOptLoc),
	}},
	NodeAssoc: {"AssocNode", []FieldSpec{
		f("key", FieldNode), f("value", FieldNode), f("operator_loc", FieldOptLoc),
	}},
	NodeBlock: {"BlockNode", []FieldSpec{
		f("locals", FieldConstList), f("parameters", FieldOptNode), f("body", FieldOptNode),
		f("opening_loc", FieldLoc), f("closing_loc", FieldLoc),
	}},
	NodeBlockParameters: {"BlockParametersNode", []FieldSpec{
		f("parameters", FieldOptNode), f("locals", FieldNodeList),
		f("opening_loc", FieldOptLoc), f("closing_loc", FieldOptLoc),
	}},
	NodeCall: {"CallNode", []FieldSpec{
		f("receiver", FieldOptNode), f("call_operator_loc", FieldOptLoc), f("name", FieldConst),
		f("message_loc", FieldOptLoc), f("opening_loc", FieldOptLoc), f("arguments", FieldOptNode),
		f("closing_loc", FieldOptLoc), f("block", FieldOptNode),
	}},
	NodeConstantRead:  {"ConstantReadNode", []FieldSpec{f("name", FieldConst)}},
	NodeConstantWrite: {"ConstantWriteNode", writeFields},
	NodeDef: {"DefNode", []FieldSpec{
		f("name", FieldConst), f("name_loc", FieldLoc), f("receiver", FieldOptNode),
		f("parameters", FieldOptNode), f("body", FieldOptNode), f("locals", FieldConstList),
		f("def_keyword_loc", FieldLoc), f("operator_loc", FieldOptLoc), f("lparen_loc", FieldOptLoc),
		f("rparen_loc", FieldOptLoc), f("equal_loc", FieldOptLoc), f("end_keyword_loc", FieldOptLoc),
	}},
	NodeElse: {"ElseNode", []FieldSpec{
		f("else_keyword_loc", FieldLoc), f("statements", FieldOptNode), f("end_keyword_loc", FieldOptLoc),
	}},
	NodeFalse:               {"FalseNode", nil},
	NodeFloat:               {"FloatNode", []FieldSpec{f("value", FieldDouble)}},
	NodeGlobalVariableRead:  {"GlobalVariableReadNode", []FieldSpec{f("name", FieldConst)}},
	NodeGlobalVariableWrite: {"GlobalVariableWriteNode", writeFields},
	NodeHash: {"HashNode", []FieldSpec{
		f("opening_loc", FieldLoc), f("elements", FieldNodeList), f("closing_loc", FieldLoc),
	}},
	NodeIf: {"IfNode", []FieldSpec{
		f("if_keyword_loc", FieldOptLoc), f("predicate", FieldNode), f("then_keyword_loc", FieldOptLoc),
		f("statements", FieldOptNode), f("subsequent", FieldOptNode), f("end_keyword_loc", FieldOptLoc),
	}},
	NodeInstanceVariableRead:  {"InstanceVariableReadNode", []FieldSpec{f("name", FieldConst)}},
	NodeInstanceVariableWrite: {"InstanceVariableWriteNode", writeFields},
	NodeInteger:               {"IntegerNode", []FieldSpec{f("value", FieldInteger)}},
	NodeKeywordHash:           {"KeywordHashNode", []FieldSpec{f("elements", FieldNodeList)}},
	NodeLocalVariableOperatorWrite: {"LocalVariableOperatorWriteNode", []FieldSpec{
		f("name_loc", FieldLoc), f("binary_operator_loc", FieldLoc), f("value", FieldNode),
		f("name", FieldConst), f("binary_operator", FieldConst), f("depth", FieldUint),
	}},
	NodeLocalVariableRead: {"LocalVariableReadNode", []FieldSpec{f("name", FieldConst), f("depth", FieldUint)}},
	NodeLocalVariableWrite: {"LocalVariableWriteNode", []FieldSpec{
		f("name", FieldConst), f("depth", FieldUint), f("name_loc", FieldLoc),
		f("value", FieldNode), f("operator_loc", FieldLoc),
	}},
	NodeNil: {"NilNode", nil},
	NodeParameters: {"ParametersNode", []FieldSpec{
		f("requireds", FieldNodeList), f("optionals", FieldNodeList), f("rest", FieldOptNode),
		f("posts", FieldNodeList), f("keywords", FieldNodeList), f("keyword_rest", FieldOptNode),
		f("block", FieldOptNode),
	}},
	NodeParentheses: {"ParenthesesNode", []FieldSpec{
		f("body", FieldOptNode), f("opening_loc", FieldLoc), f("closing_loc", FieldLoc),
	}},
	NodeProgram:           {"ProgramNode", []FieldSpec{f("locals", FieldConstList), f("statements", FieldNode)}},
	NodeRequiredParameter: {"RequiredParameterNode", []FieldSpec{f("name", FieldConst)}},
	NodeReturn:            {"ReturnNode", []FieldSpec{f("keyword_loc", FieldLoc), f("arguments", FieldOptNode)}},
	NodeSelf:              {"SelfNode", nil},
	NodeStatements:        {"StatementsNode", []FieldSpec{f("body", FieldNodeList)}},
	NodeString: {"StringNode", []FieldSpec{
		f("opening_loc", FieldOptLoc), f("content_loc", FieldLoc), f("closing_loc", FieldOptLoc),
		f("unescaped", FieldString),
	}},
	NodeSymbol: {"SymbolNode", []FieldSpec{
		f("opening_loc", FieldOptLoc), f("value_loc", FieldOptLoc), f("closing_loc", FieldOptLoc),
		f("unescaped", FieldString),
	}},
	NodeTrue: {"TrueNode", nil},
	NodeUnless: {"UnlessNode", []FieldSpec{
		f("keyword_loc", FieldLoc), f("predicate", FieldNode), f("then_keyword_loc", FieldOptLoc),
		f("statements", FieldOptNode), f("else_clause", FieldOptNode), f("end_keyword_loc", FieldOptLoc),
	}},
	NodeUntil: {"UntilNode", loopFields},
	NodeWhile: {"WhileNode", loopFields},
	NodeAnd:   {"AndNode", []FieldSpec{f("left", FieldNode), f("right", FieldNode), f("operator_loc", FieldLoc)}},
	NodeOr:    {"OrNode", []FieldSpec{f("left", FieldNode), f("right", FieldNode), f("operator_loc", FieldLoc)}},
	NodeOptionalParameter: {"OptionalParameterNode", []FieldSpec{
		f("name", FieldConst), f("name_loc", FieldLoc), f("operator_loc", FieldLoc), f("value", FieldNode),
	}},
	NodeInterpolatedString: {"InterpolatedStringNode", []FieldSpec{
		f("opening_loc", FieldOptLoc), f("parts", FieldNodeList), f("closing_loc", FieldOptLoc),
	}},
	NodeEmbeddedStatements: {"EmbeddedStatementsNode", []FieldSpec{
		f("opening_loc", FieldLoc), f("statements", FieldOptNode), f("closing_loc", FieldLoc),
	}},
}

var loopFields = []FieldSpec{
	f("keyword_loc", FieldLoc), f("do_keyword_loc", FieldOptLoc), f("closing_loc", FieldOptLoc),
	f("predicate", FieldNode), f("statements", FieldOptNode),
}

// SchemaOf returns the record shape of t.
func SchemaOf(t NodeType) (Schema, bool) {
	if t == NodeNone || t >= nodeTypeCount {
		return Schema{}, false
	}
	return schemas[t], true
}

func (t NodeType) String() string {
	if s, ok := SchemaOf(t); ok {
		return s.Name
	}
	return fmt.Sprintf("UnknownNode(%d)", uint8(t))
}
