// Package ast defines the canonical syntax tree every decoding tier produces.
//
// Node is a sealed interface: the concrete node types below are the complete
// set, so consumers dispatch with a type switch. Constructs a tier cannot
// represent are carried as Unknown with the tier's own tag.
package ast

// Tag names a node kind.
type Tag string

const (
	TagProgram        Tag = "Program"
	TagAssignment     Tag = "Assignment"
	TagCall           Tag = "Call"
	TagBlock          Tag = "Block"
	TagVariable       Tag = "Variable"
	TagSelf           Tag = "Self"
	TagStringLiteral  Tag = "StringLiteral"
	TagIntegerLiteral Tag = "IntegerLiteral"
	TagFloatLiteral   Tag = "FloatLiteral"
	TagBooleanLiteral Tag = "BooleanLiteral"
	TagNilLiteral     Tag = "NilLiteral"
	TagSymbolLiteral  Tag = "SymbolLiteral"
	TagArrayLiteral   Tag = "ArrayLiteral"
	TagHashLiteral    Tag = "HashLiteral"
	TagIf             Tag = "If"
	TagWhile          Tag = "While"
	TagDef            Tag = "Def"
	TagReturn         Tag = "Return"
	TagComment        Tag = "Comment"
)

// Location is a byte range in the source text, end exclusive.
type Location struct {
	StartOffset int `yaml:"start_offset" json:"start_offset"`
	EndOffset   int `yaml:"end_offset" json:"end_offset"`
}

// Node is implemented by every AST node.
type Node interface {
	Tag() Tag
	Loc() Location
	node()
}

// Scope distinguishes the variable namespaces of the source language.
type Scope int

const (
	ScopeLocal Scope = iota
	ScopeInstance
	ScopeGlobal
	ScopeConstant
)

func (s Scope) String() string {
	switch s {
	case ScopeInstance:
		return "instance"
	case ScopeGlobal:
		return "global"
	case ScopeConstant:
		return "constant"
	default:
		return "local"
	}
}

// ScopeOf classifies a source identifier by its sigil or capitalization.
func ScopeOf(name string) Scope {
	if name == "" {
		return ScopeLocal
	}
	switch c := name[0]; {
	case c == '@':
		return ScopeInstance
	case c == '$':
		return ScopeGlobal
	case c >= 'A' && c <= 'Z':
		return ScopeConstant
	}
	return ScopeLocal
}

// Program is the root node. Body is in source order, which is execution order.
type Program struct {
	Location Location
	Body     []Node
}

// Assignment binds Value to Name. Operator is set for compound forms
// such as "+" in `x += 1`.
type Assignment struct {
	Value    Node
	Name     string
	Operator string
	Location Location
	Scope    Scope
}

// Call is a method call. Receiver and Block are nil when absent.
// Operators are calls too: `a + b` is Call{Receiver: a, Name: "+", Arguments: [b]}.
type Call struct {
	Receiver  Node
	Block     *Block
	Name      string
	Arguments []Node
	Location  Location
}

// Block is a do...end or {...} block attached to a call.
type Block struct {
	Params   []string
	Body     []Node
	Location Location
}

// Variable reads a local, instance, global or constant.
type Variable struct {
	Name     string
	Location Location
	Scope    Scope
}

// Self is the receiver of the current method.
type Self struct {
	Location Location
}

type StringLiteral struct {
	Value    string
	Location Location
}

type IntegerLiteral struct {
	Value    int64
	Location Location
}

type FloatLiteral struct {
	Value    float64
	Location Location
}

type BooleanLiteral struct {
	Location Location
	Value    bool
}

type NilLiteral struct {
	Location Location
}

// SymbolLiteral is a :symbol; Value excludes the colon.
type SymbolLiteral struct {
	Value    string
	Location Location
}

type ArrayLiteral struct {
	Elements []Node
	Location Location
}

// Pair is one key/value entry of a hash literal.
type Pair struct {
	Key   Node
	Value Node
}

type HashLiteral struct {
	Pairs    []Pair
	Location Location
}

// If covers if/elsif/else and unless (Negated). An elsif chain is an
// Else holding a single If.
type If struct {
	Condition Node
	Then      []Node
	Else      []Node
	Location  Location
	Negated   bool
}

// While covers while and until (Negated).
type While struct {
	Condition Node
	Body      []Node
	Location  Location
	Negated   bool
}

// Def is a method definition.
type Def struct {
	Name     string
	Params   []string
	Body     []Node
	Location Location
}

type Return struct {
	Value    Node
	Location Location
}

// Comment is kept by tiers that see comments inline. Generators drop it.
type Comment struct {
	Text     string
	Location Location
}

// Unknown carries a construct the producing tier could not represent.
// Type is that tier's tag, Text the covered source when known.
type Unknown struct {
	Type     string
	Text     string
	Location Location
}

func (n *Program) Tag() Tag        { return TagProgram }
func (n *Assignment) Tag() Tag     { return TagAssignment }
func (n *Call) Tag() Tag           { return TagCall }
func (n *Block) Tag() Tag          { return TagBlock }
func (n *Variable) Tag() Tag       { return TagVariable }
func (n *Self) Tag() Tag           { return TagSelf }
func (n *StringLiteral) Tag() Tag  { return TagStringLiteral }
func (n *IntegerLiteral) Tag() Tag { return TagIntegerLiteral }
func (n *FloatLiteral) Tag() Tag   { return TagFloatLiteral }
func (n *BooleanLiteral) Tag() Tag { return TagBooleanLiteral }
func (n *NilLiteral) Tag() Tag     { return TagNilLiteral }
func (n *SymbolLiteral) Tag() Tag  { return TagSymbolLiteral }
func (n *ArrayLiteral) Tag() Tag   { return TagArrayLiteral }
func (n *HashLiteral) Tag() Tag    { return TagHashLiteral }
func (n *If) Tag() Tag             { return TagIf }
func (n *While) Tag() Tag          { return TagWhile }
func (n *Def) Tag() Tag            { return TagDef }
func (n *Return) Tag() Tag         { return TagReturn }
func (n *Comment) Tag() Tag        { return TagComment }
func (n *Unknown) Tag() Tag        { return Tag(n.Type) }

func (n *Program) Loc() Location        { return n.Location }
func (n *Assignment) Loc() Location     { return n.Location }
func (n *Call) Loc() Location           { return n.Location }
func (n *Block) Loc() Location          { return n.Location }
func (n *Variable) Loc() Location       { return n.Location }
func (n *Self) Loc() Location           { return n.Location }
func (n *StringLiteral) Loc() Location  { return n.Location }
func (n *IntegerLiteral) Loc() Location { return n.Location }
func (n *FloatLiteral) Loc() Location   { return n.Location }
func (n *BooleanLiteral) Loc() Location { return n.Location }
func (n *NilLiteral) Loc() Location     { return n.Location }
func (n *SymbolLiteral) Loc() Location  { return n.Location }
func (n *ArrayLiteral) Loc() Location   { return n.Location }
func (n *HashLiteral) Loc() Location    { return n.Location }
func (n *If) Loc() Location             { return n.Location }
func (n *While) Loc() Location          { return n.Location }
func (n *Def) Loc() Location            { return n.Location }
func (n *Return) Loc() Location         { return n.Location }
func (n *Comment) Loc() Location        { return n.Location }
func (n *Unknown) Loc() Location        { return n.Location }

func (*Program) node()        {}
func (*Assignment) node()     {}
func (*Call) node()           {}
func (*Block) node()          {}
func (*Variable) node()       {}
func (*Self) node()           {}
func (*StringLiteral) node()  {}
func (*IntegerLiteral) node() {}
func (*FloatLiteral) node()   {}
func (*BooleanLiteral) node() {}
func (*NilLiteral) node()     {}
func (*SymbolLiteral) node()  {}
func (*ArrayLiteral) node()   {}
func (*HashLiteral) node()    {}
func (*If) node()             {}
func (*While) node()          {}
func (*Def) node()            {}
func (*Return) node()         {}
func (*Comment) node()        {}
func (*Unknown) node()        {}
