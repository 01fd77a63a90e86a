package prismfmt

import "fmt"

// Version is the format version found in a header.
type Version struct {
	Major, Minor, Patch uint8
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Location is a byte range as start offset plus length.
type Location struct {
	Start  uint32
	Length uint32
}

// End returns the exclusive end offset. It is computed in 64 bits so a
// corrupt length cannot wrap below Start.
func (l Location) End() uint64 { return uint64(l.Start) + uint64(l.Length) }

// CommentKind distinguishes inline from embedded-document comments.
type CommentKind uint8

const (
	CommentInline CommentKind = iota
	CommentEmbDoc
)

// Comment is a comment recorded in the header.
type Comment struct {
	Kind     CommentKind
	Location Location
}

// Diagnostic is a parser error or warning recorded in the header.
type Diagnostic struct {
	Message  string
	Location Location
	Level    uint8
}

// Document is a decoded serialization: header plus the root record.
type Document struct {
	Root      *Record
	Encoding  string
	Comments  []Comment
	Errors    []Diagnostic
	Warnings  []Diagnostic
	StartLine int64
	Version   Version
}

// Record is one node record. Fields follow the type's schema order.
type Record struct {
	Fields   []Value
	ID       uint32
	Location Location
	Flags    uint32
	Type     NodeType
}

// Field returns the value of the named schema field, or nil.
func (r *Record) Field(name string) *Value {
	s, ok := SchemaOf(r.Type)
	if !ok {
		return nil
	}
	for i, spec := range s.Fields {
		if spec.Name == name && i < len(r.Fields) {
			return &r.Fields[i]
		}
	}
	return nil
}

// Node returns the named node field, or nil when absent.
func (r *Record) Node(name string) *Record {
	if v := r.Field(name); v != nil {
		return v.Node
	}
	return nil
}

// Nodes returns the named node list field.
func (r *Record) Nodes(name string) []*Record {
	if v := r.Field(name); v != nil {
		return v.Nodes
	}
	return nil
}

// Const returns the named constant field.
func (r *Record) Const(name string) string {
	if v := r.Field(name); v != nil {
		return v.Const
	}
	return ""
}

// Value holds one decoded field. Only the member matching Kind is set.
type Value struct {
	Node      *Record
	Loc       *Location
	Nodes     []*Record
	Consts    []string
	Const     string
	String    string
	Float     float64
	Magnitude uint64
	Uint      uint32
	Kind      FieldKind
	Negative  bool
}

// Int returns an integer field as int64, reporting false when the magnitude
// does not fit.
func (v *Value) Int() (int64, bool) {
	if v.Negative {
		if v.Magnitude > 1<<63 {
			return 0, false
		}
		return -int64(v.Magnitude), true
	}
	if v.Magnitude > 1<<63-1 {
		return 0, false
	}
	return int64(v.Magnitude), true
}

// Constructors used by fixtures and tooling to assemble records.

func NodeValue(r *Record) Value          { return Value{Kind: FieldNode, Node: r} }
func OptNodeValue(r *Record) Value       { return Value{Kind: FieldOptNode, Node: r} }
func NodeListValue(rs ...*Record) Value  { return Value{Kind: FieldNodeList, Nodes: rs} }
func ConstValue(s string) Value          { return Value{Kind: FieldConst, Const: s} }
func ConstListValue(ss ...string) Value  { return Value{Kind: FieldConstList, Consts: ss} }
func LocValue(l Location) Value          { return Value{Kind: FieldLoc, Loc: &l} }
func OptLocValue(l *Location) Value      { return Value{Kind: FieldOptLoc, Loc: l} }
func StringValue(s string) Value         { return Value{Kind: FieldString, String: s} }
func DoubleValue(f float64) Value        { return Value{Kind: FieldDouble, Float: f} }
func UintValue(u uint32) Value           { return Value{Kind: FieldUint, Uint: u} }

// IntegerValue encodes i as sign plus magnitude.
func IntegerValue(i int64) Value {
	if i < 0 {
		return Value{Kind: FieldInteger, Negative: true, Magnitude: uint64(-(i + 1)) + 1}
	}
	return Value{Kind: FieldInteger, Magnitude: uint64(i)}
}
