package prismfmt

import (
	"fmt"

	"github.com/wippyai/rb2js/errors"
	"github.com/wippyai/rb2js/internal/binary"
)

type decoder struct {
	r      *binary.Reader
	consts []string
	depth  int
}

// Decode parses a serialized document. It fails on a bad magic, an
// unsupported major version, an unknown node type or truncated data.
func Decode(data []byte) (*Document, error) {
	d := &decoder{r: binary.NewReader(data)}
	doc, err := d.document()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decode serialized tree")
	}
	return doc, nil
}

func (d *decoder) document() (*Document, error) {
	magic, err := d.r.ReadBytes(len(Magic))
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	if string(magic) != Magic {
		return nil, fmt.Errorf("bad magic %q", magic)
	}

	doc := &Document{}
	ver, err := d.r.ReadBytes(3)
	if err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	doc.Version = Version{Major: ver[0], Minor: ver[1], Patch: ver[2]}
	if doc.Version.Major != MajorVersion {
		return nil, fmt.Errorf("unsupported version %s", doc.Version)
	}
	if _, err := d.r.ReadByte(); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	if doc.Encoding, err = d.r.ReadName(); err != nil {
		return nil, fmt.Errorf("encoding: %w", err)
	}
	if doc.StartLine, err = d.r.ReadS64(); err != nil {
		return nil, fmt.Errorf("start line: %w", err)
	}
	if doc.Comments, err = d.comments(); err != nil {
		return nil, err
	}
	if doc.Errors, err = d.diagnostics("errors"); err != nil {
		return nil, err
	}
	if doc.Warnings, err = d.diagnostics("warnings"); err != nil {
		return nil, err
	}

	poolOffset, err := d.r.ReadU32LE()
	if err != nil {
		return nil, fmt.Errorf("constant pool offset: %w", err)
	}
	poolCount, err := d.r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("constant pool count: %w", err)
	}
	nodesAt := d.r.Position()
	if err := d.pool(int(poolOffset), poolCount); err != nil {
		return nil, err
	}
	if err := d.r.Seek(nodesAt); err != nil {
		return nil, err
	}

	if doc.Root, err = d.node(false); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *decoder) pool(offset int, count uint32) error {
	if err := d.r.Seek(offset); err != nil {
		return fmt.Errorf("constant pool: %w", err)
	}
	// Each entry takes at least one byte.
	if int(count) > d.r.Len() {
		return fmt.Errorf("constant pool: %d entries in %d bytes", count, d.r.Len())
	}
	d.consts = make([]string, count)
	for i := range d.consts {
		s, err := d.r.ReadName()
		if err != nil {
			return fmt.Errorf("constant %d: %w", i+1, err)
		}
		d.consts[i] = s
	}
	return nil
}

func (d *decoder) comments() ([]Comment, error) {
	n, err := d.count("comments")
	if err != nil {
		return nil, err
	}
	out := make([]Comment, 0, n)
	for i := 0; i < n; i++ {
		kind, err := d.r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("comment %d: %w", i, err)
		}
		loc, err := d.location()
		if err != nil {
			return nil, fmt.Errorf("comment %d: %w", i, err)
		}
		out = append(out, Comment{Kind: CommentKind(kind), Location: loc})
	}
	return out, nil
}

func (d *decoder) diagnostics(what string) ([]Diagnostic, error) {
	n, err := d.count(what)
	if err != nil {
		return nil, err
	}
	out := make([]Diagnostic, 0, n)
	for i := 0; i < n; i++ {
		msg, err := d.r.ReadName()
		if err != nil {
			return nil, fmt.Errorf("%s %d: %w", what, i, err)
		}
		loc, err := d.location()
		if err != nil {
			return nil, fmt.Errorf("%s %d: %w", what, i, err)
		}
		level, err := d.r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%s %d: %w", what, i, err)
		}
		out = append(out, Diagnostic{Message: msg, Location: loc, Level: level})
	}
	return out, nil
}

// count reads a list length and rejects lengths larger than the remaining
// data could hold.
func (d *decoder) count(what string) (int, error) {
	n, err := d.r.ReadU32()
	if err != nil {
		return 0, fmt.Errorf("%s count: %w", what, err)
	}
	if int(n) > d.r.Len() {
		return 0, fmt.Errorf("%s count %d exceeds remaining %d bytes", what, n, d.r.Len())
	}
	return int(n), nil
}

func (d *decoder) location() (Location, error) {
	start, err := d.r.ReadU32()
	if err != nil {
		return Location{}, err
	}
	length, err := d.r.ReadU32()
	if err != nil {
		return Location{}, err
	}
	return Location{Start: start, Length: length}, nil
}

func (d *decoder) constant() (string, error) {
	idx, err := d.r.ReadU32()
	if err != nil {
		return "", err
	}
	if idx == 0 || int(idx) > len(d.consts) {
		return "", fmt.Errorf("constant index %d outside pool of %d", idx, len(d.consts))
	}
	return d.consts[idx-1], nil
}

func (d *decoder) node(optional bool) (*Record, error) {
	at := d.r.Position()
	b, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}
	t := NodeType(b)
	if t == NodeNone {
		if optional {
			return nil, nil
		}
		return nil, fmt.Errorf("missing required node at %d", at)
	}
	schema, ok := SchemaOf(t)
	if !ok {
		return nil, fmt.Errorf("unknown node type %d at %d", b, at)
	}

	d.depth++
	defer func() { d.depth-- }()
	if d.depth > maxDepth {
		return nil, fmt.Errorf("nesting exceeds %d at %d", maxDepth, at)
	}

	rec := &Record{Type: t, Fields: make([]Value, len(schema.Fields))}
	if rec.ID, err = d.r.ReadU32(); err != nil {
		return nil, fmt.Errorf("%s id: %w", schema.Name, err)
	}
	if rec.Location, err = d.location(); err != nil {
		return nil, fmt.Errorf("%s location: %w", schema.Name, err)
	}
	if rec.Flags, err = d.r.ReadU32(); err != nil {
		return nil, fmt.Errorf("%s flags: %w", schema.Name, err)
	}
	for i, spec := range schema.Fields {
		v, err := d.field(spec.Kind)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", schema.Name, spec.Name, err)
		}
		rec.Fields[i] = v
	}
	return rec, nil
}

func (d *decoder) field(kind FieldKind) (Value, error) {
	v := Value{Kind: kind}
	var err error
	switch kind {
	case FieldNode, FieldOptNode:
		v.Node, err = d.node(kind == FieldOptNode)
	case FieldNodeList:
		var n int
		if n, err = d.count("nodes"); err != nil {
			return v, err
		}
		v.Nodes = make([]*Record, 0, n)
		for i := 0; i < n; i++ {
			rec, err := d.node(false)
			if err != nil {
				return v, fmt.Errorf("[%d]: %w", i, err)
			}
			v.Nodes = append(v.Nodes, rec)
		}
	case FieldConst:
		v.Const, err = d.constant()
	case FieldConstList:
		var n int
		if n, err = d.count("constants"); err != nil {
			return v, err
		}
		v.Consts = make([]string, 0, n)
		for i := 0; i < n; i++ {
			s, err := d.constant()
			if err != nil {
				return v, err
			}
			v.Consts = append(v.Consts, s)
		}
	case FieldLoc:
		var loc Location
		loc, err = d.location()
		v.Loc = &loc
	case FieldOptLoc:
		var present byte
		if present, err = d.r.ReadByte(); err != nil || present == 0 {
			return v, err
		}
		var loc Location
		loc, err = d.location()
		v.Loc = &loc
	case FieldString:
		v.String, err = d.r.ReadName()
	case FieldInteger:
		var sign byte
		if sign, err = d.r.ReadByte(); err != nil {
			return v, err
		}
		v.Negative = sign != 0
		v.Magnitude, err = d.r.ReadU64()
	case FieldDouble:
		v.Float, err = d.r.ReadF64LE()
	case FieldUint:
		v.Uint, err = d.r.ReadU32()
	default:
		err = fmt.Errorf("unknown field kind %d", kind)
	}
	return v, err
}
