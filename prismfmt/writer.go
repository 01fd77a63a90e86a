package prismfmt

import (
	"fmt"

	"github.com/wippyai/rb2js/errors"
	"github.com/wippyai/rb2js/internal/binary"
)

type encoder struct {
	w      *binary.Writer
	index  map[string]uint32
	consts []string
}

// Encode serializes doc. Every record must carry exactly the fields of its
// type's schema, in order and of the matching kind. A zero Version encodes
// as the current version and an empty Encoding as UTF-8.
func Encode(doc *Document) ([]byte, error) {
	if doc == nil || doc.Root == nil {
		return nil, errors.InvalidInput(errors.PhaseDecode, "document has no root node")
	}

	body := &encoder{w: binary.NewWriter(), index: make(map[string]uint32)}
	if err := body.node(doc.Root, false); err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "encode serialized tree")
	}

	head := binary.NewWriter()
	head.WriteBytes([]byte(Magic))
	ver := doc.Version
	if ver == (Version{}) {
		ver = Version{Major: MajorVersion, Minor: MinorVersion, Patch: PatchVersion}
	}
	head.Byte(ver.Major)
	head.Byte(ver.Minor)
	head.Byte(ver.Patch)
	head.Byte(0)
	enc := doc.Encoding
	if enc == "" {
		enc = "UTF-8"
	}
	head.WriteName(enc)
	head.WriteS64(doc.StartLine)

	head.WriteU32(uint32(len(doc.Comments)))
	for _, c := range doc.Comments {
		head.Byte(byte(c.Kind))
		writeLocation(head, c.Location)
	}
	for _, list := range [][]Diagnostic{doc.Errors, doc.Warnings} {
		head.WriteU32(uint32(len(list)))
		for _, d := range list {
			head.WriteName(d.Message)
			writeLocation(head, d.Location)
			head.Byte(d.Level)
		}
	}

	pool := head.ReserveU32LE()
	head.WriteU32(uint32(len(body.consts)))
	head.WriteBytes(body.w.Bytes())
	head.PatchU32LE(pool, uint32(head.Len()))
	for _, c := range body.consts {
		head.WriteName(c)
	}
	return head.Bytes(), nil
}

func writeLocation(w *binary.Writer, l Location) {
	w.WriteU32(l.Start)
	w.WriteU32(l.Length)
}

func (e *encoder) constant(s string) {
	idx, ok := e.index[s]
	if !ok {
		e.consts = append(e.consts, s)
		idx = uint32(len(e.consts))
		e.index[s] = idx
	}
	e.w.WriteU32(idx)
}

func (e *encoder) node(rec *Record, optional bool) error {
	if rec == nil {
		if !optional {
			return fmt.Errorf("missing required node")
		}
		e.w.Byte(byte(NodeNone))
		return nil
	}
	schema, ok := SchemaOf(rec.Type)
	if !ok {
		return fmt.Errorf("unknown node type %d", rec.Type)
	}
	if len(rec.Fields) != len(schema.Fields) {
		return fmt.Errorf("%s: %d fields, schema has %d", schema.Name, len(rec.Fields), len(schema.Fields))
	}

	e.w.Byte(byte(rec.Type))
	e.w.WriteU32(rec.ID)
	writeLocation(e.w, rec.Location)
	e.w.WriteU32(rec.Flags)
	for i, spec := range schema.Fields {
		v := rec.Fields[i]
		if v.Kind != spec.Kind {
			return fmt.Errorf("%s.%s: got %s, want %s", schema.Name, spec.Name, v.Kind, spec.Kind)
		}
		if err := e.field(v); err != nil {
			return fmt.Errorf("%s.%s: %w", schema.Name, spec.Name, err)
		}
	}
	return nil
}

func (e *encoder) field(v Value) error {
	switch v.Kind {
	case FieldNode, FieldOptNode:
		return e.node(v.Node, v.Kind == FieldOptNode)
	case FieldNodeList:
		e.w.WriteU32(uint32(len(v.Nodes)))
		for i, n := range v.Nodes {
			if err := e.node(n, false); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	case FieldConst:
		e.constant(v.Const)
	case FieldConstList:
		e.w.WriteU32(uint32(len(v.Consts)))
		for _, c := range v.Consts {
			e.constant(c)
		}
	case FieldLoc:
		if v.Loc == nil {
			return fmt.Errorf("missing required location")
		}
		writeLocation(e.w, *v.Loc)
	case FieldOptLoc:
		if v.Loc == nil {
			e.w.Byte(0)
			return nil
		}
		e.w.Byte(1)
		writeLocation(e.w, *v.Loc)
	case FieldString:
		e.w.WriteName(v.String)
	case FieldInteger:
		if v.Negative {
			e.w.Byte(1)
		} else {
			e.w.Byte(0)
		}
		e.w.WriteU64(v.Magnitude)
	case FieldDouble:
		e.w.WriteF64LE(v.Float)
	case FieldUint:
		e.w.WriteU32(v.Uint)
	default:
		return fmt.Errorf("unknown field kind %d", v.Kind)
	}
	return nil
}
