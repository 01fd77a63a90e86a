package codegen

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
)

var reserved = map[string]bool{
	"arguments": true, "await": true, "break": true, "case": true,
	"catch": true, "class": true, "const": true, "continue": true,
	"debugger": true, "default": true, "delete": true, "do": true,
	"else": true, "enum": true, "eval": true, "export": true,
	"extends": true, "false": true, "finally": true, "for": true,
	"function": true, "if": true, "implements": true, "import": true,
	"in": true, "instanceof": true, "interface": true, "let": true,
	"new": true, "null": true, "package": true, "private": true,
	"protected": true, "public": true, "return": true, "static": true,
	"super": true, "switch": true, "this": true, "throw": true,
	"true": true, "try": true, "typeof": true, "var": true,
	"void": true, "while": true, "with": true, "yield": true,
}

// ident maps a source name to a JavaScript binding name. Predicate and
// bang suffixes are spelled out and reserved words get a trailing
// underscore, so distinct source names stay distinct.
func ident(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '?':
			b.WriteString("_q")
		case r == '!':
			b.WriteString("_b")
		case r == '=':
			b.WriteString("_set")
		case r == '_' || r == '$' || unicode.IsLetter(r):
			b.WriteRune(r)
		case unicode.IsDigit(r) && i > 0:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" || reserved[s] {
		s += "_"
	}
	return s
}

// validProperty reports whether name can follow a dot.
func validProperty(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' || r == '$' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// member renders property access, falling back to bracket form.
func member(name string) string {
	if validProperty(name) {
		return "." + name
	}
	return "[" + quote(name) + "]"
}

// propertyName renders an object literal key.
func propertyName(name string) string {
	if validProperty(name) {
		return name
	}
	return quote(name)
}

func isSetter(name string) bool {
	return len(name) > 1 && strings.HasSuffix(name, "=") && validProperty(strings.TrimSuffix(name, "="))
}

// quote renders s as a double-quoted JavaScript string. The JSON encoder
// escapes quotes, backslashes, control characters, line separators and
// markup-sensitive characters, and replaces invalid UTF-8.
func quote(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eIN") {
		s += ".0"
	}
	return s
}
