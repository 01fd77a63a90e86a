package decoder

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokConst
	tokIVar
	tokGVar
	tokLabel
	tokInt
	tokFloat
	tokString
	tokSymbol
	tokKeyword
	tokOp
)

// strPart is a literal run or an interpolated #{...} of a string token.
type strPart struct {
	text   string
	pos    int
	isCode bool
}

type token struct {
	text        string
	parts       []strPart
	kind        tokenKind
	pos, end    int
	spaceBefore bool
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

func (t token) op(text string) bool { return t.is(tokOp, text) }
func (t token) kw(text string) bool { return t.is(tokKeyword, text) }

var keywords = map[string]bool{
	"true": true, "false": true, "nil": true, "self": true,
	"and": true, "or": true, "not": true,
	"if": true, "unless": true, "elsif": true, "else": true, "then": true,
	"while": true, "until": true, "do": true, "end": true,
	"def": true, "return": true, "class": true, "module": true,
	"begin": true, "rescue": true, "ensure": true, "case": true, "when": true,
	"yield": true, "break": true, "next": true, "redo": true, "retry": true,
}

// Longest first.
var operators = []string{
	"**=", "||=", "&&=", "<=>", "===", "...",
	"**", "==", "!=", ">=", "<=", "&&", "||", "=>", "=~", "!~",
	"+=", "-=", "*=", "/=", "%=", "|=", "&=", "::", "..", "&.", "->", "<<", ">>",
	"+", "-", "*", "/", "%", "=", "<", ">", "!", "(", ")", "[", "]", "{", "}",
	",", ".", "|", "&", "^", "?", ":", ";", "~",
}

type lexer struct {
	src  string
	base int
	pos  int
}

// lex tokenizes one line. base is the line's offset in the whole source.
// A '#' outside a string ends the line.
func lex(src string, base int) ([]token, error) {
	l := &lexer{src: src, base: base}
	var toks []token
	for {
		space := l.skipSpace()
		if l.pos >= len(l.src) || l.src[l.pos] == '#' {
			toks = append(toks, token{kind: tokEOF, pos: base + l.pos, end: base + l.pos, spaceBefore: space})
			return toks, nil
		}
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tok.spaceBefore = space
		toks = append(toks, tok)
	}
}

func (l *lexer) skipSpace() bool {
	start := l.pos
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\r') {
		l.pos++
	}
	return l.pos > start
}

func (l *lexer) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", l.base+l.pos, fmt.Sprintf(format, args...))
}

func (l *lexer) peekAt(i int) byte {
	if l.pos+i < len(l.src) {
		return l.src[l.pos+i]
	}
	return 0
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (l *lexer) ident() string {
	start := l.pos
	for l.pos < len(l.src) && isIdentChar(l.src[l.pos]) {
		l.pos++
	}
	return l.src[start:l.pos]
}

func (l *lexer) make(kind tokenKind, start int, text string) token {
	return token{kind: kind, text: text, pos: l.base + start, end: l.base + l.pos}
}

func (l *lexer) next() (token, error) {
	start := l.pos
	c := l.src[l.pos]

	switch {
	case isDigit(c):
		return l.number()

	case c == '"' || c == '\'':
		parts, err := l.quoted(c)
		if err != nil {
			return token{}, err
		}
		t := l.make(tokString, start, l.src[start:l.pos])
		t.parts = parts
		return t, nil

	case c == '@' && isIdentStart(l.peekAt(1)):
		l.pos++
		l.ident()
		return l.make(tokIVar, start, l.src[start:l.pos]), nil

	case c == '$' && isIdentStart(l.peekAt(1)):
		l.pos++
		l.ident()
		return l.make(tokGVar, start, l.src[start:l.pos]), nil

	case c == ':' && l.peekAt(1) != ':' && (isIdentStart(l.peekAt(1)) || l.peekAt(1) == '"'):
		l.pos++
		if l.peekAt(0) == '"' {
			parts, err := l.quoted('"')
			if err != nil {
				return token{}, err
			}
			if len(parts) != 1 || parts[0].isCode {
				return token{}, l.errorf("interpolated symbols are not supported")
			}
			return l.make(tokSymbol, start, parts[0].text), nil
		}
		name := l.ident()
		if c := l.peekAt(0); c == '?' || c == '!' || c == '=' && l.peekAt(1) != '=' && l.peekAt(1) != '>' {
			l.pos++
			name += string(c)
		}
		return l.make(tokSymbol, start, name), nil

	case isIdentStart(c):
		name := l.ident()
		if c := l.peekAt(0); (c == '?' || c == '!') && l.peekAt(1) != '=' {
			l.pos++
			name += string(c)
		}
		if l.peekAt(0) == ':' && l.peekAt(1) != ':' {
			l.pos++
			return l.make(tokLabel, start, name), nil
		}
		if keywords[name] {
			return l.make(tokKeyword, start, name), nil
		}
		if name[0] >= 'A' && name[0] <= 'Z' {
			return l.make(tokConst, start, name), nil
		}
		return l.make(tokIdent, start, name), nil
	}

	for _, op := range operators {
		if strings.HasPrefix(l.src[l.pos:], op) {
			l.pos += len(op)
			return l.make(tokOp, start, op), nil
		}
	}
	return token{}, l.errorf("unexpected character %q", c)
}

func (l *lexer) number() (token, error) {
	start := l.pos
	kind := tokInt
	if l.src[l.pos] == '0' && strings.ContainsRune("xXbBoO", rune(l.peekAt(1))) {
		l.pos += 2
		for l.pos < len(l.src) && (isIdentChar(l.src[l.pos])) {
			l.pos++
		}
		return l.make(kind, start, l.src[start:l.pos]), nil
	}
	digits := func() {
		for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
			l.pos++
		}
	}
	digits()
	if l.peekAt(0) == '.' && isDigit(l.peekAt(1)) {
		kind = tokFloat
		l.pos++
		digits()
	}
	if c := l.peekAt(0); c == 'e' || c == 'E' {
		save := l.pos
		l.pos++
		if c := l.peekAt(0); c == '+' || c == '-' {
			l.pos++
		}
		if isDigit(l.peekAt(0)) {
			kind = tokFloat
			digits()
		} else {
			l.pos = save
		}
	}
	if isIdentStart(l.peekAt(0)) {
		return token{}, l.errorf("malformed number")
	}
	return l.make(kind, start, l.src[start:l.pos]), nil
}

// quoted reads a string literal opened by quote. Double-quoted strings
// process escapes and split #{...} interpolations into code parts.
func (l *lexer) quoted(quote byte) ([]strPart, error) {
	l.pos++
	var parts []strPart
	var b strings.Builder
	litStart := l.pos
	flush := func() {
		if b.Len() > 0 || len(parts) == 0 {
			parts = append(parts, strPart{text: b.String(), pos: l.base + litStart})
		}
		b.Reset()
	}

	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == quote:
			l.pos++
			if b.Len() > 0 || len(parts) == 0 {
				flush()
			}
			return parts, nil

		case c == '\\' && l.pos+1 < len(l.src):
			e := l.src[l.pos+1]
			l.pos += 2
			if quote == '\'' {
				if e != '\'' && e != '\\' {
					b.WriteByte('\\')
				}
				b.WriteByte(e)
				continue
			}
			b.WriteString(unescape(e))

		case quote == '"' && c == '#' && l.peekAt(1) == '{':
			if b.Len() > 0 {
				flush()
			}
			l.pos += 2
			codeStart := l.pos
			depth := 1
			for l.pos < len(l.src) && depth > 0 {
				switch l.src[l.pos] {
				case '{':
					depth++
				case '}':
					depth--
				}
				l.pos++
			}
			if depth > 0 {
				return nil, l.errorf("unterminated interpolation")
			}
			parts = append(parts, strPart{text: l.src[codeStart : l.pos-1], pos: l.base + codeStart, isCode: true})
			litStart = l.pos

		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return nil, l.errorf("unterminated string")
}

func unescape(e byte) string {
	switch e {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case '0':
		return "\x00"
	case 's':
		return " "
	case 'e':
		return "\x1b"
	case 'a':
		return "\a"
	case 'b':
		return "\b"
	}
	return string(e)
}
