package decoder

import (
	"strings"

	"github.com/wippyai/rb2js/ast"
)

// Heuristic rebuilds a tree from the source text alone, one top-level node
// per non-blank, non-comment line. It ignores the serialized bytes and never
// fails. Lines are classified by leading keyword or by a top-level '='
// and parsed with a small Pratt parser; a line that does not parse becomes
// an ast.Unknown tagged "Unparsed". Block structure is not rebuilt: an `if`
// line yields an If with an empty body, and its `end` line an Unknown
// tagged with the keyword.
type Heuristic struct{}

func (Heuristic) Name() string { return string(ast.TierHeuristic) }

func (Heuristic) TryDecode(_ []byte, source string) (*ast.Result, error) {
	return Reconstruct(source), nil
}

// Unknown tag for lines the heuristic cannot parse.
const TagUnparsed = "Unparsed"

// Reconstruct runs the line heuristic over source.
func Reconstruct(source string) *ast.Result {
	prog := &ast.Program{
		Location: ast.Location{EndOffset: len(source)},
		Body:     []ast.Node{},
	}
	locals := make(map[string]bool)
	inDoc := false
	offset := 0
	for offset <= len(source) {
		end := strings.IndexByte(source[offset:], '\n')
		if end < 0 {
			end = len(source) - offset
		}
		raw := source[offset : offset+end]
		lineStart := offset
		offset += end + 1

		trimmed := strings.TrimSpace(raw)
		switch {
		case inDoc:
			if strings.HasPrefix(raw, "=end") {
				inDoc = false
			}
			continue
		case strings.HasPrefix(raw, "=begin"):
			inDoc = true
			continue
		case trimmed == "" || trimmed[0] == '#':
			continue
		}

		lead := len(raw) - len(strings.TrimLeft(raw, " \t"))
		prog.Body = append(prog.Body, parseLine(trimmed, lineStart+lead, locals))
	}

	return &ast.Result{
		Node:    prog,
		Source:  source,
		Tier:    ast.TierHeuristic,
		Success: true,
	}
}

func parseLine(text string, offset int, locals map[string]bool) ast.Node {
	unparsed := &ast.Unknown{
		Type:     TagUnparsed,
		Text:     text,
		Location: ast.Location{StartOffset: offset, EndOffset: offset + len(text)},
	}
	toks, err := lex(text, offset)
	if err != nil {
		return unparsed
	}
	p := &parser{toks: toks, locals: locals}
	n, err := p.line()
	if err != nil {
		return unparsed
	}
	return n
}
