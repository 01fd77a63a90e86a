// Package codegen emits JavaScript from ast nodes.
//
// Generation never fails. A node without a handler, or an expression that
// cannot be expressed, is replaced by a single diagnostic comment in place
// of the smallest enclosing statement, hash entry or array element:
//
//	// unsupported node: ClassNode
//
// Each top-level node becomes one statement, possibly spanning several
// lines, indented two spaces per nesting level.
package codegen

import (
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/rb2js/ast"
)

// Intrinsics names the host functions the DSL built-ins lower to.
type Intrinsics struct {
	// Print receives the arguments of puts.
	Print string
	// Timer schedules the block of wait after the given seconds.
	Timer string
	// Lookup resolves grab to an element by id.
	Lookup string
}

// DefaultIntrinsics targets a browser-like host.
func DefaultIntrinsics() Intrinsics {
	return Intrinsics{
		Print:  "console.log",
		Timer:  "setTimeout",
		Lookup: "document.getElementById",
	}
}

// Options configures a Generator. Zero fields take their defaults.
type Options struct {
	Logger     *zap.Logger
	Intrinsics Intrinsics
	// BaseTypes are constants whose .new calls become JavaScript
	// constructor calls.
	BaseTypes []string
	Indent    string
}

// DefaultOptions returns the options used by the package-level Generate.
func DefaultOptions() Options {
	return Options{
		Intrinsics: DefaultIntrinsics(),
		BaseTypes:  []string{"VisualObject"},
		Indent:     "  ",
	}
}

// Generator holds immutable generation settings and is safe for
// concurrent use.
type Generator struct {
	logger     *zap.Logger
	baseTypes  map[string]bool
	intrinsics Intrinsics
	indent     string
}

// New creates a generator.
func New(opts Options) *Generator {
	def := DefaultOptions()
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Intrinsics.Print == "" {
		opts.Intrinsics.Print = def.Intrinsics.Print
	}
	if opts.Intrinsics.Timer == "" {
		opts.Intrinsics.Timer = def.Intrinsics.Timer
	}
	if opts.Intrinsics.Lookup == "" {
		opts.Intrinsics.Lookup = def.Intrinsics.Lookup
	}
	if opts.BaseTypes == nil {
		opts.BaseTypes = def.BaseTypes
	}
	if opts.Indent == "" {
		opts.Indent = def.Indent
	}

	g := &Generator{
		logger:     opts.Logger,
		baseTypes:  make(map[string]bool, len(opts.BaseTypes)),
		intrinsics: opts.Intrinsics,
		indent:     opts.Indent,
	}
	for _, t := range opts.BaseTypes {
		g.baseTypes[t] = true
	}
	return g
}

var defaultGenerator = New(DefaultOptions())

// Generate emits nodes with the default options.
func Generate(nodes []ast.Node) string {
	return defaultGenerator.Generate(nodes)
}

// Generate emits nodes as JavaScript source.
func (g *Generator) Generate(nodes []ast.Node) string {
	return g.Compile(nodes).String()
}

// Stats counts what one Compile call produced.
type Stats struct {
	// Statements is the number of top-level nodes emitted as code.
	Statements int `yaml:"statements" json:"statements"`
	// Unsupported is the number of diagnostic comments emitted.
	Unsupported int `yaml:"unsupported" json:"unsupported"`
}

// Output is the generated code, one entry per line.
type Output struct {
	Lines []string
	Stats Stats
}

func (o *Output) String() string {
	return strings.Join(o.Lines, "\n")
}

// Compile emits nodes and reports statistics.
func (g *Generator) Compile(nodes []ast.Node) *Output {
	e := &emitter{g: g, scope: newScope(nil, nil, nodes)}
	e.declareHoisted()
	for _, n := range nodes {
		if e.statement(n, false) == emitted {
			e.stats.Statements++
		}
	}

	if e.stats.Unsupported > 0 {
		g.logger.Warn("generated code contains unsupported nodes",
			zap.Int("unsupported", e.stats.Unsupported),
			zap.Int("statements", e.stats.Statements))
	}
	return &Output{Lines: e.lines, Stats: e.stats}
}

var handled = []ast.Tag{
	ast.TagProgram,
	ast.TagAssignment,
	ast.TagCall,
	ast.TagBlock,
	ast.TagVariable,
	ast.TagSelf,
	ast.TagStringLiteral,
	ast.TagIntegerLiteral,
	ast.TagFloatLiteral,
	ast.TagBooleanLiteral,
	ast.TagNilLiteral,
	ast.TagSymbolLiteral,
	ast.TagArrayLiteral,
	ast.TagHashLiteral,
	ast.TagIf,
	ast.TagWhile,
	ast.TagDef,
	ast.TagReturn,
	ast.TagComment,
}

// Handlers lists the node kinds the generator handles. Everything else is
// emitted as a diagnostic comment.
func Handlers() []ast.Tag {
	return slices.Clone(handled)
}
