// Package transpile runs the whole pipeline: initialize the parser, parse,
// generate JavaScript and hand the code to an Evaluator.
//
//	mgr := parser.NewManager(engine.NewLoader(cfg, sources...), parser.Options{})
//	t := transpile.New(mgr, transpile.Options{Evaluator: rt})
//	res, err := t.ProcessSource(ctx, src)
//
// The result keeps the tree and the generated code so callers can inspect
// intermediate artifacts without running the pipeline again.
package transpile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/rb2js/ast"
	"github.com/wippyai/rb2js/codegen"
	"github.com/wippyai/rb2js/errors"
)

// Parser initializes on demand and parses source text. *parser.Manager
// implements it.
type Parser interface {
	ParseRubyCode(ctx context.Context, text string) (*ast.Result, error)
}

// Evaluator is the host boundary that runs generated code.
type Evaluator interface {
	Evaluate(ctx context.Context, code string) error
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, code string) error

func (f EvaluatorFunc) Evaluate(ctx context.Context, code string) error {
	return f(ctx, code)
}

// Options configures a Transpiler.
type Options struct {
	Logger *zap.Logger
	// Generator defaults to codegen.New with default options.
	Generator *codegen.Generator
	// Evaluator is optional; without one code is only produced.
	Evaluator Evaluator
}

// Result holds every stage's output.
type Result struct {
	AST           *ast.Result     `yaml:"-" json:"-"`
	GeneratedCode string          `yaml:"generated_code" json:"generated_code"`
	Diagnostics   ast.Diagnostics `yaml:"diagnostics" json:"diagnostics"`
	Stats         codegen.Stats   `yaml:"stats" json:"stats"`
	// Evaluated is set once the evaluator accepted the code.
	Evaluated bool `yaml:"evaluated" json:"evaluated"`
	Success   bool `yaml:"success" json:"success"`
}

// Transpiler is the pipeline orchestrator.
type Transpiler struct {
	parser    Parser
	gen       *codegen.Generator
	evaluator Evaluator
	logger    *zap.Logger
}

// New creates a transpiler over p.
func New(p Parser, opts Options) *Transpiler {
	t := &Transpiler{
		parser:    p,
		gen:       opts.Generator,
		evaluator: opts.Evaluator,
		logger:    opts.Logger,
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	if t.gen == nil {
		t.gen = codegen.New(codegen.Options{Logger: t.logger})
	}
	return t
}

// Transpile parses src and generates code without evaluating it.
// Initialization failures are returned; parse and generation degradations
// are reported as warnings in the result.
func (t *Transpiler) Transpile(ctx context.Context, src string) (*Result, error) {
	parsed, err := t.parser.ParseRubyCode(ctx, src)
	if err != nil {
		t.logger.Error("transpile failed: parser unavailable", zap.Error(err))
		return nil, err
	}

	out := t.gen.Compile(parsed.Body())
	res := &Result{
		AST:           parsed,
		GeneratedCode: out.String(),
		Stats:         out.Stats,
		Success:       parsed.Success,
	}
	res.Diagnostics.Merge(parsed.Diagnostics)
	if out.Stats.Unsupported > 0 {
		res.Diagnostics.Warn(fmt.Sprintf("%d unsupported nodes emitted as comments", out.Stats.Unsupported))
	}

	t.logger.Debug("transpiled source",
		zap.String("tier", string(parsed.Tier)),
		zap.Int("statements", out.Stats.Statements),
		zap.Int("unsupported", out.Stats.Unsupported))
	return res, nil
}

// ProcessSource transpiles src and evaluates the generated code. An
// evaluation failure is returned as an execution error carrying the code,
// alongside the result; it is never retried.
func (t *Transpiler) ProcessSource(ctx context.Context, src string) (*Result, error) {
	res, err := t.Transpile(ctx, src)
	if err != nil {
		return nil, err
	}
	if t.evaluator == nil || res.GeneratedCode == "" {
		return res, nil
	}

	if err := t.evaluator.Evaluate(ctx, res.GeneratedCode); err != nil {
		res.Success = false
		t.logger.Error("generated code failed", zap.Error(err), zap.String("code", res.GeneratedCode))
		return res, errors.Execution(res.GeneratedCode, err)
	}
	res.Evaluated = true
	return res, nil
}
