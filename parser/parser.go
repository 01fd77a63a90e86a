// Package parser turns source text into an ast.Result through the parsing
// module, degrading to a line heuristic when the module or the serialized
// tree cannot be used.
//
// Parser owns one module instance. Manager wraps a Parser with single-flight
// initialization and retry after failure:
//
//	mgr := parser.NewManager(loader, parser.Options{Logger: logger})
//	defer mgr.Close(ctx)
//
//	res, err := mgr.ParseRubyCode(ctx, "puts 'hi'")
package parser

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/rb2js/ast"
	"github.com/wippyai/rb2js/decoder"
	"github.com/wippyai/rb2js/engine"
	"github.com/wippyai/rb2js/errors"
)

// DefaultWarmupSource is parsed once after loading to exercise the module.
const DefaultWarmupSource = "x = 1"

// Loader produces a module instance. *engine.Loader implements it.
type Loader interface {
	Load(ctx context.Context) (*engine.Instance, error)
}

// Options configures a Parser or Manager.
type Options struct {
	Logger *zap.Logger
	// Registry holds an optional host-provided decoder tried before the
	// built-in ones. Nil means a fresh empty registry.
	Registry *decoder.Registry
	// WarmupSource overrides DefaultWarmupSource. Set SkipWarmup to disable.
	WarmupSource string
	SkipWarmup   bool
	// KeepComments keeps comments in trees decoded from the binary format.
	KeepComments bool
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Diagnostics is a snapshot of a Parser's state and history.
type Diagnostics struct {
	LastResultType ast.Tier     `yaml:"last_result_type" json:"last_result_type"`
	Memory         engine.Stats `yaml:"memory" json:"memory"`
	Parses         int          `yaml:"parses" json:"parses"`
	Warnings       int          `yaml:"warnings" json:"warnings"`
	Initialized    bool         `yaml:"initialized" json:"initialized"`
	Ready          bool         `yaml:"ready" json:"ready"`
	LastSuccess    bool         `yaml:"last_success" json:"last_success"`
}

// Parser is the façade over one module instance.
type Parser struct {
	loader   Loader
	chain    *decoder.Chain
	registry *decoder.Registry
	logger   *zap.Logger
	inst     *engine.Instance
	opts     Options
	diag     Diagnostics
	mu       sync.Mutex
}

// New creates a parser. The module is not loaded until Initialize.
func New(loader Loader, opts Options) *Parser {
	reg := opts.Registry
	if reg == nil {
		reg = decoder.NewRegistry()
	}
	logger := opts.logger()
	chain := decoder.NewChain(logger,
		reg,
		decoder.Binary{KeepComments: opts.KeepComments},
		decoder.Heuristic{},
	)
	return &Parser{
		loader:   loader,
		chain:    chain,
		registry: reg,
		logger:   logger,
		opts:     opts,
	}
}

// Registry returns the external decoder registry consulted first.
func (p *Parser) Registry() *decoder.Registry { return p.registry }

// Initialize loads the module once and runs the warm-up parse. Warm-up
// failures are logged and do not fail initialization.
func (p *Parser) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inst != nil {
		return nil
	}
	if p.loader == nil {
		return errors.NotInitialized(errors.PhaseLoad, "module loader")
	}

	inst, err := p.loader.Load(ctx)
	if err != nil {
		p.logger.Error("parser module failed to load", zap.Error(err))
		return err
	}
	p.inst = inst
	p.diag.Initialized = true

	if !p.opts.SkipWarmup {
		p.warmup(ctx)
	}
	p.diag.Ready = true
	p.logger.Info("parser ready", zap.Stringer("source", sourceOf(inst)))
	return nil
}

func (p *Parser) warmup(ctx context.Context) {
	src := p.opts.WarmupSource
	if src == "" {
		src = DefaultWarmupSource
	}
	out, err := p.inst.Serialize(ctx, src)
	if err == nil {
		_, err = decoder.Binary{}.TryDecode(out.Bytes, src)
	}
	if err != nil {
		p.logger.Warn("warm-up parse failed", zap.String("source", src), zap.Error(err))
		return
	}
	p.logger.Debug("warm-up parse succeeded", zap.Int("bytes", len(out.Bytes)))
}

// IsReady reports whether the module is loaded.
func (p *Parser) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.diag.Ready
}

// Parse returns the tree for src. It never returns nil and never returns a
// nil root: when the module cannot produce a usable tree the result comes
// from the line heuristic with Tier set to fallback and a warning saying why.
func (p *Parser) Parse(ctx context.Context, src string) *ast.Result {
	p.mu.Lock()
	inst := p.inst
	p.mu.Unlock()

	var (
		res  *ast.Result
		err  error
		exit *ast.Diagnostic
	)
	if inst == nil {
		err = errors.NotInitialized(errors.PhaseParse, "parser")
	} else {
		var out *engine.Serialized
		out, err = inst.Serialize(ctx, src)
		if out != nil && out.Exited && out.ExitCode != 0 {
			exit = &ast.Diagnostic{
				Message: fmt.Sprintf("parser exited with code %d", out.ExitCode),
				Level:   ast.LevelWarning,
			}
			p.logger.Warn("parser module exited", zap.Uint32("code", out.ExitCode))
		}
		if err == nil {
			res, err = p.chain.Decode(out.Bytes, src)
		}
	}

	if err != nil {
		p.logger.Warn("parse degraded to fallback", zap.Error(err))
		res = Fallback(src)
		res.Diagnostics.Warn("parse failed: " + err.Error())
	}
	if exit != nil {
		res.Diagnostics.Warnings = append([]ast.Diagnostic{*exit}, res.Diagnostics.Warnings...)
	}

	p.record(res, inst)
	return res
}

// Fallback builds a result from the line heuristic alone.
func Fallback(src string) *ast.Result {
	res := decoder.Reconstruct(src)
	res.Tier = ast.TierFallback
	return res
}

func (p *Parser) record(res *ast.Result, inst *engine.Instance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.diag.Parses++
	p.diag.Warnings += len(res.Diagnostics.Warnings)
	p.diag.LastResultType = res.Tier
	p.diag.LastSuccess = res.Success && res.Tier != ast.TierFallback
	if inst != nil {
		p.diag.Memory = inst.Stats()
	}
}

// Diagnostics returns a snapshot of the parser's state.
func (p *Parser) Diagnostics() Diagnostics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.diag
}

// Close releases the module instance. The parser can be initialized again.
func (p *Parser) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inst == nil {
		return nil
	}
	err := p.inst.Close(ctx)
	p.inst = nil
	p.diag.Ready = false
	return err
}

func sourceOf(inst *engine.Instance) fmt.Stringer {
	if src := inst.Source(); src != nil {
		return src
	}
	return engine.StaticSource{Name: "bytes"}
}
