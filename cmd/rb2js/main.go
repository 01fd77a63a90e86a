package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/rb2js/ast"
	"github.com/wippyai/rb2js/codegen"
	"github.com/wippyai/rb2js/config"
	"github.com/wippyai/rb2js/engine"
	"github.com/wippyai/rb2js/errors"
	"github.com/wippyai/rb2js/jsrt"
	"github.com/wippyai/rb2js/parser"
	"github.com/wippyai/rb2js/transpile"
)

type options struct {
	configPath  string
	expr        string
	modules     stringList
	dumpAST     bool
	evaluate    bool
	diagnostics bool
	interactive bool
}

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flag.Var(&opts.modules, "module", "Parser module location: path, file:// or http(s) URL (repeatable)")
	flag.StringVar(&opts.expr, "e", "", "Source text to transpile instead of a file")
	flag.BoolVar(&opts.dumpAST, "ast", false, "Print the parsed tree as YAML instead of JavaScript")
	flag.BoolVar(&opts.evaluate, "run", false, "Evaluate the generated code and print console output")
	flag.BoolVar(&opts.diagnostics, "diag", false, "Print parser diagnostics as YAML")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive mode with TUI")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: rb2js [flags] [file.rb]")
		fmt.Fprintln(os.Stderr, "       rb2js -e 'puts \"hi\"' -run")
		fmt.Fprintln(os.Stderr, "       rb2js -i  (interactive mode)")
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(context.Background(), opts, flag.Args(), os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, args []string, stdin io.Reader, stdout io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if opts.interactive {
		if !isTerminal(stdin) {
			return errors.InvalidInput(errors.PhaseConfig, "interactive mode needs a terminal")
		}
		return runInteractive(ctx, cfg, logger)
	}

	src, err := readSource(opts.expr, args, stdin)
	if err != nil {
		return err
	}

	p, err := newPipeline(cfg, logger, opts.evaluate)
	if err != nil {
		return err
	}
	defer p.Close(ctx)

	res, err := p.transpiler.ProcessSource(ctx, src)
	if err != nil {
		if code, ok := errors.GeneratedCode(err); ok {
			fmt.Fprintln(stdout, code)
		}
		return err
	}

	if opts.dumpAST {
		if err := writeYAML(stdout, map[string]any{
			"tier":    string(res.AST.Tier),
			"success": res.AST.Success,
			"ast":     ast.ToMap(res.AST.Node),
		}); err != nil {
			return err
		}
	} else if res.GeneratedCode != "" {
		fmt.Fprintln(stdout, res.GeneratedCode)
	}

	if opts.evaluate {
		if _, err := p.runtime.RunTimers(ctx); err != nil {
			return err
		}
		for _, line := range p.runtime.Output() {
			fmt.Fprintln(stdout, line)
		}
	}

	if opts.diagnostics {
		return writeYAML(stdout, map[string]any{
			"parser":   p.manager.Diagnostics(),
			"codegen":  res.Stats,
			"handlers": len(codegen.Handlers()),
			"warnings": res.Diagnostics.Warnings,
		})
	}
	return nil
}

func loadConfig(opts options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return nil, err
		}
	}
	if len(opts.modules) > 0 {
		cfg.Module.Sources = opts.modules
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// readSource takes -e, then a file argument ("-" is stdin), then piped
// stdin.
func readSource(expr string, args []string, stdin io.Reader) (string, error) {
	if expr != "" {
		return expr, nil
	}
	if len(args) > 0 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", errors.InvalidInput(errors.PhaseConfig, "read "+args[0]+": "+err.Error())
		}
		return string(data), nil
	}
	if len(args) == 0 && isTerminal(stdin) {
		return "", errors.InvalidInput(errors.PhaseConfig, "no source: pass a file, -e or pipe stdin")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", errors.InvalidInput(errors.PhaseConfig, "read stdin: "+err.Error())
	}
	return string(data), nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// pipeline wires loader, parser manager, generator and evaluator from one
// configuration.
type pipeline struct {
	manager    *parser.Manager
	runtime    *jsrt.Runtime
	transpiler *transpile.Transpiler
}

func newPipeline(cfg *config.Config, logger *zap.Logger, evaluate bool) (*pipeline, error) {
	sources, err := cfg.Sources()
	if err != nil {
		return nil, err
	}
	engine.SetLogger(logger)

	p := &pipeline{
		manager: parser.NewManager(engine.NewLoader(cfg.EngineConfig(), sources...), cfg.ParserOptions(logger)),
	}
	topts := transpile.Options{
		Logger:    logger,
		Generator: codegen.New(cfg.CodegenOptions(logger)),
	}
	if evaluate {
		if p.runtime, err = jsrt.New(cfg.RuntimeOptions(logger)); err != nil {
			return nil, err
		}
		topts.Evaluator = p.runtime
	}
	p.transpiler = transpile.New(p.manager, topts)
	return p, nil
}

func (p *pipeline) Close(ctx context.Context) error {
	if p.runtime != nil {
		p.runtime.Close()
	}
	return p.manager.Close(ctx)
}
