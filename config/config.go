// Package config loads rb2js settings from YAML and converts them into the
// option structs of each component.
//
//	module:
//	  sources: [prism.wasm, https://cdn.example.com/prism.wasm]
//	  memory_limit_pages: 1024
//	codegen:
//	  base_types: [VisualObject, Widget]
//	log:
//	  level: debug
//
// Unknown keys are rejected.
package config

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/rb2js/codegen"
	"github.com/wippyai/rb2js/engine"
	"github.com/wippyai/rb2js/errors"
	"github.com/wippyai/rb2js/jsrt"
	"github.com/wippyai/rb2js/parser"
)

// DefaultSource is tried when no module source is configured.
const DefaultSource = "prism.wasm"

type Config struct {
	Module  Module  `yaml:"module"`
	WASI    WASI    `yaml:"wasi"`
	Parser  Parser  `yaml:"parser"`
	Codegen Codegen `yaml:"codegen"`
	Runtime Runtime `yaml:"runtime"`
	Log     Log     `yaml:"log"`
}

// Module selects and sizes the parsing module.
type Module struct {
	// Sources are tried in order; paths, file:// and http(s) URLs.
	Sources          []string `yaml:"sources"`
	MemoryLimitPages uint32   `yaml:"memory_limit_pages"`
	ArenaBase        uint32   `yaml:"arena_base"`
}

// WASI is what the guest sees through the preview1 shim.
type WASI struct {
	Env      map[string]string `yaml:"env"`
	Args     []string          `yaml:"args"`
	Preopens []string          `yaml:"preopens"`
}

type Parser struct {
	WarmupSource string `yaml:"warmup_source"`
	SkipWarmup   bool   `yaml:"skip_warmup"`
	KeepComments bool   `yaml:"keep_comments"`
}

type Codegen struct {
	BaseTypes  []string   `yaml:"base_types"`
	Indent     string     `yaml:"indent"`
	Intrinsics Intrinsics `yaml:"intrinsics"`
}

type Intrinsics struct {
	Print  string `yaml:"print"`
	Timer  string `yaml:"timer"`
	Lookup string `yaml:"lookup"`
}

// Runtime configures the bundled JavaScript evaluator.
type Runtime struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxTimerRuns int           `yaml:"max_timer_runs"`
	Isolate      bool          `yaml:"isolate"`
}

type Log struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `yaml:"level"`
	// Encoding is json or console.
	Encoding    string `yaml:"encoding"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	gen := codegen.DefaultOptions()
	return &Config{
		Module: Module{Sources: []string{DefaultSource}},
		Parser: Parser{WarmupSource: parser.DefaultWarmupSource},
		Codegen: Codegen{
			BaseTypes: gen.BaseTypes,
			Indent:    gen.Indent,
			Intrinsics: Intrinsics{
				Print:  gen.Intrinsics.Print,
				Timer:  gen.Intrinsics.Timer,
				Lookup: gen.Intrinsics.Lookup,
			},
		},
		Runtime: Runtime{Timeout: 5 * time.Second, MaxTimerRuns: jsrt.DefaultMaxTimerRuns},
		Log:     Log{Level: "info", Encoding: "console"},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Config("resolve "+path, err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, errors.Config("open "+abs, err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, errors.Config("parse "+abs, err)
	}
	return cfg, nil
}

// Decode reads YAML from r over the defaults and validates the result.
// An empty document yields the defaults.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the components would otherwise reject late.
func (c *Config) Validate() error {
	if len(c.Module.Sources) == 0 {
		return errors.Config("module.sources: at least one source is required", nil)
	}
	if _, err := engine.ParseSources(c.Module.Sources); err != nil {
		return errors.Config("module.sources", err)
	}
	if c.Module.ArenaBase%8 != 0 {
		return errors.Config("module.arena_base: must be 8-byte aligned", nil)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Config("log.level", err)
	}
	switch c.Log.Encoding {
	case "", "json", "console":
	default:
		return errors.Config("log.encoding: must be json or console", nil)
	}
	if c.Runtime.Timeout < 0 || c.Runtime.MaxTimerRuns < 0 {
		return errors.Config("runtime: timeout and max_timer_runs must not be negative", nil)
	}
	return nil
}

// Sources parses the configured module locations.
func (c *Config) Sources() ([]engine.Source, error) {
	return engine.ParseSources(c.Module.Sources)
}

// EngineConfig converts module and WASI settings for engine.NewLoader.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Env:              c.WASI.Env,
		Args:             c.WASI.Args,
		Preopens:         c.WASI.Preopens,
		MemoryLimitPages: c.Module.MemoryLimitPages,
		ArenaBase:        c.Module.ArenaBase,
	}
}

// ParserOptions converts parser settings.
func (c *Config) ParserOptions(logger *zap.Logger) parser.Options {
	return parser.Options{
		Logger:       logger,
		WarmupSource: c.Parser.WarmupSource,
		SkipWarmup:   c.Parser.SkipWarmup,
		KeepComments: c.Parser.KeepComments,
	}
}

// CodegenOptions converts generator settings.
func (c *Config) CodegenOptions(logger *zap.Logger) codegen.Options {
	return codegen.Options{
		Logger:    logger,
		BaseTypes: c.Codegen.BaseTypes,
		Indent:    c.Codegen.Indent,
		Intrinsics: codegen.Intrinsics{
			Print:  c.Codegen.Intrinsics.Print,
			Timer:  c.Codegen.Intrinsics.Timer,
			Lookup: c.Codegen.Intrinsics.Lookup,
		},
	}
}

// RuntimeOptions converts evaluator settings.
func (c *Config) RuntimeOptions(logger *zap.Logger) jsrt.Options {
	return jsrt.Options{
		Logger:       logger,
		Timeout:      c.Runtime.Timeout,
		MaxTimerRuns: c.Runtime.MaxTimerRuns,
		Isolate:      c.Runtime.Isolate,
	}
}

// Logger builds the process logger.
func (c *Config) Logger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Config("log.level", err)
	}
	zc.Level = level
	if c.Log.Encoding != "" {
		zc.Encoding = c.Log.Encoding
	}
	zc.OutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return nil, errors.Config("build logger", err)
	}
	return logger, nil
}
