package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/rb2js/errors"
	"github.com/wippyai/rb2js/wasi/preview1"
)

// Config holds configuration for loading the parsing module
type Config struct {
	// Env is the environment seen by the guest through environ_get.
	Env map[string]string

	// Args is argv seen by the guest through args_get.
	Args []string

	// Preopens are guest directory names advertised through fd_prestat_get.
	// Nothing on the host is opened.
	Preopens []string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// ArenaBase is where the fallback bump allocator starts when the module
	// exports no allocator. 0 means DefaultArenaBase.
	ArenaBase uint32
}

// Loader fetches and instantiates the parsing module.
type Loader struct {
	sources []Source
	cfg     Config
}

// NewLoader creates a loader that tries sources in order.
func NewLoader(cfg Config, sources ...Source) *Loader {
	return &Loader{cfg: cfg, sources: sources}
}

// Sources returns the configured sources in the order they are tried.
func (l *Loader) Sources() []Source {
	return append([]Source(nil), l.sources...)
}

// Fetch returns the bytes of the first source that succeeds. When every
// source fails the error is KindModuleUnavailable with one cause per source.
func (l *Loader) Fetch(ctx context.Context) ([]byte, Source, error) {
	attempts := make([]error, 0, len(l.sources))
	for _, src := range l.sources {
		data, err := src.Fetch(ctx)
		if err == nil {
			Logger().Debug("module fetched",
				zap.Stringer("source", src),
				zap.Int("bytes", len(data)))
			return data, src, nil
		}
		Logger().Debug("module source failed", zap.Stringer("source", src), zap.Error(err))
		attempts = append(attempts, err)
	}
	return nil, nil, errors.ModuleUnavailable(attempts)
}

// Load fetches the module and instantiates it.
func (l *Loader) Load(ctx context.Context) (*Instance, error) {
	data, src, err := l.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	inst, err := Instantiate(ctx, data, l.cfg)
	if err != nil {
		return nil, err
	}
	inst.source = src
	return inst, nil
}

// Instantiate compiles data in a fresh runtime, links the WASI shim and runs
// _initialize when the module exports it. Imports the shim cannot satisfy
// fail with *errors.MissingImportsError before anything is instantiated.
func Instantiate(ctx context.Context, data []byte, cfg Config) (*Instance, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	inst, err := instantiate(ctx, rt, data, cfg)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return inst, nil
}

func instantiate(ctx context.Context, rt wazero.Runtime, data []byte, cfg Config) (*Instance, error) {
	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInstantiate, errors.KindInvalidData, err, "compile module")
	}

	shim := preview1.New().
		WithArgs(cfg.Args).
		WithEnv(cfg.Env).
		WithPreopens(cfg.Preopens...).
		WithLogger(Logger().Named("guest"))

	if err := preview1.CheckImports(compiled, shim); err != nil {
		return nil, err
	}
	if _, err := shim.Instantiate(ctx, rt); err != nil {
		return nil, errors.Instantiation(err)
	}

	modCfg := shim.Configure(wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if _, ok := compiled.ExportedFunctions()["_initialize"]; ok {
		modCfg = modCfg.WithStartFunctions("_initialize")
	}
	mod, err := rt.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	return bind(rt, mod, shim, cfg)
}
