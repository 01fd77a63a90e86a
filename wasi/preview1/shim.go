// Package preview1 serves wasi_snapshot_preview1 to guest parsers compiled
// with wasi-libc.
//
// The host module is wazero's stock preview1 set with a few functions
// replaced. The shim never touches the host filesystem or process:
// descriptor and path calls succeed with synthesized metadata, stdout and
// stderr are forwarded to a zap logger, and proc_exit unwinds the guest call
// without closing the module. Arguments, environment, clocks and randomness
// are read by the stock functions from the guest's module config:
//
//	shim := preview1.New().
//	    WithArgs([]string{"prism"}).
//	    WithEnv(map[string]string{"LANG": "C.UTF-8"}).
//	    WithLogger(logger)
//
//	if err := preview1.CheckImports(compiled, shim); err != nil {
//	    return err
//	}
//	if _, err := shim.Instantiate(ctx, rt); err != nil {
//	    return err
//	}
//	mod, err := rt.InstantiateModule(ctx, compiled, shim.Configure(wazero.NewModuleConfig()))
package preview1

import (
	"context"
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
)

// ModuleName is the import namespace served by the shim.
const ModuleName = "wasi_snapshot_preview1"

// Preopen is a directory advertised to the guest through fd_prestat_get.
type Preopen struct {
	GuestPath string
}

// Shim holds the state shared by all host functions of one instantiation.
type Shim struct {
	logger   *zap.Logger
	now      func() time.Time
	opened   map[uint32]struct{}
	env      map[string]string
	args     []string
	preopens []Preopen
	exitCode uint32
	nextFD   uint32
	mu       sync.Mutex
	exited   bool
}

// New creates a shim with no arguments, environment or preopens.
func New() *Shim {
	return &Shim{
		logger: zap.NewNop(),
		opened: make(map[uint32]struct{}),
		env:    make(map[string]string),
	}
}

// WithArgs sets argv as seen by args_get once applied with Configure.
func (s *Shim) WithArgs(args []string) *Shim {
	s.args = append([]string(nil), args...)
	return s
}

// WithEnv sets the environment as seen by environ_get once applied with
// Configure.
func (s *Shim) WithEnv(env map[string]string) *Shim {
	for k, v := range env {
		s.env[k] = v
	}
	return s
}

// WithPreopens advertises guest directories starting at fd 3.
func (s *Shim) WithPreopens(paths ...string) *Shim {
	for _, p := range paths {
		s.preopens = append(s.preopens, Preopen{GuestPath: p})
	}
	return s
}

// WithLogger sets the logger receiving guest stdout and stderr.
func (s *Shim) WithLogger(logger *zap.Logger) *Shim {
	if logger == nil {
		logger = zap.NewNop()
	}
	s.logger = logger
	return s
}

// WithClock replaces the host clocks with now. The monotonic clock counts
// from the first reading taken at Configure.
func (s *Shim) WithClock(now func() time.Time) *Shim {
	s.now = now
	return s
}

// ModuleName implements Provider.
func (s *Shim) ModuleName() string { return ModuleName }

// Functions lists the exported function names in export order.
func (s *Shim) Functions() []string {
	return append([]string(nil), stockFunctions...)
}

// Instantiate registers the host module in rt. A runtime holds at most one
// module per name, so a shim is instantiated once per runtime.
func (s *Shim) Instantiate(ctx context.Context, rt wazero.Runtime) (api.Module, error) {
	builder := rt.NewHostModuleBuilder(ModuleName)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)

	// Exporting an existing name replaces the stock function in place.
	for _, d := range s.overrides() {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(d.fn, d.params, d.results).
			Export(d.name)
	}
	return builder.Instantiate(ctx)
}

// Configure applies the arguments, environment, clocks and random source
// read by the stock functions to a guest module config.
func (s *Shim) Configure(cfg wazero.ModuleConfig) wazero.ModuleConfig {
	cfg = cfg.WithArgs(s.args...).WithRandSource(rand.Reader)
	for _, kv := range s.environ() {
		cfg = cfg.WithEnv(kv[0], kv[1])
	}

	if s.now == nil {
		return cfg.WithSysWalltime().WithSysNanotime()
	}
	now := s.now
	start := now()
	resolution := sys.ClockResolution(time.Microsecond.Nanoseconds())
	return cfg.
		WithWalltime(func() (int64, int32) {
			t := now()
			return t.Unix(), int32(t.Nanosecond())
		}, resolution).
		WithNanotime(func() int64 {
			return int64(now().Sub(start))
		}, resolution)
}

// ExitCode reports the code passed to proc_exit and whether it was called
// since the last Reset.
func (s *Shim) ExitCode() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode, s.exited
}

// Reset clears the recorded exit status and closes fake descriptors.
func (s *Shim) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exitCode = 0
	s.exited = false
	s.opened = make(map[uint32]struct{})
	s.nextFD = 0
}

// environ returns the environment as key, value pairs sorted by key.
func (s *Shim) environ() [][2]string {
	keys := make([]string, 0, len(s.env))
	for k := range s.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][2]string, len(keys))
	for i, k := range keys {
		out[i] = [2]string{k, s.env[k]}
	}
	return out
}

type definition struct {
	fn      api.GoModuleFunc
	name    string
	params  []api.ValueType
	results []api.ValueType
}

func sig(n int, kinds ...api.ValueType) []api.ValueType {
	out := make([]api.ValueType, 0, n+len(kinds))
	for range n {
		out = append(out, api.ValueTypeI32)
	}
	return append(out, kinds...)
}

var errnoResult = []api.ValueType{api.ValueTypeI32}

// overrides are the functions whose stock behavior would reach the host
// filesystem or close the guest.
func (s *Shim) overrides() []definition {
	i32, i64 := api.ValueTypeI32, api.ValueTypeI64
	return []definition{
		{name: "fd_advise", fn: s.ok, params: []api.ValueType{i32, i64, i64, i32}, results: errnoResult},
		{name: "fd_close", fn: s.fdClose, params: sig(1), results: errnoResult},
		{name: "fd_fdstat_get", fn: s.fdFdstatGet, params: sig(2), results: errnoResult},
		{name: "fd_fdstat_set_flags", fn: s.ok, params: sig(2), results: errnoResult},
		{name: "fd_filestat_get", fn: s.fdFilestatGet, params: sig(2), results: errnoResult},
		{name: "fd_prestat_get", fn: s.fdPrestatGet, params: sig(2), results: errnoResult},
		{name: "fd_prestat_dir_name", fn: s.fdPrestatDirName, params: sig(3), results: errnoResult},
		{name: "fd_read", fn: s.fdRead, params: sig(4), results: errnoResult},
		{name: "fd_seek", fn: s.fdSeek, params: []api.ValueType{i32, i64, i32, i32}, results: errnoResult},
		{name: "fd_write", fn: s.fdWrite, params: sig(4), results: errnoResult},
		{name: "path_open", fn: s.pathOpen, params: sig(5, i64, i64, i32, i32), results: errnoResult},
		{name: "path_filestat_get", fn: s.pathFilestatGet, params: sig(5), results: errnoResult},
		{name: "proc_exit", fn: s.procExit, params: sig(1)},
	}
}

// stockFunctions is the export order of wazero's preview1 exporter.
var stockFunctions = []string{
	"args_get", "args_sizes_get", "environ_get", "environ_sizes_get",
	"clock_res_get", "clock_time_get",
	"fd_advise", "fd_allocate", "fd_close", "fd_datasync",
	"fd_fdstat_get", "fd_fdstat_set_flags", "fd_fdstat_set_rights",
	"fd_filestat_get", "fd_filestat_set_size", "fd_filestat_set_times",
	"fd_pread", "fd_prestat_get", "fd_prestat_dir_name", "fd_pwrite",
	"fd_read", "fd_readdir", "fd_renumber", "fd_seek", "fd_sync", "fd_tell",
	"fd_write",
	"path_create_directory", "path_filestat_get", "path_filestat_set_times",
	"path_link", "path_open", "path_readlink", "path_remove_directory",
	"path_rename", "path_symlink", "path_unlink_file",
	"poll_oneoff", "proc_exit", "proc_raise", "sched_yield", "random_get",
	"sock_accept", "sock_recv", "sock_send", "sock_shutdown",
}
