// Package jsrt evaluates generated JavaScript in an embedded goja VM that
// provides the host built-ins the generator targets: console.log,
// setTimeout on a virtual clock, document.getElementById and the
// VisualObject constructor.
//
// Timers never fire on their own. Advance moves the virtual clock and runs
// what became due; RunTimers drains the queue:
//
//	rt, _ := jsrt.New(jsrt.Options{})
//	rt.Evaluate(ctx, `setTimeout(() => console.log("late"), 500);`)
//	rt.Advance(ctx, time.Second)
//
// A Runtime serializes all access to its VM.
package jsrt

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/rb2js/errors"
)

// DefaultMaxTimerRuns bounds RunTimers when callbacks keep rescheduling.
const DefaultMaxTimerRuns = 10000

// ScriptName labels evaluated code in stack traces.
const ScriptName = "generated.js"

// Options configures a Runtime.
type Options struct {
	Logger *zap.Logger
	// Registry backs document.getElementById. Nil creates a new one.
	Registry *Registry
	// Timeout bounds each evaluation and timer callback. Zero means none.
	Timeout time.Duration
	// MaxTimerRuns bounds RunTimers. Zero means DefaultMaxTimerRuns.
	MaxTimerRuns int
	// Isolate wraps each evaluation in its own block so top-level const
	// and let bindings do not collide across evaluations.
	Isolate bool
}

// Runtime is a goja VM with the host built-ins installed.
type Runtime struct {
	vm        *goja.Runtime
	registry  *Registry
	logger    *zap.Logger
	stringify goja.Callable
	timers    timerQueue
	output    []string
	opts      Options
	now       time.Duration
	seq       int64
	mu        sync.Mutex
}

// New creates a runtime and installs the built-ins.
func New(opts Options) (*Runtime, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.MaxTimerRuns <= 0 {
		opts.MaxTimerRuns = DefaultMaxTimerRuns
	}

	r := &Runtime{
		vm:       goja.New(),
		registry: opts.Registry,
		logger:   opts.Logger,
		opts:     opts,
	}
	if err := r.install(); err != nil {
		return nil, errors.Wrap(errors.PhaseExecute, errors.KindInstantiation, err, "install host built-ins")
	}
	return r, nil
}

func (r *Runtime) install() error {
	stringify, ok := goja.AssertFunction(r.vm.Get("JSON").ToObject(r.vm).Get("stringify"))
	if !ok {
		return errors.MissingExport("JSON.stringify")
	}
	r.stringify = stringify

	console := r.vm.NewObject()
	for name, level := range map[string]zapcore.Level{
		"log":   zapcore.InfoLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"debug": zapcore.DebugLevel,
	} {
		if err := console.Set(name, r.console(level)); err != nil {
			return err
		}
	}
	if err := r.vm.Set("console", console); err != nil {
		return err
	}

	document := r.vm.NewObject()
	if err := document.Set("getElementById", r.getElementByID); err != nil {
		return err
	}
	if err := r.vm.Set("document", document); err != nil {
		return err
	}

	if err := r.vm.Set("setTimeout", r.setTimeout); err != nil {
		return err
	}
	if err := r.vm.Set("clearTimeout", r.clearTimeout); err != nil {
		return err
	}
	return r.installVisualObject()
}

// Registry returns the element registry backing document.getElementById.
func (r *Runtime) Registry() *Registry { return r.registry }

// Evaluate runs code as a script. Exceptions and interruptions are
// returned as errors.
func (r *Runtime) Evaluate(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	src := code
	if r.opts.Isolate {
		src = "{\n" + code + "\n}"
	}
	return r.run(ctx, func() error {
		_, err := r.vm.RunScript(ScriptName, src)
		return err
	})
}

// run executes fn with the VM interrupted when ctx ends or the timeout
// passes.
func (r *Runtime) run(ctx context.Context, fn func() error) error {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.vm.ClearInterrupt()
	stop := context.AfterFunc(ctx, func() {
		r.vm.Interrupt(context.Cause(ctx))
	})
	defer stop()
	return fn()
}

// Now reports the virtual clock.
func (r *Runtime) Now() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now
}

// Pending reports how many timers are scheduled.
func (r *Runtime) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timers.Len()
}

// Advance moves the virtual clock forward by d, running every timer that
// becomes due in order. Timers scheduled by callbacks run too when they
// fall inside the window. It stops at the first failing callback.
func (r *Runtime) Advance(ctx context.Context, d time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target := r.now + max(d, 0)
	n, err := r.fire(ctx, target, math.MaxInt)
	if err == nil {
		r.now = target
	}
	return n, err
}

// RunTimers runs every pending timer, including ones scheduled while
// draining, and leaves the clock at the last one's due time.
func (r *Runtime) RunTimers(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.fire(ctx, math.MaxInt64, r.opts.MaxTimerRuns)
	if err == nil && r.timers.Len() > 0 {
		err = errors.New(errors.PhaseExecute, errors.KindExecution).
			Detail("timers still pending after %d runs", n).
			Value(r.timers.Len()).
			Build()
	}
	return n, err
}

func (r *Runtime) fire(ctx context.Context, limit time.Duration, maxRuns int) (int, error) {
	n := 0
	for n < maxRuns {
		t, ok := r.timers.next(limit)
		if !ok {
			break
		}
		r.now = t.due
		n++
		err := r.run(ctx, func() error {
			_, err := t.fn(goja.Undefined(), t.args...)
			return err
		})
		if err != nil {
			r.logger.Warn("timer callback failed", zap.Int64("timer", t.id), zap.Error(err))
			return n, errors.Wrap(errors.PhaseExecute, errors.KindExecution, err, "timer callback")
		}
	}
	return n, nil
}

// Output returns every console line written so far.
func (r *Runtime) Output() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.output...)
}

// TakeOutput returns the console lines written since the last call.
func (r *Runtime) TakeOutput() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.output
	r.output = nil
	return out
}

// Close drops pending timers and clears the registry.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timers = nil
	r.registry.Clear()
}

func (r *Runtime) console(level zapcore.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = r.format(arg)
		}
		text := strings.Join(parts, " ")
		r.output = append(r.output, text)
		if ce := r.logger.Check(level, "console output"); ce != nil {
			ce.Write(zap.String("text", text))
		}
		return goja.Undefined()
	}
}

// format renders objects as JSON and everything else with ToString.
func (r *Runtime) format(v goja.Value) string {
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if _, fn := goja.AssertFunction(obj); fn {
		return v.String()
	}
	s, err := r.stringify(goja.Undefined(), obj)
	if err != nil || goja.IsUndefined(s) {
		return v.String()
	}
	return s.String()
}

func (r *Runtime) setTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError("setTimeout: callback is not a function"))
	}
	ms := call.Argument(1).ToFloat()
	if math.IsNaN(ms) || ms < 0 {
		ms = 0
	}
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	r.seq++
	r.timers.schedule(&timer{
		fn:   fn,
		args: args,
		due:  r.after(ms),
		id:   r.seq,
	})
	return r.vm.ToValue(r.seq)
}

// after returns the clock reading ms milliseconds from now, saturating at
// the largest representable time.
func (r *Runtime) after(ms float64) time.Duration {
	const forever = time.Duration(math.MaxInt64)
	if ms >= float64(forever/time.Millisecond) {
		return forever
	}
	delay := time.Duration(ms * float64(time.Millisecond))
	if delay > forever-r.now {
		return forever
	}
	return r.now + delay
}

func (r *Runtime) clearTimeout(call goja.FunctionCall) goja.Value {
	r.timers.cancel(call.Argument(0).ToInteger())
	return goja.Undefined()
}

func (r *Runtime) getElementByID(call goja.FunctionCall) goja.Value {
	obj, ok := r.registry.Lookup(call.Argument(0).String())
	if !ok {
		return goja.Null()
	}
	return obj
}
