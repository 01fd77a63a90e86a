package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase is the pipeline stage an error came from.
type Phase string

const (
	PhaseLoad        Phase = "load"        // fetching module bytes
	PhaseInstantiate Phase = "instantiate" // compile, link, instantiate
	PhaseMemory      Phase = "memory"      // linear memory access and allocation
	PhaseParse       Phase = "parse"       // calling the parse export
	PhaseDecode      Phase = "decode"      // serialized AST to ast nodes
	PhaseGenerate    Phase = "generate"    // ast nodes to JavaScript
	PhaseExecute     Phase = "execute"     // evaluating generated code
	PhaseConfig      Phase = "config"      // configuration loading
)

// Kind is the error category. Callers branch on it with IsKind.
type Kind string

const (
	KindModuleUnavailable Kind = "module_unavailable"
	KindMissingImport     Kind = "missing_import"
	KindMissingExport     Kind = "missing_export"
	KindOutOfMemory       Kind = "out_of_memory"
	KindAllocation        Kind = "allocation"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindInvalidData       Kind = "invalid_data"
	KindUnsupported       Kind = "unsupported"
	KindNotInitialized    Kind = "not_initialized"
	KindInvalidInput      Kind = "invalid_input"
	KindInstantiation     Kind = "instantiation"
	KindTrap              Kind = "trap"
	KindExecution         Kind = "execution"
)

// Error is the structured error returned by every rb2js package. Value
// holds the offending input when one exists: a size, an export name, or the
// generated code of a failed evaluation.
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error renders "[phase] kind at path: detail (caused by: cause)".
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on phase and kind only.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether err's chain holds an *Error of the given kind,
// whatever its phase.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	var mi *MissingImportsError
	return kind == KindMissingImport && stderrors.As(err, &mi)
}

// Builder assembles an Error field by field.
type Builder struct {
	err Error
}

func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path records where in the tree or document the error applies.
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail formats msg with args when any are given.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

func (b *Builder) Build() *Error {
	return &b.err
}

// ModuleUnavailable reports that no candidate module source could be fetched.
// Attempts holds one error per source, in the order they are tried.
func ModuleUnavailable(attempts []error) *Error {
	detail := "no module source available"
	if len(attempts) == 0 {
		detail += " (no sources configured)"
	}
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindModuleUnavailable,
		Detail: detail,
		Cause:  joinAttempts(attempts),
		Value:  len(attempts),
	}
}

func joinAttempts(attempts []error) error {
	if len(attempts) == 0 {
		return nil
	}
	msgs := make([]string, len(attempts))
	for i, err := range attempts {
		msgs[i] = err.Error()
	}
	return &attemptsError{errs: attempts, msg: strings.Join(msgs, "; ")}
}

type attemptsError struct {
	msg  string
	errs []error
}

func (e *attemptsError) Error() string   { return e.msg }
func (e *attemptsError) Unwrap() []error { return e.errs }

// MissingExport reports a function or memory the module must export but doesn't
func MissingExport(name string) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindMissingExport,
		Detail: fmt.Sprintf("module does not export %q", name),
		Value:  name,
	}
}

// OutOfMemory reports an exhausted arena
func OutOfMemory(requested, remaining uint32) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindOutOfMemory,
		Detail: fmt.Sprintf("arena exhausted: requested %d bytes, %d remaining", requested, remaining),
		Value:  requested,
	}
}

// AllocationFailed reports a guest malloc that returned null or trapped.
func AllocationFailed(size uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// OutOfBounds reports a linear memory access past the end of memory.
func OutOfBounds(phase Phase, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("offset %d length %d out of bounds", offset, length),
		Value:  offset,
	}
}

// InvalidData reports malformed serialized or configured input.
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Unsupported reports a construct a stage cannot handle.
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap attaches phase, kind and detail to cause.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingImport is one function import the host cannot satisfy.
type MissingImport struct {
	Namespace string // e.g., "wasi_snapshot_preview1"
	Function  string // e.g., "sock_accept"
}

// MissingImportsError lists every unresolved import of a parsing module.
// It is detected before instantiation and is not retryable.
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError parses keys of the form "namespace#function".
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		ns, fn := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Namespace: ns,
			Function:  fn,
		})
	}
	return result
}

func parseImportKey(key string) (namespace, function string) {
	ns, fn, found := strings.Cut(key, "#")
	if found {
		return ns, fn
	}
	return key, ""
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[instantiate] missing_import: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing import: %d host function(s) not provided:\n", len(e.Imports)))

	byNS := make(map[string][]string)
	var nsOrder []string
	for _, imp := range e.Imports {
		if _, exists := byNS[imp.Namespace]; !exists {
			nsOrder = append(nsOrder, imp.Namespace)
		}
		byNS[imp.Namespace] = append(byNS[imp.Namespace], imp.Function)
	}

	for _, ns := range nsOrder {
		b.WriteString("\n  ")
		b.WriteString(ns)
		b.WriteString(":\n")
		for _, fn := range byNS[ns] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type.
// A MissingImportsError also matches an *Error of kind KindMissingImport.
func (e *MissingImportsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingImportsError:
		return true
	case *Error:
		return t.Kind == KindMissingImport
	}
	return false
}

// NotInitialized reports use of a component before its module loaded.
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Instantiation wraps a wazero instantiation failure.
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Trap wraps a failure raised while the module was executing an export
func Trap(export string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindTrap,
		Detail: fmt.Sprintf("call %s", export),
		Cause:  cause,
		Value:  export,
	}
}

// Execution reports that generated code failed when evaluated by the host.
// The generated code is attached as Value for diagnosis.
func Execution(code string, cause error) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindExecution,
		Detail: "evaluate generated code",
		Cause:  cause,
		Value:  code,
	}
}

// GeneratedCode returns the generated code attached to an execution error.
func GeneratedCode(err error) (string, bool) {
	var e *Error
	for err != nil {
		if ee, ok := err.(*Error); ok && ee.Kind == KindExecution {
			e = ee
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return "", false
		}
		err = u.Unwrap()
	}
	if e == nil {
		return "", false
	}
	code, ok := e.Value.(string)
	return code, ok
}

// Config reports an unreadable or invalid configuration.
func Config(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}
