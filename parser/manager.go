package parser

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/rb2js/ast"
	"github.com/wippyai/rb2js/errors"
)

// State is the lifecycle state of a Manager.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	// StateFailed behaves like StateUninitialized: the next call retries.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in dumps.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ManagerDiagnostics extends the parser snapshot with lifecycle state.
type ManagerDiagnostics struct {
	Diagnostics `yaml:",inline"`
	LastError   string `yaml:"last_error,omitempty" json:"last_error,omitempty"`
	State       State  `yaml:"state" json:"state"`
	Loads       int    `yaml:"loads" json:"loads"`
}

// Manager owns the process's parser and deduplicates its initialization.
// Concurrent InitializePrism calls share one load; a failed load leaves the
// manager ready to try again, except for missing imports, which only a
// different module can fix.
type Manager struct {
	loader  Loader
	parser  *Parser
	lastErr error
	logger  *zap.Logger
	group   singleflight.Group
	opts    Options
	state   State
	loads   int
	mu      sync.Mutex

	// closes counts Close calls so a load that finishes after one is
	// discarded instead of published.
	closes int
}

// NewManager creates a manager; nothing is loaded until first use.
func NewManager(loader Loader, opts Options) *Manager {
	return &Manager{
		loader: loader,
		opts:   opts,
		logger: opts.logger(),
	}
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// InitializePrism loads the parser unless it is already ready. Callers that
// arrive during a load wait for it instead of starting another. A caller
// whose context ends stops waiting; the load itself runs to completion.
func (m *Manager) InitializePrism(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case m.state == StateReady:
		m.mu.Unlock()
		return nil
	case m.state == StateFailed && errors.IsKind(m.lastErr, errors.KindMissingImport):
		err := m.lastErr
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	ch := m.group.DoChan("init", func() (any, error) {
		return nil, m.initialize(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateReady {
		m.mu.Unlock()
		return nil
	}
	m.state = StateInitializing
	m.loads++
	attempt := m.loads
	gen := m.closes
	m.mu.Unlock()

	m.logger.Debug("initializing parser", zap.Int("attempt", attempt))
	p := New(m.loader, m.opts)
	err := p.Initialize(ctx)

	m.mu.Lock()
	if m.closes != gen {
		m.mu.Unlock()
		m.logger.Debug("manager closed during initialization", zap.Int("attempt", attempt))
		if err != nil {
			return err
		}
		_ = p.Close(ctx)
		return errors.New(errors.PhaseLoad, errors.KindNotInitialized).
			Detail("manager closed during initialization").
			Build()
	}
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateFailed
		m.lastErr = err
		m.logger.Error("parser initialization failed", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}
	m.parser = p
	m.state = StateReady
	m.lastErr = nil
	return nil
}

// Parser returns the ready parser, or nil before initialization.
func (m *Manager) Parser() *Parser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.parser
}

// ParseRubyCode initializes if needed and parses text. Initialization
// failures are returned; parse degradations are reported in the result.
func (m *Manager) ParseRubyCode(ctx context.Context, text string) (*ast.Result, error) {
	if err := m.InitializePrism(ctx); err != nil {
		return nil, err
	}
	p := m.Parser()
	if p == nil {
		return nil, errors.NotInitialized(errors.PhaseParse, "parser")
	}
	return p.Parse(ctx, text), nil
}

// Diagnostics returns the parser snapshot plus lifecycle state.
func (m *Manager) Diagnostics() ManagerDiagnostics {
	m.mu.Lock()
	d := ManagerDiagnostics{State: m.state, Loads: m.loads}
	if m.lastErr != nil {
		d.LastError = m.lastErr.Error()
	}
	p := m.parser
	m.mu.Unlock()

	if p != nil {
		d.Diagnostics = p.Diagnostics()
	}
	return d
}

// Reset clears a sticky failure so the next call loads again.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateFailed {
		m.state = StateUninitialized
		m.lastErr = nil
	}
}

// Close tears down the parser and returns the manager to uninitialized. A
// load in flight is closed when it finishes and its callers get a
// KindNotInitialized error.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	p := m.parser
	m.parser = nil
	m.state = StateUninitialized
	m.closes++
	m.mu.Unlock()

	if p == nil {
		return nil
	}
	return p.Close(ctx)
}
