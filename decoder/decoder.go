// Package decoder turns the parsing module's serialized output into an
// ast.Result.
//
// Decoding degrades through a chain of strategies. The default chain is an
// optional host-registered external decoder, the built-in binary decoder and
// the line heuristic. The heuristic always succeeds, so a chain ending in it
// always yields a tree.
package decoder

import (
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/rb2js/ast"
	"github.com/wippyai/rb2js/errors"
)

// ErrSkip is returned by a strategy that does not apply, such as an empty
// registry. The chain moves on without recording a warning.
var ErrSkip = stderrors.New("decoder: strategy not applicable")

// Strategy is one decoding tier.
type Strategy interface {
	Name() string
	TryDecode(data []byte, source string) (*ast.Result, error)
}

// Func adapts a function to Strategy.
type Func struct {
	Fn    func(data []byte, source string) (*ast.Result, error)
	Label string
}

func (f Func) Name() string {
	if f.Label == "" {
		return "func"
	}
	return f.Label
}

func (f Func) TryDecode(data []byte, source string) (*ast.Result, error) {
	return f.Fn(data, source)
}

// Chain tries strategies in order and returns the first success.
type Chain struct {
	logger     *zap.Logger
	strategies []Strategy
}

// NewChain builds a chain over strategies. A nil logger discards output.
func NewChain(logger *zap.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{logger: logger, strategies: strategies}
}

// Default returns the standard three-tier chain. reg may be nil.
func Default(reg *Registry, logger *zap.Logger) *Chain {
	if reg == nil {
		reg = NewRegistry()
	}
	return NewChain(logger, reg, Binary{}, Heuristic{})
}

// Strategies returns the tier names in order.
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Decode runs the chain. Each failed tier adds a warning to the returned
// result. It fails only when every tier fails.
func (c *Chain) Decode(data []byte, source string) (*ast.Result, error) {
	var warnings ast.Diagnostics
	var attempts []error
	for _, s := range c.strategies {
		res, err := try(s, data, source)
		if err == nil {
			err = validate(res)
		}
		if err == nil {
			if res.Source == "" {
				res.Source = source
			}
			if len(warnings.Warnings) > 0 {
				warnings.Merge(res.Diagnostics)
				res.Diagnostics = warnings
			}
			return res, nil
		}
		if stderrors.Is(err, ErrSkip) {
			continue
		}
		c.logger.Warn("decoder tier failed", zap.String("tier", s.Name()), zap.Error(err))
		warnings.Warn(fmt.Sprintf("%s decoder failed: %v", s.Name(), err))
		attempts = append(attempts, err)
	}
	return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
		Detail("all %d decoder tiers failed", len(attempts)).
		Cause(stderrors.Join(attempts...)).
		Value(warnings).
		Build()
}

// try runs one tier, turning a panic on malformed input into a tier failure.
func try(s Strategy, data []byte, source string) (res *ast.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return s.TryDecode(data, source)
}

func validate(res *ast.Result) error {
	switch {
	case res == nil:
		return fmt.Errorf("no result")
	case !res.Success:
		return fmt.Errorf("unsuccessful result")
	case res.Node == nil:
		return fmt.Errorf("result has no root node")
	}
	if res.Node.Body == nil {
		res.Node.Body = []ast.Node{}
	}
	return nil
}
