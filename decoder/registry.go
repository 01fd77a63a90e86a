package decoder

import (
	"sync"

	"github.com/wippyai/rb2js/ast"
)

// Registry holds the optional host-supplied full decoder. It is itself a
// Strategy, so it sits first in the chain and skips while empty.
type Registry struct {
	external Strategy
	mu       sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register installs s, replacing any previous decoder.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	r.external = s
	r.mu.Unlock()
}

// Unregister removes the current decoder.
func (r *Registry) Unregister() {
	r.Register(nil)
}

// Registered reports whether a decoder is installed.
func (r *Registry) Registered() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.external != nil
}

func (r *Registry) Name() string { return string(ast.TierExternal) }

func (r *Registry) TryDecode(data []byte, source string) (*ast.Result, error) {
	r.mu.RLock()
	s := r.external
	r.mu.RUnlock()
	if s == nil {
		return nil, ErrSkip
	}
	res, err := s.TryDecode(data, source)
	if err != nil {
		return nil, err
	}
	if res != nil {
		res.Tier = ast.TierExternal
	}
	return res, nil
}
