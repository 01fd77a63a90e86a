package preview1

import (
	"github.com/tetratelabs/wazero"

	"github.com/wippyai/rb2js/errors"
)

// Provider is a host module that can satisfy guest imports.
type Provider interface {
	ModuleName() string
	Functions() []string
}

// HostModule is a Provider for ad-hoc host modules built outside this package.
type HostModule struct {
	Name  string
	Funcs []string
}

func (h HostModule) ModuleName() string  { return h.Name }
func (h HostModule) Functions() []string { return h.Funcs }

// CheckImports reports every function import of compiled that no provider
// exports. It runs before instantiation so a missing host function is
// reported by name rather than as a link failure.
func CheckImports(compiled wazero.CompiledModule, providers ...Provider) error {
	provided := make(map[string]struct{})
	for _, p := range providers {
		for _, fn := range p.Functions() {
			provided[p.ModuleName()+"#"+fn] = struct{}{}
		}
	}

	var missing []string
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		key := module + "#" + name
		if _, ok := provided[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return errors.NewMissingImportsError(missing)
	}
	return nil
}
