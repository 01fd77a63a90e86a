package codegen

import "github.com/wippyai/rb2js/ast"

// scope tracks local bindings of one function-level body: the program, a
// def or a block. if and while bodies share the enclosing scope.
type scope struct {
	parent   *scope
	declared map[string]bool
	mutable  map[string]bool
	hoisted  []string
}

// newScope pre-scans body so each local is declared exactly once. A name
// assigned more than once becomes let instead of const. A name first
// assigned inside control flow, or first assigned with a compound
// operator, is declared up front so every branch sees the same binding.
func newScope(parent *scope, params []string, body []ast.Node) *scope {
	s := &scope{
		parent:   parent,
		declared: make(map[string]bool),
		mutable:  make(map[string]bool),
	}
	for _, p := range params {
		s.declared[p] = true
	}

	a := &analysis{counts: make(map[string]int), direct: make(map[string]bool)}
	for _, n := range body {
		if asg, ok := n.(*ast.Assignment); ok {
			a.record(asg, true, false)
			a.walk(asg.Value, false)
			continue
		}
		a.walk(n, false)
	}

	for _, name := range a.order {
		if s.declared[name] || (parent != nil && parent.resolves(name)) {
			continue
		}
		if a.counts[name] > 1 || !a.direct[name] {
			s.mutable[name] = true
		}
		if !a.direct[name] {
			s.hoisted = append(s.hoisted, name)
			s.declared[name] = true
		}
	}
	return s
}

// resolves reports whether name is bound in s or an enclosing scope.
func (s *scope) resolves(name string) bool {
	for c := s; c != nil; c = c.parent {
		if c.declared[name] {
			return true
		}
	}
	return false
}

type analysis struct {
	counts map[string]int
	// direct is true when the first assignment is a plain top-level one.
	direct map[string]bool
	order  []string
}

func (a *analysis) record(asg *ast.Assignment, top, inBlock bool) {
	if asg.Scope != ast.ScopeLocal && asg.Scope != ast.ScopeConstant {
		return
	}
	if _, seen := a.counts[asg.Name]; !seen {
		// Names first assigned in a block belong to the block's scope.
		if inBlock {
			return
		}
		a.direct[asg.Name] = top && asg.Operator == ""
		a.order = append(a.order, asg.Name)
	}
	a.counts[asg.Name]++
}

func (a *analysis) walk(n ast.Node, inBlock bool) {
	ast.Walk(n, func(c ast.Node) bool {
		switch c := c.(type) {
		case *ast.Def:
			return false
		case *ast.Block:
			for _, stmt := range c.Body {
				a.walk(stmt, true)
			}
			return false
		case *ast.Assignment:
			a.record(c, false, inBlock)
		}
		return true
	})
}
