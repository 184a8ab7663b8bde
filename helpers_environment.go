// scriptcomplete/helpers_environment.go
// Contains the chained binding environment read by the engine.
package scriptcomplete

import "slices"

// Bindings is the read-only view of a binding environment the engine needs.
type Bindings interface {
	// Lookup returns the value bound to name, searching parent scopes.
	Lookup(name string) (any, bool)
	// Names returns every visible name once, local names shadowing parent ones.
	Names() []string
}

// Environment is a name/value scope optionally chained to a parent. Names are
// reported in the order they were first Put.
// It is populated by its owner before use; Lookup and Names do not mutate it
// and are safe for concurrent readers.
type Environment struct {
	parent *Environment
	order  []string
	values map[string]any
}

// NewEnvironment creates an empty scope on top of parent (which may be nil).
func NewEnvironment(parent *Environment) *Environment {
	return &Environment{parent: parent, values: make(map[string]any)}
}

// Put binds name to value in this scope and returns the environment for chaining.
func (e *Environment) Put(name string, value any) *Environment {
	if _, exists := e.values[name]; !exists {
		e.order = append(e.order, name)
	}
	e.values[name] = value
	return e
}

// Parent returns the enclosing scope, or nil.
func (e *Environment) Parent() *Environment { return e.parent }

// Lookup implements Bindings.
func (e *Environment) Lookup(name string) (any, bool) {
	for scope := e; scope != nil; scope = scope.parent {
		if v, ok := scope.values[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Names implements Bindings. Local names come first in insertion order,
// followed by parent names not shadowed locally.
func (e *Environment) Names() []string {
	seen := make(map[string]struct{})
	var names []string
	for scope := e; scope != nil; scope = scope.parent {
		for _, name := range scope.order {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return slices.Clip(names)
}

// LocalNames returns the names bound directly in this scope.
func (e *Environment) LocalNames() []string {
	return slices.Clone(e.order)
}
