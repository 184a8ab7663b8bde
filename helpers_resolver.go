// scriptcomplete/helpers_resolver.go
// Resolves a classified completion context into hints.
package scriptcomplete

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ============================================================================
// Member Resolver
// ============================================================================

// Resolver turns binding names and bound values into hints.
type Resolver struct {
	finder    MethodFinder
	namespace string // Registry sub-namespace listed for NamespaceRegistry values.
	logger    *slog.Logger
}

// NewResolver creates a resolver that introspects values through finder and
// lists registry keys from namespace.
func NewResolver(finder MethodFinder, namespace string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if namespace == "" {
		namespace = defaultRegistryNamespace
	}
	return &Resolver{finder: finder, namespace: namespace, logger: logger.With("component", "Resolver")}
}

// BindingNames lists visible names in env starting with prefix (case-sensitive).
func (r *Resolver) BindingNames(env Bindings, prefix string) Hints {
	if env == nil {
		return Hints{}
	}
	var matched []Hint
	for _, name := range env.Names() {
		if strings.HasPrefix(name, prefix) {
			matched = append(matched, Hint{Name: name, Signature: name})
		}
	}
	return NewHints(matched...)
}

// Members lists the members of value whose name starts with prefix.
// A NamespaceRegistry lists its keys instead of being introspected.
// A nil value yields an empty collection. Finder errors are returned as is.
func (r *Resolver) Members(ctx context.Context, value any, prefix string) (Hints, error) {
	if value == nil {
		return Hints{}, nil
	}
	if registry, ok := value.(NamespaceRegistry); ok {
		return r.registryNames(registry, prefix), nil
	}
	if r.finder == nil {
		return Hints{}, nil
	}

	desc := DescribeValue(value)
	methods, err := r.finder.FindMethods(ctx, desc, prefix)
	if err != nil {
		return Hints{}, err
	}
	r.logger.Debug("Finder returned candidates", "type", desc.Key(), "prefix", prefix, "count", len(methods))
	return formatMethods(methods, prefix), nil
}

func (r *Resolver) registryNames(registry NamespaceRegistry, prefix string) Hints {
	var matched []Hint
	for _, name := range registry.Names(r.namespace) {
		if strings.HasPrefix(name, prefix) {
			matched = append(matched, Hint{Name: name, Signature: name})
		}
	}
	return NewHints(matched...)
}

// formatMethods applies the getter/method rules: one method hint per distinct
// name, plus a property hint for each zero-argument getter.
func formatMethods(methods []MethodDescriptor, prefix string) Hints {
	methodHints := make(map[string]Hint)
	propertyHints := make(map[string]Hint)
	var order []string

	for _, m := range methods {
		if m.Name == "" {
			continue
		}
		if strings.HasPrefix(m.Name, prefix) {
			if _, seen := methodHints[m.Name]; !seen {
				methodHints[m.Name] = Hint{Name: m.Name, Signature: methodSignature(m)}
				order = append(order, m.Name)
			}
		}
		if m.ParameterCount != 0 || m.ReturnType == "" {
			continue
		}
		prop, ok := PropertyName(m.Name)
		if !ok || !strings.HasPrefix(prop, prefix) {
			continue
		}
		if _, seen := propertyHints[prop]; !seen {
			propertyHints[prop] = Hint{Name: prop, Signature: prop + " " + m.ReturnType}
		}
	}

	all := make([]Hint, 0, len(methodHints)+len(propertyHints))
	for _, name := range order {
		all = append(all, methodHints[name])
	}
	for _, h := range propertyHints {
		all = append(all, h)
	}
	return NewHints(all...)
}

func methodSignature(m MethodDescriptor) string {
	if m.ReturnType == "" {
		return m.Name + "(...)"
	}
	return m.Name + "(...) " + m.ReturnType
}

// getterPrefixes are the accessor prefixes exposed as properties.
var getterPrefixes = []string{"get", "is", "Get", "Is"}

// PropertyName returns the property exposed by a getter name (getFoo, isFoo,
// GetFoo, IsFoo -> foo). The character after the prefix must be upper case.
func PropertyName(method string) (string, bool) {
	for _, p := range getterPrefixes {
		rest, ok := strings.CutPrefix(method, p)
		if !ok || rest == "" {
			continue
		}
		first, size := utf8.DecodeRuneInString(rest)
		if !unicode.IsUpper(first) {
			continue
		}
		return string(unicode.ToLower(first)) + rest[size:], true
	}
	return "", false
}

// matchesMemberPrefix reports whether a finder should return method for prefix:
// either its raw name or its derived property name starts with prefix.
func matchesMemberPrefix(method, prefix string) bool {
	if strings.HasPrefix(method, prefix) {
		return true
	}
	prop, ok := PropertyName(method)
	return ok && strings.HasPrefix(prop, prefix)
}

// ============================================================================
// Namespace Registry
// ============================================================================

// StaticRegistry is a NamespaceRegistry backed by a fixed map of namespace to names.
type StaticRegistry map[string][]string

// Names implements NamespaceRegistry.
func (r StaticRegistry) Names(namespace string) []string {
	return r[namespace]
}
