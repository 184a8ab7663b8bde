// scriptcomplete/helpers_bindings.go
// Loads the bindings file (YAML or TOML) into an environment and a type catalog.
package scriptcomplete

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ============================================================================
// Bindings File Model
// ============================================================================

// BindingsSpec is the decoded bindings file. Globals form the parent scope,
// Bindings the local scope on top of it, Types the catalog of declared types.
type BindingsSpec struct {
	Globals  map[string]BindingSpec `yaml:"globals" toml:"globals"`
	Bindings map[string]BindingSpec `yaml:"bindings" toml:"bindings"`
	Types    map[string]TypeSpec    `yaml:"types" toml:"types"`
}

// BindingSpec describes one bound name. Exactly one field must be set.
type BindingSpec struct {
	Value    any                 `yaml:"value,omitempty" toml:"value,omitempty"`
	Type     string              `yaml:"type,omitempty" toml:"type,omitempty"`
	GoType   string              `yaml:"go_type,omitempty" toml:"go_type,omitempty"`
	Registry map[string][]string `yaml:"registry,omitempty" toml:"registry,omitempty"`

	// ValueJSON carries Value through the gob-encoded disk cache.
	ValueJSON []byte `yaml:"-" toml:"-"`
}

// TypeSpec declares the methods of a catalog type.
type TypeSpec struct {
	Methods []MethodDescriptor `yaml:"methods" toml:"methods"`
}

// CatalogValue is bound for `type:` entries; its methods come from the catalog.
type CatalogValue struct {
	TypeName string
}

// ScriptType implements TypedValue.
func (v CatalogValue) ScriptType() TypeDescriptor {
	return TypeDescriptor{Kind: TypeKindCatalog, Name: v.TypeName}
}

// PackageValue is bound for `go_type:` entries; its methods come from go/packages.
type PackageValue struct {
	PkgPath string
	Name    string
}

// ScriptType implements TypedValue.
func (v PackageValue) ScriptType() TypeDescriptor {
	return TypeDescriptor{Kind: TypeKindPackage, PkgPath: v.PkgPath, Name: v.Name}
}

// splitGoType splits "import/path.Name" into its package path and type name.
func splitGoType(s string) (pkgPath, name string, err error) {
	idx := strings.LastIndex(s, ".")
	if idx <= 0 || idx == len(s)-1 || strings.LastIndex(s, "/") > idx {
		return "", "", fmt.Errorf("go_type %q must look like import/path.Name", s)
	}
	return s[:idx], s[idx+1:], nil
}

// ============================================================================
// Decoding & Validation
// ============================================================================

// DecodeBindings parses data as YAML or TOML depending on the file extension.
func DecodeBindings(path string, data []byte) (*BindingsSpec, error) {
	var spec BindingsSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty document decodes to an empty spec.
		if err := dec.Decode(&spec); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: decoding YAML %s: %w", ErrBindingsFile, path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("%w: decoding TOML %s: %w", ErrBindingsFile, path, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported bindings file extension %q", ErrBindingsFile, filepath.Ext(path))
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks that each binding sets exactly one source and that
// referenced catalog types exist.
func (s *BindingsSpec) Validate() error {
	var problems []error
	check := func(scope string, entries map[string]BindingSpec) {
		for name, b := range entries {
			if !isValidIdentifier(name) {
				problems = append(problems, fmt.Errorf("%s.%s: invalid binding name", scope, name))
				continue
			}
			set := 0
			if b.Value != nil || len(b.ValueJSON) > 0 {
				set++
			}
			if b.Type != "" {
				set++
				if _, ok := s.Types[b.Type]; !ok {
					problems = append(problems, fmt.Errorf("%w: %s.%s references undeclared type %q", ErrUnknownType, scope, name, b.Type))
				}
			}
			if b.GoType != "" {
				set++
				if _, _, err := splitGoType(b.GoType); err != nil {
					problems = append(problems, fmt.Errorf("%s.%s: %w", scope, name, err))
				}
			}
			if b.Registry != nil {
				set++
			}
			if set != 1 {
				problems = append(problems, fmt.Errorf("%s.%s: exactly one of value, type, go_type, registry must be set (got %d)", scope, name, set))
			}
		}
	}
	check("globals", s.Globals)
	check("bindings", s.Bindings)
	for typeName, t := range s.Types {
		for i, m := range t.Methods {
			if !isValidIdentifier(m.Name) {
				problems = append(problems, fmt.Errorf("types.%s.methods[%d]: invalid method name %q", typeName, i, m.Name))
			}
			if m.ParameterCount < 0 {
				problems = append(problems, fmt.Errorf("types.%s.methods[%d]: negative params", typeName, i))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrBindingsFile, errors.Join(problems...))
	}
	return nil
}

func isValidIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentByte(s[i]) {
			return false
		}
	}
	return true
}

// clone copies the scope maps so packing for the cache leaves s untouched.
func (s *BindingsSpec) clone() *BindingsSpec {
	out := &BindingsSpec{
		Globals:  make(map[string]BindingSpec, len(s.Globals)),
		Bindings: make(map[string]BindingSpec, len(s.Bindings)),
		Types:    make(map[string]TypeSpec, len(s.Types)),
	}
	for k, v := range s.Globals {
		out.Globals[k] = v
	}
	for k, v := range s.Bindings {
		out.Bindings[k] = v
	}
	for k, v := range s.Types {
		out.Types[k] = v
	}
	return out
}

// packForCache moves literal values into ValueJSON so a BindingsSpec can be gob-encoded.
func (s *BindingsSpec) packForCache() error {
	for _, scope := range []map[string]BindingSpec{s.Globals, s.Bindings} {
		for name, b := range scope {
			if b.Value == nil {
				continue
			}
			raw, err := json.Marshal(b.Value)
			if err != nil {
				return fmt.Errorf("%w: encoding value of %s: %w", ErrCacheEncode, name, err)
			}
			b.ValueJSON, b.Value = raw, nil
			scope[name] = b
		}
	}
	return nil
}

// unpackFromCache reverses packForCache.
func (s *BindingsSpec) unpackFromCache() error {
	for _, scope := range []map[string]BindingSpec{s.Globals, s.Bindings} {
		for name, b := range scope {
			if len(b.ValueJSON) == 0 {
				continue
			}
			var v any
			if err := json.Unmarshal(b.ValueJSON, &v); err != nil {
				return fmt.Errorf("%w: decoding value of %s: %w", ErrCacheDecode, name, err)
			}
			b.Value, b.ValueJSON = v, nil
			scope[name] = b
		}
	}
	return nil
}

// ============================================================================
// Environment Construction
// ============================================================================

// BuildEnvironment turns a spec into a two-level environment (globals as the
// parent) and returns the catalog of declared types. Each scope is bound in
// name order; the order of entries in the file is not kept.
func BuildEnvironment(spec *BindingsSpec) (*Environment, map[string][]MethodDescriptor, error) {
	globals := NewEnvironment(nil)
	if err := bindScope(globals, spec.Globals); err != nil {
		return nil, nil, err
	}
	local := NewEnvironment(globals)
	if err := bindScope(local, spec.Bindings); err != nil {
		return nil, nil, err
	}
	catalog := make(map[string][]MethodDescriptor, len(spec.Types))
	for name, t := range spec.Types {
		methods := make([]MethodDescriptor, len(t.Methods))
		copy(methods, t.Methods)
		catalog[name] = methods
	}
	return local, catalog, nil
}

func bindScope(env *Environment, entries map[string]BindingSpec) error {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b := entries[name]
		switch {
		case b.Registry != nil:
			env.Put(name, StaticRegistry(b.Registry))
		case b.Type != "":
			env.Put(name, CatalogValue{TypeName: b.Type})
		case b.GoType != "":
			pkgPath, typeName, err := splitGoType(b.GoType)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrBindingsFile, name, err)
			}
			env.Put(name, PackageValue{PkgPath: pkgPath, Name: typeName})
		default:
			env.Put(name, b.Value)
		}
	}
	return nil
}

// LoadBindings reads path, consulting store (which may be nil) to skip decoding
// when the file content is unchanged since it was last cached.
func LoadBindings(path string, store *CatalogStore, logger *slog.Logger) (*BindingsSpec, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loadLogger := logger.With("op", "LoadBindings", "path", path)

	hash, err := hashFileContent(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrBindingsFile, ErrCacheHash, err)
	}
	if store != nil {
		spec, found, getErr := store.Get(path, hash)
		if getErr != nil {
			loadLogger.Warn("Catalog cache read failed, decoding file", "error", getErr)
		} else if found {
			loadLogger.Debug("Bindings served from disk cache")
			return spec, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBindingsFile, err)
	}
	spec, err := DecodeBindings(path, data)
	if err != nil {
		return nil, err
	}
	if store != nil {
		if putErr := store.Put(path, hash, spec); putErr != nil {
			loadLogger.Warn("Catalog cache write failed", "error", putErr)
		}
	}
	loadLogger.Info("Decoded bindings file", "globals", len(spec.Globals), "bindings", len(spec.Bindings), "types", len(spec.Types))
	return spec, nil
}

// ============================================================================
// Catalog Finder
// ============================================================================

// CatalogMethodFinder serves methods of types declared in the bindings file.
type CatalogMethodFinder struct {
	mu    sync.RWMutex
	types map[string][]MethodDescriptor
}

// NewCatalogMethodFinder creates a finder over catalog (which may be nil).
func NewCatalogMethodFinder(catalog map[string][]MethodDescriptor) *CatalogMethodFinder {
	f := &CatalogMethodFinder{}
	f.Replace(catalog)
	return f
}

// Replace swaps the catalog, e.g. after a bindings reload.
func (f *CatalogMethodFinder) Replace(catalog map[string][]MethodDescriptor) {
	if catalog == nil {
		catalog = map[string][]MethodDescriptor{}
	}
	f.mu.Lock()
	f.types = catalog
	f.mu.Unlock()
}

// FindMethods implements MethodFinder.
func (f *CatalogMethodFinder) FindMethods(ctx context.Context, desc TypeDescriptor, prefix string) ([]MethodDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	methods, ok := f.types[desc.Name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: catalog has no type %q", ErrUnknownType, desc.Name)
	}
	var out []MethodDescriptor
	for _, m := range methods {
		if matchesMemberPrefix(m.Name, prefix) {
			out = append(out, m)
		}
	}
	return out, nil
}
