// scriptcomplete/helpers_finder.go
// Contains method finders: reflection, kind dispatch, and caching.
package scriptcomplete

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// Type Descriptors
// ============================================================================

// TypedValue is implemented by bound values that describe their own type
// rather than being reflected (catalog or Go package types).
type TypedValue interface {
	ScriptType() TypeDescriptor
}

// DescribeValue returns the runtime type descriptor of a bound value.
func DescribeValue(v any) TypeDescriptor {
	if tv, ok := v.(TypedValue); ok {
		return tv.ScriptType()
	}
	t := reflect.TypeOf(v)
	if t == nil {
		return TypeDescriptor{Kind: TypeKindReflect, Name: "nil"}
	}
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	return TypeDescriptor{Kind: TypeKindReflect, Name: simpleTypeName(t), PkgPath: base.PkgPath(), Reflect: t}
}

// simpleTypeName returns the unqualified name of t, looking through pointers.
func simpleTypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	switch t.Kind() {
	case reflect.Slice:
		return "[]" + simpleTypeName(t.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), simpleTypeName(t.Elem()))
	case reflect.Map:
		return "map[" + simpleTypeName(t.Key()) + "]" + simpleTypeName(t.Elem())
	case reflect.Chan:
		return "chan " + simpleTypeName(t.Elem())
	case reflect.Func:
		return "func"
	case reflect.Interface:
		return "any"
	}
	return t.String()
}

// ============================================================================
// Reflection Finder
// ============================================================================

// ReflectMethodFinder lists exported methods of a value's dynamic Go type.
// The pointer method set is used so methods with pointer receivers appear.
type ReflectMethodFinder struct{}

// FindMethods implements MethodFinder.
func (ReflectMethodFinder) FindMethods(ctx context.Context, desc TypeDescriptor, prefix string) ([]MethodDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if desc.Reflect == nil {
		return nil, fmt.Errorf("%w: %s has no reflect type", ErrUnknownType, desc.Key())
	}
	t := desc.Reflect
	if t.Kind() != reflect.Pointer && t.Kind() != reflect.Interface {
		t = reflect.PointerTo(t)
	}
	var out []MethodDescriptor
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !m.IsExported() || !matchesMemberPrefix(m.Name, prefix) {
			continue
		}
		// Method.Type includes the receiver for concrete types but not for interfaces.
		params := m.Type.NumIn()
		if t.Kind() != reflect.Interface {
			params--
		}
		ret := ""
		if m.Type.NumOut() > 0 {
			ret = simpleTypeName(m.Type.Out(0))
		}
		out = append(out, MethodDescriptor{Name: m.Name, ParameterCount: params, ReturnType: ret})
	}
	return out, nil
}

// ============================================================================
// Finder Dispatch
// ============================================================================

// FinderSet dispatches to a MethodFinder registered for the descriptor's kind.
// The reflection finder is installed for TypeKindReflect by default.
type FinderSet struct {
	mu      sync.RWMutex
	finders map[TypeKind]MethodFinder
}

// NewFinderSet creates a dispatcher with the reflection finder installed.
func NewFinderSet() *FinderSet {
	return &FinderSet{finders: map[TypeKind]MethodFinder{TypeKindReflect: ReflectMethodFinder{}}}
}

// Register installs (or replaces) the finder for kind.
func (s *FinderSet) Register(kind TypeKind, finder MethodFinder) *FinderSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finders[kind] = finder
	return s
}

// Kinds lists the registered type kinds, sorted.
func (s *FinderSet) Kinds() []TypeKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kinds := make([]TypeKind, 0, len(s.finders))
	for k := range s.finders {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// FindMethods implements MethodFinder.
func (s *FinderSet) FindMethods(ctx context.Context, desc TypeDescriptor, prefix string) ([]MethodDescriptor, error) {
	s.mu.RLock()
	finder, ok := s.finders[desc.Kind]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no finder for kind %q (%s)", ErrUnknownType, desc.Kind, desc.Key())
	}
	return finder.FindMethods(ctx, desc, prefix)
}

// ============================================================================
// Caching Finder
// ============================================================================

// reflectTypeIDs numbers reflect.Types for cache keys. Type.String is not
// unique: same-named types declared in different functions print alike.
var (
	reflectTypeIDs    sync.Map // reflect.Type -> uint64
	nextReflectTypeID atomic.Uint64
)

func reflectTypeID(t reflect.Type) uint64 {
	if id, ok := reflectTypeIDs.Load(t); ok {
		return id.(uint64)
	}
	id, _ := reflectTypeIDs.LoadOrStore(t, nextReflectTypeID.Add(1))
	return id.(uint64)
}

// CachedMethodFinder memoizes another finder's results in a MemoryCache.
type CachedMethodFinder struct {
	next   MethodFinder
	cache  *MemoryCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedMethodFinder wraps next. A nil cache disables memoization.
func NewCachedMethodFinder(next MethodFinder, cache *MemoryCache, ttl time.Duration, logger *slog.Logger) *CachedMethodFinder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedMethodFinder{next: next, cache: cache, ttl: ttl, logger: logger.With("component", "CachedMethodFinder")}
}

// FindMethods implements MethodFinder.
func (c *CachedMethodFinder) FindMethods(ctx context.Context, desc TypeDescriptor, prefix string) ([]MethodDescriptor, error) {
	key := desc.Key()
	if desc.Kind == TypeKindReflect && desc.Reflect != nil {
		key = "reflect:" + strconv.FormatUint(reflectTypeID(desc.Reflect), 10) + ":" + desc.Reflect.String()
	}
	key += "|" + prefix
	methods, _, err := withMemoryCache(c.cache, key, 0, c.ttl, func() ([]MethodDescriptor, error) {
		found, findErr := c.next.FindMethods(ctx, desc, prefix)
		if findErr != nil {
			return nil, findErr
		}
		return found, nil
	}, c.logger)
	if err != nil {
		return nil, err
	}
	// Callers must not mutate a cached slice.
	out := make([]MethodDescriptor, len(methods))
	copy(out, methods)
	return out, nil
}
