// scriptcomplete/helpers_finder_test.go
package scriptcomplete

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Ancillary struct{}

type sampleService struct{}

func (s *sampleService) DoWork() Ancillary                      { return Ancillary{} }
func (sampleService) GetSomething() string                      { return "" }
func (s *sampleService) Method1()                               {}
func (s *sampleService) Method2(a, b int) (string, error)       { return "", nil }
func (s *sampleService) Lookup(keys ...string) map[string][]int { return nil }
func (sampleService) hidden()                                   {}

type widgetTitle struct{}

func (widgetTitle) Title() string { return "" }

// newPlainWidget and newTitledWidget return distinct types that print the same.
func newPlainWidget() any {
	type Widget struct{}
	return &Widget{}
}

func newTitledWidget() any {
	type Widget struct{ widgetTitle }
	return &Widget{}
}

func TestDescribeValue(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		wantKind TypeKind
		wantName string
	}{
		{"Struct", sampleService{}, TypeKindReflect, "sampleService"},
		{"Pointer", &sampleService{}, TypeKindReflect, "sampleService"},
		{"String", "text", TypeKindReflect, "string"},
		{"Slice", []int{1}, TypeKindReflect, "[]int"},
		{"Map", map[string]bool{}, TypeKindReflect, "map[string]bool"},
		{"Nil", nil, TypeKindReflect, "nil"},
		{"Catalog value", CatalogValue{TypeName: "XWikiDocument"}, TypeKindCatalog, "XWikiDocument"},
		{"Package value", PackageValue{PkgPath: "net/url", Name: "URL"}, TypeKindPackage, "URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := DescribeValue(tt.value)
			assert.Equal(t, tt.wantKind, desc.Kind)
			assert.Equal(t, tt.wantName, desc.Name)
		})
	}
}

func TestReflectMethodFinder(t *testing.T) {
	ctx := context.Background()
	desc := DescribeValue(sampleService{})

	t.Run("All exported methods", func(t *testing.T) {
		got, err := ReflectMethodFinder{}.FindMethods(ctx, desc, "")
		require.NoError(t, err)
		assert.Equal(t, []MethodDescriptor{
			{Name: "DoWork", ParameterCount: 0, ReturnType: "Ancillary"},
			{Name: "GetSomething", ParameterCount: 0, ReturnType: "string"},
			{Name: "Lookup", ParameterCount: 1, ReturnType: "map[string][]int"},
			{Name: "Method1", ParameterCount: 0, ReturnType: ""},
			{Name: "Method2", ParameterCount: 2, ReturnType: "string"},
		}, got)
	})

	t.Run("Prefix on raw name", func(t *testing.T) {
		got, err := ReflectMethodFinder{}.FindMethods(ctx, desc, "Me")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Method1", got[0].Name)
		assert.Equal(t, "Method2", got[1].Name)
	})

	t.Run("Prefix on property name", func(t *testing.T) {
		got, err := ReflectMethodFinder{}.FindMethods(ctx, desc, "so")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "GetSomething", got[0].Name)
	})

	t.Run("Interface type keeps all parameters", func(t *testing.T) {
		readerDesc := TypeDescriptor{Kind: TypeKindReflect, Name: "Reader", Reflect: reflect.TypeOf((*io.Reader)(nil)).Elem()}
		got, err := ReflectMethodFinder{}.FindMethods(ctx, readerDesc, "")
		require.NoError(t, err)
		assert.Equal(t, []MethodDescriptor{{Name: "Read", ParameterCount: 1, ReturnType: "int"}}, got)
	})

	t.Run("Missing reflect type", func(t *testing.T) {
		_, err := ReflectMethodFinder{}.FindMethods(ctx, TypeDescriptor{Kind: TypeKindReflect, Name: "x"}, "")
		assert.ErrorIs(t, err, ErrUnknownType)
	})

	t.Run("Cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := ReflectMethodFinder{}.FindMethods(cctx, desc, "")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFinderSet(t *testing.T) {
	ctx := context.Background()
	catalog := &fakeFinder{methods: testClassMethods}
	set := NewFinderSet()
	assert.Equal(t, []TypeKind{TypeKindReflect}, set.Kinds())

	set.Register(TypeKindCatalog, catalog)
	assert.Equal(t, []TypeKind{TypeKindCatalog, TypeKindReflect}, set.Kinds())

	got, err := set.FindMethods(ctx, CatalogValue{TypeName: "TestClass"}.ScriptType(), "do")
	require.NoError(t, err)
	assert.Equal(t, []MethodDescriptor{{Name: "doWork", ReturnType: "AncillaryTestClass"}}, got)

	got, err = set.FindMethods(ctx, DescribeValue(sampleService{}), "Do")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "DoWork", got[0].Name)

	_, err = set.FindMethods(ctx, PackageValue{PkgPath: "net/url", Name: "URL"}.ScriptType(), "")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestCachedMethodFinder(t *testing.T) {
	ctx := context.Background()
	desc := CatalogValue{TypeName: "TestClass"}.ScriptType()

	cache, err := NewMemoryCache(time.Minute, nil)
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	t.Run("Memoizes per type and prefix", func(t *testing.T) {
		inner := &fakeFinder{methods: testClassMethods}
		finder := NewCachedMethodFinder(inner, cache, time.Minute, nil)

		first, err := finder.FindMethods(ctx, desc, "me")
		require.NoError(t, err)
		second, err := finder.FindMethods(ctx, desc, "me")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Len(t, inner.Calls(), 1)

		_, err = finder.FindMethods(ctx, desc, "do")
		require.NoError(t, err)
		assert.Len(t, inner.Calls(), 2)
	})

	t.Run("Returned slice is a copy", func(t *testing.T) {
		inner := &fakeFinder{methods: testClassMethods}
		finder := NewCachedMethodFinder(inner, cache, time.Minute, nil)
		other := CatalogValue{TypeName: "Other"}.ScriptType()

		got, err := finder.FindMethods(ctx, other, "")
		require.NoError(t, err)
		require.NotEmpty(t, got)
		got[0].Name = "mutated"

		again, err := finder.FindMethods(ctx, other, "")
		require.NoError(t, err)
		assert.Equal(t, "doWork", again[0].Name)
	})

	t.Run("Errors are not cached", func(t *testing.T) {
		boom := errors.New("boom")
		inner := &fakeFinder{err: boom}
		finder := NewCachedMethodFinder(inner, cache, time.Minute, nil)
		failing := CatalogValue{TypeName: "Failing"}.ScriptType()

		_, err := finder.FindMethods(ctx, failing, "")
		assert.ErrorIs(t, err, boom)
		_, err = finder.FindMethods(ctx, failing, "")
		assert.ErrorIs(t, err, boom)
		assert.Len(t, inner.Calls(), 2)
	})

	t.Run("Same-named reflected types are cached apart", func(t *testing.T) {
		finder := NewCachedMethodFinder(NewFinderSet(), cache, time.Minute, nil)
		plain := DescribeValue(newPlainWidget())
		titled := DescribeValue(newTitledWidget())
		require.Equal(t, plain.Reflect.String(), titled.Reflect.String())

		got, err := finder.FindMethods(ctx, plain, "")
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = finder.FindMethods(ctx, titled, "")
		require.NoError(t, err)
		assert.Equal(t, []MethodDescriptor{{Name: "Title", ParameterCount: 0, ReturnType: "string"}}, got)

		got, err = finder.FindMethods(ctx, plain, "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Nil cache passes through", func(t *testing.T) {
		inner := &fakeFinder{methods: testClassMethods}
		finder := NewCachedMethodFinder(inner, nil, time.Minute, nil)
		for i := 0; i < 3; i++ {
			_, err := finder.FindMethods(ctx, desc, "")
			require.NoError(t, err)
		}
		assert.Len(t, inner.Calls(), 3)
	})
}
