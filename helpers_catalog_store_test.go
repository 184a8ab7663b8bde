// scriptcomplete/helpers_catalog_store_test.go
package scriptcomplete

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func openTestStore(t *testing.T) *CatalogStore {
	t.Helper()
	store, err := OpenCatalogStore(filepath.Join(t.TempDir(), "nested", "catalog.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSpec() *BindingsSpec {
	return &BindingsSpec{
		Globals: map[string]BindingSpec{
			"xcontext": {Type: "XWikiContext"},
		},
		Bindings: map[string]BindingSpec{
			"greeting": {Value: "hello"},
			"services": {Registry: map[string][]string{"script": {"test"}}},
			"url":      {GoType: "net/url.URL"},
		},
		Types: map[string]TypeSpec{
			"XWikiContext": {Methods: []MethodDescriptor{{Name: "getUser", ReturnType: "String"}}},
		},
	}
}

func TestCatalogStore_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	spec := sampleSpec()

	require.NoError(t, store.Put("/tmp/bindings.yaml", "hash-1", spec))

	// Put must not pack the caller's spec.
	assert.Equal(t, "hello", spec.Bindings["greeting"].Value)
	assert.Nil(t, spec.Bindings["greeting"].ValueJSON)

	got, found, err := store.Get("/tmp/bindings.yaml", "hash-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sampleSpec(), got)

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/bindings.yaml"}, keys)
}

func TestCatalogStore_Misses(t *testing.T) {
	store := openTestStore(t)

	_, found, err := store.Get("absent", "hash")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put("key", "hash-1", sampleSpec()))
	_, found, err = store.Get("key", "hash-2")
	require.NoError(t, err)
	assert.False(t, found)

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys, "stale entry should be dropped")
}

func TestCatalogStore_CorruptEntry(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(catalogBucketName).Put([]byte("broken"), []byte("not gob"))
	}))

	_, found, err := store.Get("broken", "hash")
	assert.False(t, found)
	assert.ErrorIs(t, err, ErrCacheRead)
	assert.ErrorIs(t, err, ErrCacheDecode)

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCatalogStore_DeleteClearClose(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Put("a", "h", sampleSpec()))
	require.NoError(t, store.Put("b", "h", sampleSpec()))

	require.NoError(t, store.Delete("a"))
	require.NoError(t, store.Delete("missing"))
	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)

	require.NoError(t, store.Clear())
	keys, err = store.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
	_, found, err := store.Get("b", "h")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, store.Put("c", "h", sampleSpec()))

	var nilStore *CatalogStore
	assert.NoError(t, nilStore.Close())
}
