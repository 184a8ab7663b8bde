// scriptcomplete/helpers_catalog_store.go
// Contains the bbolt disk cache for decoded bindings files.
package scriptcomplete

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.etcd.io/bbolt"
)

var catalogBucketName = []byte("BindingsCatalog")

// CatalogStore persists decoded bindings files keyed by path, validated by
// content hash and schema version.
type CatalogStore struct {
	mu     sync.RWMutex
	db     *bbolt.DB
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	path   string
	logger *slog.Logger
}

// DefaultCatalogStorePath returns the cache file under the user cache directory.
func DefaultCatalogStorePath() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("%w: determining user cache dir: %w", ErrCache, err)
	}
	return filepath.Join(userCacheDir, configDirName, "bboltdb", fmt.Sprintf("v%d", cacheSchemaVersion), "catalog_cache.db"), nil
}

// OpenCatalogStore opens (creating if needed) the bbolt file at path.
func OpenCatalogStore(path string, logger *slog.Logger) (*CatalogStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	storeLogger := logger.With("component", "CatalogStore", "path", path)

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("%w: creating cache directory: %w", ErrCache, err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: opening bbolt file: %w", ErrCache, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(catalogBucketName); err != nil {
			return fmt.Errorf("failed to create cache bucket %s: %w", string(catalogBucketName), err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrCache, err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating zstd encoder: %w", ErrCache, err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("%w: creating zstd decoder: %w", ErrCache, err)
	}

	storeLogger.Info("Using bbolt catalog cache", "schema_version", cacheSchemaVersion)
	return &CatalogStore{db: db, enc: enc, dec: dec, path: path, logger: storeLogger}, nil
}

// Path returns the backing file path.
func (s *CatalogStore) Path() string { return s.path }

// Get returns the cached spec for key if its hash and schema version match.
// Stale or undecodable entries are removed and reported as misses.
func (s *CatalogStore) Get(key, fileHash string) (*BindingsSpec, bool, error) {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return nil, false, nil
	}

	var entry *CachedCatalogEntry
	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(catalogBucketName)
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		var decoded CachedCatalogEntry
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&decoded); err != nil {
			return fmt.Errorf("%w: failed to decode cache entry: %w", ErrCacheDecode, err)
		}
		entry = &decoded
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCacheDecode) {
			_ = s.Delete(key)
		}
		return nil, false, fmt.Errorf("%w: %w", ErrCacheRead, err)
	}
	if entry == nil {
		return nil, false, nil
	}
	if entry.SchemaVersion != cacheSchemaVersion || entry.FileHash != fileHash {
		s.logger.Debug("Catalog cache entry stale", "key", key, "cached_version", entry.SchemaVersion)
		_ = s.Delete(key)
		return nil, false, nil
	}

	plain, err := s.dec.DecodeAll(entry.CatalogBlob, nil)
	if err != nil {
		_ = s.Delete(key)
		return nil, false, fmt.Errorf("%w: zstd: %w", ErrCacheDecode, err)
	}
	var spec BindingsSpec
	if err := gob.NewDecoder(bytes.NewReader(plain)).Decode(&spec); err != nil {
		_ = s.Delete(key)
		return nil, false, fmt.Errorf("%w: %w", ErrCacheDecode, err)
	}
	if err := spec.unpackFromCache(); err != nil {
		_ = s.Delete(key)
		return nil, false, err
	}
	return &spec, true, nil
}

// Put stores spec under key. spec is not modified.
func (s *CatalogStore) Put(key, fileHash string, spec *BindingsSpec) error {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return nil
	}

	packed := spec.clone()
	if err := packed.packForCache(); err != nil {
		return err
	}
	var specBuf bytes.Buffer
	if err := gob.NewEncoder(&specBuf).Encode(packed); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheEncode, err)
	}
	entry := CachedCatalogEntry{
		SchemaVersion: cacheSchemaVersion,
		FileHash:      fileHash,
		CatalogBlob:   s.enc.EncodeAll(specBuf.Bytes(), nil),
	}
	var entryBuf bytes.Buffer
	if err := gob.NewEncoder(&entryBuf).Encode(&entry); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheEncode, err)
	}

	err := db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(catalogBucketName)
		if b == nil {
			return fmt.Errorf("cache bucket %s disappeared", string(catalogBucketName))
		}
		return b.Put([]byte(key), entryBuf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	s.logger.Debug("Saved bindings to catalog cache", "key", key, "compressed_bytes", len(entry.CatalogBlob))
	return nil
}

// Delete removes the entry for key; a missing key is not an error.
func (s *CatalogStore) Delete(key string) error {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return nil
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(catalogBucketName)
		if b == nil || b.Get([]byte(key)) == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: failed to delete entry %s: %w", ErrCacheWrite, key, err)
	}
	return nil
}

// Keys lists the cached bindings paths.
func (s *CatalogStore) Keys() ([]string, error) {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return nil, nil
	}
	var keys []string
	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(catalogBucketName)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheRead, err)
	}
	return keys, nil
}

// Clear drops every cached entry.
func (s *CatalogStore) Clear() error {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return nil
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(catalogBucketName) != nil {
			if err := tx.DeleteBucket(catalogBucketName); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucket(catalogBucketName)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: clearing catalog bucket: %w", ErrCacheWrite, err)
	}
	s.logger.Info("Catalog cache cleared")
	return nil
}

// Close releases the database and codecs. It is safe to call more than once.
func (s *CatalogStore) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	var closeErrors []error
	if err := s.enc.Close(); err != nil {
		closeErrors = append(closeErrors, fmt.Errorf("zstd encoder close failed: %w", err))
	}
	s.dec.Close()
	if err := s.db.Close(); err != nil {
		closeErrors = append(closeErrors, fmt.Errorf("bbolt close failed: %w", err))
	}
	s.db = nil
	return errors.Join(closeErrors...)
}
