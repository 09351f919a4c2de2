// internal/vault/vault.go
package vault

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	kerr "kiln/internal/errors"
)

const (
	kindBlob = "blob"
	kindTree = "tree"
)

// ObjectMeta stores metadata about a stored object
type ObjectMeta struct {
	Hash       string    `json:"hash"`
	Kind       string    `json:"kind"`
	Size       int64     `json:"size"`
	StoredSize int64     `json:"stored_size"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Vault is the deduplicated, content-addressed object store. Blobs and
// tree manifests share one digest namespace; identical content across
// any versions or projects occupies storage once.
type Vault struct {
	root  string                     // Root directory for object files
	db    *badger.DB                 // Metadata database
	cache *lru.Cache[string, []byte] // Decoded-content cache
	comp  *compressor
}

// Options configures Vault behavior
type Options struct {
	Root             string // Root directory path
	CacheSize        int    // Number of items to cache
	CompressionLevel int    // zstd level (1=fastest, 3=best)
	CompressMinSize  int    // Minimum size in bytes before compressing
}

// New creates a new Vault instance
func New(db *badger.DB, opts Options) (*Vault, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}

	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}

	if opts.CacheSize == 0 {
		opts.CacheSize = 1000
	}
	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	comp, err := newCompressor(opts.CompressionLevel, opts.CompressMinSize)
	if err != nil {
		return nil, fmt.Errorf("creating compressor: %w", err)
	}

	return &Vault{
		root:  opts.Root,
		db:    db,
		cache: cache,
		comp:  comp,
	}, nil
}

// Put stores a blob and returns its digest. Content already present is
// not written again. The object file is synced to disk before the call
// returns, so an acknowledged write survives process termination.
func (v *Vault) Put(content []byte) (string, error) {
	return v.put(content, kindBlob)
}

func (v *Vault) put(content []byte, kind string) (string, error) {
	if content == nil {
		content = []byte{}
	}

	hash := HashContent(content)

	exists, err := v.Exists(hash)
	if err != nil {
		return "", err
	}
	if exists {
		return hash, nil
	}

	stored, compressed := v.comp.compress(content)

	if err := v.writeObject(hash, stored); err != nil {
		return "", kerr.StoreIO(fmt.Sprintf("writing object %s", hash), err)
	}

	meta := ObjectMeta{
		Hash:       hash,
		Kind:       kind,
		Size:       int64(len(content)),
		StoredSize: int64(len(stored)),
		Compressed: compressed,
		CreatedAt:  time.Now(),
	}
	if err := v.storeMeta(meta); err != nil {
		os.Remove(v.objectPath(hash))
		return "", kerr.StoreIO(fmt.Sprintf("storing metadata for %s", hash), err)
	}

	// The cache owns its copy; callers keep mutating their slice.
	v.cache.Add(hash, bytes.Clone(content))
	return hash, nil
}

// writeObject lands the bytes durably: temp file in the same directory,
// fsync, then atomic rename onto the final path.
func (v *Vault) writeObject(hash string, data []byte) error {
	path := v.objectPath(hash)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "put-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	return os.Rename(tmp.Name(), path)
}

// Get retrieves a blob by digest. The returned slice is the caller's
// to keep or mutate; it never aliases the cache.
func (v *Vault) Get(hash string) ([]byte, error) {
	if !IsValidHash(hash) {
		return nil, ErrInvalidHash
	}

	if content, ok := v.cache.Get(hash); ok {
		return bytes.Clone(content), nil
	}

	meta, err := v.getMeta(hash)
	if err != nil {
		return nil, err
	}

	stored, err := os.ReadFile(v.objectPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, kerr.StoreIO(fmt.Sprintf("reading object %s", hash), err)
	}

	content := stored
	if meta.Compressed {
		content, err = v.comp.decompress(stored)
		if err != nil {
			return nil, kerr.StoreIO(fmt.Sprintf("decompressing object %s", hash), err)
		}
	}

	if HashContent(content) != hash {
		return nil, kerr.CorruptIndex(fmt.Sprintf("object %s content hash mismatch", hash), nil)
	}

	v.cache.Add(hash, content)
	return bytes.Clone(content), nil
}

// Exists checks if an object is present
func (v *Vault) Exists(hash string) (bool, error) {
	if !IsValidHash(hash) {
		return false, ErrInvalidHash
	}

	if v.cache.Contains(hash) {
		return true, nil
	}

	_, err := v.getMeta(hash)
	if err == ErrObjectNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Count returns the number of stored objects.
func (v *Vault) Count() (int, error) {
	count := 0
	err := v.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("object:")
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Sweep removes every object whose digest is not in the live set and
// returns the number of objects removed. Garbage collection is a
// maintenance operation; Put and Get never reclaim space implicitly.
func (v *Vault) Sweep(live map[string]struct{}) (int, error) {
	var dead []string
	err := v.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("object:")
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			hash := string(it.Item().Key()[len("object:"):])
			if _, ok := live[hash]; !ok {
				dead = append(dead, hash)
			}
		}
		return nil
	})
	if err != nil {
		return 0, kerr.StoreIO("scanning object metadata", err)
	}

	for _, hash := range dead {
		if err := os.Remove(v.objectPath(hash)); err != nil && !os.IsNotExist(err) {
			return 0, kerr.StoreIO(fmt.Sprintf("removing object %s", hash), err)
		}
		if err := v.deleteMeta(hash); err != nil {
			return 0, kerr.StoreIO(fmt.Sprintf("removing metadata for %s", hash), err)
		}
		v.cache.Remove(hash)
	}
	return len(dead), nil
}

// Verify re-reads the object from disk, bypassing the cache, and
// checks the decoded content against its digest.
func (v *Vault) Verify(hash string) error {
	if !IsValidHash(hash) {
		return ErrInvalidHash
	}

	meta, err := v.getMeta(hash)
	if err != nil {
		return err
	}

	stored, err := os.ReadFile(v.objectPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrObjectNotFound
		}
		return kerr.StoreIO(fmt.Sprintf("reading object %s", hash), err)
	}

	content := stored
	if meta.Compressed {
		content, err = v.comp.decompress(stored)
		if err != nil {
			return kerr.CorruptIndex(fmt.Sprintf("object %s failed to decode", hash), err)
		}
	}

	if HashContent(content) != hash {
		return kerr.CorruptIndex(fmt.Sprintf("object %s content hash mismatch", hash), nil)
	}
	return nil
}

// HashContent returns the hex sha256 digest of content.
func HashContent(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// IsValidHash reports whether s looks like a hex sha256 digest.
func IsValidHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func (v *Vault) objectPath(hash string) string {
	return filepath.Join(v.root, hash[:2], hash[2:])
}

func (v *Vault) storeMeta(meta ObjectMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return v.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(meta.Hash), data)
	})
}

func (v *Vault) getMeta(hash string) (ObjectMeta, error) {
	var meta ObjectMeta
	err := v.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(hash))
		if err == badger.ErrKeyNotFound {
			return ErrObjectNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	return meta, err
}

func (v *Vault) deleteMeta(hash string) error {
	return v.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(metaKey(hash))
	})
}

func metaKey(hash string) []byte {
	return []byte(fmt.Sprintf("object:%s", hash))
}
