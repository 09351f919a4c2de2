package vault

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerr "kiln/internal/errors"
)

func setupTestDB(t *testing.T) *badger.DB {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}

func setupVault(t *testing.T) *Vault {
	db := setupTestDB(t)
	v, err := New(db, Options{Root: t.TempDir()})
	require.NoError(t, err)
	return v
}

func TestPutGetRoundTrip(t *testing.T) {
	v := setupVault(t)

	contents := [][]byte{
		[]byte("hello world"),
		{},
		nil,
		bytes.Repeat([]byte{0x00, 0xFF, 0x7A}, 5000), // binary-ish, above compression threshold
	}

	for _, content := range contents {
		hash, err := v.Put(content)
		require.NoError(t, err)
		assert.Equal(t, HashContent(content), hash)

		got, err := v.Get(hash)
		require.NoError(t, err)
		if content == nil {
			content = []byte{}
		}
		assert.Equal(t, content, got)
	}
}

func TestPutDeduplicates(t *testing.T) {
	v := setupVault(t)

	content := []byte("the same bytes every time")
	first, err := v.Put(content)
	require.NoError(t, err)

	before, err := v.Count()
	require.NoError(t, err)

	second, err := v.Put(content)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	after, err := v.Count()
	require.NoError(t, err)
	assert.Equal(t, before, after, "storing identical content must not add objects")
}

func TestGetMissing(t *testing.T) {
	v := setupVault(t)

	_, err := v.Get(HashContent([]byte("never stored")))
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, err = v.Get("not-a-digest")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestCompressionTransparent(t *testing.T) {
	v := setupVault(t)

	// Highly compressible and well above the minimum size.
	content := bytes.Repeat([]byte("abcdefgh"), 10_000)
	hash, err := v.Put(content)
	require.NoError(t, err)

	meta, err := v.getMeta(hash)
	require.NoError(t, err)
	assert.True(t, meta.Compressed)
	assert.Less(t, meta.StoredSize, meta.Size)

	// Drop the cache entry so Get exercises the decode path.
	v.cache.Remove(hash)
	got, err := v.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestSmallContentStoredRaw(t *testing.T) {
	v := setupVault(t)

	hash, err := v.Put([]byte("tiny"))
	require.NoError(t, err)

	meta, err := v.getMeta(hash)
	require.NoError(t, err)
	assert.False(t, meta.Compressed)
}

func TestSweep(t *testing.T) {
	v := setupVault(t)

	keep, err := v.Put([]byte("reachable"))
	require.NoError(t, err)
	drop, err := v.Put([]byte("garbage"))
	require.NoError(t, err)

	removed, err := v.Sweep(map[string]struct{}{keep: {}})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = v.Get(keep)
	require.NoError(t, err)
	_, err = v.Get(drop)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestVerify(t *testing.T) {
	v := setupVault(t)

	hash, err := v.Put([]byte("intact"))
	require.NoError(t, err)
	assert.NoError(t, v.Verify(hash))
}

func TestVerifyDetectsDamagedObject(t *testing.T) {
	v := setupVault(t)

	content := []byte("pristine bytes")
	hash, err := v.Put(content)
	require.NoError(t, err)

	// Damage the object file behind the digest. Verify reads the disk,
	// so the intact cache entry cannot mask the corruption.
	require.NoError(t, os.WriteFile(v.objectPath(hash), []byte("damaged"), 0644))

	err = v.Verify(hash)
	assert.True(t, kerr.IsKind(err, kerr.KindCorruptIndex))
}

func TestGetReturnsIndependentCopy(t *testing.T) {
	v := setupVault(t)

	content := []byte("do not share backing arrays")
	hash, err := v.Put(content)
	require.NoError(t, err)

	first, err := v.Get(hash)
	require.NoError(t, err)
	for i := range first {
		first[i] = 0
	}

	second, err := v.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, content, second, "mutating one read must not poison later reads")
}

func TestTreeCanonicalization(t *testing.T) {
	v := setupVault(t)

	now := time.Now()
	a := &Tree{Entries: []Entry{
		{Path: "b/two.png", Blob: HashContent([]byte("two")), Size: 3, ModTime: now},
		{Path: "a/one.png", Blob: HashContent([]byte("one")), Size: 3, ModTime: now},
	}}
	b := &Tree{Entries: []Entry{
		{Path: "a/one.png", Blob: HashContent([]byte("one")), Size: 3, ModTime: now},
		{Path: "b/two.png", Blob: HashContent([]byte("two")), Size: 3, ModTime: now},
	}}

	hashA, err := v.PutTree(a)
	require.NoError(t, err)
	hashB, err := v.PutTree(b)
	require.NoError(t, err)
	assert.Equal(t, hashA, hashB, "entry order must not affect the tree digest")

	tree, err := v.GetTree(hashA)
	require.NoError(t, err)
	require.Len(t, tree.Entries, 2)
	assert.Equal(t, "a/one.png", tree.Entries[0].Path)
	assert.Equal(t, "b/two.png", tree.Entries[1].Path)
}

func TestTreeLookup(t *testing.T) {
	tree := &Tree{Entries: []Entry{
		{Path: "a.txt", Blob: "x"},
		{Path: "b.txt", Blob: "y"},
	}}
	tree.Canonicalize()

	entry, ok := tree.Lookup("b.txt")
	assert.True(t, ok)
	assert.Equal(t, "y", entry.Blob)

	_, ok = tree.Lookup("c.txt")
	assert.False(t, ok)
}

func TestGetTreeOnBlob(t *testing.T) {
	v := setupVault(t)

	hash, err := v.Put([]byte("just a blob"))
	require.NoError(t, err)

	_, err = v.GetTree(hash)
	assert.ErrorIs(t, err, ErrNotATree)
}
