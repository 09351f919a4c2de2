// internal/vault/tree.go
package vault

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Entry is one file in a tree manifest.
type Entry struct {
	Path       string    `json:"path"`
	Blob       string    `json:"blob"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"mod_time"`
	Executable bool      `json:"executable,omitempty"`
	Binary     bool      `json:"binary,omitempty"`
}

// Tree is an immutable snapshot manifest: relative path to blob digest
// plus file metadata. Its identity is the digest of its canonical
// serialization, so identical trees hash identically regardless of
// file-system enumeration order.
type Tree struct {
	Entries []Entry `json:"entries"`
}

// Canonicalize sorts entries lexicographically by path.
func (t *Tree) Canonicalize() {
	sort.Slice(t.Entries, func(i, j int) bool {
		return t.Entries[i].Path < t.Entries[j].Path
	})
}

// Lookup returns the entry for path, if present. Entries must be sorted.
func (t *Tree) Lookup(path string) (Entry, bool) {
	i := sort.Search(len(t.Entries), func(i int) bool {
		return t.Entries[i].Path >= path
	})
	if i < len(t.Entries) && t.Entries[i].Path == path {
		return t.Entries[i], true
	}
	return Entry{}, false
}

// PutTree canonicalizes and stores a tree manifest, returning its digest.
func (v *Vault) PutTree(tree *Tree) (string, error) {
	if tree == nil {
		tree = &Tree{}
	}
	tree.Canonicalize()

	data, err := json.Marshal(tree)
	if err != nil {
		return "", fmt.Errorf("marshaling tree: %w", err)
	}

	return v.put(data, kindTree)
}

// GetTree retrieves a tree manifest by digest.
func (v *Vault) GetTree(hash string) (*Tree, error) {
	meta, err := v.getMeta(hash)
	if err != nil {
		return nil, err
	}
	if meta.Kind != kindTree {
		return nil, ErrNotATree
	}

	data, err := v.Get(hash)
	if err != nil {
		return nil, err
	}

	var tree Tree
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("unmarshaling tree %s: %w", hash, err)
	}
	return &tree, nil
}

// Blobs returns the set of blob digests a tree references.
func (t *Tree) Blobs() map[string]struct{} {
	blobs := make(map[string]struct{}, len(t.Entries))
	for _, e := range t.Entries {
		blobs[e.Blob] = struct{}{}
	}
	return blobs
}
