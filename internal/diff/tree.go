// internal/diff/tree.go
package diff

import (
	"fmt"

	"kiln/internal/vault"
)

// ChangeType classifies one path change between two tree manifests
type ChangeType string

const (
	Added    ChangeType = "added"
	Removed  ChangeType = "removed"
	Modified ChangeType = "modified"
)

// PathChange is one entry of a structural tree diff. For modified text
// files Text carries the line-level diff; binary content is never
// byte-diffed, only its metadata is reported.
type PathChange struct {
	Type     ChangeType
	Path     string
	OldBlob  string
	NewBlob  string
	OldEntry *vault.Entry
	NewEntry *vault.Entry
	Text     *Result
}

// binarySniffLen bounds the classification scan.
const binarySniffLen = 8000

// IsBinary classifies content: binary if it contains a NUL byte within
// the first 8000 bytes, else text.
func IsBinary(content []byte) bool {
	n := len(content)
	if n > binarySniffLen {
		n = binarySniffLen
	}
	for _, b := range content[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}

// TreeDiff computes the ordered structural difference between two tree
// snapshots. The comparison is a single merge over the two sorted path
// lists, linear in the number of distinct paths.
func (e *Engine) TreeDiff(store *vault.Vault, oldHash, newHash string) ([]PathChange, error) {
	if oldHash == newHash {
		return nil, nil
	}

	oldTree, err := store.GetTree(oldHash)
	if err != nil {
		return nil, fmt.Errorf("loading tree %s: %w", oldHash, err)
	}
	newTree, err := store.GetTree(newHash)
	if err != nil {
		return nil, fmt.Errorf("loading tree %s: %w", newHash, err)
	}

	return e.CompareTrees(store, oldTree, newTree)
}

// CompareTrees diffs two already-loaded manifests. Both must be in
// canonical (sorted) order, which PutTree guarantees.
func (e *Engine) CompareTrees(store *vault.Vault, oldTree, newTree *vault.Tree) ([]PathChange, error) {
	var changes []PathChange
	i, j := 0, 0
	oldEntries, newEntries := oldTree.Entries, newTree.Entries

	for i < len(oldEntries) || j < len(newEntries) {
		switch {
		case j >= len(newEntries) || (i < len(oldEntries) && oldEntries[i].Path < newEntries[j].Path):
			old := oldEntries[i]
			changes = append(changes, PathChange{
				Type:     Removed,
				Path:     old.Path,
				OldBlob:  old.Blob,
				OldEntry: &oldEntries[i],
			})
			i++

		case i >= len(oldEntries) || oldEntries[i].Path > newEntries[j].Path:
			added := newEntries[j]
			changes = append(changes, PathChange{
				Type:     Added,
				Path:     added.Path,
				NewBlob:  added.Blob,
				NewEntry: &newEntries[j],
			})
			j++

		default:
			old, updated := oldEntries[i], newEntries[j]
			if old.Blob != updated.Blob {
				change := PathChange{
					Type:     Modified,
					Path:     old.Path,
					OldBlob:  old.Blob,
					NewBlob:  updated.Blob,
					OldEntry: &oldEntries[i],
					NewEntry: &newEntries[j],
				}
				text, err := e.textDiff(store, old.Blob, updated.Blob)
				if err != nil {
					return nil, err
				}
				change.Text = text
				changes = append(changes, change)
			}
			i++
			j++
		}
	}

	return changes, nil
}

// textDiff loads both blobs and produces a line diff when both sides
// classify as text; nil otherwise.
func (e *Engine) textDiff(store *vault.Vault, oldBlob, newBlob string) (*Result, error) {
	oldContent, err := store.Get(oldBlob)
	if err != nil {
		return nil, fmt.Errorf("loading blob %s: %w", oldBlob, err)
	}
	newContent, err := store.Get(newBlob)
	if err != nil {
		return nil, fmt.Errorf("loading blob %s: %w", newBlob, err)
	}

	if IsBinary(oldContent) || IsBinary(newContent) {
		return nil, nil
	}
	return e.Diff(oldContent, newContent), nil
}
