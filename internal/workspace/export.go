// internal/workspace/export.go
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"kiln/internal/vault"
)

// Materialize resolves a tree manifest to a path→bytes mapping.
// Writing those bytes anywhere is the caller's job.
func Materialize(store *vault.Vault, treeHash string) (map[string][]byte, error) {
	tree, err := store.GetTree(treeHash)
	if err != nil {
		return nil, fmt.Errorf("loading tree %s: %w", treeHash, err)
	}

	files := make(map[string][]byte, len(tree.Entries))
	for _, entry := range tree.Entries {
		content, err := store.Get(entry.Blob)
		if err != nil {
			return nil, fmt.Errorf("loading blob for %s: %w", entry.Path, err)
		}
		files[entry.Path] = content
	}
	return files, nil
}

// Export writes a tree's files under dest, creating directories as
// needed. Executable bits from the manifest are preserved.
func Export(store *vault.Vault, treeHash, dest string) error {
	tree, err := store.GetTree(treeHash)
	if err != nil {
		return fmt.Errorf("loading tree %s: %w", treeHash, err)
	}

	for _, entry := range tree.Entries {
		content, err := store.Get(entry.Blob)
		if err != nil {
			return fmt.Errorf("loading blob for %s: %w", entry.Path, err)
		}

		target := filepath.Join(dest, filepath.FromSlash(entry.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", entry.Path, err)
		}

		mode := os.FileMode(0644)
		if entry.Executable {
			mode = 0755
		}
		if err := os.WriteFile(target, content, mode); err != nil {
			return fmt.Errorf("writing %s: %w", entry.Path, err)
		}
	}
	return nil
}

// Restore brings the working directory at root back to the given tree:
// tree files are written out and tracked files absent from the tree are
// removed. Ignored paths are left alone.
func Restore(store *vault.Vault, treeHash, root string, extraIgnore []string) error {
	tree, err := store.GetTree(treeHash)
	if err != nil {
		return fmt.Errorf("loading tree %s: %w", treeHash, err)
	}

	current, err := Take(root, extraIgnore)
	if err != nil {
		return fmt.Errorf("snapshotting working directory: %w", err)
	}
	for path := range current {
		if _, tracked := tree.Lookup(path); tracked {
			continue
		}
		if err := os.Remove(filepath.Join(root, filepath.FromSlash(path))); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}

	return Export(store, treeHash, root)
}
