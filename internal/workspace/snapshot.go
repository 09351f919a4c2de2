// internal/workspace/snapshot.go
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"kiln/internal/diff"
	"kiln/internal/vault"
)

// File is one working-directory file captured by a snapshot.
type File struct {
	Content    []byte
	Size       int64
	ModTime    time.Time
	Executable bool
}

// Snapshot maps relative path to captured file content and metadata.
type Snapshot map[string]File

// defaultIgnore lists path components always skipped when snapshotting.
var defaultIgnore = map[string]bool{
	".kiln":        true,
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
}

// ShouldIgnore reports whether a relative path is excluded from
// snapshots: hidden components, the repository directory itself, and
// common build output, plus any configured extras.
func ShouldIgnore(path string, extra []string) bool {
	if path == "" {
		return true
	}
	components := strings.Split(path, string(filepath.Separator))
	for _, comp := range components {
		if comp == "" {
			continue
		}
		if strings.HasPrefix(comp, ".") {
			return true
		}
		if defaultIgnore[comp] {
			return true
		}
		for _, e := range extra {
			if comp == e {
				return true
			}
		}
	}
	return false
}

// Take walks root and captures every eligible file into a snapshot.
func Take(root string, extraIgnore []string) (Snapshot, error) {
	snapshot := make(Snapshot)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if relPath == "." {
			return nil
		}

		if d.IsDir() {
			if ShouldIgnore(relPath, extraIgnore) {
				return filepath.SkipDir
			}
			return nil
		}
		if ShouldIgnore(relPath, extraIgnore) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stating %s: %w", relPath, err)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", relPath, err)
		}

		snapshot[filepath.ToSlash(relPath)] = File{
			Content:    content,
			Size:       info.Size(),
			ModTime:    info.ModTime(),
			Executable: info.Mode()&0111 != 0,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	return snapshot, nil
}

// Ingest stores every file's content in the vault and returns the
// digest of the resulting tree manifest.
func (s Snapshot) Ingest(store *vault.Vault) (string, error) {
	tree := &vault.Tree{Entries: make([]vault.Entry, 0, len(s))}

	paths := make([]string, 0, len(s))
	for path := range s {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		file := s[path]
		blob, err := store.Put(file.Content)
		if err != nil {
			return "", fmt.Errorf("storing %s: %w", path, err)
		}
		tree.Entries = append(tree.Entries, vault.Entry{
			Path:       path,
			Blob:       blob,
			Size:       file.Size,
			ModTime:    file.ModTime,
			Executable: file.Executable,
			Binary:     diff.IsBinary(file.Content),
		})
	}

	return store.PutTree(tree)
}
