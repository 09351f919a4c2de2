// internal/workspace/root.go
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// RepoDir is the repository directory created inside the tracked root.
const RepoDir = ".kiln"

// FindRoot walks upward from startDir until it finds a directory
// containing the repository directory.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", startDir, err)
	}

	for {
		if info, err := os.Stat(filepath.Join(dir, RepoDir)); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s repository found in %s or any parent", RepoDir, startDir)
		}
		dir = parent
	}
}
