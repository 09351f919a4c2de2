// internal/repo/repo.go
package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"kiln/internal/config"
	"kiln/internal/diff"
	"kiln/internal/logging"
	"kiln/internal/timeline"
	"kiln/internal/undo"
	"kiln/internal/vault"
	"kiln/internal/workspace"
)

// DefaultProject is the namespace created by init.
const DefaultProject = "main"

// Repo is the repository context threaded through every operation: the
// open metadata index, object store, version graph and undo log for one
// repository directory. No process-wide state; multiple repositories
// can coexist in one process.
type Repo struct {
	Root   string
	DB     *badger.DB
	Vault  *vault.Vault
	Graph  *timeline.Graph
	Undo   *undo.Log
	Differ *diff.Engine
	Config *config.Config
	Logger *zap.Logger
}

func repoDir(root string) string {
	return filepath.Join(root, workspace.RepoDir)
}

// Initialize creates the on-disk repository layout under root.
func Initialize(root string) error {
	dirs := []string{
		filepath.Join(repoDir(root), "db"),
		filepath.Join(repoDir(root), "objects"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}

// Open opens the repository rooted at root. The badger directory lock
// guarantees a single writing process per repository. A nil logger
// means "build one at the level the repository config sets".
func Open(root string, logger *zap.Logger) (*Repo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for root %s: %w", root, err)
	}

	if err := Initialize(absRoot); err != nil {
		return nil, fmt.Errorf("initializing directories: %w", err)
	}

	cfg, err := config.Load(filepath.Join(repoDir(absRoot), "config.json"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if logger == nil {
		l, err := logging.NewLogger(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("configuring logger: %w", err)
		}
		logger = l.Logger
	}

	opts := badger.DefaultOptions(filepath.Join(repoDir(absRoot), "db"))
	opts.Logger = nil // Disable logging noise

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store, err := vault.New(db, vault.Options{
		Root:             filepath.Join(repoDir(absRoot), "objects"),
		CacheSize:        cfg.Content.CacheSize,
		CompressionLevel: cfg.Content.CompressionLevel,
		CompressMinSize:  cfg.Content.CompressMinSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing object store: %w", err)
	}

	return &Repo{
		Root:   absRoot,
		DB:     db,
		Vault:  store,
		Graph:  timeline.NewGraph(db),
		Undo:   undo.NewLog(db),
		Differ: diff.NewEngine(3),
		Config: cfg,
		Logger: logger,
	}, nil
}

// Init creates a fresh repository: the layout, the default project and
// an initial version capturing the working directory as it stands.
func Init(root string, logger *zap.Logger) (*Repo, error) {
	r, err := Open(root, logger)
	if err != nil {
		return nil, err
	}

	if _, err := r.Graph.CreateProject(DefaultProject); err != nil {
		r.Close()
		return nil, err
	}

	snapshot, err := workspace.Take(r.Root, r.Config.Ignore)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("snapshotting working directory: %w", err)
	}
	tree, err := snapshot.Ingest(r.Vault)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("ingesting snapshot: %w", err)
	}

	if _, err := r.Graph.Save(DefaultProject, 0, tree, "initial version"); err != nil {
		r.Close()
		return nil, err
	}

	r.Logger.Info("initialized repository",
		zap.String("root", r.Root),
		zap.Int("files", len(snapshot)))
	return r, nil
}

// Close releases the metadata index.
func (r *Repo) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	if err := r.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
