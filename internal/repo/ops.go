// internal/repo/ops.go
package repo

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"kiln/internal/diff"
	kerr "kiln/internal/errors"
	"kiln/internal/timeline"
	"kiln/internal/undo"
	"kiln/internal/vault"
	"kiln/internal/workspace"
)

// Save snapshots the working directory, ingests it and appends a new
// version on top of the current head.
func (r *Repo) Save(project, message string) (*timeline.Version, error) {
	if message == "" {
		message = "save-" + time.Now().Format("20060102-150405")
	}

	snapshot, err := workspace.Take(r.Root, r.Config.Ignore)
	if err != nil {
		return nil, fmt.Errorf("snapshotting working directory: %w", err)
	}
	tree, err := snapshot.Ingest(r.Vault)
	if err != nil {
		return nil, fmt.Errorf("ingesting snapshot: %w", err)
	}

	head, err := r.Graph.Head(project)
	if err != nil {
		return nil, err
	}

	version, err := r.Graph.Save(project, head, tree, message)
	if err != nil {
		return nil, err
	}

	if err := r.Undo.Record(&undo.Record{
		Op:           undo.OpSave,
		Project:      project,
		VersionID:    version.ID,
		PreviousHead: head,
	}); err != nil {
		return nil, err
	}

	r.Logger.Info("saved version",
		zap.String("project", project),
		zap.Int("id", version.ID),
		zap.Int("files", len(snapshot)))
	return version, nil
}

// Load resolves an id-or-label to its version and tree digest without
// touching the working directory.
func (r *Repo) Load(project, ref string) (*timeline.Version, error) {
	return r.Graph.Resolve(project, ref)
}

// Checkout restores the working directory to the resolved version.
func (r *Repo) Checkout(project, ref string) (*timeline.Version, error) {
	version, err := r.Graph.Resolve(project, ref)
	if err != nil {
		return nil, err
	}
	if err := workspace.Restore(r.Vault, version.Tree, r.Root, r.Config.Ignore); err != nil {
		return nil, fmt.Errorf("restoring working directory: %w", err)
	}

	r.Logger.Info("restored version",
		zap.String("project", project),
		zap.Int("id", version.ID))
	return version, nil
}

// List returns the project's versions in ascending id order.
func (r *Repo) List(project string) ([]timeline.Version, error) {
	return r.Graph.List(project)
}

// Projects returns every project in the repository.
func (r *Repo) Projects() ([]timeline.Project, error) {
	return r.Graph.ListProjects()
}

// Label assigns a label to the resolved version.
func (r *Repo) Label(project, ref, label string) (*timeline.Version, error) {
	version, err := r.Graph.Resolve(project, ref)
	if err != nil {
		return nil, err
	}

	previous, err := r.Graph.SetLabel(project, version.ID, label)
	if err != nil {
		return nil, err
	}

	if err := r.Undo.Record(&undo.Record{
		Op:            undo.OpLabel,
		Project:       project,
		VersionID:     version.ID,
		PreviousLabel: previous,
	}); err != nil {
		return nil, err
	}

	version.Label = label
	return version, nil
}

// Comment sets or overwrites the comment on the resolved version.
func (r *Repo) Comment(project, ref, message string) (*timeline.Version, error) {
	version, err := r.Graph.Resolve(project, ref)
	if err != nil {
		return nil, err
	}

	previous, err := r.Graph.SetMessage(project, version.ID, message)
	if err != nil {
		return nil, err
	}

	if err := r.Undo.Record(&undo.Record{
		Op:              undo.OpComment,
		Project:         project,
		VersionID:       version.ID,
		PreviousMessage: previous,
	}); err != nil {
		return nil, err
	}

	version.Message = message
	return version, nil
}

// PreviewDelete reports what deleting the resolved version would
// cascade to, committing nothing.
func (r *Repo) PreviewDelete(project, ref string) (*timeline.DeletionReport, error) {
	version, err := r.Graph.Resolve(project, ref)
	if err != nil {
		return nil, err
	}
	return r.Graph.PreviewDelete(project, version.ID)
}

// Delete removes the resolved version and its full dependent subtree.
// Callers wanting confirmation use PreviewDelete first.
func (r *Repo) Delete(project, ref string) (*timeline.DeletionReport, error) {
	version, err := r.Graph.Resolve(project, ref)
	if err != nil {
		return nil, err
	}

	head, err := r.Graph.Head(project)
	if err != nil {
		return nil, err
	}

	report, err := r.Graph.Delete(project, version.ID)
	if err != nil {
		return nil, err
	}

	if err := r.Undo.Record(&undo.Record{
		Op:           undo.OpDelete,
		Project:      project,
		Versions:     report.Versions,
		PreviousHead: head,
	}); err != nil {
		return nil, err
	}

	r.Logger.Info("deleted versions",
		zap.String("project", project),
		zap.Ints("ids", report.IDs()))
	return report, nil
}

// Split forks a new independent project from the resolved version. Only
// the snapshot is inherited: the new graph starts at id 1 with no
// parent, and all file content is shared through the vault, so the
// operation copies no bytes.
func (r *Repo) Split(project, ref, newProject string) (*timeline.Version, error) {
	source, err := r.Graph.Resolve(project, ref)
	if err != nil {
		return nil, err
	}

	if _, err := r.Graph.CreateProject(newProject); err != nil {
		return nil, err
	}

	root, err := r.Graph.Save(newProject, 0, source.Tree, source.Message)
	if err != nil {
		// Roll the half-made project back before reporting.
		_ = r.Graph.RemoveProject(newProject)
		return nil, err
	}

	if err := r.Undo.Record(&undo.Record{
		Op:         undo.OpSplit,
		Project:    project,
		NewProject: newProject,
	}); err != nil {
		return nil, err
	}

	r.Logger.Info("split project",
		zap.String("source", project),
		zap.Int("version", source.ID),
		zap.String("new_project", newProject))
	return root, nil
}

// Status diffs the current head against a fresh working-directory
// snapshot.
func (r *Repo) Status(project string) ([]diff.PathChange, error) {
	head, err := r.Graph.Head(project)
	if err != nil {
		return nil, err
	}

	snapshot, err := workspace.Take(r.Root, r.Config.Ignore)
	if err != nil {
		return nil, fmt.Errorf("snapshotting working directory: %w", err)
	}
	snapTree, err := snapshot.Ingest(r.Vault)
	if err != nil {
		return nil, fmt.Errorf("ingesting snapshot: %w", err)
	}

	headTree := ""
	if head != 0 {
		version, err := r.Graph.Get(project, head)
		if err != nil {
			return nil, err
		}
		headTree = version.Tree
	} else {
		headTree, err = r.Vault.PutTree(&vault.Tree{})
		if err != nil {
			return nil, err
		}
	}

	return r.Differ.TreeDiff(r.Vault, headTree, snapTree)
}

// Diff resolves two versions and computes their structural difference.
func (r *Repo) Diff(project, refA, refB string) ([]diff.PathChange, error) {
	a, err := r.Graph.Resolve(project, refA)
	if err != nil {
		return nil, err
	}
	b, err := r.Graph.Resolve(project, refB)
	if err != nil {
		return nil, err
	}
	return r.Differ.TreeDiff(r.Vault, a.Tree, b.Tree)
}

// Export materializes the resolved version under dest.
func (r *Repo) Export(project, ref, dest string) (*timeline.Version, error) {
	version, err := r.Graph.Resolve(project, ref)
	if err != nil {
		return nil, err
	}
	if err := workspace.Export(r.Vault, version.Tree, dest); err != nil {
		return nil, err
	}
	return version, nil
}

// Undo reverses the single retained operation and clears the slot.
func (r *Repo) UndoLast() (*undo.Record, error) {
	rec, err := r.Undo.Take()
	if err != nil {
		return nil, err
	}

	switch rec.Op {
	case undo.OpSave:
		err = r.Graph.RemoveVersion(rec.Project, rec.VersionID, rec.PreviousHead)
	case undo.OpDelete:
		err = r.Graph.RestoreVersions(rec.Project, rec.Versions, rec.PreviousHead)
	case undo.OpSplit:
		err = r.Graph.RemoveProject(rec.NewProject)
	case undo.OpLabel:
		err = r.Graph.RestoreLabel(rec.Project, rec.VersionID, rec.PreviousLabel)
	case undo.OpComment:
		_, err = r.Graph.SetMessage(rec.Project, rec.VersionID, rec.PreviousMessage)
	default:
		err = fmt.Errorf("unknown undo operation: %s", rec.Op)
	}
	if err != nil {
		return nil, err
	}

	r.Logger.Info("undid operation",
		zap.String("op", string(rec.Op)),
		zap.String("project", rec.Project))
	return rec, nil
}

// liveObjects collects every tree and blob digest reachable from a
// version of any project, or from the versions held in the undo slot.
func (r *Repo) liveObjects() (map[string]struct{}, error) {
	live := make(map[string]struct{})

	mark := func(treeHash string) error {
		if _, seen := live[treeHash]; seen {
			return nil
		}
		live[treeHash] = struct{}{}
		tree, err := r.Vault.GetTree(treeHash)
		if err != nil {
			return fmt.Errorf("loading tree %s: %w", treeHash, err)
		}
		for blob := range tree.Blobs() {
			live[blob] = struct{}{}
		}
		return nil
	}

	projects, err := r.Graph.ListProjects()
	if err != nil {
		return nil, err
	}
	for _, project := range projects {
		versions, err := r.Graph.List(project.Name)
		if err != nil {
			return nil, err
		}
		for _, version := range versions {
			if err := mark(version.Tree); err != nil {
				return nil, err
			}
		}
	}

	// The undo slot may hold deleted versions awaiting restore; their
	// trees stay live until the slot is consumed or superseded.
	rec, err := r.Undo.Peek()
	if err != nil && !kerr.IsKind(err, kerr.KindNothingToUndo) {
		return nil, err
	}
	if rec != nil {
		for _, version := range rec.Versions {
			if err := mark(version.Tree); err != nil {
				return nil, err
			}
		}
	}

	return live, nil
}

// GC sweeps objects unreachable from any live version: trees referenced
// by versions, and the blobs those trees reference.
func (r *Repo) GC() (int, error) {
	live, err := r.liveObjects()
	if err != nil {
		return 0, err
	}

	removed, err := r.Vault.Sweep(live)
	if err != nil {
		return 0, err
	}

	r.Logger.Info("swept unreferenced objects", zap.Int("removed", removed))
	return removed, nil
}

// Verify re-reads every reachable object and checks its content against
// its digest, reporting how many were checked. A mismatch surfaces as
// CorruptIndex.
func (r *Repo) Verify() (int, error) {
	live, err := r.liveObjects()
	if err != nil {
		return 0, err
	}

	for hash := range live {
		if err := r.Vault.Verify(hash); err != nil {
			return 0, err
		}
	}

	r.Logger.Info("verified objects", zap.Int("checked", len(live)))
	return len(live), nil
}
