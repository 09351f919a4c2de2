package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"kiln/internal/diff"
	kerr "kiln/internal/errors"
	"kiln/internal/vault"
)

func initRepo(t *testing.T) *Repo {
	root := t.TempDir()
	r, err := Init(root, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func writeFile(t *testing.T, r *Repo, path string, content []byte) {
	full := filepath.Join(r.Root, filepath.FromSlash(path))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, content, 0644))
}

func TestInitCreatesRootVersion(t *testing.T) {
	r := initRepo(t)

	versions, err := r.List(DefaultProject)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].ID)
	assert.Equal(t, 0, versions[0].Parent)

	head, err := r.Graph.Head(DefaultProject)
	require.NoError(t, err)
	assert.Equal(t, 1, head)
}

func TestOpenBuildsLoggerFromConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(repoDir(root), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(repoDir(root), "config.json"),
		[]byte(`{"log_level": "debug"}`), 0644))

	r, err := Open(root, nil)
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.Logger.Core().Enabled(zapcore.DebugLevel))
}

func TestOpenDefaultLogLevel(t *testing.T) {
	r, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.Logger.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, r.Logger.Core().Enabled(zapcore.InfoLevel))
}

func TestOpenRejectsBadLogLevel(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(repoDir(root), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(repoDir(root), "config.json"),
		[]byte(`{"log_level": "shouting"}`), 0644))

	_, err := Open(root, nil)
	assert.Error(t, err)
}

func TestSaveLoadIdempotence(t *testing.T) {
	r := initRepo(t)

	writeFile(t, r, "scene.blend", []byte("mesh data"))
	saved, err := r.Save(DefaultProject, "added scene")
	require.NoError(t, err)

	loaded, err := r.Load(DefaultProject, "2")
	require.NoError(t, err)
	assert.Equal(t, saved.Tree, loaded.Tree)
	assert.Equal(t, "added scene", loaded.Message)
}

func TestSaveGeneratesDefaultMessage(t *testing.T) {
	r := initRepo(t)

	writeFile(t, r, "a.txt", []byte("x"))
	saved, err := r.Save(DefaultProject, "")
	require.NoError(t, err)
	assert.NotEmpty(t, saved.Message)
}

func TestCheckoutRestoresWorkingDirectory(t *testing.T) {
	r := initRepo(t)

	writeFile(t, r, "track.wav", []byte("take one"))
	_, err := r.Save(DefaultProject, "take one")
	require.NoError(t, err)

	writeFile(t, r, "track.wav", []byte("take two"))
	writeFile(t, r, "extra.wav", []byte("scratch"))
	_, err = r.Save(DefaultProject, "take two")
	require.NoError(t, err)

	_, err = r.Checkout(DefaultProject, "2")
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(r.Root, "track.wav"))
	require.NoError(t, err)
	assert.Equal(t, []byte("take one"), content)

	_, err = os.Stat(filepath.Join(r.Root, "extra.wav"))
	assert.True(t, os.IsNotExist(err))
}

func TestStatusCleanAndDirty(t *testing.T) {
	r := initRepo(t)

	changes, err := r.Status(DefaultProject)
	require.NoError(t, err)
	assert.Empty(t, changes)

	writeFile(t, r, "new.png", []byte{0x89, 0x00})
	changes, err = r.Status(DefaultProject)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, diff.Added, changes[0].Type)
	assert.Equal(t, "new.png", changes[0].Path)
}

func TestUndoSave(t *testing.T) {
	r := initRepo(t)

	writeFile(t, r, "a.txt", []byte("x"))
	saved, err := r.Save(DefaultProject, "to be undone")
	require.NoError(t, err)

	before, err := r.List(DefaultProject)
	require.NoError(t, err)

	rec, err := r.UndoLast()
	require.NoError(t, err)
	assert.Equal(t, "save", string(rec.Op))

	after, err := r.List(DefaultProject)
	require.NoError(t, err)
	assert.Len(t, after, len(before)-1)

	head, err := r.Graph.Head(DefaultProject)
	require.NoError(t, err)
	assert.Equal(t, 1, head)

	_, err = r.Load(DefaultProject, "2")
	assert.True(t, kerr.IsKind(err, kerr.KindVersionNotFound))
	_ = saved

	// Only one level of undo is retained.
	_, err = r.UndoLast()
	assert.True(t, kerr.IsKind(err, kerr.KindNothingToUndo))
}

func TestUndoDelete(t *testing.T) {
	r := initRepo(t)

	writeFile(t, r, "a.txt", []byte("x"))
	_, err := r.Save(DefaultProject, "a")
	require.NoError(t, err)
	writeFile(t, r, "b.txt", []byte("y"))
	_, err = r.Save(DefaultProject, "b")
	require.NoError(t, err)

	report, err := r.Delete(DefaultProject, "2")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, report.IDs())

	_, err = r.UndoLast()
	require.NoError(t, err)

	versions, err := r.List(DefaultProject)
	require.NoError(t, err)
	assert.Len(t, versions, 3)

	head, err := r.Graph.Head(DefaultProject)
	require.NoError(t, err)
	assert.Equal(t, 3, head)

	// Restored versions keep their labels and messages.
	restored, err := r.Load(DefaultProject, "2")
	require.NoError(t, err)
	assert.Equal(t, "a", restored.Message)
}

func TestUndoLabelAndComment(t *testing.T) {
	r := initRepo(t)

	_, err := r.Label(DefaultProject, "1", "first")
	require.NoError(t, err)
	_, err = r.Label(DefaultProject, "1", "renamed")
	require.NoError(t, err)

	_, err = r.UndoLast()
	require.NoError(t, err)

	v, err := r.Load(DefaultProject, "1")
	require.NoError(t, err)
	assert.Equal(t, "first", v.Label)

	_, err = r.Comment(DefaultProject, "1", "new comment")
	require.NoError(t, err)
	_, err = r.UndoLast()
	require.NoError(t, err)

	v, err = r.Load(DefaultProject, "1")
	require.NoError(t, err)
	assert.Equal(t, "initial version", v.Message)
}

func TestUndoSplit(t *testing.T) {
	r := initRepo(t)

	_, err := r.Split(DefaultProject, "1", "fork")
	require.NoError(t, err)

	_, err = r.UndoLast()
	require.NoError(t, err)

	projects, err := r.Projects()
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, DefaultProject, projects[0].Name)
}

func TestSplitIndependence(t *testing.T) {
	r := initRepo(t)

	writeFile(t, r, "shared.png", []byte{0x89, 0x00, 0x01})
	source, err := r.Save(DefaultProject, "shared snapshot")
	require.NoError(t, err)

	root, err := r.Split(DefaultProject, "2", "fork")
	require.NoError(t, err)
	assert.Equal(t, 1, root.ID)
	assert.Equal(t, 0, root.Parent)
	assert.Equal(t, source.Tree, root.Tree, "split shares the snapshot, not the history")

	forkVersions, err := r.List("fork")
	require.NoError(t, err)
	assert.Len(t, forkVersions, 1, "ancestor history is not copied")

	// Mutating the fork never alters the original graph.
	originalBefore, err := r.List(DefaultProject)
	require.NoError(t, err)

	writeFile(t, r, "fork-only.txt", []byte("new work"))
	_, err = r.Save("fork", "fork work")
	require.NoError(t, err)
	_, err = r.Label("fork", "1", "fork-root")
	require.NoError(t, err)
	_, err = r.Delete("fork", "2")
	require.NoError(t, err)

	originalAfter, err := r.List(DefaultProject)
	require.NoError(t, err)
	assert.Equal(t, len(originalBefore), len(originalAfter))

	// Label namespaces are independent too.
	_, err = r.Label(DefaultProject, "1", "fork-root")
	require.NoError(t, err)
}

func TestSplitNameConflict(t *testing.T) {
	r := initRepo(t)

	_, err := r.Split(DefaultProject, "1", "fork")
	require.NoError(t, err)
	_, err = r.Split(DefaultProject, "1", "fork")
	assert.True(t, kerr.IsKind(err, kerr.KindProjectConflict))

	_, err = r.Split(DefaultProject, "99", "other")
	assert.True(t, kerr.IsKind(err, kerr.KindVersionNotFound))
}

func TestDiffBetweenVersions(t *testing.T) {
	r := initRepo(t)

	writeFile(t, r, "palette.txt", []byte("red\nblue\n"))
	_, err := r.Save(DefaultProject, "sketch")
	require.NoError(t, err)

	writeFile(t, r, "palette.txt", []byte("red\ngreen\n"))
	writeFile(t, r, "bg.png", []byte{0x89, 0x00})
	_, err = r.Save(DefaultProject, "colors")
	require.NoError(t, err)

	changes, err := r.Diff(DefaultProject, "2", "3")
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, diff.Added, changes[0].Type)
	assert.Equal(t, "bg.png", changes[0].Path)
	assert.Equal(t, diff.Modified, changes[1].Type)
	assert.Equal(t, "palette.txt", changes[1].Path)
	require.NotNil(t, changes[1].Text)
}

func TestExport(t *testing.T) {
	r := initRepo(t)

	writeFile(t, r, "mesh.obj", []byte("v 0 0 0"))
	_, err := r.Save(DefaultProject, "mesh")
	require.NoError(t, err)

	dest := t.TempDir()
	version, err := r.Export(DefaultProject, "2", dest)
	require.NoError(t, err)
	assert.Equal(t, 2, version.ID)

	content, err := os.ReadFile(filepath.Join(dest, "mesh.obj"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v 0 0 0"), content)
}

func TestGC(t *testing.T) {
	r := initRepo(t)

	writeFile(t, r, "big.bin", []byte("unreferenced once deleted"))
	_, err := r.Save(DefaultProject, "transient")
	require.NoError(t, err)

	_, err = r.Delete(DefaultProject, "2")
	require.NoError(t, err)

	// The undo slot still references the deleted tree; nothing beyond
	// status-scratch objects may be collected yet.
	_, err = r.GC()
	require.NoError(t, err)
	_, err = r.UndoLast()
	require.NoError(t, err)
	v, err := r.Load(DefaultProject, "2")
	require.NoError(t, err)
	_, err = r.Vault.GetTree(v.Tree)
	require.NoError(t, err, "undo-referenced objects survive gc")

	// Once actually deleted with the slot cleared, gc reclaims.
	_, err = r.Delete(DefaultProject, "2")
	require.NoError(t, err)
	require.NoError(t, r.Undo.Clear())

	removed, err := r.GC()
	require.NoError(t, err)
	assert.Greater(t, removed, 0)

	_, err = r.Vault.GetTree(v.Tree)
	assert.Error(t, err)
}

func TestVerifyRepository(t *testing.T) {
	r := initRepo(t)

	content := []byte("pristine asset bytes")
	writeFile(t, r, "asset.bin", content)
	_, err := r.Save(DefaultProject, "asset")
	require.NoError(t, err)

	checked, err := r.Verify()
	require.NoError(t, err)
	assert.Greater(t, checked, 0)

	// Damage the object file behind the blob on disk.
	blob := vault.HashContent(content)
	objPath := filepath.Join(repoDir(r.Root), "objects", blob[:2], blob[2:])
	require.NoError(t, os.WriteFile(objPath, []byte("bit rot"), 0644))

	_, err = r.Verify()
	assert.True(t, kerr.IsKind(err, kerr.KindCorruptIndex))
}

func TestScenarioFromDocumentation(t *testing.T) {
	// root -> save("sketch") -> label -> save("colors") -> diff -> delete
	r := initRepo(t)

	writeFile(t, r, "art.txt", []byte("sketch\n"))
	sketch, err := r.Save(DefaultProject, "sketch")
	require.NoError(t, err)
	assert.Equal(t, 2, sketch.ID)

	_, err = r.Label(DefaultProject, "2", "sketch")
	require.NoError(t, err)

	writeFile(t, r, "art.txt", []byte("colors\n"))
	colors, err := r.Save(DefaultProject, "colors")
	require.NoError(t, err)
	assert.Equal(t, 3, colors.ID)

	changes, err := r.Diff(DefaultProject, "sketch", "3")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, diff.Modified, changes[0].Type)

	report, err := r.Delete(DefaultProject, "sketch")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, report.IDs())
	assert.Equal(t, []string{"sketch"}, report.Labels())

	versions, err := r.List(DefaultProject)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].ID)
}

func TestPreviewDeleteThenConfirm(t *testing.T) {
	r := initRepo(t)

	writeFile(t, r, "a.txt", []byte("x"))
	_, err := r.Save(DefaultProject, "a")
	require.NoError(t, err)

	preview, err := r.PreviewDelete(DefaultProject, "2")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, preview.IDs())

	// Preview commits nothing.
	versions, err := r.List(DefaultProject)
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	committed, err := r.Delete(DefaultProject, "2")
	require.NoError(t, err)
	assert.Equal(t, preview.IDs(), committed.IDs())
}

func TestDedupAcrossVersions(t *testing.T) {
	r := initRepo(t)

	content := []byte("identical asset bytes")
	writeFile(t, r, "copy1.bin", content)
	_, err := r.Save(DefaultProject, "one copy")
	require.NoError(t, err)

	before, err := r.Vault.Count()
	require.NoError(t, err)

	// The same content under another path adds a tree but no new blob.
	writeFile(t, r, "copy2.bin", content)
	_, err = r.Save(DefaultProject, "two copies")
	require.NoError(t, err)

	after, err := r.Vault.Count()
	require.NoError(t, err)
	assert.Equal(t, before+1, after, "only the new tree manifest is stored")
}
