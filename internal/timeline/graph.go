// internal/timeline/graph.go
package timeline

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	kerr "kiln/internal/errors"
	"kiln/internal/storage"
	"kiln/internal/validation"
)

// Graph is the version graph over every project in the repository.
// Each mutating method runs inside a single badger transaction, so a
// crash mid-operation never publishes a half-written graph.
type Graph struct {
	db *badger.DB
}

func NewGraph(db *badger.DB) *Graph {
	return &Graph{db: db}
}

func projectKey(name string) []byte {
	return storage.Key("project", name)
}

func versionKey(project string, id int) []byte {
	// Zero-padded ids keep badger's key order equal to id order.
	return storage.Key("version", project, fmt.Sprintf("%012d", id))
}

func versionPrefix(project string) []byte {
	return storage.Key("version", project, "")
}

// CreateProject registers a new, empty project namespace.
func (g *Graph) CreateProject(name string) (*Project, error) {
	if err := validation.ValidateProjectName(name); err != nil {
		return nil, err
	}

	project := &Project{
		Name:      name,
		NextID:    1,
		CreatedAt: time.Now(),
	}

	err := g.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(projectKey(name))
		if err == nil {
			return kerr.ProjectConflict(name)
		}
		if err != badger.ErrKeyNotFound {
			return kerr.StoreIO("checking project", err)
		}
		return storage.PutJSON(txn, projectKey(name), project)
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// GetProject loads a project record.
func (g *Graph) GetProject(name string) (*Project, error) {
	var project Project
	err := g.db.View(func(txn *badger.Txn) error {
		return g.getProject(txn, name, &project)
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (g *Graph) getProject(txn *badger.Txn, name string, project *Project) error {
	err := storage.GetJSON(txn, projectKey(name), project)
	if err == badger.ErrKeyNotFound {
		return kerr.ProjectNotFound(name)
	}
	return err
}

// ListProjects returns every project, sorted by name.
func (g *Graph) ListProjects() ([]Project, error) {
	var projects []Project
	err := g.db.View(func(txn *badger.Txn) error {
		return storage.ScanJSON(txn, []byte("project:"), func(_ string, p Project) error {
			projects = append(projects, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}

// Save allocates the next id, links it to parent and moves the head.
// A zero parent is only valid while the project has no versions.
func (g *Graph) Save(projectName string, parent int, tree, message string) (*Version, error) {
	var saved *Version
	err := g.db.Update(func(txn *badger.Txn) error {
		var project Project
		if err := g.getProject(txn, projectName, &project); err != nil {
			return err
		}

		if parent != 0 {
			var parentVersion Version
			err := storage.GetJSON(txn, versionKey(projectName, parent), &parentVersion)
			if err == badger.ErrKeyNotFound {
				return kerr.InvalidParent(projectName, parent)
			}
			if err != nil {
				return err
			}
		} else if project.Head != 0 {
			return kerr.InvalidParent(projectName, parent)
		}

		version := Version{
			ID:        project.NextID,
			Parent:    parent,
			Tree:      tree,
			Message:   message,
			CreatedAt: time.Now(),
		}

		if err := storage.PutJSON(txn, versionKey(projectName, version.ID), &version); err != nil {
			return err
		}

		project.NextID++
		project.Head = version.ID
		if err := storage.PutJSON(txn, projectKey(projectName), &project); err != nil {
			return err
		}

		saved = &version
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Get returns the version with the given id.
func (g *Graph) Get(projectName string, id int) (*Version, error) {
	var version Version
	err := g.db.View(func(txn *badger.Txn) error {
		err := storage.GetJSON(txn, versionKey(projectName, id), &version)
		if err == badger.ErrKeyNotFound {
			return kerr.VersionNotFound(strconv.Itoa(id))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// Resolve turns an id-or-label argument into a version: tried as a
// numeric id first, then as a label.
func (g *Graph) Resolve(projectName, ref string) (*Version, error) {
	if id, err := strconv.Atoi(ref); err == nil {
		if v, err := g.Get(projectName, id); err == nil {
			return v, nil
		}
	}

	versions, err := g.List(projectName)
	if err != nil {
		return nil, err
	}
	for i := range versions {
		if versions[i].Label != "" && versions[i].Label == ref {
			return &versions[i], nil
		}
	}
	return nil, kerr.VersionNotFound(ref)
}

// List returns every version of a project in ascending id order.
func (g *Graph) List(projectName string) ([]Version, error) {
	var versions []Version
	err := g.db.View(func(txn *badger.Txn) error {
		var project Project
		if err := g.getProject(txn, projectName, &project); err != nil {
			return err
		}
		return storage.ScanJSON(txn, versionPrefix(projectName), func(_ string, v Version) error {
			versions = append(versions, v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// SetLabel assigns a label, enforcing per-project uniqueness. Returns
// the label the version carried before.
func (g *Graph) SetLabel(projectName string, id int, label string) (string, error) {
	if err := validation.ValidateLabel(label); err != nil {
		return "", err
	}

	var previous string
	err := g.db.Update(func(txn *badger.Txn) error {
		var target Version
		err := storage.GetJSON(txn, versionKey(projectName, id), &target)
		if err == badger.ErrKeyNotFound {
			return kerr.VersionNotFound(strconv.Itoa(id))
		}
		if err != nil {
			return err
		}

		var conflict *kerr.Error
		err = storage.ScanJSON(txn, versionPrefix(projectName), func(_ string, v Version) error {
			if v.Label == label && v.ID != id {
				conflict = kerr.LabelConflict(label, v.ID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if conflict != nil {
			return conflict
		}

		previous = target.Label
		target.Label = label
		return storage.PutJSON(txn, versionKey(projectName, id), &target)
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

// RestoreLabel puts back a previously captured label without validation
// or conflict checks; the captured state was valid when taken.
func (g *Graph) RestoreLabel(projectName string, id int, label string) error {
	return g.db.Update(func(txn *badger.Txn) error {
		var target Version
		err := storage.GetJSON(txn, versionKey(projectName, id), &target)
		if err == badger.ErrKeyNotFound {
			return kerr.VersionNotFound(strconv.Itoa(id))
		}
		if err != nil {
			return err
		}
		target.Label = label
		return storage.PutJSON(txn, versionKey(projectName, id), &target)
	})
}

// SetMessage overwrites the comment on a version and returns the prior
// one.
func (g *Graph) SetMessage(projectName string, id int, message string) (string, error) {
	var previous string
	err := g.db.Update(func(txn *badger.Txn) error {
		var target Version
		err := storage.GetJSON(txn, versionKey(projectName, id), &target)
		if err == badger.ErrKeyNotFound {
			return kerr.VersionNotFound(strconv.Itoa(id))
		}
		if err != nil {
			return err
		}
		previous = target.Message
		target.Message = message
		return storage.PutJSON(txn, versionKey(projectName, id), &target)
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

// Head returns the project's current head version id (0 when empty).
func (g *Graph) Head(projectName string) (int, error) {
	project, err := g.GetProject(projectName)
	if err != nil {
		return 0, err
	}
	return project.Head, nil
}

// subtree collects the target and every version whose parent chain
// passes through it, in ascending id order. Children always have larger
// ids than their parents, so one forward pass suffices.
func subtree(versions []Version, target int) []Version {
	removed := map[int]bool{target: true}
	var result []Version
	for _, v := range versions {
		if v.ID == target || removed[v.Parent] {
			removed[v.ID] = true
			result = append(result, v)
		}
	}
	return result
}

// PreviewDelete reports what a cascading delete of id would remove,
// without committing anything. The two-phase contract lets the CLI put
// a confirmation prompt between preview and commit.
func (g *Graph) PreviewDelete(projectName string, id int) (*DeletionReport, error) {
	versions, err := g.List(projectName)
	if err != nil {
		return nil, err
	}
	return g.buildReport(projectName, versions, id)
}

func (g *Graph) buildReport(projectName string, versions []Version, id int) (*DeletionReport, error) {
	found := false
	var target Version
	for _, v := range versions {
		if v.ID == id {
			found = true
			target = v
			break
		}
	}
	if !found {
		return nil, kerr.VersionNotFound(strconv.Itoa(id))
	}

	project, err := g.GetProject(projectName)
	if err != nil {
		return nil, err
	}

	report := &DeletionReport{
		Project:  projectName,
		Versions: subtree(versions, id),
		NewHead:  project.Head,
	}
	for _, v := range report.Versions {
		if v.ID == project.Head {
			// Head is being removed; it moves to the target's parent.
			report.NewHead = target.Parent
			break
		}
	}
	return report, nil
}

// Delete removes the target version and its full dependent subtree in
// one transaction and returns what was removed.
func (g *Graph) Delete(projectName string, id int) (*DeletionReport, error) {
	var report *DeletionReport
	err := g.db.Update(func(txn *badger.Txn) error {
		var project Project
		if err := g.getProject(txn, projectName, &project); err != nil {
			return err
		}

		var versions []Version
		err := storage.ScanJSON(txn, versionPrefix(projectName), func(_ string, v Version) error {
			versions = append(versions, v)
			return nil
		})
		if err != nil {
			return err
		}

		found := false
		var target Version
		for _, v := range versions {
			if v.ID == id {
				found = true
				target = v
				break
			}
		}
		if !found {
			return kerr.VersionNotFound(strconv.Itoa(id))
		}

		r := &DeletionReport{
			Project:  projectName,
			Versions: subtree(versions, id),
			NewHead:  project.Head,
		}
		for _, v := range r.Versions {
			if err := txn.Delete(versionKey(projectName, v.ID)); err != nil {
				return err
			}
			if v.ID == project.Head {
				r.NewHead = target.Parent
			}
		}

		project.Head = r.NewHead
		if err := storage.PutJSON(txn, projectKey(projectName), &project); err != nil {
			return err
		}

		report = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// RemoveVersion deletes a single head version and rolls the head back;
// used to reverse a save. NextID is left alone so ids are never reused.
func (g *Graph) RemoveVersion(projectName string, id, previousHead int) error {
	return g.db.Update(func(txn *badger.Txn) error {
		var project Project
		if err := g.getProject(txn, projectName, &project); err != nil {
			return err
		}

		key := versionKey(projectName, id)
		if _, err := txn.Get(key); err == badger.ErrKeyNotFound {
			return kerr.VersionNotFound(strconv.Itoa(id))
		} else if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}

		project.Head = previousHead
		return storage.PutJSON(txn, projectKey(projectName), &project)
	})
}

// RestoreVersions reinserts previously removed versions and restores the
// head pointer; used to reverse a cascading delete.
func (g *Graph) RestoreVersions(projectName string, versions []Version, head int) error {
	return g.db.Update(func(txn *badger.Txn) error {
		var project Project
		if err := g.getProject(txn, projectName, &project); err != nil {
			return err
		}

		for _, v := range versions {
			if err := storage.PutJSON(txn, versionKey(projectName, v.ID), &v); err != nil {
				return err
			}
		}

		project.Head = head
		return storage.PutJSON(txn, projectKey(projectName), &project)
	})
}

// RemoveProject drops a project record and all of its versions; used to
// reverse a split. Shared objects in the vault are untouched.
func (g *Graph) RemoveProject(name string) error {
	return g.db.Update(func(txn *badger.Txn) error {
		var project Project
		if err := g.getProject(txn, name, &project); err != nil {
			return err
		}
		if err := storage.DeletePrefix(txn, versionPrefix(name)); err != nil {
			return err
		}
		return txn.Delete(projectKey(name))
	})
}
