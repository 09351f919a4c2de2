// internal/timeline/types.go
package timeline

import "time"

// Version is one node in a project's history DAG. IDs are append-only
// integers, assigned at creation and never reused; Parent is 0 only for
// a project's root version.
type Version struct {
	ID        int       `json:"id"`
	Parent    int       `json:"parent"`
	Tree      string    `json:"tree"`
	Label     string    `json:"label,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Project is an isolated version graph with its own id and label
// namespace. Head is 0 when the project has no versions.
type Project struct {
	Name      string    `json:"name"`
	NextID    int       `json:"next_id"`
	Head      int       `json:"head"`
	CreatedAt time.Time `json:"created_at"`
}

// DeletionReport lists what a cascading delete removes: the target and
// every version whose parent chain passes through it.
type DeletionReport struct {
	Project  string    `json:"project"`
	Versions []Version `json:"versions"`
	NewHead  int       `json:"new_head"`
}

// IDs returns the removed version ids in ascending order.
func (r *DeletionReport) IDs() []int {
	ids := make([]int, len(r.Versions))
	for i, v := range r.Versions {
		ids[i] = v.ID
	}
	return ids
}

// Labels returns the labels carried by removed versions.
func (r *DeletionReport) Labels() []string {
	var labels []string
	for _, v := range r.Versions {
		if v.Label != "" {
			labels = append(labels, v.Label)
		}
	}
	return labels
}
