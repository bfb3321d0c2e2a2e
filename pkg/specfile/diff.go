package specfile

import (
	"fmt"

	"github.com/mcpgate/mcpgate/pkg/store"
)

// Diff is the change set between two spec file snapshots, keyed by server id.
type Diff struct {
	Added    []*store.ServerSpec
	Removed  []*store.ServerSpec
	Modified []*store.ServerSpec
}

// IsEmpty reports whether the diff contains no changes.
func (d *Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Summary renders a short human-readable change count.
func (d *Diff) Summary() string {
	return fmt.Sprintf("%d added, %d removed, %d modified",
		len(d.Added), len(d.Removed), len(d.Modified))
}

// ComputeDiff compares two spec lists and returns what changed. Timestamps
// are ignored; they are stamped by the store, not the file.
func ComputeDiff(old, new []*store.ServerSpec) *Diff {
	diff := &Diff{}

	oldByID := make(map[string]*store.ServerSpec, len(old))
	for _, s := range old {
		oldByID[s.ID] = s
	}
	newByID := make(map[string]*store.ServerSpec, len(new))
	for _, s := range new {
		newByID[s.ID] = s
	}

	for _, s := range new {
		prev, ok := oldByID[s.ID]
		if !ok {
			diff.Added = append(diff.Added, s)
			continue
		}
		if !specEqual(prev, s) {
			diff.Modified = append(diff.Modified, s)
		}
	}

	for _, s := range old {
		if _, ok := newByID[s.ID]; !ok {
			diff.Removed = append(diff.Removed, s)
		}
	}

	return diff
}

func specEqual(a, b *store.ServerSpec) bool {
	if a.Name != b.Name ||
		a.Description != b.Description ||
		a.Type != b.Type ||
		a.URL != b.URL ||
		a.Command != b.Command ||
		a.TimeoutSeconds != b.TimeoutSeconds ||
		a.Disabled != b.Disabled {
		return false
	}
	return stringSliceEqual(a.Args, b.Args) &&
		stringMapEqual(a.Env, b.Env) &&
		stringMapEqual(a.Headers, b.Headers)
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringMapEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
