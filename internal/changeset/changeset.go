// Package changeset compares two snapshots and reports what appeared and
// what disappeared between them.
package changeset

import (
	"cmp"
	"slices"

	"snare/internal/snapshot"
)

// Kind distinguishes file changes from directory changes.
type Kind int

const (
	File Kind = iota
	Dir
)

func (k Kind) String() string {
	if k == Dir {
		return "dir"
	}
	return "file"
}

// Change is one created or deleted path, relative to the snapshot root and
// slash-separated.
type Change struct {
	Path string
	Kind Kind
}

// ChangeSet holds the created and deleted paths between two snapshots, each in
// lexical path order.
type ChangeSet struct {
	Created []Change
	Deleted []Change
}

// Diff returns the paths present in next but not in prev, in Created. A
// directory key missing from prev is reported as a created directory; files
// are reported only for directories present in both, so the contents of a new
// directory surface through the directory itself. A nil snapshot is treated
// as empty.
func Diff(prev, next *snapshot.Snapshot) ChangeSet {
	var created []Change
	for _, dir := range next.Dirs() {
		if !prev.Has(dir) {
			created = append(created, Change{Path: dir, Kind: Dir})
			continue
		}
		for _, name := range next.Files(dir) {
			if !prev.HasFile(dir, name) {
				created = append(created, Change{Path: snapshot.Join(dir, name), Kind: File})
			}
		}
	}
	sortChanges(created)
	return ChangeSet{Created: created}
}

// Between returns both directions in one ChangeSet: Created is
// Diff(prev, next).Created and Deleted is Diff(next, prev).Created.
func Between(prev, next *snapshot.Snapshot) ChangeSet {
	return ChangeSet{
		Created: Diff(prev, next).Created,
		Deleted: Diff(next, prev).Created,
	}
}

// Empty reports whether nothing changed.
func (c ChangeSet) Empty() bool {
	return len(c.Created) == 0 && len(c.Deleted) == 0
}

// CreatedDirs returns the created directory paths.
func (c ChangeSet) CreatedDirs() []string { return paths(c.Created, Dir) }

// DeletedDirs returns the deleted directory paths.
func (c ChangeSet) DeletedDirs() []string { return paths(c.Deleted, Dir) }

// CreatedFiles returns the created file paths.
func (c ChangeSet) CreatedFiles() []string { return paths(c.Created, File) }

// DeletedFiles returns the deleted file paths.
func (c ChangeSet) DeletedFiles() []string { return paths(c.Deleted, File) }

func paths(changes []Change, kind Kind) []string {
	var out []string
	for _, ch := range changes {
		if ch.Kind == kind {
			out = append(out, ch.Path)
		}
	}
	return out
}

func sortChanges(changes []Change) {
	slices.SortFunc(changes, func(a, b Change) int {
		if c := cmp.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind, b.Kind)
	})
}
