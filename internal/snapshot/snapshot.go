package snapshot

import (
	"path"
	"path/filepath"
	"slices"
)

// RootKey is the relative key of the monitored root directory.
const RootKey = "."

// Dir lists the immediate children of one directory.
type Dir struct {
	Subdirs []string
	Files   []string
}

type dirEntry struct {
	subdirs map[string]struct{}
	files   map[string]struct{}
}

// Snapshot is an immutable structural record of a directory tree.
type Snapshot struct {
	root string
	dirs map[string]dirEntry
}

// Empty returns a snapshot of root with no directories.
func Empty(root string) *Snapshot {
	return &Snapshot{root: root, dirs: map[string]dirEntry{}}
}

// New builds a snapshot from explicit contents. Keys are slash-separated and
// relative to root. The input is copied.
func New(root string, dirs map[string]Dir) *Snapshot {
	s := &Snapshot{root: root, dirs: make(map[string]dirEntry, len(dirs))}
	for key, d := range dirs {
		s.dirs[cleanKey(key)] = dirEntry{subdirs: toSet(d.Subdirs), files: toSet(d.Files)}
	}
	return s
}

// Root returns the absolute root path the snapshot was taken from.
func (s *Snapshot) Root() string {
	if s == nil {
		return ""
	}
	return s.root
}

// Len returns the number of directories recorded, including the root.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.dirs)
}

// Has reports whether dir was present.
func (s *Snapshot) Has(dir string) bool {
	if s == nil {
		return false
	}
	_, ok := s.dirs[cleanKey(dir)]
	return ok
}

// HasFile reports whether name was a file directly inside dir.
func (s *Snapshot) HasFile(dir, name string) bool {
	if s == nil {
		return false
	}
	entry, ok := s.dirs[cleanKey(dir)]
	if !ok {
		return false
	}
	_, ok = entry.files[name]
	return ok
}

// Dirs returns every recorded directory key in lexical order.
func (s *Snapshot) Dirs() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.dirs))
	for key := range s.dirs {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Files returns the file names directly inside dir in lexical order.
func (s *Snapshot) Files(dir string) []string {
	if s == nil {
		return nil
	}
	return sortedKeys(s.dirs[cleanKey(dir)].files)
}

// Subdirs returns the subdirectory names directly inside dir in lexical order.
func (s *Snapshot) Subdirs(dir string) []string {
	if s == nil {
		return nil
	}
	return sortedKeys(s.dirs[cleanKey(dir)].subdirs)
}

// Abs converts a relative key into an absolute filesystem path under Root.
func (s *Snapshot) Abs(rel string) string {
	return filepath.Join(s.Root(), filepath.FromSlash(cleanKey(rel)))
}

// Join builds the relative key of a child of dir.
func Join(dir, name string) string {
	if dir == RootKey || dir == "" {
		return name
	}
	return dir + "/" + name
}

func cleanKey(key string) string {
	if key == "" {
		return RootKey
	}
	return path.Clean(filepath.ToSlash(key))
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	slices.Sort(out)
	return out
}
