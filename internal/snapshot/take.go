package snapshot

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"snare/internal/logging"
)

// Options tunes a Snapshotter.
type Options struct {
	// Ignore holds glob patterns matched against entry base names. Matching
	// files and directories (and everything below them) are left out.
	Ignore []string
	// Exclude holds absolute paths that are never recorded, e.g. the agent's
	// own state directory when it lives under the root.
	Exclude []string
	Logger  *slog.Logger
}

// Snapshotter walks directory trees into Snapshots.
type Snapshotter struct {
	ignore  []string
	exclude map[string]struct{}
	logger  *slog.Logger
}

type fileID struct {
	dev uint64
	ino uint64
}

// NewSnapshotter constructs a Snapshotter.
func NewSnapshotter(opts Options) *Snapshotter {
	exclude := make(map[string]struct{}, len(opts.Exclude))
	for _, p := range opts.Exclude {
		if p == "" {
			continue
		}
		exclude[filepath.Clean(p)] = struct{}{}
	}
	return &Snapshotter{
		ignore:  append([]string(nil), opts.Ignore...),
		exclude: exclude,
		logger:  logging.NewComponentLogger(opts.Logger, "snapshot"),
	}
}

// Take walks root and returns its snapshot. It fails with an *IOError when
// the root itself cannot be read; unreadable or vanished subdirectories are
// handled in place. A cancelled context aborts the walk with ctx.Err().
func (s *Snapshotter) Take(ctx context.Context, root string) (*Snapshot, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &IOError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &IOError{Path: root, Err: errors.New("not a directory")}
	}

	snap := &Snapshot{root: root, dirs: make(map[string]dirEntry)}
	visitedIDs := make(map[fileID]struct{})
	visitedPaths := make(map[string]struct{})

	type pending struct {
		rel string
		abs string
	}
	stack := []pending{{rel: RootKey, abs: root}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if id, ok := identity(next.abs); ok {
			if _, seen := visitedIDs[id]; seen {
				s.logger.Debug("directory already visited; skipping", logging.Path(next.abs))
				continue
			}
			visitedIDs[id] = struct{}{}
		} else {
			clean := filepath.Clean(next.abs)
			if _, seen := visitedPaths[clean]; seen {
				continue
			}
			visitedPaths[clean] = struct{}{}
		}

		entries, err := os.ReadDir(next.abs)
		if err != nil {
			if next.rel == RootKey {
				return nil, &IOError{Path: root, Err: err}
			}
			if errors.Is(err, fs.ErrNotExist) {
				s.logger.Debug("directory vanished during walk", logging.Dir(next.rel))
				continue
			}
			// The directory exists but cannot be listed; record it empty so
			// its presence is still tracked.
			s.logger.Debug("directory unreadable; recording without contents",
				logging.Dir(next.rel),
				logging.Error(err),
			)
			snap.dirs[next.rel] = dirEntry{subdirs: map[string]struct{}{}, files: map[string]struct{}{}}
			continue
		}

		entry := dirEntry{
			subdirs: make(map[string]struct{}),
			files:   make(map[string]struct{}),
		}
		for _, de := range entries {
			name := de.Name()
			abs := filepath.Join(next.abs, name)
			if s.skip(name, abs) {
				continue
			}
			// Symlinks are recorded as files and never followed.
			if de.IsDir() && de.Type()&fs.ModeSymlink == 0 {
				entry.subdirs[name] = struct{}{}
				stack = append(stack, pending{rel: Join(next.rel, name), abs: abs})
				continue
			}
			entry.files[name] = struct{}{}
		}
		snap.dirs[next.rel] = entry
	}

	return snap, nil
}

func (s *Snapshotter) skip(name, abs string) bool {
	if _, ok := s.exclude[abs]; ok {
		return true
	}
	for _, pattern := range s.ignore {
		if matched, err := filepath.Match(pattern, name); err == nil && matched {
			return true
		}
	}
	return false
}
