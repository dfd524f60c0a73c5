// Package snapshot records the structure of a directory tree at a point in
// time.
//
// A Snapshot maps every directory under the root, keyed by its slash-separated
// path relative to the root ("." for the root itself), to the names of its
// immediate subdirectories and files. Snapshots are immutable once taken; the
// monitor replaces its baseline wholesale each cycle rather than editing it.
//
// Take walks the tree without following symbolic links and guards against
// cycles introduced by bind mounts or junctions with a device/inode visited
// set. Directories that vanish during the walk are skipped so a busy tree
// never fails a whole cycle; only an inaccessible root is an error.
package snapshot
