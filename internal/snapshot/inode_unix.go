//go:build unix

package snapshot

import "golang.org/x/sys/unix"

// identity returns a device/inode key for path without following symlinks.
func identity(path string) (fileID, bool) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return fileID{}, false
	}
	return fileID{dev: uint64(st.Dev), ino: uint64(st.Ino)}, true
}
