//go:build !unix

package snapshot

// identity is unavailable without inode numbers; callers fall back to the
// cleaned path.
func identity(string) (fileID, bool) {
	return fileID{}, false
}
