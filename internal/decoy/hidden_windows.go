//go:build windows

package decoy

import "golang.org/x/sys/windows"

// hiddenPrefix is empty on Windows; the hidden attribute does the work.
const hiddenPrefix = ""

func setHidden(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return err
	}
	return windows.SetFileAttributes(p, attrs|windows.FILE_ATTRIBUTE_HIDDEN)
}
