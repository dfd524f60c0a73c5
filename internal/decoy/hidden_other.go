//go:build !windows

package decoy

// hiddenPrefix hides decoys from default directory listings.
const hiddenPrefix = "."

func setHidden(string) error { return nil }
