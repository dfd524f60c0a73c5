package decoy

import (
	"errors"
	"fmt"
)

// ErrAlreadySeeded is returned when the target directory already has a
// tracked decoy. Nothing is written.
var ErrAlreadySeeded = errors.New("directory already seeded")

// Deploy failure reasons. Only ReasonDirUnavailable means the directory is
// gone; the others may succeed on a later attempt.
const (
	ReasonDirUnavailable = "directory unavailable"
	ReasonNameCheck      = "decoy name check failed"
	ReasonNameExhausted  = "no free decoy name"
	ReasonPayload        = "payload creation failed"
)

// DeployError reports a per-directory deployment failure. The directory has
// no ledger row and no decoy file.
type DeployError struct {
	Dir    string
	Reason string
	Err    error
}

func (e *DeployError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("deploy decoy into %s: %s", e.Dir, e.Reason)
	}
	return fmt.Sprintf("deploy decoy into %s: %s: %v", e.Dir, e.Reason, e.Err)
}

func (e *DeployError) Unwrap() error { return e.Err }
