package snapshot

import (
	"errors"
	"fmt"
)

// ErrIO marks transient walk failures. The monitor logs them and retries on
// the next cycle.
var ErrIO = errors.New("snapshot io error")

// IOError reports that the root could not be walked.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("snapshot %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrIO) match any IOError.
func (e *IOError) Is(target error) bool { return target == ErrIO }
