package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrIO marks durable-write failures. The monitor treats them as fatal for
	// the current cycle and retries on the next.
	ErrIO = errors.New("ledger io error")
	// ErrDuplicateDir is returned when appending a second decoy for a
	// directory that already has one.
	ErrDuplicateDir = errors.New("directory already has a ledger entry")
	// ErrClosed is returned by mutations after Close.
	ErrClosed = errors.New("ledger closed")
)

// IOError describes a failed ledger read or write.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("ledger %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrIO) match any IOError.
func (e *IOError) Is(target error) bool { return target == ErrIO }
