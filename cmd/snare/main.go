package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// exitTamper is returned when audit finds a modified or missing decoy.
const exitTamper = 2

func main() {
	err := newRootCommand().Execute()
	switch {
	case err == nil:
	case errors.Is(err, errTamperDetected):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitTamper)
	case errors.Is(err, context.Canceled):
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
