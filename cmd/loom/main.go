package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"loom/internal/services"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error onto the documented process exit codes:
// 2 for configuration problems, 3 for collaborator or storage failures,
// 4 for a run that stopped on a cap instead of the pool target, 1 otherwise.
func exitCode(err error) int {
	var coded *exitCodeError
	if errors.As(err, &coded) {
		return coded.code
	}
	switch {
	case errors.Is(err, services.ErrConfiguration), errors.Is(err, services.ErrValidation):
		return 2
	case errors.Is(err, services.ErrExternalService),
		errors.Is(err, services.ErrStorage),
		errors.Is(err, services.ErrTransient):
		return 3
	default:
		return 1
	}
}

// exitCodeError carries a specific process exit code for outcomes that are
// not sentinel-classified failures.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }

func (e *exitCodeError) Unwrap() error { return e.err }
