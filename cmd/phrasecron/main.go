// Command phrasecron runs jobs on plain English schedules such as
// "every monday at 09:00" or "on the last day of the month at 23:00".
//
// Subcommands:
//
//	next     print upcoming instants of a schedule
//	watch    run one command on a phrase schedule in the foreground
//	run      run the daemon from a config file
//	check    validate a config file and preview each job
//	history  show recorded runs from the run journal
package main

import (
	"errors"
	"fmt"
	"os"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}
