// Package jobs turns configured jobs into scheduled actions.
//
// A job either runs a command (argv directly, or a string through
// /bin/sh -c) or asks systemd to act on a unit. Syncer keeps the scheduler's
// set of schedules equal to the enabled jobs of the current config.
package jobs
