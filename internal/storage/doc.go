// Package storage keeps a journal of job runs.
//
// Two backends exist: an append-only JSON Lines file and a SQLite database
// (pure Go driver). Both store the same RunRecord shape, so the CLI history
// command does not care which one is configured.
package storage
