package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": append-only JSON Lines journal at Path
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means 5s
}

// Run statuses.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusDropped = "dropped"
	StatusSkipped = "skipped"
)

// RunRecord is one finished (or never started) run of a job.
// Keep it compact and schema-stable: old journals must stay readable.
type RunRecord struct {
	ID        string        `json:"id"`
	Job       string        `json:"job"`
	Trigger   string        `json:"trigger,omitempty"`
	Scheduled time.Time     `json:"scheduled,omitzero"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts,omitempty"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
}

// Filter narrows Runs. Zero value returns the newest 50 runs of every job.
type Filter struct {
	Job   string
	Limit int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return 50
	}
	return f.Limit
}

func (f Filter) match(r RunRecord) bool {
	return f.Job == "" || f.Job == r.Job
}

// Store is the persistence API used by the app and CLI.
//
// Runs returns matching records newest first.
type Store interface {
	AppendRun(ctx context.Context, r RunRecord) error
	Runs(ctx context.Context, f Filter) ([]RunRecord, error)
	Close() error
}
