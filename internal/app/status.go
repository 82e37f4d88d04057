package app

import (
	"context"
	"time"

	"phrasecron/internal/notifier"
	"phrasecron/internal/runtime/supervisor"
	"phrasecron/internal/storage"
	"phrasecron/internal/task/scheduler"
)

const statusRecentRuns = 20

// StatusDoc is served at /status.
type StatusDoc struct {
	Now        time.Time                   `json:"now"`
	Config     string                      `json:"config"`
	Jobs       []string                    `json:"jobs"`
	Scheduler  scheduler.Snapshot          `json:"scheduler"`
	Goroutines []supervisor.GoroutineStats `json:"goroutines,omitempty"`
	Runs       []storage.RunRecord         `json:"runs,omitempty"`
	RunsErr    string                      `json:"runs_error,omitempty"`
	Alerts     []notifier.HistoryItem      `json:"alerts,omitempty"`
}

func (a *App) statusDoc(ctx context.Context) any {
	doc := StatusDoc{
		Now:       time.Now(),
		Config:    a.cfgm.Path(),
		Jobs:      a.jobs.Active(),
		Scheduler: a.sched.Snapshot(),
	}
	doc.Alerts = a.alerts.Snapshot()
	if a.sup != nil {
		doc.Goroutines = a.sup.Snapshot()
	}
	if a.store != nil {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		runs, err := a.store.Runs(cctx, storage.Filter{Limit: statusRecentRuns})
		if err != nil {
			doc.RunsErr = err.Error()
		}
		doc.Runs = runs
	}
	return doc
}
