package storage

import (
	"context"
	"time"

	"phrasecron/internal/eventbus"
	"phrasecron/internal/task/engine"
	logx "phrasecron/pkg/logx"
)

// Recorder persists finished, dropped and skipped runs published on the bus.
// It subscribes on construction so no event published after NewRecorder
// returns is missed.
type Recorder struct {
	store Store
	log   logx.Logger

	ch    <-chan eventbus.Event
	unsub func()
}

func NewRecorder(store Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	ch, unsub := bus.Subscribe(256)
	return &Recorder{store: store, log: log, ch: ch, unsub: unsub}
}

// Run writes records until ctx is done, then flushes what is already
// buffered and returns nil.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.unsub()
			for ev := range r.ch {
				r.write(ev)
			}
			return nil
		case ev, ok := <-r.ch:
			if !ok {
				return nil
			}
			r.write(ev)
		}
	}
}

func (r *Recorder) write(ev eventbus.Event) {
	rec, ok := RecordFromEvent(ev)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.AppendRun(ctx, rec); err != nil {
		r.log.Warn("run journal append failed", logx.String("job", rec.Job), logx.String("id", rec.ID), logx.Err(err))
	}
}

// RecordFromEvent maps a terminal task event to a journal record.
// task.started and non-task events report false.
func RecordFromEvent(ev eventbus.Event) (RunRecord, bool) {
	te, ok := ev.Data.(engine.TaskEvent)
	if !ok {
		return RunRecord{}, false
	}
	var status string
	switch ev.Type {
	case eventbus.TypeTaskSucceeded:
		status = StatusOK
	case eventbus.TypeTaskFailed:
		status = StatusFailed
	case eventbus.TypeTaskDropped:
		status = StatusDropped
	case eventbus.TypeJobSkipped:
		status = StatusSkipped
	default:
		return RunRecord{}, false
	}
	started := te.Started
	if started.IsZero() {
		started = ev.Time
	}
	return RunRecord{
		ID:        te.ID,
		Job:       te.Name,
		Trigger:   te.Trigger,
		Scheduled: te.Scheduled,
		Started:   started,
		Duration:  te.Duration,
		Attempts:  te.Attempts,
		Status:    status,
		Error:     te.Error,
	}, true
}
