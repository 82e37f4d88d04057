package scheduler

import "phrasecron/internal/task/engine"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Enabled: s.cfg.Enabled}
	items := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec.String(), Kind: d.spec.Kind, Timeout: d.timeout, StartupSpread: d.startupSpread}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		items = append(items, it)
	}
	eng := s.engine
	s.mu.Unlock()
	snap.Schedules = items

	retryMax := 0
	if eng != nil {
		es := eng.Snapshot()
		snap.Workers = es.Workers
		snap.InFlight = es.InFlight
		snap.QueueLen, snap.QueueCap = es.QueueLen, es.QueueCap
		snap.Dropped = es.Dropped
		snap.DroppedQueueFull = es.DroppedQueueFull
		snap.DroppedStale = es.DroppedStale
		snap.Skipped = es.Skipped
		snap.DefaultTimeout = es.DefaultTimeout
		snap.MaxQueueDelay = es.MaxQueueDelay
		snap.History = es.History
		retryMax = es.RetryMax
	}

	// Surface the retry defaults tasks without overrides run with.
	opt := engine.DefaultTaskOptions(engine.Config{RetryMax: retryMax})
	snap.RetryMax, snap.RetryBase, snap.RetryMaxDelay = opt.RetryMax, opt.RetryBase, opt.RetryMaxDelay
	return snap
}
