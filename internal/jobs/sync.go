package jobs

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"phrasecron/internal/config"
	"phrasecron/internal/task/engine"
	logx "phrasecron/pkg/logx"
)

// Scheduler is the part of scheduler.Service the syncer drives.
type Scheduler interface {
	AddScheduleOpt(name, schedule string, timeout time.Duration, opt engine.TaskOptions, job func(ctx context.Context) error) (string, error)
	Remove(name string) bool
}

// SyncResult lists what Apply changed, each sorted by name.
type SyncResult struct {
	Added   []string
	Updated []string
	Removed []string
	Failed  []string
}

func (r SyncResult) Changed() bool {
	return len(r.Added)+len(r.Updated)+len(r.Removed)+len(r.Failed) > 0
}

// Syncer reconciles scheduled jobs with config. Unchanged jobs are left
// alone so their interval phase and overlap state survive a reload.
type Syncer struct {
	sched   Scheduler
	builder *Builder
	log     logx.Logger

	mu      sync.Mutex
	applied map[string]config.JobConfig
}

func NewSyncer(sched Scheduler, builder *Builder, log logx.Logger) *Syncer {
	return &Syncer{sched: sched, builder: builder, log: log, applied: map[string]config.JobConfig{}}
}

// Apply schedules every enabled job and unschedules the rest. A job that
// fails to build or schedule is reported and skipped; the others still
// apply. The returned error joins every per-job failure.
func (s *Syncer) Apply(jobs []config.JobConfig) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		res  SyncResult
		errs []error
		want = make(map[string]config.JobConfig, len(jobs))
	)
	for _, j := range jobs {
		name := strings.TrimSpace(j.Name)
		if name == "" || !j.IsEnabled() {
			continue
		}
		j.Name = name
		want[name] = j
	}

	for name := range s.applied {
		if _, ok := want[name]; ok {
			continue
		}
		s.sched.Remove(name)
		delete(s.applied, name)
		res.Removed = append(res.Removed, name)
	}

	for name, j := range want {
		prev, had := s.applied[name]
		if had && reflect.DeepEqual(prev, j) {
			continue
		}
		if err := s.schedule(j); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", name, err))
			res.Failed = append(res.Failed, name)
			if had {
				// The old schedule would run a stale definition.
				s.sched.Remove(name)
				delete(s.applied, name)
			}
			continue
		}
		s.applied[name] = j
		if had {
			res.Updated = append(res.Updated, name)
		} else {
			res.Added = append(res.Added, name)
		}
	}

	sort.Strings(res.Added)
	sort.Strings(res.Updated)
	sort.Strings(res.Removed)
	sort.Strings(res.Failed)
	if res.Changed() {
		s.log.Info("jobs synced",
			logx.Strings("added", res.Added),
			logx.Strings("updated", res.Updated),
			logx.Strings("removed", res.Removed),
			logx.Strings("failed", res.Failed),
			logx.Int("active", len(s.applied)),
		)
	}
	return res, errors.Join(errs...)
}

func (s *Syncer) schedule(j config.JobConfig) error {
	action, err := s.builder.Build(j)
	if err != nil {
		return err
	}
	opt, timeout, err := TaskSettings(j)
	if err != nil {
		return err
	}
	_, err = s.sched.AddScheduleOpt(j.Name, j.Schedule, timeout, opt, action)
	return err
}

// TaskSettings derives engine options and the run timeout from j.
func TaskSettings(j config.JobConfig) (engine.TaskOptions, time.Duration, error) {
	var opt engine.TaskOptions
	overlap, ok := engine.ParseOverlap(strings.ToLower(strings.TrimSpace(j.Overlap)))
	if !ok {
		return opt, 0, fmt.Errorf("unknown overlap policy %q", j.Overlap)
	}
	opt.Overlap = overlap
	opt.RetryMax = j.RetryMax
	timeout, err := config.ParseDurationField("timeout", j.Timeout)
	if err != nil {
		return opt, 0, err
	}
	return opt, timeout, nil
}

// Active lists the names currently scheduled by the syncer.
func (s *Syncer) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.applied))
	for name := range s.applied {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
