package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"phrasecron/internal/task/engine"
	logx "phrasecron/pkg/logx"
	"phrasecron/pkg/phrase"
)

// AddSchedule parses schedule and registers it under name, replacing any
// schedule with the same name. Runs skip while a previous run is in flight.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	return s.AddScheduleOpt(name, schedule, timeout, TaskOptions{Overlap: OverlapSkipIfRunning}, job)
}

// AddScheduleOpt is AddSchedule with task options.
func (s *Service) AddScheduleOpt(name, schedule string, timeout time.Duration, opt TaskOptions, job func(ctx context.Context) error) (string, error) {
	spec, err := parseSchedule(s.resolver, schedule, time.Now())
	if err != nil {
		return "", err
	}
	return s.AddSpec(name, spec, timeout, opt, job)
}

// AddSpec registers an already parsed schedule.
func (s *Service) AddSpec(name string, spec ParsedSpec, timeout time.Duration, opt TaskOptions, job func(ctx context.Context) error) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if job == nil {
		return "", errors.New("job required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Upsert by name so hot reloads never duplicate a schedule.
	s.removeScheduleLocked(name)
	s.defs = append(s.defs, scheduleDef{name: name, spec: spec, timeout: timeout, job: job, opt: opt})
	if s.c == nil {
		// Not started yet: Start registers it.
		return name, nil
	}

	d := &s.defs[len(s.defs)-1]
	if err := s.addCronLocked(d); err != nil {
		s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", spec.String()), logx.Err(err))
		return name, err
	}
	fields := []logx.Field{logx.String("name", name), logx.String("kind", spec.Kind.String()), logx.String("spec", spec.String()), logx.Duration("timeout", timeout)}
	if next := s.previewNextRunsLocked(*d, 4); next != "" {
		fields = append(fields, logx.String("next", next))
	}
	s.log.Debug("schedule registered", fields...)
	return name, nil
}

// AddDaily runs job every day at HH:MM.
func (s *Service) AddDaily(name string, atHHMM string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return "", err
	}
	return s.AddSchedule(name, fmt.Sprintf("everyday at %02d:%02d", h, m), timeout, job)
}

// AddWeekly runs job every week on weekday at HH:MM.
func (s *Service) AddWeekly(name string, weekday time.Weekday, atHHMM string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return "", err
	}
	return s.AddSchedule(name, fmt.Sprintf("every %s at %02d:%02d", strings.ToLower(weekday.String()), h, m), timeout, job)
}

// Remove unschedules name. It reports whether anything was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// Names lists registered schedule names in registration order.
func (s *Service) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, d.name)
	}
	return out
}

// removeScheduleLocked removes all defs named name and unregisters them from
// cron if running. Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			continue
		}
		s.defs[n] = d
		n++
	}
	removed := n < len(s.defs)
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	name, timeout, opt, run := d.name, d.timeout, d.opt, d.job
	trigger := d.spec.Kind.String()
	job := cron.FuncJob(func() {
		if s.engine == nil {
			return
		}
		err := s.engine.Enqueue(engine.Task{
			Name:      name,
			Trigger:   trigger,
			Scheduled: time.Now(),
			Timeout:   timeout,
			Run:       run,
			Opt:       opt,
		})
		s.reportEnqueueError(name, err)
	})

	if d.spec.Kind == SpecInterval {
		sched, jitter := intervalWithSpread(d.spec.Every, time.Now(), d.name)
		d.startupSpread = jitter
		d.entryID = s.c.Schedule(sched, job)
		return nil
	}

	// Phrases and cron expressions both go through the cron parser, which
	// tries the phrase first.
	eid, err := s.c.AddJob(d.spec.String(), job)
	if err != nil {
		return err
	}
	d.entryID = eid
	return nil
}

// previewNextRunsLocked renders the next n activations for debug logs.
func (s *Service) previewNextRunsLocked(d scheduleDef, n int) string {
	if !s.log.Enabled(logx.LevelDebug) {
		return ""
	}
	times, err := Upcoming(s.resolver, d.spec, time.Now(), n)
	if err != nil {
		return ""
	}
	parts := make([]string, 0, len(times))
	for _, t := range times {
		parts = append(parts, t.Format("2006-01-02 15:04:05"))
	}
	return strings.Join(parts, ", ")
}

// Upcoming lists up to n activations of spec strictly after from. Interval
// schedules are previewed without startup spread.
func Upcoming(res *phrase.Resolver, spec ParsedSpec, from time.Time, n int) ([]time.Time, error) {
	if res == nil {
		res = phrase.Default()
	}
	var sched cron.Schedule
	switch spec.Kind {
	case SpecPhrase:
		return res.Upcoming(spec.Phrase, from, n)
	case SpecInterval:
		sched = cron.Every(spec.Every)
	default:
		var err error
		if sched, err = cronParser.Parse(spec.Cron); err != nil {
			return nil, err
		}
	}
	out := make([]time.Time, 0, max(n, 0))
	for t := from; len(out) < n; {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}
