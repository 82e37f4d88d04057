package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"phrasecron/internal/notifier"
	"phrasecron/internal/task/engine"
	"phrasecron/internal/task/scheduler"
)

var storageDrivers = map[string]bool{"": true, "none": true, "file": true, "sqlite": true}

// Validate checks the whole config and reports every problem it finds, each
// prefixed with its field path.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if te := cfg.TaskEngine; te != nil {
		if te.Workers < 0 {
			add(errors.New("task_engine.workers: must be >= 0"))
		}
		if te.QueueSize < 0 {
			add(errors.New("task_engine.queue_size: must be >= 0"))
		}
		if te.HistorySize < 0 {
			add(errors.New("task_engine.history_size: must be >= 0"))
		}
		if te.RetryMax < 0 {
			add(errors.New("task_engine.retry_max: must be >= 0"))
		}
		if cfg.Scheduler.Enabled && te.Enabled != nil && !*te.Enabled {
			add(errors.New("task_engine.enabled: cannot be false while scheduler.enabled is true"))
		}
		_, err := ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
		add(err)
		_, err = ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay)
		add(err)
	}

	if st := cfg.Storage; st != nil {
		driver := strings.ToLower(strings.TrimSpace(st.Driver))
		if !storageDrivers[driver] {
			add(fmt.Errorf("storage.driver: unknown driver %q (use file, sqlite or none)", st.Driver))
		}
		_, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout)
		add(err)
	}

	if st := cfg.Status; st != nil && st.Enabled && strings.TrimSpace(st.Addr) != "" {
		if _, _, err := net.SplitHostPort(strings.TrimSpace(st.Addr)); err != nil {
			add(fmt.Errorf("status.addr: %w", err))
		}
	}

	if al := cfg.Alerts; al != nil && al.Enabled {
		if u, err := url.Parse(strings.TrimSpace(al.Webhook)); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add(errors.New("alerts.webhook: must be an http(s) URL"))
		}
		for _, k := range al.On {
			if !slices.Contains(notifier.Kinds, k) {
				add(fmt.Errorf("alerts.on: unknown kind %q (use %s)", k, strings.Join(notifier.Kinds, ", ")))
			}
		}
		if al.RatePerSec < 0 {
			add(errors.New("alerts.rate_per_sec: must be >= 0"))
		}
		if al.RetryMax < 0 {
			add(errors.New("alerts.retry_max: must be >= 0"))
		}
		_, err := ParseDurationField("alerts.dedup_window", al.DedupWindow)
		add(err)
		_, err = ParseDurationField("alerts.timeout", al.Timeout)
		add(err)
	}

	seen := map[string]int{}
	for i, j := range cfg.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		name := strings.TrimSpace(j.Name)
		if name == "" {
			add(fmt.Errorf("%s.name: required", path))
		} else if prev, dup := seen[name]; dup {
			add(fmt.Errorf("%s.name: %q already used by jobs[%d]", path, name, prev))
		} else {
			seen[name] = i
		}
		if _, err := scheduler.ParseSchedule(j.Schedule); err != nil {
			add(fmt.Errorf("%s.schedule: %w", path, err))
		}
		switch {
		case j.Command.IsZero() && j.Unit == nil:
			add(fmt.Errorf("%s.command: required (or set unit)", path))
		case !j.Command.IsZero() && j.Unit != nil:
			add(fmt.Errorf("%s.unit: cannot be combined with command", path))
		case j.Unit != nil:
			if strings.TrimSpace(j.Unit.Name) == "" {
				add(fmt.Errorf("%s.unit.name: required", path))
			}
			if !slices.Contains(UnitActions, strings.ToLower(strings.TrimSpace(j.Unit.Action))) {
				add(fmt.Errorf("%s.unit.action: unknown action %q (use %s)", path, j.Unit.Action, strings.Join(UnitActions, ", ")))
			}
		}
		if _, ok := engine.ParseOverlap(strings.ToLower(strings.TrimSpace(j.Overlap))); !ok {
			add(fmt.Errorf("%s.overlap: unknown policy %q (use skip or allow)", path, j.Overlap))
		}
		if j.RetryMax < 0 {
			add(fmt.Errorf("%s.retry_max: must be >= 0", path))
		}
		_, err := ParseDurationField(path+".timeout", j.Timeout)
		add(err)
	}

	return errors.Join(errs...)
}
