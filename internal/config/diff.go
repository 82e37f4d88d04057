package config

import (
	"reflect"
	"sort"
	"strings"

	logx "phrasecron/pkg/logx"
)

// SummarizeConfigChange returns (1) the sorted list of changed sections,
// (2) structured attrs for the reload log line, and (3) the names of jobs
// that were added, removed or modified.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alert_enabled", newCfg.Logging.Alert.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs, logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled))
	}

	oTE, nTE := derefTaskEngine(oldCfg.TaskEngine), derefTaskEngine(newCfg.TaskEngine)
	if (oldCfg.TaskEngine != nil) != (newCfg.TaskEngine != nil) || !reflect.DeepEqual(oTE, nTE) {
		changed = append(changed, "task_engine")
		enabled := newCfg.Scheduler.Enabled
		if nTE.Enabled != nil {
			enabled = *nTE.Enabled
		}
		attrs = append(attrs,
			logx.Bool("task_engine.enabled", enabled),
			logx.Int("task_engine.workers", nTE.Workers),
			logx.Int("task_engine.queue_size", nTE.QueueSize),
			logx.String("task_engine.default_timeout", strings.TrimSpace(nTE.DefaultTimeout)),
			logx.String("task_engine.max_queue_delay", strings.TrimSpace(nTE.MaxQueueDelay)),
			logx.Int("task_engine.history_size", nTE.HistorySize),
			logx.Int("task_engine.retry_max", nTE.RetryMax),
		)
	}

	oS, nS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nS.Driver),
			logx.String("storage.path", nS.Path),
			logx.String("storage.busy_timeout", nS.BusyTimeout),
		)
	}

	oSt, nSt := derefStatus(oldCfg.Status), derefStatus(newCfg.Status)
	if oSt != nSt {
		changed = append(changed, "status")
		attrs = append(attrs,
			logx.Bool("status.enabled", nSt.Enabled),
			logx.String("status.addr", nSt.Addr),
			logx.Bool("status.pprof", nSt.Pprof),
		)
	}

	if !reflect.DeepEqual(oldCfg.Alerts, newCfg.Alerts) {
		changed = append(changed, "alerts")
		enabled := newCfg.Alerts != nil && newCfg.Alerts.Enabled
		attrs = append(attrs, logx.Bool("alerts.enabled", enabled))
	}

	jobsChanged := diffJobs(oldCfg.Jobs, newCfg.Jobs)
	if len(jobsChanged) > 0 {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.changed_count", len(jobsChanged)),
			logx.Int("jobs.enabled_count", countEnabled(newCfg.Jobs)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, jobsChanged
}

func derefTaskEngine(te *TaskEngineConfig) TaskEngineConfig {
	if te == nil {
		return TaskEngineConfig{}
	}
	return *te
}

// derefStorage trims fields so whitespace-only edits are not reported.
func derefStorage(st *StorageConfig) StorageConfig {
	if st == nil {
		return StorageConfig{}
	}
	return StorageConfig{
		Driver:      strings.ToLower(strings.TrimSpace(st.Driver)),
		Path:        strings.TrimSpace(st.Path),
		BusyTimeout: strings.TrimSpace(st.BusyTimeout),
	}
}

func derefStatus(st *StatusConfig) StatusConfig {
	if st == nil {
		return StatusConfig{}
	}
	out := *st
	out.Addr = strings.TrimSpace(out.Addr)
	out.Token = strings.TrimSpace(out.Token)
	return out
}

func countEnabled(jobs []JobConfig) int {
	n := 0
	for _, j := range jobs {
		if j.IsEnabled() {
			n++
		}
	}
	return n
}

// diffJobs compares jobs by name; a job counts as changed when it was added,
// removed, or any of its fields differ.
func diffJobs(oldJobs, newJobs []JobConfig) []string {
	index := func(jobs []JobConfig) map[string]uint64 {
		m := make(map[string]uint64, len(jobs))
		for _, j := range jobs {
			m[strings.TrimSpace(j.Name)] = hashJSON(j)
		}
		return m
	}
	o, n := index(oldJobs), index(newJobs)

	out := make([]string, 0)
	for name, h := range n {
		if oh, ok := o[name]; !ok || oh != h {
			out = append(out, name)
		}
	}
	for name := range o {
		if _, ok := n[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
