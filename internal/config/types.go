package config

import (
	"encoding/json"
	"errors"
	"strings"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls execution of triggered jobs. If omitted, engine
	// defaults apply and it follows scheduler.enabled.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	// Storage configures the run journal. Nil disables it.
	Storage *StorageConfig `json:"storage,omitempty"`

	// Status serves /healthz, /status and optionally pprof. Nil disables it.
	Status *StatusConfig `json:"status,omitempty"`

	// Alerts posts failed runs to a webhook. Nil disables it.
	Alerts *AlertsConfig `json:"alerts,omitempty"`

	Jobs []JobConfig `json:"jobs"`
}

// TaskEngineConfig controls the task execution engine.
//
// Durations are Go duration strings ("500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - enabled: scheduler.enabled
//   - workers: 2
//   - queue_size: 256
//   - default_timeout: "0s" (disabled)
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
//   - retry_max: 0
type TaskEngineConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
}

// StorageConfig selects the run journal backend.
//
//	"storage": { "driver": "sqlite", "path": "./phrasecron.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// StatusConfig controls the operator HTTP endpoint.
//
//	"status": { "enabled": true, "addr": "127.0.0.1:6061", "token": "", "pprof": false }
type StatusConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}

// AlertsConfig controls failure alerts.
//
// Defaults (when fields are omitted/zero):
//   - on: ["failed"]
//   - rate_per_sec: 1
//   - retry_max: 0
//   - dedup_window: "0s" (disabled)
//   - timeout: "10s"
type AlertsConfig struct {
	Enabled     bool              `json:"enabled"`
	Webhook     string            `json:"webhook"`
	Headers     map[string]string `json:"headers,omitempty"`
	On          []string          `json:"on,omitempty"` // failed | dropped | skipped
	RatePerSec  int               `json:"rate_per_sec,omitempty"`
	RetryMax    int               `json:"retry_max,omitempty"`
	DedupWindow string            `json:"dedup_window,omitempty"`
	Timeout     string            `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Alert   LoggingAlert `json:"alert"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlert mirrors severe records to stderr, rate limited.
type LoggingAlert struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
}

// JobConfig is one scheduled command.
type JobConfig struct {
	Name string `json:"name"`

	// Schedule is a phrase ("every monday at 09:00"), a cron expression, or
	// an interval ("15m", "every:15m").
	Schedule string `json:"schedule"`

	// Exactly one of Command and Unit is set.
	Command Command     `json:"command,omitzero"`
	Unit    *UnitAction `json:"unit,omitempty"`

	Dir      string            `json:"dir,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	Timeout  string            `json:"timeout,omitempty"`
	Overlap  string            `json:"overlap,omitempty"` // skip (default) | allow
	RetryMax int               `json:"retry_max,omitempty"`
	Enabled  *bool             `json:"enabled,omitempty"`
}

// UnitAction asks systemd to act on a unit instead of running a command.
//
//	"unit": { "name": "nginx", "action": "reload" }
//
// A name without a suffix gets ".service".
type UnitAction struct {
	Name   string `json:"name"`
	Action string `json:"action"` // start | stop | restart | reload
}

// UnitActions lists the accepted UnitAction.Action values.
var UnitActions = []string{"start", "stop", "restart", "reload"}

// IsEnabled treats an omitted flag as enabled.
func (j JobConfig) IsEnabled() bool { return j.Enabled == nil || *j.Enabled }

// Command is either an argv list, run directly, or a single string run by
// /bin/sh -c.
type Command struct {
	Args  []string
	Shell string
}

func (c Command) IsZero() bool { return len(c.Args) == 0 && strings.TrimSpace(c.Shell) == "" }

// String renders the command for logs.
func (c Command) String() string {
	if c.Shell != "" {
		return c.Shell
	}
	return strings.Join(c.Args, " ")
}

func (c *Command) UnmarshalJSON(b []byte) error {
	var shell string
	if err := json.Unmarshal(b, &shell); err == nil {
		*c = Command{Shell: shell}
		return nil
	}
	var args []string
	if err := json.Unmarshal(b, &args); err != nil {
		return errors.New("command must be a string or a list of strings")
	}
	*c = Command{Args: args}
	return nil
}

func (c Command) MarshalJSON() ([]byte, error) {
	if len(c.Args) > 0 {
		return json.Marshal(c.Args)
	}
	return json.Marshal(c.Shell)
}
