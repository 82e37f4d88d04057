package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"phrasecron/internal/eventbus"
	"phrasecron/internal/task/engine"
	logx "phrasecron/pkg/logx"
	"phrasecron/pkg/phrase"
)

// Config controls the scheduler (trigger) service.
type Config struct {
	Enabled bool
}

// Re-export execution types from engine.
type OverlapPolicy = engine.OverlapPolicy

type TaskOptions = engine.TaskOptions

type HistoryItem = engine.HistoryItem

const (
	OverlapAllow         = engine.OverlapAllow
	OverlapSkipIfRunning = engine.OverlapSkipIfRunning
)

type scheduleDef struct {
	name          string
	spec          ParsedSpec
	timeout       time.Duration
	job           func(ctx context.Context) error
	entryID       cron.EntryID
	startupSpread time.Duration // initial random delay for interval schedules
	opt           TaskOptions
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	bus eventbus.Bus

	engine   *engine.Service
	resolver *phrase.Resolver

	parser cron.ScheduleParser
	c      *cron.Cron
	defs   []scheduleDef

	// Enqueue error throttling: key is schedule name.
	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type ScheduleInfo struct {
	Name          string        `json:"name"`
	Spec          string        `json:"spec"`
	Kind          SpecKind      `json:"kind"`
	Timeout       time.Duration `json:"timeout,omitempty"`
	StartupSpread time.Duration `json:"startup_spread,omitempty"`
	Next          time.Time     `json:"next,omitzero"`
	Prev          time.Time     `json:"prev,omitzero"`
}

type Snapshot struct {
	Enabled bool `json:"enabled"`

	// Executor diagnostics (task engine).
	Workers          int            `json:"workers"`
	InFlight         int            `json:"in_flight"`
	QueueLen         int            `json:"queue_len"`
	QueueCap         int            `json:"queue_cap"`
	Dropped          uint64         `json:"dropped"`
	DroppedQueueFull uint64         `json:"dropped_queue_full"`
	DroppedStale     uint64         `json:"dropped_stale"`
	Skipped          uint64         `json:"skipped"`
	DefaultTimeout   time.Duration  `json:"default_timeout"`
	MaxQueueDelay    time.Duration  `json:"max_queue_delay"`
	RetryMax         int            `json:"retry_max"`
	RetryBase        time.Duration  `json:"retry_base"`
	RetryMaxDelay    time.Duration  `json:"retry_max_delay"`
	Schedules        []ScheduleInfo `json:"schedules"`
	History          []HistoryItem  `json:"history,omitempty"`
}
