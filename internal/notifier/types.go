package notifier

import (
	"context"
	"fmt"
	"time"
)

// Alert kinds. They match the run statuses of the journal.
const (
	KindFailed  = "failed"
	KindDropped = "dropped"
	KindSkipped = "skipped"
)

// Kinds lists the alert kinds accepted in Config.On.
var Kinds = []string{KindFailed, KindDropped, KindSkipped}

// Config controls the alert pipeline.
type Config struct {
	Enabled bool

	// On selects which kinds raise alerts. Empty means failed only.
	On []string

	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// Alert describes one job run an operator should know about.
type Alert struct {
	Job      string    `json:"job"`
	Kind     string    `json:"kind"`
	RunID    string    `json:"run_id,omitempty"`
	Trigger  string    `json:"trigger,omitempty"`
	Attempts int       `json:"attempts,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Text renders a one-line summary.
func (a Alert) Text() string {
	s := fmt.Sprintf("job %s %s", a.Job, a.Kind)
	if a.Attempts > 1 {
		s += fmt.Sprintf(" after %d attempts", a.Attempts)
	}
	if a.Error != "" {
		s += ": " + a.Error
	}
	return s
}

// Sender delivers one alert.
type Sender interface {
	Send(ctx context.Context, a Alert) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, a Alert) error

func (f SenderFunc) Send(ctx context.Context, a Alert) error { return f(ctx, a) }

type HistoryItem struct {
	At    time.Time `json:"at"`
	Alert Alert     `json:"alert"`
	Error string    `json:"error,omitempty"`
}
