package app

import (
	"net/http"
	"strings"
	"time"

	"phrasecron/internal/config"
	"phrasecron/internal/notifier"
	"phrasecron/internal/observability/status"
	"phrasecron/internal/storage"
	"phrasecron/internal/task/engine"
	"phrasecron/internal/task/scheduler"
	logx "phrasecron/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Alert: logx.AlertConfig{
			Enabled:    lc.Alert.Enabled,
			MinLevel:   lc.Alert.MinLevel,
			RatePerSec: lc.Alert.RatePerSec,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled}
}

// mapTaskEngineConfig applies defaults for omitted fields. The engine follows
// scheduler.enabled unless task_engine.enabled says otherwise.
func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	out := engine.Config{
		Enabled:     cfg.Scheduler.Enabled,
		Workers:     2,
		QueueSize:   256,
		HistorySize: 200,
	}
	te := cfg.TaskEngine
	if te == nil {
		return out, nil
	}
	if te.Enabled != nil {
		out.Enabled = *te.Enabled
	}
	if te.Workers > 0 {
		out.Workers = te.Workers
	}
	if te.QueueSize > 0 {
		out.QueueSize = te.QueueSize
	}
	if te.HistorySize > 0 {
		out.HistorySize = te.HistorySize
	}
	out.RetryMax = max(te.RetryMax, 0)

	var err error
	if out.DefaultTimeout, err = config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout); err != nil {
		return engine.Config{}, err
	}
	if out.MaxQueueDelay, err = config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay); err != nil {
		return engine.Config{}, err
	}
	return out, nil
}

// mapStorageConfig reports false when no journal is configured.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		path = "./phrasecron_store"
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
}

// OpenStore opens the journal configured in cfg. It returns (nil, nil) when
// storage is disabled.
func OpenStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil || !enabled {
		return nil, err
	}
	return storage.Open(sc, log)
}

func mapStatusConfig(cfg *config.Config) status.Config {
	if cfg.Status == nil {
		return status.Config{}
	}
	sc := cfg.Status
	return status.Config{
		Enabled:       sc.Enabled,
		Addr:          strings.TrimSpace(sc.Addr),
		Token:         strings.TrimSpace(sc.Token),
		AllowInsecure: sc.AllowInsecure,
		Pprof:         sc.Pprof,
	}
}

// mapAlertsConfig returns the notifier config and the webhook sender for it.
func mapAlertsConfig(cfg *config.Config) (notifier.Config, notifier.Sender, error) {
	al := cfg.Alerts
	if al == nil || !al.Enabled {
		return notifier.Config{}, nil, nil
	}
	dedup, err := config.ParseDurationField("alerts.dedup_window", al.DedupWindow)
	if err != nil {
		return notifier.Config{}, nil, err
	}
	timeout, err := config.ParseDurationOrDefault("alerts.timeout", al.Timeout, 10*time.Second)
	if err != nil {
		return notifier.Config{}, nil, err
	}
	nc := notifier.Config{
		Enabled:     true,
		On:          al.On,
		RatePerSec:  al.RatePerSec,
		RetryMax:    al.RetryMax,
		SendTimeout: timeout,
		DedupWindow: dedup,
	}
	sender := &notifier.WebhookSender{
		URL:     strings.TrimSpace(al.Webhook),
		Headers: al.Headers,
		Client:  &http.Client{Timeout: timeout},
	}
	return nc, sender, nil
}
