package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"phrasecron/internal/config"
	"phrasecron/internal/eventbus"
	"phrasecron/internal/jobs"
	"phrasecron/internal/notifier"
	"phrasecron/internal/observability/status"
	"phrasecron/internal/runtime/supervisor"
	"phrasecron/internal/storage"
	"phrasecron/internal/task/engine"
	"phrasecron/internal/task/scheduler"
	logx "phrasecron/pkg/logx"
	"phrasecron/pkg/phrase"
	"phrasecron/pkg/unitctl"
)

// StopReason is logged when the app shuts down.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	rec   *storage.Recorder
	units *unitctl.Controller

	engine *engine.Service
	sched  *scheduler.Service
	jobs   *jobs.Syncer
	status *status.Service
	alerts *notifier.Service

	notify func(state string)
}

// New loads and validates the config at cfgPath and builds every component.
// Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	cfgm.SetLogger(log)
	appLog := log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	store, err := OpenStore(cfg, log)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	var rec *storage.Recorder
	if store != nil {
		rec = storage.NewRecorder(store, bus, log.With(logx.String("comp", "storage")))
		appLog.Info("run journal enabled", logx.String("driver", cfg.Storage.Driver))
	}

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	engineSvc := engine.New(engCfg, log, bus)
	schedSvc := scheduler.New(mapSchedulerConfig(cfg), engineSvc, phrase.Default(), log, bus)

	units := unitctl.New()
	builder := jobs.NewBuilder(log.With(logx.String("comp", "jobs")), units)
	syncer := jobs.NewSyncer(schedSvc, builder, log.With(logx.String("comp", "jobs")))
	if _, err := syncer.Apply(cfg.Jobs); err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	a := &App{
		cfgm:   cfgm,
		log:    appLog,
		logs:   logSvc,
		bus:    bus,
		store:  store,
		rec:    rec,
		units:  units,
		engine: engineSvc,
		sched:  schedSvc,
		jobs:   syncer,
		notify: sdNotify(appLog),
	}
	a.status = status.New(mapStatusConfig(cfg), a.statusDoc, log)

	alertCfg, sender, err := mapAlertsConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	a.alerts = notifier.New(alertCfg, sender, log, bus)
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Scheduler exposes the scheduler for diagnostics.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// StatusAddr returns the bound status listener address, or "" when the
// status server is off.
func (a *App) StatusAddr() string { return a.status.Addr() }

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()

	// Alerts subscribe before anything can fail. They outlive runCtx so Stop
	// can drain alerts for the last runs.
	a.alerts.Start(context.WithoutCancel(runCtx))
	// Engine first so the first trigger finds workers.
	a.engine.Start(runCtx)
	a.sched.Start(runCtx)

	if a.rec != nil {
		a.sup.Go("storage.recorder", a.rec.Run)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	if every := watchdogInterval(); every > 0 {
		a.log.Info("systemd watchdog enabled", logx.Duration("ping_every", every))
		a.sup.Go0("systemd.watchdog", func(c context.Context) { a.watchdogLoop(c, every) })
	}

	a.status.Start(runCtx)

	a.notify(daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.String("config", a.cfgm.Path()),
		logx.Strings("jobs", a.jobs.Active()),
		logx.Bool("scheduler", a.sched.Enabled()),
	)
	return nil
}

// applyConfig moves every component to newCfg. newCfg already passed
// validation, so mapping errors only keep the previous engine settings.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	a.notify(daemon.SdNotifyReloading)
	defer a.notify(daemon.SdNotifyReady)

	sections, attrs, jobsChanged := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	a.logs.Apply(mapLogConfig(newCfg))

	if hasSection(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}

	engCfg, err := mapTaskEngineConfig(newCfg)
	if err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	}
	schedCfg := mapSchedulerConfig(newCfg)
	// Scheduler stops before the engine and starts after it.
	if schedCfg.Enabled {
		if err == nil {
			a.engine.Apply(ctx, engCfg)
		}
		a.sched.Apply(ctx, schedCfg)
	} else {
		a.sched.Apply(ctx, schedCfg)
		if err == nil {
			a.engine.Apply(ctx, engCfg)
		}
	}

	if hasSection(sections, "alerts") {
		if alertCfg, sender, err := mapAlertsConfig(newCfg); err != nil {
			a.log.Warn("invalid alerts config; keeping previous", logx.Err(err))
		} else {
			a.alerts.Reconfigure(ctx, alertCfg, sender)
		}
	}

	if hasSection(sections, "status") {
		a.status.Reconfigure(ctx, mapStatusConfig(newCfg))
	}

	if len(jobsChanged) > 0 {
		if _, err := a.jobs.Apply(newCfg.Jobs); err != nil {
			a.log.Error("some jobs could not be scheduled", logx.Err(err))
		}
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: sections})
	a.log.Info("config reloaded", fields...)
}

func hasSection(sections []string, name string) bool {
	for _, s := range sections {
		if s == name {
			return true
		}
	}
	return false
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.notify(daemon.SdNotifyStopping)
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	}

	step("status", time.Second, func(c context.Context) error { a.status.Stop(c); return nil })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	// Waiting here lets the recorder flush runs the engine just finished.
	// Drain alerts for runs the engine just finished.
	step("alerts", 3*time.Second, func(c context.Context) error { a.alerts.Stop(c); return nil })
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		if a.store == nil {
			return nil
		}
		return a.store.Close()
	})
	step("unitctl", time.Second, func(context.Context) error { return a.units.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
