package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "phrasecron/pkg/logx"
)

// sdNotify reports service state to systemd. Outside a Type=notify unit
// NOTIFY_SOCKET is unset and this is a no-op.
func sdNotify(log logx.Logger) func(state string) {
	return func(state string) {
		sent, err := daemon.SdNotify(false, state)
		switch {
		case err != nil:
			log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		case sent:
			log.Debug("sd_notify sent", logx.String("state", state))
		}
	}
}

// watchdogInterval returns how often to ping the systemd watchdog, or 0 when
// WatchdogSec is not configured for this process.
func watchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

func (a *App) watchdogLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.notify(daemon.SdNotifyWatchdog)
		}
	}
}
