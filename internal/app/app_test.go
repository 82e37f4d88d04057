package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"phrasecron/internal/config"
	"phrasecron/internal/eventbus"
	"phrasecron/internal/storage"
	"phrasecron/internal/task/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapTaskEngineConfig(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{Enabled: true}}
	ec, err := mapTaskEngineConfig(cfg)
	require.NoError(t, err)
	assert.True(t, ec.Enabled)
	assert.Equal(t, 2, ec.Workers)
	assert.Equal(t, 256, ec.QueueSize)
	assert.Equal(t, 200, ec.HistorySize)

	off := false
	cfg.Scheduler.Enabled = false
	cfg.TaskEngine = &config.TaskEngineConfig{Enabled: &off, Workers: 4, DefaultTimeout: "30s", MaxQueueDelay: "1m", RetryMax: 2}
	ec, err = mapTaskEngineConfig(cfg)
	require.NoError(t, err)
	assert.False(t, ec.Enabled)
	assert.Equal(t, 4, ec.Workers)
	assert.Equal(t, 30*time.Second, ec.DefaultTimeout)
	assert.Equal(t, time.Minute, ec.MaxQueueDelay)
	assert.Equal(t, 2, ec.RetryMax)

	cfg.TaskEngine.DefaultTimeout = "soon"
	_, err = mapTaskEngineConfig(cfg)
	assert.ErrorContains(t, err, "task_engine.default_timeout")
}

func TestMapStorageConfig(t *testing.T) {
	_, enabled, err := mapStorageConfig(&config.Config{})
	require.NoError(t, err)
	assert.False(t, enabled)

	_, enabled, err = mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "None"}})
	require.NoError(t, err)
	assert.False(t, enabled)

	sc, enabled, err := mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: " SQLite ", Path: "runs.db"}})
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, storage.Config{Driver: "sqlite", Path: "runs.db", BusyTimeout: 5 * time.Second}, sc)

	sc, _, err = mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "file"}})
	require.NoError(t, err)
	assert.Equal(t, "./phrasecron_store", sc.Path)
}

const appConfig = `{
  "logging": {"level": "error", "console": false},
  "scheduler": {"enabled": true},
  "storage": {"driver": "file", "path": %q},
  "jobs": [
    {"name": "backup", "schedule": "everyday at 02:00", "command": ["true"]},
    {"name": "off", "schedule": "15m", "command": "true", "enabled": false}
  ]
}`

type notifications struct {
	mu     sync.Mutex
	states []string
}

func (n *notifications) record(state string) {
	n.mu.Lock()
	n.states = append(n.states, state)
	n.mu.Unlock()
}

func (n *notifications) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.states...)
}

func newTestApp(t *testing.T) (*App, *notifications) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "phrasecron.json")
	body := []byte(fmt.Sprintf(appConfig, filepath.Join(dir, "runs.jsonl")))
	require.NoError(t, os.WriteFile(path, body, 0o644))

	a, err := New(path)
	require.NoError(t, err)
	n := &notifications{}
	a.notify = n.record
	return a, n
}

func TestAppStartReloadStop(t *testing.T) {
	a, n := newTestApp(t)
	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, []string{"backup"}, a.jobs.Active())
	assert.True(t, a.engine.Enabled())

	events, unsub := a.bus.Subscribe(8)
	defer unsub()

	oldCfg := a.cfgm.Get()
	next := *oldCfg
	next.Jobs = append([]config.JobConfig{
		{Name: "report", Schedule: "every friday at 17:00", Command: config.Command{Shell: "true"}},
	}, oldCfg.Jobs...)
	a.applyConfig(a.sup.Context(), oldCfg, &next)

	assert.Equal(t, []string{"backup", "report"}, a.jobs.Active())
	assert.ElementsMatch(t, []string{"backup", "report"}, a.sched.Names())

	select {
	case ev := <-events:
		assert.Equal(t, eventbus.TypeConfigReloaded, ev.Type)
		assert.Equal(t, []string{"jobs"}, ev.Data)
	case <-time.After(time.Second):
		t.Fatal("no config.reloaded event")
	}

	// Disabling the scheduler stops the engine too.
	stopped := next
	stopped.Scheduler.Enabled = false
	a.applyConfig(a.sup.Context(), &next, &stopped)
	assert.False(t, a.sched.Enabled())
	assert.False(t, a.engine.Enabled())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopSignal))

	assert.Equal(t, []string{"READY=1", "RELOADING=1", "READY=1", "RELOADING=1", "READY=1", "STOPPING=1"}, n.all())
	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jobs:\n  - name: x\n    schedule: every 3 months\n    command: \"true\"\n"), 0o644))
	_, err := New(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jobs[0].schedule")
}

func TestAppStatusEndpointFollowsReload(t *testing.T) {
	a, _ := newTestApp(t)
	require.NoError(t, a.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopSignal)
	}()
	assert.Empty(t, a.StatusAddr())

	oldCfg := a.cfgm.Get()
	next := *oldCfg
	next.Status = &config.StatusConfig{Enabled: true, Addr: "127.0.0.1:0", Token: "s3cret"}
	a.applyConfig(a.sup.Context(), oldCfg, &next)

	addr := a.StatusAddr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/status?token=s3cret")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc StatusDoc
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, []string{"backup"}, doc.Jobs)
	assert.True(t, doc.Scheduler.Enabled)
	require.Len(t, doc.Scheduler.Schedules, 1)
	assert.Equal(t, "backup", doc.Scheduler.Schedules[0].Name)

	off := next
	off.Status = nil
	a.applyConfig(a.sup.Context(), &next, &off)
	assert.Empty(t, a.StatusAddr())
}

func TestAppPostsAlertsForFailedRuns(t *testing.T) {
	var mu sync.Mutex
	var jobs []string
	hook := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		var body struct {
			Job string `json:"job"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		jobs = append(jobs, body.Job)
		mu.Unlock()
	}))
	defer hook.Close()

	a, _ := newTestApp(t)
	require.NoError(t, a.Start(context.Background()))

	oldCfg := a.cfgm.Get()
	next := *oldCfg
	next.Alerts = &config.AlertsConfig{Enabled: true, Webhook: hook.URL, RatePerSec: 50}
	a.applyConfig(a.sup.Context(), oldCfg, &next)

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskSucceeded, Data: engine.TaskEvent{Name: "backup"}})
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskFailed, Data: engine.TaskEvent{Name: "backup", Error: "exit status 1"}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopSignal))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"backup"}, jobs)
}

func TestMapAlertsConfig(t *testing.T) {
	nc, sender, err := mapAlertsConfig(&config.Config{})
	require.NoError(t, err)
	assert.False(t, nc.Enabled)
	assert.Nil(t, sender)

	nc, sender, err = mapAlertsConfig(&config.Config{Alerts: &config.AlertsConfig{
		Enabled: true, Webhook: " https://hooks.example.com/x ", DedupWindow: "10m",
	}})
	require.NoError(t, err)
	assert.True(t, nc.Enabled)
	assert.Equal(t, 10*time.Minute, nc.DedupWindow)
	assert.Equal(t, 10*time.Second, nc.SendTimeout)
	require.NotNil(t, sender)
}
