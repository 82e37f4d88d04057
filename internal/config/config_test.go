package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging: { level: debug, console: true }
scheduler: { enabled: true }
task_engine: { workers: 3, default_timeout: 30s }
storage: { driver: sqlite, path: ./runs.db, busy_timeout: 5s }
alerts: { enabled: true, webhook: "https://hooks.example.com/cron", on: [failed, dropped], dedup_window: 10m }
jobs:
  - name: backup
    schedule: "everyday at 02:00"
    command: ["/usr/local/bin/backup", "--quick"]
    timeout: 10m
  - name: rotate
    schedule: "on the last day of the month at 23:00"
    command: "logrotate /etc/logrotate.conf"
    overlap: allow
    enabled: false
  - name: nginx-reload
    schedule: "every sunday at 04:30"
    unit: { name: nginx, action: reload }
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("phrasecron.yaml", []byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Scheduler.Enabled)
	require.NotNil(t, cfg.TaskEngine)
	assert.Equal(t, 3, cfg.TaskEngine.Workers)
	require.NotNil(t, cfg.Storage)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	require.NotNil(t, cfg.Alerts)
	assert.Equal(t, []string{"failed", "dropped"}, cfg.Alerts.On)

	require.Len(t, cfg.Jobs, 3)
	assert.Equal(t, []string{"/usr/local/bin/backup", "--quick"}, cfg.Jobs[0].Command.Args)
	assert.True(t, cfg.Jobs[0].IsEnabled())
	assert.Equal(t, "logrotate /etc/logrotate.conf", cfg.Jobs[1].Command.Shell)
	assert.False(t, cfg.Jobs[1].IsEnabled())
	require.NotNil(t, cfg.Jobs[2].Unit)
	assert.Equal(t, "reload", cfg.Jobs[2].Unit.Action)
	assert.True(t, cfg.Jobs[2].Command.IsZero())
	assert.NoError(t, Validate(cfg))
}

func TestDecodeJSONStrict(t *testing.T) {
	t.Parallel()
	_, err := Decode("c.json", []byte(`{"scheduler":{"enabled":true},"jobs":[]}`))
	require.NoError(t, err)

	_, err = Decode("c.json", []byte(`{"scheduler":{"enabled":true,"timezone":"UTC"}}`))
	assert.ErrorContains(t, err, "unknown field")

	_, err = Decode("c.json", []byte(`{"jobs":[]} {"jobs":[]}`))
	assert.ErrorContains(t, err, "trailing data")

	_, err = Decode("c.yml", []byte("jobs:\n  - name: x\n    bogus: 1\n"))
	assert.ErrorContains(t, err, "unknown field")

	_, err = Decode("c.json", []byte(`{"jobs":[{"name":"x","command":42}]}`))
	assert.ErrorContains(t, err, "command must be")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		TaskEngine: &TaskEngineConfig{Workers: -1, DefaultTimeout: "soon"},
		Storage:    &StorageConfig{Driver: "postgres"},
		Status:     &StatusConfig{Enabled: true, Addr: "6061"},
		Alerts:     &AlertsConfig{Enabled: true, Webhook: "ftp://x", On: []string{"failed", "slow"}, Timeout: "later"},
		Jobs: []JobConfig{
			{Name: "a", Schedule: "every 3 months", Command: Command{Shell: "true"}},
			{Name: "a", Schedule: "every day at 25:00", Command: Command{Shell: "true"}},
			{Name: "", Schedule: "*/5 * * * *"},
			{Name: "b", Schedule: "15m", Command: Command{Args: []string{"true"}}, Overlap: "queue", Timeout: "-1s"},
			{Name: "c", Schedule: "15m", Command: Command{Shell: "true"}, Unit: &UnitAction{Name: "nginx", Action: "restart"}},
			{Name: "d", Schedule: "15m", Unit: &UnitAction{Action: "kill"}},
		},
	}
	err := Validate(cfg)
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"task_engine.workers",
		"task_engine.default_timeout",
		"storage.driver",
		"status.addr",
		"alerts.webhook",
		"alerts.on: unknown kind \"slow\"",
		"alerts.timeout",
		"jobs[0].schedule",
		"jobs[1].name",
		"jobs[1].schedule",
		"jobs[2].name: required",
		"jobs[2].command: required",
		"jobs[3].overlap",
		"jobs[3].timeout",
		"jobs[4].unit: cannot be combined",
		"jobs[5].unit.name: required",
		"jobs[5].unit.action",
	} {
		assert.Contains(t, msg, want)
	}
	assert.NotContains(t, msg, "jobs[2].schedule")
}

func TestCommandRoundTrip(t *testing.T) {
	t.Parallel()
	b, err := Command{Args: []string{"echo", "hi"}}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `["echo","hi"]`, string(b))

	b, err = Command{Shell: "echo hi | wc"}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"echo hi | wc"`, string(b))
	assert.Equal(t, "echo hi | wc", Command{Shell: "echo hi | wc"}.String())
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg, err := Decode("a.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	newCfg, err := Decode("a.yaml", []byte(sampleYAML))
	require.NoError(t, err)

	sections, _, jobs := SummarizeConfigChange(oldCfg, newCfg)
	assert.Empty(t, sections)
	assert.Empty(t, jobs)

	newCfg.Logging.Level = "info"
	newCfg.Jobs[0].Schedule = "everyday at 03:00"
	newCfg.Jobs = append(newCfg.Jobs[:1], JobConfig{Name: "report", Schedule: "every friday", Command: Command{Shell: "report"}})
	newCfg.Storage.Path = " ./runs.db "

	sections, attrs, jobs := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"jobs", "logging"}, sections)
	assert.Equal(t, []string{"backup", "nginx-reload", "report", "rotate"}, jobs)
	assert.NotEmpty(t, attrs)

	newCfg.Status = &StatusConfig{Enabled: true, Addr: "127.0.0.1:0"}
	sections, _, _ = SummarizeConfigChange(oldCfg, newCfg)
	assert.Contains(t, sections, "status")
}

func TestDurationFields(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("x", " 90s ")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = ParseDurationOrDefault("x", "", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	_, err = ParseDurationField("jobs[0].timeout", "1 hour")
	assert.ErrorContains(t, err, "jobs[0].timeout")
}

func TestManagerLoadRunsValidator(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "phrasecron.yaml", sampleYAML)

	m := NewConfigManager(path)
	m.SetValidator(func(_ context.Context, cfg *Config) error { return Validate(cfg) })
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, m.Get())

	writeFile(t, dir, "phrasecron.yaml", strings.Replace(sampleYAML, "everyday at 02:00", "every blue moon", 1))
	_, err = m.Load()
	assert.ErrorContains(t, err, "jobs[0].schedule")
	assert.Same(t, cfg, m.Get(), "rejected config must not be committed")
}

func TestManagerWatchPublishesChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "phrasecron.yaml", sampleYAML)

	m := NewConfigManager(path)
	m.SetValidator(func(_ context.Context, cfg *Config) error { return Validate(cfg) })
	_, err := m.Load()
	require.NoError(t, err)

	updates := m.Subscribe(4)
	defer m.Unsubscribe(updates)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, dir, "phrasecron.yaml", strings.Replace(sampleYAML, "level: debug", "level: warn", 1))

	select {
	case cfg := <-updates:
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Same(t, cfg, m.Get())
	case <-time.After(5 * time.Second):
		t.Fatal("no config update published")
	}
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	assert.Same(t, b, <-ch)

	m.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
}
