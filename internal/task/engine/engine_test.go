package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phrasecron/internal/eventbus"
	logx "phrasecron/pkg/logx"
)

func newTestEngine(t *testing.T, cfg Config) (*Service, eventbus.Bus) {
	t.Helper()
	cfg.Enabled = true
	bus := eventbus.New()
	s := New(cfg, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s, bus
}

func fastRetry(n int) TaskOptions {
	return TaskOptions{Overlap: OverlapAllow, RetryMax: n, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond}
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event, typ string) TaskEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e.Data.(TaskEvent)
			}
		case <-deadline:
			t.Fatalf("no %s event", typ)
		}
	}
}

func TestEngineRunsTaskAndRecordsHistory(t *testing.T) {
	t.Parallel()
	s, bus := newTestEngine(t, Config{Workers: 1})
	events, unsub := bus.Subscribe(16)
	defer unsub()

	scheduled := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Enqueue(Task{Name: "backup", Trigger: "phrase", Scheduled: scheduled, Run: func(context.Context) error { return nil }}))

	started := waitEvent(t, events, eventbus.TypeTaskStarted)
	done := waitEvent(t, events, eventbus.TypeTaskSucceeded)
	assert.Equal(t, "backup", done.Name)
	assert.Equal(t, "phrase", done.Trigger)
	assert.Equal(t, started.ID, done.ID)
	assert.NotEmpty(t, done.ID)
	assert.Equal(t, 1, done.Attempts)
	assert.True(t, done.Scheduled.Equal(scheduled))

	require.Eventually(t, func() bool { return len(s.Snapshot().History) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, s.Snapshot().History[0].Error)
}

func TestEngineRetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	s, bus := newTestEngine(t, Config{Workers: 1})
	events, unsub := bus.Subscribe(16)
	defer unsub()

	var calls atomic.Int32
	require.NoError(t, s.Enqueue(Task{Name: "flaky", Opt: fastRetry(3), Run: func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}}))

	ev := waitEvent(t, events, eventbus.TypeTaskSucceeded)
	assert.Equal(t, 3, ev.Attempts)
}

func TestEngineNoRetryStopsImmediately(t *testing.T) {
	t.Parallel()
	s, bus := newTestEngine(t, Config{Workers: 1})
	events, unsub := bus.Subscribe(16)
	defer unsub()

	permanent := errors.New("exec: not found")
	require.NoError(t, s.Enqueue(Task{Name: "broken", Opt: fastRetry(5), Run: func(context.Context) error {
		return NoRetry(permanent)
	}}))

	ev := waitEvent(t, events, eventbus.TypeTaskFailed)
	assert.Equal(t, 1, ev.Attempts)
	assert.Equal(t, permanent.Error(), ev.Error)
}

func TestEngineRecoversPanics(t *testing.T) {
	t.Parallel()
	s, bus := newTestEngine(t, Config{Workers: 1})
	events, unsub := bus.Subscribe(16)
	defer unsub()

	require.NoError(t, s.Enqueue(Task{Name: "panicky", Opt: fastRetry(0), Run: func(context.Context) error { panic("boom") }}))
	ev := waitEvent(t, events, eventbus.TypeTaskFailed)
	assert.Contains(t, ev.Error, "panic: boom")

	require.NoError(t, s.Enqueue(Task{Name: "after", Run: func(context.Context) error { return nil }}))
	waitEvent(t, events, eventbus.TypeTaskSucceeded)
}

func TestEngineOverlapSkip(t *testing.T) {
	t.Parallel()
	s, _ := newTestEngine(t, Config{Workers: 2})

	release := make(chan struct{})
	running := make(chan struct{})
	require.NoError(t, s.Enqueue(Task{Name: "slow", Run: func(context.Context) error {
		close(running)
		<-release
		return nil
	}}))
	<-running

	err := s.Enqueue(Task{Name: "slow", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrOverlapSkip)
	assert.True(t, s.StateFor("slow").Running())
	assert.EqualValues(t, 1, s.Snapshot().Skipped)

	close(release)
	require.Eventually(t, func() bool { return !s.StateFor("slow").Running() }, time.Second, 5*time.Millisecond)
	assert.NoError(t, s.Enqueue(Task{Name: "slow", Run: func(context.Context) error { return nil }}))
}

func TestEngineQueueFull(t *testing.T) {
	t.Parallel()
	s, _ := newTestEngine(t, Config{Workers: 1, QueueSize: 1})

	release := make(chan struct{})
	defer close(release)
	running := make(chan struct{})
	block := func(context.Context) error {
		<-release
		return nil
	}
	require.NoError(t, s.Enqueue(Task{Name: "a", Opt: TaskOptions{Overlap: OverlapAllow}, Run: func(ctx context.Context) error {
		close(running)
		return block(ctx)
	}}))
	<-running
	require.NoError(t, s.Enqueue(Task{Name: "b", Opt: TaskOptions{Overlap: OverlapAllow}, Run: block}))

	err := s.Enqueue(Task{Name: "c", Opt: TaskOptions{Overlap: OverlapAllow}, Run: block})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.EqualValues(t, 1, s.Snapshot().DroppedQueueFull)
}

func TestEngineRejectsWhenDisabledOrStopped(t *testing.T) {
	t.Parallel()
	run := func(context.Context) error { return nil }

	disabled := New(Config{}, logx.Nop(), nil)
	assert.ErrorIs(t, disabled.Enqueue(Task{Name: "x", Run: run}), ErrDisabled)

	stopped := New(Config{Enabled: true}, logx.Nop(), nil)
	assert.ErrorIs(t, stopped.Enqueue(Task{Name: "x", Run: run}), ErrStopped)

	assert.Error(t, stopped.Enqueue(Task{Name: " ", Run: run}))
	assert.Error(t, stopped.Enqueue(Task{Name: "x"}))
}

func TestEngineTimeoutCancelsTask(t *testing.T) {
	t.Parallel()
	s, bus := newTestEngine(t, Config{Workers: 1})
	events, unsub := bus.Subscribe(16)
	defer unsub()

	require.NoError(t, s.Enqueue(Task{Name: "hang", Timeout: 20 * time.Millisecond, Opt: fastRetry(0), Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}))
	ev := waitEvent(t, events, eventbus.TypeTaskFailed)
	assert.Contains(t, ev.Error, context.DeadlineExceeded.Error())
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()
	opt := TaskOptions{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	assert.Equal(t, 100*time.Millisecond, backoffDelay(opt, 1, nil))
	assert.Equal(t, 400*time.Millisecond, backoffDelay(opt, 3, nil))
	assert.Equal(t, time.Second, backoffDelay(opt, 10, nil))

	hint := RetryAfter(errors.New("busy"), 5*time.Second)
	assert.Equal(t, time.Second, backoffDelayWithHint(opt, 1, hint, nil))

	opt.RetryJitter = 0.2
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		d := backoffDelay(opt, 2, rng)
		assert.GreaterOrEqual(t, d, 160*time.Millisecond)
		assert.LessOrEqual(t, d, 240*time.Millisecond)
	}
}

func TestParseOverlap(t *testing.T) {
	t.Parallel()
	p, ok := ParseOverlap("")
	assert.True(t, ok)
	assert.Equal(t, OverlapSkipIfRunning, p)
	p, ok = ParseOverlap("allow")
	assert.True(t, ok)
	assert.Equal(t, "allow", p.String())
	_, ok = ParseOverlap("queue")
	assert.False(t, ok)
}
