package invoker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phrasecron/pkg/phrase"
)

// fakeClock advances instantly whenever the loop sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu    sync.Mutex
	at    []time.Time
	clock []time.Time
}

func (r *recorder) fn(c Clock, err error) Func {
	return func(_ context.Context, at time.Time) error {
		r.mu.Lock()
		r.at = append(r.at, at)
		r.clock = append(r.clock, c.Now())
		r.mu.Unlock()
		return err
	}
}

func TestRunCallsAtEachInstant(t *testing.T) {
	t.Parallel()
	clk := newFakeClock(t0)
	var rec recorder
	iv, err := New("every 10 seconds", rec.fn(clk, nil), WithClock(clk), WithMaxRuns(3))
	require.NoError(t, err)

	require.NoError(t, iv.Run(context.Background()))
	require.Len(t, rec.at, 3)
	for i, at := range rec.at {
		want := t0.Add(time.Duration(i+1) * 10 * time.Second)
		assert.True(t, at.Equal(want), "call %d at %s, want %s", i, at, want)
		assert.True(t, rec.clock[i].Equal(want), "clock %d", i)
	}
}

func TestRunReturnsResolutionErrors(t *testing.T) {
	t.Parallel()
	tests := map[string]error{
		"every 3 months":   phrase.ErrUnsupportedUnit,
		"whenever we like": phrase.ErrNoMatch,
		"every 0 seconds":  phrase.ErrMalformedField,
	}
	for phr, want := range tests {
		clk := newFakeClock(t0)
		var rec recorder
		iv, err := New(phr, rec.fn(clk, nil), WithClock(clk))
		require.NoError(t, err)

		err = iv.Run(context.Background())
		assert.ErrorIs(t, err, want, phr)
		assert.Empty(t, rec.at, phr)
	}
}

func TestCallbackErrorsContinueUnlessStopOnError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")

	clk := newFakeClock(t0)
	var rec recorder
	iv, err := New("every 1 minute", rec.fn(clk, boom), WithClock(clk), WithMaxRuns(2))
	require.NoError(t, err)
	require.NoError(t, iv.Run(context.Background()))
	assert.Len(t, rec.at, 2)

	clk = newFakeClock(t0)
	var stop recorder
	iv, err = New("every 1 minute", stop.fn(clk, boom), WithClock(clk), WithStopOnError(true))
	require.NoError(t, err)
	assert.ErrorIs(t, iv.Run(context.Background()), boom)
	assert.Len(t, stop.at, 1)
}

func TestPanicsBecomeErrors(t *testing.T) {
	t.Parallel()
	clk := newFakeClock(t0)
	calls := 0
	iv, err := New("every 1 hour", func(context.Context, time.Time) error {
		calls++
		panic("bad callback")
	}, WithClock(clk), WithStopOnError(true))
	require.NoError(t, err)

	err = iv.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad callback")
	assert.Equal(t, 1, calls)
}

func TestCancellationEndsLoop(t *testing.T) {
	t.Parallel()
	clk := newFakeClock(t0)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	iv, err := New("every 5 seconds", func(context.Context, time.Time) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return nil
	}, WithClock(clk))
	require.NoError(t, err)

	assert.ErrorIs(t, iv.Run(ctx), context.Canceled)
	assert.Equal(t, 2, calls)
}

func TestMinSpacingPacesRapidSchedules(t *testing.T) {
	t.Parallel()
	reg := phrase.NewRegistry(phrase.DefaultVocabulary())
	reg.MustRegister("rapid", func(now time.Time, _ ...string) (time.Time, error) {
		return now.Add(100 * time.Millisecond), nil
	})
	clk := newFakeClock(t0)
	var rec recorder
	iv, err := New("rapid", rec.fn(clk, nil),
		WithClock(clk),
		WithResolver(phrase.NewResolver(reg)),
		WithMinSpacing(time.Second),
		WithMaxRuns(4),
	)
	require.NoError(t, err)
	require.NoError(t, iv.Run(context.Background()))

	require.Len(t, rec.clock, 4)
	for i := 1; i < len(rec.clock); i++ {
		// float rounding inside the limiter may shave a nanosecond
		assert.GreaterOrEqual(t, rec.clock[i].Sub(rec.clock[i-1]), time.Second-time.Millisecond, "gap %d", i)
	}
}

func TestInvokeBlockingReturnsFinishedHandle(t *testing.T) {
	t.Parallel()
	clk := newFakeClock(t0)
	var rec recorder
	iv, err := New("every 2 days", rec.fn(clk, nil), WithClock(clk), WithMaxRuns(1))
	require.NoError(t, err)
	assert.Equal(t, Blocking, iv.Strategy())

	h, err := iv.Invoke(context.Background())
	require.NoError(t, err)
	select {
	case <-h.Done():
	default:
		t.Fatal("blocking handle should be finished")
	}
	assert.NoError(t, h.Err())
	assert.Len(t, rec.at, 1)
}

func TestAsyncStartAndStop(t *testing.T) {
	t.Parallel()
	called := make(chan time.Time, 8)
	iv, err := New("every 1 second", func(_ context.Context, at time.Time) error {
		select {
		case called <- at:
		default:
		}
		return nil
	}, WithStrategy(Async), WithMinSpacing(0))
	require.NoError(t, err)

	h, err := iv.Invoke(context.Background())
	require.NoError(t, err)

	select {
	case at := <-called:
		assert.False(t, at.IsZero())
	case <-time.After(3 * time.Second):
		t.Fatal("async invoker never fired")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, h.Stop(ctx))
	assert.NoError(t, h.Err())
}

func TestAsyncSurfacesResolutionError(t *testing.T) {
	t.Parallel()
	iv, err := New("every 1 fortnight", func(context.Context, time.Time) error { return nil }, WithStrategy(Async))
	require.NoError(t, err)

	h := iv.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.ErrorIs(t, h.Wait(ctx), phrase.ErrNoMatch)
}

func TestNewRequiresCallback(t *testing.T) {
	t.Parallel()
	_, err := New("every 1 day", nil)
	assert.Error(t, err)
}
