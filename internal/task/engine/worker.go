package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"time"

	"phrasecron/internal/eventbus"
	logx "phrasecron/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan queuedTask) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		// A closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case qt := <-queue:
			s.inFlight.Add(1)
			s.execOne(ctx, stopCh, qt, rng)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, qt queuedTask, rng *rand.Rand) {
	defer qt.releaseState()

	t := qt.task
	start := time.Now()
	queueDelay := max(start.Sub(qt.enqueuedAt), 0)

	s.mu.Lock()
	maxDelay := s.cfg.MaxQueueDelay
	s.mu.Unlock()
	if maxDelay > 0 && queueDelay > maxDelay {
		s.onStaleDropped(start, qt, queueDelay)
		return
	}

	log := s.log.With(logx.String("task", t.Name), logx.String("id", t.ID))
	log.Debug("task started", logx.Duration("queue_delay", queueDelay))
	s.publish(eventbus.TypeTaskStarted, start, TaskEvent{ID: t.ID, Name: t.Name, Trigger: t.Trigger, Scheduled: t.Scheduled, Started: start, QueueDelay: queueDelay})

	attempts, err := s.attempt(ctx, stopCh, qt, rng, log)

	dur := time.Since(start)
	ev := TaskEvent{ID: t.ID, Name: t.Name, Trigger: t.Trigger, Scheduled: t.Scheduled, Started: start, QueueDelay: queueDelay, Duration: dur, Attempts: attempts}
	item := HistoryItem{ID: t.ID, Name: t.Name, Scheduled: t.Scheduled, Started: start, QueueDelay: queueDelay, Duration: dur, Attempts: attempts}
	if err != nil {
		ev.Error = err.Error()
		item.Error = ev.Error
		log.Warn("task failed", logx.Err(err), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		s.publish(eventbus.TypeTaskFailed, time.Now(), ev)
	} else {
		if dur >= 750*time.Millisecond {
			log.Info("task completed", logx.Duration("dur", dur), logx.Int("attempts", attempts))
		} else {
			log.Debug("task completed", logx.Duration("dur", dur), logx.Int("attempts", attempts))
		}
		s.publish(eventbus.TypeTaskSucceeded, time.Now(), ev)
	}
	s.record(item)
}

// attempt runs the task up to 1+RetryMax times with backoff between tries.
func (s *Service) attempt(ctx context.Context, stopCh <-chan struct{}, qt queuedTask, rng *rand.Rand, log logx.Logger) (attempts int, err error) {
	maxAttempts := 1 + qt.opt.RetryMax
	for attempts = 1; ; attempts++ {
		err = runGuarded(ctx, qt, log)
		if err == nil {
			return attempts, nil
		}
		var nr noRetryError
		if errors.As(err, &nr) {
			return attempts, nr.err
		}
		if attempts >= maxAttempts {
			return attempts, err
		}

		delay := backoffDelayWithHint(qt.opt, attempts, err, rng)
		log.Debug("task retry scheduled", logx.Int("attempt", attempts+1), logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			return attempts, ctx.Err()
		case <-stopCh:
			tmr.Stop()
			return attempts, ErrStopping
		case <-tmr.C:
		}
	}
}

// runGuarded converts a task panic into an error so one bad task cannot take
// a worker down.
func runGuarded(ctx context.Context, qt queuedTask, log logx.Logger) (err error) {
	if qt.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, qt.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			log.Error("task panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	return qt.task.Run(ctx)
}

func backoffDelayWithHint(opt TaskOptions, retry int, err error, rng *rand.Rand) time.Duration {
	var ra RetryAfterError
	if errors.As(err, &ra) {
		return jitter(min(max(ra.RetryAfter(), 0), opt.RetryMaxDelay), opt, rng)
	}
	return backoffDelay(opt, retry, rng)
}

func backoffDelay(opt TaskOptions, retry int, rng *rand.Rand) time.Duration {
	d := opt.RetryBase
	for i := 1; i < retry && d < opt.RetryMaxDelay; i++ {
		d *= 2
	}
	return jitter(min(d, opt.RetryMaxDelay), opt, rng)
}

func jitter(d time.Duration, opt TaskOptions, rng *rand.Rand) time.Duration {
	if opt.RetryJitter > 0 && d > 0 && rng != nil {
		r := (rng.Float64()*2 - 1) * opt.RetryJitter
		d = time.Duration(float64(d) * (1 + r))
	}
	return min(max(d, 0), opt.RetryMaxDelay)
}
