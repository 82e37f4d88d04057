package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"phrasecron/internal/eventbus"
	rtsup "phrasecron/internal/runtime/supervisor"
	"phrasecron/internal/task/engine"
	logx "phrasecron/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type job struct {
	a Alert
	// dedupKey is computed at enqueue time so workers stay cheap.
	dedupKey string
}

// Service implements an async alert pipeline:
// queue + worker pool + rate limit + retry + dedup.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender Sender
	bus    eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	intake   chan struct{} // closed when Stop begins
	drained  chan struct{} // closed when the event loop returns
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	// key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus) *Service {
	s := &Service{
		sender: sender,
		log:    log.With(logx.String("comp", "notifier")),
		bus:    bus,
		dedup:  map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps the config and sender. Running workers pick them up on their
// next send; Enabled changes need Start or Stop.
func (s *Service) Apply(cfg Config, sender Sender) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.sender = sender
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	if len(cfg.On) == 0 {
		cfg.On = []string{KindFailed}
	}

	s.cfg = cfg
	// Burst equals the per-second rate so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Reconfigure applies cfg and starts or stops the pipeline to match
// cfg.Enabled. A pipeline started here is not bound to ctx; only Stop ends
// it.
func (s *Service) Reconfigure(ctx context.Context, cfg Config, sender Sender) {
	s.Apply(cfg, sender)
	if cfg.Enabled {
		s.Start(context.WithoutCancel(ctx))
	} else {
		s.Stop(ctx)
	}
}

// Start is idempotent. It subscribes to the bus and starts the workers.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	// If stopping, wait for it to finish before restarting.
	if done := s.stopDone; done != nil {
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.intake = make(chan struct{})
	s.drained = make(chan struct{})
	s.accepting = true
	workers := s.cfg.Workers

	// Alerts are best-effort and must not take down the app.
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	sup := s.sup
	q := s.queue
	intake, drained := s.intake, s.drained
	on := s.cfg.On
	s.mu.Unlock()

	if s.bus != nil {
		events, unsub := s.bus.Subscribe(128)
		sup.Go0("events", func(c context.Context) {
			defer close(drained)
			defer unsub()
			s.eventLoop(c, intake, events)
		})
	} else {
		close(drained)
	}

	for i := range workers {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			// Clean exits happen on shutdown (queue close).
			s.mu.Lock()
			stopping := s.stopDone != nil
			s.mu.Unlock()
			if stopping {
				return context.Canceled
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("notifier worker exited unexpectedly")
		})
	}
	s.log.Info("notifier started", logx.Int("workers", workers), logx.Strings("on", on))
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	sup := s.sup
	intake, drained := s.intake, s.drained
	if q == nil {
		s.mu.Unlock()
		return
	}
	if done := s.stopDone; done != nil {
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	close(intake)
	s.mu.Unlock()

	// Shutdown runs asynchronously so callers can time out without leaking state.
	go func() {
		defer close(done)
		// Let the event loop queue what the bus already delivered, wait for
		// in-flight enqueues, then close the queue so workers drain.
		select {
		case <-drained:
		case <-sup.Context().Done():
		}
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue, s.intake, s.drained, s.stopDone, s.sup = nil, nil, nil, nil, nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Force-stop internal loops.
		sup.Cancel()
	}
}

func (s *Service) eventLoop(ctx context.Context, intake <-chan struct{}, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-intake:
			for {
				select {
				case ev := <-events:
					s.handleEvent(ctx, ev)
				default:
					return
				}
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handleEvent(ctx, ev)
		}
	}
}

// handleEvent bypasses the intake check: Stop keeps the queue open until the
// event loop has returned.
func (s *Service) handleEvent(ctx context.Context, ev eventbus.Event) {
	a, ok := AlertFromEvent(ev)
	if !ok {
		return
	}
	if err := s.notify(ctx, a, true); err != nil {
		s.log.Warn("alert not queued", logx.String("job", a.Job), logx.Err(err))
	}
}

// AlertFromEvent maps failed, dropped and skipped task events to an alert.
func AlertFromEvent(ev eventbus.Event) (Alert, bool) {
	te, ok := ev.Data.(engine.TaskEvent)
	if !ok {
		return Alert{}, false
	}
	var kind string
	switch ev.Type {
	case eventbus.TypeTaskFailed:
		kind = KindFailed
	case eventbus.TypeTaskDropped:
		kind = KindDropped
	case eventbus.TypeJobSkipped:
		kind = KindSkipped
	default:
		return Alert{}, false
	}
	return Alert{
		Job:      te.Name,
		Kind:     kind,
		RunID:    te.ID,
		Trigger:  te.Trigger,
		Attempts: te.Attempts,
		Error:    te.Error,
		At:       ev.Time,
	}, true
}

// Notify queues a. Alerts of a kind outside Config.On and repeats inside
// the dedup window are accepted and discarded.
func (s *Service) Notify(ctx context.Context, a Alert) error {
	return s.notify(ctx, a, false)
}

func (s *Service) notify(ctx context.Context, a Alert, draining bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if s.queue == nil || (!s.accepting && !draining) {
		s.mu.Unlock()
		return ErrStopped
	}
	if !slices.Contains(s.cfg.On, a.Kind) {
		s.mu.Unlock()
		return nil
	}
	q := s.queue
	window, maxEntries := s.cfg.DedupWindow, s.cfg.DedupMaxEntries
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	key := dedupKey(a)
	if window > 0 && !s.dedupAllow(key, window, maxEntries) {
		s.log.Debug("alert deduped", logx.String("job", a.Job), logx.String("kind", a.Kind))
		return nil
	}

	select {
	case q <- job{a: a, dedupKey: key}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(a Alert, err error) {
	it := HistoryItem{At: time.Now(), Alert: a}
	if err != nil {
		it.Error = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > 100 {
		s.history = s.history[len(s.history)-100:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sender := s.sender
	s.mu.Unlock()

	if sender == nil {
		return
	}
	log := s.log.With(logx.String("job", j.a.Job), logx.String("kind", j.a.Kind))

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := sender.Send(callCtx, j.a)
		cancel()
		if err == nil {
			s.appendHistory(j.a, nil)
			log.Debug("alert sent", logx.Int("attempt", attempt))
			return
		}
		lastErr = err
		log.Debug("alert send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))
		if attempt >= maxAttempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}

	s.appendHistory(j.a, lastErr)
	log.Warn("alert delivery failed", logx.Int("attempts", maxAttempts), logx.Err(lastErr))
}

func dedupKey(a Alert) string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%s|%s", a.Job, a.Kind, a.Error)
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(key string, window time.Duration, maxEntries int) bool {
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	// Evict earliest expiry until within cap.
	for len(s.dedup) > maxEntries {
		var (
			minKey string
			minT   time.Time
		)
		for k, t := range s.dedup {
			if minKey == "" || t.Before(minT) {
				minKey, minT = k, t
			}
		}
		delete(s.dedup, minKey)
	}
	return true
}

// retryDelay is the wait before attempt+1: base*2^(attempt-1), capped, with
// 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}
