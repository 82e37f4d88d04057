// Package invoker runs a callback at every instant a recurrence phrase
// describes: resolve the next instant, sleep until it, call, repeat.
//
// The loop runs in the caller's goroutine (Blocking) or under a supervisor
// goroutine (Async). Both strategies share the same loop.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"phrasecron/internal/runtime/supervisor"
	logx "phrasecron/pkg/logx"
	"phrasecron/pkg/phrase"
)

// Func is called at each resolved instant.
type Func func(ctx context.Context, at time.Time) error

type Strategy int

const (
	Blocking Strategy = iota
	Async
)

func (s Strategy) String() string {
	if s == Async {
		return "async"
	}
	return "blocking"
}

// DefaultMinSpacing is the minimum gap enforced between two invocations.
const DefaultMinSpacing = time.Second

type Invoker struct {
	phrase      string
	fn          Func
	strategy    Strategy
	res         *phrase.Resolver
	clock       Clock
	spacing     time.Duration
	limiter     *rate.Limiter
	stopOnError bool
	maxRuns     int
	log         logx.Logger
}

type Option func(*Invoker)

func WithStrategy(s Strategy) Option { return func(iv *Invoker) { iv.strategy = s } }

func WithResolver(r *phrase.Resolver) Option {
	return func(iv *Invoker) {
		if r != nil {
			iv.res = r
		}
	}
}

func WithClock(c Clock) Option {
	return func(iv *Invoker) {
		if c != nil {
			iv.clock = c
		}
	}
}

// WithMinSpacing sets the minimum gap between invocations. 0 disables it.
func WithMinSpacing(d time.Duration) Option {
	return func(iv *Invoker) { iv.spacing = max(d, 0) }
}

// WithStopOnError ends the loop on the first callback error instead of
// logging it and continuing.
func WithStopOnError(enabled bool) Option { return func(iv *Invoker) { iv.stopOnError = enabled } }

// WithMaxRuns ends the loop cleanly after n invocations. n <= 0 means no limit.
func WithMaxRuns(n int) Option { return func(iv *Invoker) { iv.maxRuns = n } }

func WithLogger(log logx.Logger) Option { return func(iv *Invoker) { iv.log = log } }

// New builds an invoker for phrase. Phrase errors surface when the loop
// runs, not here.
func New(phr string, fn Func, opts ...Option) (*Invoker, error) {
	if fn == nil {
		return nil, errors.New("invoker: callback required")
	}
	iv := &Invoker{
		phrase:  phr,
		fn:      fn,
		res:     phrase.Default(),
		clock:   realClock{},
		spacing: DefaultMinSpacing,
		log:     logx.Nop(),
	}
	for _, o := range opts {
		o(iv)
	}
	limit := rate.Inf
	if iv.spacing > 0 {
		limit = rate.Every(iv.spacing)
	}
	iv.limiter = rate.NewLimiter(limit, 1)
	iv.log = iv.log.With(logx.String("comp", "invoker"), logx.String("phrase", phr))
	return iv, nil
}

func (iv *Invoker) Strategy() Strategy { return iv.strategy }

// Invoke runs the loop with the strategy chosen at construction. Blocking
// returns after the loop ends with a finished handle and the loop error.
// Async returns a live handle immediately.
func (iv *Invoker) Invoke(ctx context.Context) (*Handle, error) {
	if iv.strategy == Async {
		return iv.Start(ctx), nil
	}
	h := newHandle(nil)
	err := iv.Run(ctx)
	h.finish(err)
	return h, err
}

// Run executes the loop in the calling goroutine until ctx is canceled, a
// resolution error occurs, or a stop condition is met. Cancellation returns
// ctx.Err().
func (iv *Invoker) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ref := iv.clock.Now()
	for runs := 0; iv.maxRuns <= 0 || runs < iv.maxRuns; runs++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		at, err := iv.res.Next(iv.phrase, ref)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", iv.phrase, err)
		}
		iv.log.Debug("next invocation", logx.Time("at", at))
		if err := iv.sleepUntil(ctx, at); err != nil {
			return err
		}
		if err := iv.pace(ctx); err != nil {
			return err
		}

		if err := iv.call(ctx, at); err != nil {
			if iv.stopOnError {
				return err
			}
			iv.log.Warn("invocation failed", logx.Time("at", at), logx.Err(err))
		}

		// Resolve the next instant from whichever is later: the instant just
		// served or the current time. Missed instants are skipped, not replayed.
		ref = at
		if now := iv.clock.Now(); now.After(ref) {
			ref = now
		}
	}
	return nil
}

func (iv *Invoker) sleepUntil(ctx context.Context, at time.Time) error {
	d := at.Sub(iv.clock.Now())
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-iv.clock.After(d):
		return nil
	}
}

// pace enforces the minimum spacing using the invoker clock.
func (iv *Invoker) pace(ctx context.Context) error {
	now := iv.clock.Now()
	r := iv.limiter.ReserveN(now, 1)
	if !r.OK() {
		return errors.New("invoker: rate limiter rejected reservation")
	}
	d := r.DelayFrom(now)
	if d <= 0 {
		return nil
	}
	iv.log.Debug("invocation delayed by min spacing", logx.Duration("delay", d))
	select {
	case <-ctx.Done():
		r.CancelAt(now)
		return ctx.Err()
	case <-iv.clock.After(d):
		return nil
	}
}

func (iv *Invoker) call(ctx context.Context, at time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			iv.log.Error("invocation panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	return iv.fn(ctx, at)
}

// Start hosts the loop in a supervised goroutine.
func (iv *Invoker) Start(ctx context.Context) *Handle {
	if ctx == nil {
		ctx = context.Background()
	}
	sup := supervisor.New(ctx, supervisor.WithLogger(iv.log))
	h := newHandle(sup)
	sup.Go("invoker", func(c context.Context) error {
		err := iv.Run(c)
		h.finish(err)
		return err
	})
	return h
}

// Handle controls an invoker loop.
type Handle struct {
	sup  *supervisor.Supervisor
	done chan struct{}

	mu  sync.Mutex
	err error
}

func newHandle(sup *supervisor.Supervisor) *Handle {
	return &Handle{sup: sup, done: make(chan struct{})}
}

func (h *Handle) finish(err error) {
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Done is closed when the loop has ended.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the error that ended the loop. Cancellation is not an error.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait blocks until the loop ends or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the loop and waits for it, bounded by ctx.
func (h *Handle) Stop(ctx context.Context) error {
	if h.sup != nil {
		if err := h.sup.Stop(ctx); err != nil && errors.Is(err, ctx.Err()) {
			return err
		}
	}
	return h.Wait(ctx)
}
