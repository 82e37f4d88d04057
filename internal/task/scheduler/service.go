package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"phrasecron/internal/eventbus"
	"phrasecron/internal/task/engine"
	logx "phrasecron/pkg/logx"
	"phrasecron/pkg/phrase"
)

// New creates a scheduler that enqueues into eng. A nil res uses the
// default phrase resolver.
func New(cfg Config, eng *engine.Service, res *phrase.Resolver, log logx.Logger, bus eventbus.Bus) *Service {
	if res == nil {
		res = phrase.Default()
	}
	return &Service{
		cfg:         cfg,
		log:         log.With(logx.String("comp", "scheduler")),
		bus:         bus,
		engine:      eng,
		resolver:    res,
		parser:      phrase.NewParser(phrase.WithResolver(res), phrase.WithFallback(cronParser)),
		lastEnqWarn: map[string]time.Time{},
	}
}

// Enabled reports the current config flag.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	running := s.c != nil
	s.mu.Unlock()

	switch {
	case cfg.Enabled && !running:
		s.Start(ctx)
	case !cfg.Enabled && running:
		s.Stop(ctx)
	}
}

// Start starts cron triggering and registers every known definition.
func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(time.Local))
	for i := range s.defs {
		if err := s.addCronLocked(&s.defs[i]); err != nil {
			s.log.Error("schedule register failed", logx.String("name", s.defs[i].name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("service started", logx.Int("schedules", len(s.defs)))
}

// Stop stops triggering. Definitions are kept so a later Start resumes them.
// Tasks already enqueued are left to the engine.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}
