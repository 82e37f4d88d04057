package phrase

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule adapts a phrase to cron.Schedule.
type Schedule struct {
	Phrase string
	res    *Resolver
}

func NewSchedule(res *Resolver, phrase string) *Schedule {
	if res == nil {
		res = Default()
	}
	return &Schedule{Phrase: phrase, res: res}
}

// Next returns the next activation strictly after t, or the zero time when the
// phrase cannot be resolved (cron treats zero as "never").
func (s *Schedule) Next(t time.Time) time.Time {
	next, err := s.res.Next(s.Phrase, t)
	if err != nil || !next.After(t) {
		return time.Time{}
	}
	return next
}

// Parser is a cron.ScheduleParser for phrases. Specs that match no phrase
// template are handed to the fallback parser when one is set.
type Parser struct {
	res      *Resolver
	fallback cron.ScheduleParser
	now      func() time.Time
}

var _ cron.ScheduleParser = Parser{}

type ParserOption func(*Parser)

// WithFallback parses non-phrase specs with p (typically a cron.Parser).
func WithFallback(p cron.ScheduleParser) ParserOption {
	return func(pp *Parser) { pp.fallback = p }
}

// WithResolver uses r instead of the default resolver.
func WithResolver(r *Resolver) ParserOption {
	return func(pp *Parser) {
		if r != nil {
			pp.res = r
		}
	}
}

func WithNow(now func() time.Time) ParserOption {
	return func(pp *Parser) {
		if now != nil {
			pp.now = now
		}
	}
}

func NewParser(opts ...ParserOption) Parser {
	p := Parser{res: Default(), now: time.Now}
	for _, o := range opts {
		o(&p)
	}
	return p
}

// Parse validates spec by resolving it once. Every resolver error depends
// only on the phrase text, so a phrase that resolves now resolves later too.
func (p Parser) Parse(spec string) (cron.Schedule, error) {
	if _, err := p.res.Next(spec, p.now()); err != nil {
		if p.fallback != nil && errors.Is(err, ErrNoMatch) {
			return p.fallback.Parse(spec)
		}
		return nil, err
	}
	return NewSchedule(p.res, Normalize(spec)), nil
}
