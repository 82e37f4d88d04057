package phrase

import (
	"sync"
	"time"
)

// Resolver resolves phrases against a Registry. It holds no mutable state and
// is safe for concurrent use.
type Resolver struct {
	reg *Registry
}

func NewResolver(reg *Registry) *Resolver {
	if reg == nil {
		reg = NewDefaultRegistry()
	}
	return &Resolver{reg: reg}
}

// Next returns the next instant described by phrase, relative to now.
//
// Entries are tried in registration order. Once an entry matches, its result
// (or error) is final; later entries are never consulted.
func (r *Resolver) Next(phrase string, now time.Time) (time.Time, error) {
	norm := Normalize(phrase)
	e, ok := r.reg.lookup(norm)
	if !ok {
		return time.Time{}, &NoMatchError{Phrase: phrase}
	}
	fields, err := e.Pattern.Extract(norm)
	if err != nil {
		return time.Time{}, err
	}
	return e.Resolve(now, fields...)
}

// Match returns the template that would handle phrase.
func (r *Resolver) Match(phrase string) (string, bool) {
	e, ok := r.reg.lookup(Normalize(phrase))
	if !ok {
		return "", false
	}
	return e.Pattern.Template, true
}

// Upcoming returns the next n instants of phrase after from, each computed
// from the previous one.
func (r *Resolver) Upcoming(phrase string, from time.Time, n int) ([]time.Time, error) {
	out := make([]time.Time, 0, max(n, 0))
	t := from
	for i := 0; i < n; i++ {
		next, err := r.Next(phrase, t)
		if err != nil {
			return out, err
		}
		if !next.After(t) {
			// A non-advancing schedule would repeat forever.
			break
		}
		out = append(out, next)
		t = next
	}
	return out, nil
}

var (
	defaultOnce     sync.Once
	defaultResolver *Resolver
)

// Default returns the process-wide resolver over the built-in registry.
func Default() *Resolver {
	defaultOnce.Do(func() {
		defaultResolver = NewResolver(NewDefaultRegistry())
	})
	return defaultResolver
}

// Next resolves phrase with the built-in registry.
func Next(phrase string, now time.Time) (time.Time, error) {
	return Default().Next(phrase, now)
}

// NextFromNow resolves phrase relative to the current wall-clock time.
func NextFromNow(phrase string) (time.Time, error) {
	return Default().Next(phrase, time.Now())
}
