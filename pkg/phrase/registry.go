package phrase

import (
	"strings"
	"time"
)

// ResolverFunc computes the next instant for a phrase given the reference
// instant and the captured field values in extraction order.
type ResolverFunc func(now time.Time, fields ...string) (time.Time, error)

// Entry pairs a compiled pattern with the resolver it dispatches to.
type Entry struct {
	Pattern *Pattern
	Resolve ResolverFunc
}

// Registry is an ordered list of entries. Registration order is observable:
// the first entry whose pattern matches a phrase handles it.
//
// A Registry is built once and then only read; Register must not be called
// concurrently with resolution.
type Registry struct {
	compiler *Compiler
	entries  []Entry
}

func NewRegistry(vocab Vocabulary) *Registry {
	return &Registry{compiler: NewCompiler(vocab)}
}

// Register compiles template and appends it with fn.
func (r *Registry) Register(template string, fn ResolverFunc) error {
	p, err := r.compiler.Compile(template)
	if err != nil {
		return err
	}
	r.entries = append(r.entries, Entry{Pattern: p, Resolve: fn})
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(template string, fn ResolverFunc) {
	if err := r.Register(template, fn); err != nil {
		panic(err)
	}
}

// Entries returns a copy of the registered entries in order.
func (r *Registry) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Templates returns the registered templates in order.
func (r *Registry) Templates() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Pattern.Template)
	}
	return out
}

func (r *Registry) lookup(phrase string) (Entry, bool) {
	for _, e := range r.entries {
		if e.Pattern.Matches(phrase) {
			return e, true
		}
	}
	return Entry{}, false
}

// Builtin template strings, in default registration order.
const (
	TemplateEveryIntUnit       = "every {int} {unit}"
	TemplateEveryIntUnitAtTime = "every {int} {unit} at {time}"
	TemplateEverydayAtTime     = "everyday at {time}"
	TemplateEveryWeekdayAtTime = "every {weekday} at {time}"
	TemplateOnWeekdayAtTime    = "on {weekday} at {time}"
	TemplateEveryWeekday       = "every {weekday}"
	TemplateMonthDayAtTime     = "every month on day {int} at {time}"
	TemplateEveryIntDayOfMonth = "every {int} day of the month"
	TemplateLastDayOfMonthAt   = "on the last day of the month at {time}"
	TemplateEverySeason        = "every {season}"
)

// NewDefaultRegistry returns a registry with the built-in phrases.
func NewDefaultRegistry() *Registry {
	r := NewRegistry(DefaultVocabulary())
	r.MustRegister(TemplateEveryIntUnit, everyIntUnit)
	r.MustRegister(TemplateEveryIntUnitAtTime, everyIntUnitAtTime)
	r.MustRegister(TemplateEverydayAtTime, everydayAtTime)
	r.MustRegister(TemplateEveryWeekdayAtTime, everyWeekdayAtTime)
	r.MustRegister(TemplateOnWeekdayAtTime, everyWeekdayAtTime)
	r.MustRegister(TemplateEveryWeekday, everyWeekday)
	r.MustRegister(TemplateMonthDayAtTime, everyMonthOnDayAtTime)
	r.MustRegister(TemplateEveryIntDayOfMonth, everyIntDayOfMonth)
	r.MustRegister(TemplateLastDayOfMonthAt, lastDayOfMonthAtTime)
	r.MustRegister(TemplateEverySeason, everySeason)
	return r
}

// Normalize trims the phrase and collapses inner whitespace runs to a single space.
func Normalize(phrase string) string {
	return strings.Join(strings.Fields(phrase), " ")
}
