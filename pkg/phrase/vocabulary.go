package phrase

import (
	"regexp"
	"sort"
)

// Placeholder keys understood by DefaultVocabulary.
const (
	KeyInt     = "int"
	KeyUnit    = "unit"
	KeyWeekday = "weekday"
	KeyTime    = "time"
	KeySeason  = "season"
)

// Vocabulary maps placeholder keys to regular-expression fragments.
//
// A Vocabulary is immutable once built; Compiler reads it, nothing writes it.
type Vocabulary struct {
	rules map[string]string
	keys  []string
}

// NewVocabulary builds a vocabulary from key -> fragment pairs. Every fragment
// must compile as a regular expression on its own.
func NewVocabulary(rules map[string]string) (Vocabulary, error) {
	v := Vocabulary{rules: make(map[string]string, len(rules))}
	for k, frag := range rules {
		if _, err := regexp.Compile(frag); err != nil {
			return Vocabulary{}, malformed("vocabulary", k, err.Error())
		}
		v.rules[k] = frag
		v.keys = append(v.keys, k)
	}
	sort.Strings(v.keys)
	return v, nil
}

// DefaultVocabulary returns the built-in placeholder table.
func DefaultVocabulary() Vocabulary {
	v, err := NewVocabulary(map[string]string{
		KeyInt:     `\d+`,
		KeyUnit:    `(?:seconds?|minutes?|hours?|days?|weeks?|months?|years?)`,
		KeyWeekday: `(?:(?:sun|mon|tues|wednes|thurs|fri|satur)days?)`,
		KeyTime:    `(?:[0-1]?[0-9]|2[0-3]):[0-5][0-9](?::[0-5][0-9])?`,
		KeySeason:  `(?:spring|summer|autumn|fall|winter)`,
	})
	if err != nil {
		panic(err)
	}
	return v
}

// Lookup returns the fragment for key.
func (v Vocabulary) Lookup(key string) (string, bool) {
	frag, ok := v.rules[key]
	return frag, ok
}

// Keys returns the known placeholder keys in sorted order.
func (v Vocabulary) Keys() []string {
	return append([]string(nil), v.keys...)
}
