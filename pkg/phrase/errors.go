package phrase

import (
	"errors"
	"fmt"
)

var (
	ErrNoMatch            = errors.New("phrase: no scheduler matched")
	ErrMalformedField     = errors.New("phrase: malformed field")
	ErrUnsupportedUnit    = errors.New("phrase: unsupported unit")
	ErrUnknownPlaceholder = errors.New("phrase: unknown placeholder")
)

// NoMatchError is returned when no registered template matches a phrase.
type NoMatchError struct {
	Phrase string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("phrase %q did not match any schedulers", e.Phrase)
}

func (e *NoMatchError) Is(target error) bool { return target == ErrNoMatch }

// MalformedFieldError is returned when a captured placeholder value fails its
// stricter parse (out of range day, overflowing count, bad time segments).
type MalformedFieldError struct {
	Field  string
	Raw    string
	Reason string
}

func (e *MalformedFieldError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("malformed %s field %q", e.Field, e.Raw)
	}
	return fmt.Sprintf("malformed %s field %q: %s", e.Field, e.Raw, e.Reason)
}

func (e *MalformedFieldError) Is(target error) bool { return target == ErrMalformedField }

// UnsupportedUnitError is returned when a unit cannot be used by the matched
// rule, e.g. months with a fixed-length offset.
type UnsupportedUnitError struct {
	Unit string
}

func (e *UnsupportedUnitError) Error() string {
	return fmt.Sprintf("unit %q cannot be used with this scheduler", e.Unit)
}

func (e *UnsupportedUnitError) Is(target error) bool { return target == ErrUnsupportedUnit }

// UnknownPlaceholderError is returned by the compiler for a template key that
// is not part of the vocabulary.
type UnknownPlaceholderError struct {
	Template string
	Key      string
}

func (e *UnknownPlaceholderError) Error() string {
	return fmt.Sprintf("template %q: unknown placeholder {%s}", e.Template, e.Key)
}

func (e *UnknownPlaceholderError) Is(target error) bool { return target == ErrUnknownPlaceholder }

func malformed(field, raw, reason string) error {
	return &MalformedFieldError{Field: field, Raw: raw, Reason: reason}
}
