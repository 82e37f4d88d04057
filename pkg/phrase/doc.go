// Package phrase resolves human-readable recurrence phrases ("every 3 days",
// "on monday at 09:00") into the next instant they describe.
//
// A Registry holds an ordered list of compiled templates, each paired with a
// resolver function. Resolution tries the templates in registration order and
// the first one matching the whole phrase wins:
//
//	next, err := phrase.Next("every monday at 09:00", time.Now())
//
// Templates use placeholders from a fixed Vocabulary:
//   - {int}     digits
//   - {unit}    second(s), minute(s), hour(s), day(s), week(s), month(s), year(s)
//   - {weekday} monday(s) ... sunday(s)
//   - {time}    HH:MM or HH:MM:SS
//   - {season}  spring, summer, autumn, fall, winter
//
// All arithmetic happens in the Location carried by the reference instant.
// Schedule and Parser adapt phrases to robfig/cron.
package phrase
