package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"phrasecron/pkg/phrase"
)

// SpecKind is the normalized kind of a schedule string.
type SpecKind int

const (
	SpecPhrase SpecKind = iota
	SpecCron
	SpecInterval
)

func (k SpecKind) String() string {
	switch k {
	case SpecPhrase:
		return "phrase"
	case SpecCron:
		return "cron"
	case SpecInterval:
		return "interval"
	default:
		return "unknown"
	}
}

func (k SpecKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *SpecKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "phrase":
		*k = SpecPhrase
	case "cron":
		*k = SpecCron
	case "interval":
		*k = SpecInterval
	default:
		return fmt.Errorf("unknown schedule kind %q", b)
	}
	return nil
}

// ParsedSpec is a parsed schedule string.
//
// Supported forms, tried in this order:
//   - Phrase: "every 3 days", "on friday at 18:30", "every month on day 1 at 00:00"
//   - Cron (5 or 6 fields, descriptors): "*/5 * * * *", "@hourly", "@every 55m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//   - Interval duration: "55m", "2h30m"
//
// Prefixes force a kind: "phrase:", "cron:", and "interval:" or "every:".
type ParsedSpec struct {
	Kind   SpecKind
	Phrase string
	Cron   string
	Every  time.Duration
	Source string // "phrase" | "cron" | "duration" | "hhmm"
}

// String renders the spec in a form ParseSchedule accepts back.
func (p ParsedSpec) String() string {
	switch p.Kind {
	case SpecPhrase:
		return p.Phrase
	case SpecCron:
		return p.Cron
	default:
		return "@every " + p.Every.String()
	}
}

// cronParser accepts both 5-field and 6-field (with seconds) cron specs.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule parses a schedule string with the default phrase resolver.
func ParseSchedule(raw string) (ParsedSpec, error) {
	return parseSchedule(phrase.Default(), raw, time.Now())
}

func parseSchedule(res *phrase.Resolver, raw string, now time.Time) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	if rest, ok := cutPrefixFold(s, "phrase:"); ok {
		return parsePhrase(res, rest, now)
	}
	if rest, ok := cutPrefixFold(s, "cron:"); ok {
		return parseCron(rest)
	}
	for _, prefix := range []string{"interval:", "every:"} {
		if rest, ok := cutPrefixFold(s, prefix); ok {
			return parseInterval(rest)
		}
	}

	if _, ok := res.Match(s); ok {
		return parsePhrase(res, s, now)
	}
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	if spec, err := parseInterval(s); err == nil {
		return spec, nil
	}
	return ParsedSpec{}, fmt.Errorf(
		"invalid schedule %q (use a phrase like 'every monday at 09:00', cron like '*/5 * * * *', HH:MM like '02:30', or duration like '55m')",
		raw,
	)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

func parsePhrase(res *phrase.Resolver, v string, now time.Time) (ParsedSpec, error) {
	if v == "" {
		return ParsedSpec{}, fmt.Errorf("phrase required after 'phrase:'")
	}
	if _, err := res.Next(v, now); err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid phrase schedule: %w", err)
	}
	return ParsedSpec{Kind: SpecPhrase, Phrase: phrase.Normalize(v), Source: "phrase"}, nil
}

func parseCron(expr string) (ParsedSpec, error) {
	if expr == "" {
		return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return ParsedSpec{Kind: SpecCron, Cron: expr, Source: "cron"}, nil
}

func parseInterval(v string) (ParsedSpec, error) {
	if v == "" {
		return ParsedSpec{}, fmt.Errorf("interval required")
	}
	src := "duration"
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return ParsedSpec{}, fmt.Errorf("invalid minutes in %q", v)
		}
		src = "hhmm"
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return ParsedSpec{}, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", v)
		}
	}
	if d <= 0 {
		return ParsedSpec{}, fmt.Errorf("interval must be > 0")
	}
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: src}, nil
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	hs, ms, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
