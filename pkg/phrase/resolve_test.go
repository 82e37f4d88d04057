package phrase

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(year int, month time.Month, day, hour, min, sec int) time.Time {
	return time.Date(year, month, day, hour, min, sec, 0, time.UTC)
}

func assertTime(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.Truef(t, want.Equal(got), "got %s, want %s", got, want)
}

func assertTimes(t *testing.T, want, got []time.Time) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assertTime(t, want[i], got[i])
	}
}

func TestNextBuiltinPhrases(t *testing.T) {
	t.Parallel()
	monday10 := at(2024, time.January, 1, 10, 0, 0)

	tests := []struct {
		name   string
		phrase string
		now    time.Time
		want   time.Time
	}{
		{name: "seconds", phrase: "every 90 seconds", now: monday10, want: at(2024, time.January, 1, 10, 1, 30)},
		{name: "days", phrase: "every 3 days", now: monday10, want: at(2024, time.January, 4, 10, 0, 0)},
		{name: "weeks", phrase: "every 2 weeks", now: monday10, want: at(2024, time.January, 15, 10, 0, 0)},
		{name: "year is 365 days", phrase: "every 1 year", now: monday10, want: at(2024, time.December, 31, 10, 0, 0)},
		{name: "singular unit", phrase: "every 1 hour", now: monday10, want: at(2024, time.January, 1, 11, 0, 0)},
		{name: "days at time", phrase: "every 2 days at 09:30", now: monday10, want: at(2024, time.January, 3, 9, 30, 0)},
		{name: "week at time with seconds", phrase: "every 1 week at 08:00:15", now: monday10, want: at(2024, time.January, 8, 8, 0, 15)},
		{name: "everyday later today", phrase: "everyday at 11:00", now: monday10, want: at(2024, time.January, 1, 11, 0, 0)},
		{name: "everyday passed", phrase: "everyday at 09:00", now: monday10, want: at(2024, time.January, 2, 9, 0, 0)},
		{name: "everyday exactly now", phrase: "everyday at 10:00", now: monday10, want: at(2024, time.January, 2, 10, 0, 0)},
		{name: "weekday rollover", phrase: "every monday at 09:00", now: monday10, want: at(2024, time.January, 8, 9, 0, 0)},
		{name: "weekday same day", phrase: "every monday at 09:00", now: at(2024, time.January, 1, 8, 0, 0), want: at(2024, time.January, 1, 9, 0, 0)},
		{name: "weekday later in week", phrase: "every thursday at 07:45", now: monday10, want: at(2024, time.January, 4, 7, 45, 0)},
		{name: "on weekday", phrase: "on friday at 17:00", now: monday10, want: at(2024, time.January, 5, 17, 0, 0)},
		{name: "plural weekday", phrase: "every sundays", now: monday10, want: at(2024, time.January, 7, 0, 0, 0)},
		{name: "weekday at midnight now", phrase: "Every Monday", now: at(2024, time.January, 1, 0, 0, 0), want: at(2024, time.January, 8, 0, 0, 0)},
		{name: "month day later today", phrase: "every month on day 15 at 12:00", now: at(2024, time.January, 15, 11, 0, 0), want: at(2024, time.January, 15, 12, 0, 0)},
		{name: "month day passed", phrase: "every month on day 15 at 12:00", now: at(2024, time.January, 15, 13, 0, 0), want: at(2024, time.February, 15, 12, 0, 0)},
		{name: "month day 31 skips short months", phrase: "every month on day 31 at 00:00", now: at(2023, time.February, 1, 0, 0, 0), want: at(2023, time.March, 31, 0, 0, 0)},
		{name: "month day 31 skips april", phrase: "every month on day 31 at 06:00", now: at(2023, time.April, 1, 0, 0, 0), want: at(2023, time.May, 31, 6, 0, 0)},
		{name: "day of month", phrase: "every 30 day of the month", now: at(2024, time.February, 1, 0, 0, 0), want: at(2024, time.March, 30, 0, 0, 0)},
		{name: "last day leap", phrase: "on the last day of the month at 23:00", now: at(2024, time.February, 15, 0, 0, 0), want: at(2024, time.February, 29, 23, 0, 0)},
		{name: "last day non-leap", phrase: "on the last day of the month at 23:00", now: at(2023, time.February, 15, 0, 0, 0), want: at(2023, time.February, 28, 23, 0, 0)},
		{name: "last day later today", phrase: "on the last day of the month at 23:00", now: at(2024, time.February, 29, 22, 0, 0), want: at(2024, time.February, 29, 23, 0, 0)},
		{name: "last day passed", phrase: "on the last day of the month at 23:00", now: at(2024, time.February, 29, 23, 30, 0), want: at(2024, time.March, 31, 23, 0, 0)},
		{name: "last day december", phrase: "on the last day of the month at 23:00", now: at(2023, time.December, 31, 23, 30, 0), want: at(2024, time.January, 31, 23, 0, 0)},
		{name: "season this year", phrase: "every winter", now: at(2024, time.March, 10, 0, 0, 0), want: at(2024, time.December, 1, 0, 0, 0)},
		{name: "season next year", phrase: "every spring", now: at(2024, time.March, 10, 0, 0, 0), want: at(2025, time.March, 1, 0, 0, 0)},
		{name: "fall alias", phrase: "every fall", now: at(2024, time.March, 10, 0, 0, 0), want: at(2024, time.September, 1, 0, 0, 0)},
		{name: "extra whitespace and case", phrase: "  EVERY   3   Days ", now: monday10, want: at(2024, time.January, 4, 10, 0, 0)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Next(tt.phrase, tt.now)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "Next(%q, %s) = %s, want %s", tt.phrase, tt.now, got, tt.want)
		})
	}
}

func TestNextErrors(t *testing.T) {
	t.Parallel()
	now := at(2024, time.January, 1, 10, 0, 0)

	tests := []struct {
		name   string
		phrase string
		target error
	}{
		{name: "month unit", phrase: "every 1 month", target: ErrUnsupportedUnit},
		{name: "months unit", phrase: "every 2 months", target: ErrUnsupportedUnit},
		{name: "hours at time", phrase: "every 2 hours at 10:00", target: ErrUnsupportedUnit},
		{name: "month at time", phrase: "every 1 month at 10:00", target: ErrUnsupportedUnit},
		{name: "unknown phrase", phrase: "whenever the mood strikes", target: ErrNoMatch},
		{name: "hour out of range", phrase: "everyday at 24:00", target: ErrNoMatch},
		{name: "empty", phrase: "", target: ErrNoMatch},
		{name: "zero count", phrase: "every 0 days", target: ErrMalformedField},
		{name: "day out of range", phrase: "every month on day 32 at 00:00", target: ErrMalformedField},
		{name: "day zero", phrase: "every 0 day of the month", target: ErrMalformedField},
		{name: "count overflow", phrase: "every 99999999999999999999 seconds", target: ErrMalformedField},
		{name: "offset overflow", phrase: "every 999999999 years", target: ErrMalformedField},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Next(tt.phrase, now)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestUnsupportedUnitNamesMonth(t *testing.T) {
	t.Parallel()
	_, err := Next("every 1 month", time.Now())
	var uerr *UnsupportedUnitError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "month", uerr.Unit)

	_, err = Next("every 3 minutes at 10:00", time.Now())
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "minute", uerr.Unit)
}

func TestNoMatchKeepsPhrase(t *testing.T) {
	t.Parallel()
	_, err := Next("whenever the mood strikes", time.Now())
	var nerr *NoMatchError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "whenever the mood strikes", nerr.Phrase)
}

func TestNextIsStrictlyAfterAndStable(t *testing.T) {
	t.Parallel()
	phrases := []string{
		"every 5 minutes",
		"every 2 days at 03:00",
		"everyday at 09:00",
		"every tuesday at 18:30",
		"on saturday at 00:00",
		"every friday",
		"every month on day 31 at 12:00",
		"every 29 day of the month",
		"on the last day of the month at 00:00",
		"every summer",
	}
	start := at(2023, time.December, 25, 0, 0, 0)
	for step := 0; step < 24*120; step += 7 {
		now := start.Add(time.Duration(step) * time.Hour)
		for _, p := range phrases {
			first, err := Next(p, now)
			require.NoError(t, err, p)
			require.True(t, first.After(now), "Next(%q, %s) = %s is not after now", p, now, first)
			second, err := Next(p, now)
			require.NoError(t, err, p)
			require.True(t, first.Equal(second), "Next(%q, %s) not stable", p, now)
		}
	}
}

func TestTimeOfDayDropsSubSeconds(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, time.January, 1, 10, 0, 0, 123456789, time.UTC)
	got, err := Next("everyday at 11:00", now)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Nanosecond())
	assertTime(t, at(2024, time.January, 1, 11, 0, 0), got)
}

func TestNextKeepsLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+7", 7*60*60)
	now := time.Date(2024, time.January, 1, 10, 0, 0, 0, loc)
	got, err := Next("everyday at 09:00", now)
	require.NoError(t, err)
	assert.Equal(t, loc, got.Location())
	assertTime(t, time.Date(2024, time.January, 2, 9, 0, 0, 0, loc), got)
}

func TestRegistrationOrderWins(t *testing.T) {
	t.Parallel()
	first := at(2030, time.January, 1, 0, 0, 0)
	second := at(2031, time.January, 1, 0, 0, 0)

	reg := NewRegistry(DefaultVocabulary())
	reg.MustRegister("every {weekday}", func(time.Time, ...string) (time.Time, error) { return first, nil })
	reg.MustRegister("every {weekday}", func(time.Time, ...string) (time.Time, error) { return second, nil })

	got, err := NewResolver(reg).Next("every monday", time.Now())
	require.NoError(t, err)
	assertTime(t, first, got)
}

func TestMatchedEntryErrorIsFinal(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	reg := NewRegistry(DefaultVocabulary())
	reg.MustRegister("every {int} {unit}", func(time.Time, ...string) (time.Time, error) { return time.Time{}, boom })
	reg.MustRegister("every {int} {unit}", func(now time.Time, _ ...string) (time.Time, error) { return now.Add(time.Hour), nil })

	_, err := NewResolver(reg).Next("every 3 days", time.Now())
	assert.ErrorIs(t, err, boom)
}

func TestResolverPassesFieldsInOrder(t *testing.T) {
	t.Parallel()
	var got []string
	reg := NewRegistry(DefaultVocabulary())
	reg.MustRegister("every {int} {unit} at {time}", func(now time.Time, fields ...string) (time.Time, error) {
		got = fields
		return now, nil
	})
	_, err := NewResolver(reg).Next("every 10 Days at 10:30", time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "Days", "10:30"}, got)
}

func TestMatchAndUpcoming(t *testing.T) {
	t.Parallel()
	r := Default()

	tmpl, ok := r.Match("every monday at 09:00")
	require.True(t, ok)
	assert.Equal(t, TemplateEveryWeekdayAtTime, tmpl)

	tmpl, ok = r.Match("every 3 days at 10:00")
	require.True(t, ok)
	assert.Equal(t, TemplateEveryIntUnitAtTime, tmpl)

	_, ok = r.Match("sometimes")
	assert.False(t, ok)

	runs, err := r.Upcoming("every monday at 09:00", at(2024, time.January, 1, 10, 0, 0), 3)
	require.NoError(t, err)
	assertTimes(t, []time.Time{
		at(2024, time.January, 8, 9, 0, 0),
		at(2024, time.January, 15, 9, 0, 0),
		at(2024, time.January, 22, 9, 0, 0),
	}, runs)

	runs, err = r.Upcoming("on the last day of the month at 23:00", at(2024, time.January, 31, 23, 30, 0), 2)
	require.NoError(t, err)
	assertTimes(t, []time.Time{
		at(2024, time.February, 29, 23, 0, 0),
		at(2024, time.March, 31, 23, 0, 0),
	}, runs)
}

func TestDefaultRegistryOrder(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{
		TemplateEveryIntUnit,
		TemplateEveryIntUnitAtTime,
		TemplateEverydayAtTime,
		TemplateEveryWeekdayAtTime,
		TemplateOnWeekdayAtTime,
		TemplateEveryWeekday,
		TemplateMonthDayAtTime,
		TemplateEveryIntDayOfMonth,
		TemplateLastDayOfMonthAt,
		TemplateEverySeason,
	}, NewDefaultRegistry().Templates())
}
