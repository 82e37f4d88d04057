package phrase

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserReturnsPhraseSchedule(t *testing.T) {
	t.Parallel()
	sched, err := NewParser().Parse("every  monday at 09:00")
	require.NoError(t, err)

	ps, ok := sched.(*Schedule)
	require.True(t, ok)
	assert.Equal(t, "every monday at 09:00", ps.Phrase)

	got := sched.Next(at(2024, time.January, 1, 10, 0, 0))
	assertTime(t, at(2024, time.January, 8, 9, 0, 0), got)
}

func TestParserFallback(t *testing.T) {
	t.Parallel()
	std := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	_, err := NewParser().Parse("*/5 * * * *")
	assert.ErrorIs(t, err, ErrNoMatch)

	p := NewParser(WithFallback(std))
	sched, err := p.Parse("*/5 * * * *")
	require.NoError(t, err)
	assertTime(t, at(2024, time.January, 1, 10, 5, 0), sched.Next(at(2024, time.January, 1, 10, 1, 0)))

	// Phrase errors other than no-match are not retried as cron.
	_, err = p.Parse("every 1 month")
	assert.ErrorIs(t, err, ErrUnsupportedUnit)
}

func TestScheduleUnresolvableIsNever(t *testing.T) {
	t.Parallel()
	s := NewSchedule(nil, "every 1 month")
	assert.True(t, s.Next(time.Now()).IsZero())
}

func TestCronAcceptsPhraseSpecs(t *testing.T) {
	t.Parallel()
	c := cron.New(cron.WithParser(NewParser()))
	id, err := c.AddFunc("every 5 seconds", func() {})
	require.NoError(t, err)

	entry := c.Entry(id)
	_, ok := entry.Schedule.(*Schedule)
	assert.True(t, ok)

	_, err = c.AddFunc("now and then", func() {})
	assert.ErrorIs(t, err, ErrNoMatch)
}
