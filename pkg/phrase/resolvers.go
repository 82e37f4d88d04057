package phrase

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// unitSeconds holds fixed-length units. Months are deliberately absent.
var unitSeconds = map[string]int64{
	"second": 1,
	"minute": 60,
	"hour":   3600,
	"day":    86400,
	"week":   86400 * 7,
	"year":   86400 * 365,
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Meteorological season starts.
var seasonStart = map[string]time.Month{
	"spring": time.March,
	"summer": time.June,
	"autumn": time.September,
	"fall":   time.September,
	"winter": time.December,
}

// maxDaySearch bounds day-by-day stepping; four years covers every leap cycle.
const maxDaySearch = 4 * 366

// every {int} {unit}
func everyIntUnit(now time.Time, fields ...string) (time.Time, error) {
	if len(fields) != 2 {
		return time.Time{}, malformed("fields", strings.Join(fields, " "), "want count and unit")
	}
	unit, err := parseUnit(fields[1])
	if err != nil {
		return time.Time{}, err
	}
	d, err := offset(fields[0], unit)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(d), nil
}

// every {int} {unit} at {time}
func everyIntUnitAtTime(now time.Time, fields ...string) (time.Time, error) {
	if len(fields) != 3 {
		return time.Time{}, malformed("fields", strings.Join(fields, " "), "want count, unit and time")
	}
	unit, err := parseUnit(fields[1])
	if err != nil {
		return time.Time{}, err
	}
	switch unit {
	case "day", "week", "year":
	default:
		return time.Time{}, &UnsupportedUnitError{Unit: unit}
	}
	d, err := offset(fields[0], unit)
	if err != nil {
		return time.Time{}, err
	}
	h, m, s, err := parseClock(fields[2])
	if err != nil {
		return time.Time{}, err
	}
	return atClock(now.Add(d), h, m, s), nil
}

// everyday at {time}
func everydayAtTime(now time.Time, fields ...string) (time.Time, error) {
	if len(fields) != 1 {
		return time.Time{}, malformed("fields", strings.Join(fields, " "), "want time")
	}
	h, m, s, err := parseClock(fields[0])
	if err != nil {
		return time.Time{}, err
	}
	t := atClock(now, h, m, s)
	if t.After(now) {
		return t, nil
	}
	return addDays(t, 1), nil
}

// every {weekday} at {time}, on {weekday} at {time}
func everyWeekdayAtTime(now time.Time, fields ...string) (time.Time, error) {
	if len(fields) != 2 {
		return time.Time{}, malformed("fields", strings.Join(fields, " "), "want weekday and time")
	}
	wd, err := parseWeekday(fields[0])
	if err != nil {
		return time.Time{}, err
	}
	h, m, s, err := parseClock(fields[1])
	if err != nil {
		return time.Time{}, err
	}
	return weekdayAt(now, wd, h, m, s), nil
}

// every {weekday}
func everyWeekday(now time.Time, fields ...string) (time.Time, error) {
	if len(fields) != 1 {
		return time.Time{}, malformed("fields", strings.Join(fields, " "), "want weekday")
	}
	wd, err := parseWeekday(fields[0])
	if err != nil {
		return time.Time{}, err
	}
	return weekdayAt(now, wd, 0, 0, 0), nil
}

// every month on day {int} at {time}
func everyMonthOnDayAtTime(now time.Time, fields ...string) (time.Time, error) {
	if len(fields) != 2 {
		return time.Time{}, malformed("fields", strings.Join(fields, " "), "want day and time")
	}
	day, err := parseMonthDay(fields[0])
	if err != nil {
		return time.Time{}, err
	}
	h, m, s, err := parseClock(fields[1])
	if err != nil {
		return time.Time{}, err
	}
	return monthDayAt(now, day, h, m, s)
}

// every {int} day of the month
func everyIntDayOfMonth(now time.Time, fields ...string) (time.Time, error) {
	if len(fields) != 1 {
		return time.Time{}, malformed("fields", strings.Join(fields, " "), "want day")
	}
	day, err := parseMonthDay(fields[0])
	if err != nil {
		return time.Time{}, err
	}
	return monthDayAt(now, day, 0, 0, 0)
}

// on the last day of the month at {time}
func lastDayOfMonthAtTime(now time.Time, fields ...string) (time.Time, error) {
	if len(fields) != 1 {
		return time.Time{}, malformed("fields", strings.Join(fields, " "), "want time")
	}
	h, m, s, err := parseClock(fields[0])
	if err != nil {
		return time.Time{}, err
	}
	return lastDayAt(now, h, m, s)
}

// every {season}
func everySeason(now time.Time, fields ...string) (time.Time, error) {
	if len(fields) != 1 {
		return time.Time{}, malformed("fields", strings.Join(fields, " "), "want season")
	}
	month, ok := seasonStart[strings.ToLower(fields[0])]
	if !ok {
		return time.Time{}, malformed(KeySeason, fields[0], "unknown season")
	}
	t := time.Date(now.Year(), month, 1, 0, 0, 0, 0, now.Location())
	if !t.After(now) {
		t = t.AddDate(1, 0, 0)
	}
	return t, nil
}

func weekdayAt(now time.Time, wd time.Weekday, h, m, s int) time.Time {
	ahead := (int(wd) - int(now.Weekday()) + 7) % 7
	t := atClock(addDays(now, ahead), h, m, s)
	if !t.After(now) {
		t = addDays(t, 7)
	}
	return t
}

// monthDayAt steps one calendar day at a time, so months without the
// requested day are skipped without any month arithmetic.
func monthDayAt(now time.Time, day, h, m, s int) (time.Time, error) {
	t := atClock(now, h, m, s)
	for i := 0; i <= maxDaySearch; i++ {
		if t.Day() == day && t.After(now) {
			return t, nil
		}
		t = addDays(t, 1)
	}
	return time.Time{}, malformed(KeyInt, strconv.Itoa(day), "no such day of month")
}

func lastDayAt(now time.Time, h, m, s int) (time.Time, error) {
	last := daysIn(now.Year(), now.Month())
	if now.Day() != last {
		return monthDayAt(now, last, h, m, s)
	}
	t := atClock(now, h, m, s)
	if t.After(now) {
		return t, nil
	}
	// time.Date normalizes December+1 into January of the next year.
	first := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
	return lastDayAt(first, h, m, s)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// atClock sets the wall-clock time of day and drops sub-second precision.
func atClock(t time.Time, h, m, s int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), h, m, s, 0, t.Location())
}

func addDays(t time.Time, n int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+n, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func parseUnit(raw string) (string, error) {
	unit := strings.TrimSuffix(strings.ToLower(raw), "s")
	if unit == "month" {
		return "", &UnsupportedUnitError{Unit: unit}
	}
	if _, ok := unitSeconds[unit]; !ok {
		return "", malformed(KeyUnit, raw, "unknown unit")
	}
	return unit, nil
}

func offset(rawCount, unit string) (time.Duration, error) {
	n, err := strconv.ParseInt(rawCount, 10, 64)
	if err != nil {
		return 0, malformed(KeyInt, rawCount, "not a number")
	}
	if n <= 0 {
		return 0, malformed(KeyInt, rawCount, "must be positive")
	}
	per := unitSeconds[unit]
	if n > math.MaxInt64/int64(time.Second)/per {
		return 0, malformed(KeyInt, rawCount, "offset too large")
	}
	return time.Duration(n*per) * time.Second, nil
}

func parseMonthDay(raw string) (int, error) {
	day, err := strconv.Atoi(raw)
	if err != nil {
		return 0, malformed(KeyInt, raw, "not a number")
	}
	if day < 1 || day > 31 {
		return 0, malformed(KeyInt, raw, "day of month must be 1-31")
	}
	return day, nil
}

func parseWeekday(raw string) (time.Weekday, error) {
	wd, ok := weekdays[strings.TrimSuffix(strings.ToLower(raw), "s")]
	if !ok {
		return 0, malformed(KeyWeekday, raw, "unknown weekday")
	}
	return wd, nil
}

// parseClock accepts HH:MM or HH:MM:SS.
func parseClock(raw string) (h, m, s int, err error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, 0, malformed(KeyTime, raw, "expected HH:MM or HH:MM:SS")
	}
	limits := []int{23, 59, 59}
	vals := make([]int, 3)
	for i, p := range parts {
		v, convErr := strconv.Atoi(p)
		if convErr != nil || v < 0 || v > limits[i] {
			return 0, 0, 0, malformed(KeyTime, raw, "out of range")
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], nil
}
