// Package slots turns an account's local posting times into UTC instants and
// decides which of them are due.
package slots

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var timeOfDayRe = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// CivilDate is a calendar date without a time or zone.
type CivilDate struct {
	Year  int
	Month time.Month
	Day   int
}

func (d CivilDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// CivilDateIn returns the calendar date of instant as seen from loc.
func CivilDateIn(instant time.Time, loc *time.Location) CivilDate {
	y, m, d := instant.In(loc).Date()
	return CivilDate{Year: y, Month: m, Day: d}
}

// ParseTimeOfDay parses "HH:MM". ok is false for anything else.
func ParseTimeOfDay(s string) (hour, minute int, ok bool) {
	m := timeOfDayRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, true
}

// ResolveLocalTime returns the UTC instant of timeOfDay on date in loc, using
// the offset in force on that date. A malformed timeOfDay yields ok=false.
//
// A time inside a DST gap or overlap resolves with one of the two offsets
// around the transition, as time.Date does.
func ResolveLocalTime(date CivilDate, timeOfDay string, loc *time.Location) (time.Time, bool) {
	hour, minute, ok := ParseTimeOfDay(timeOfDay)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(date.Year, date.Month, date.Day, hour, minute, 0, 0, loc).UTC(), true
}

// LoadZone resolves an IANA zone name. An empty name means UTC.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }
