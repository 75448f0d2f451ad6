package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidClock is returned when a wall-clock string is not HH:MM.
var ErrInvalidClock = errors.New("invalid time of day; expected HH:MM")

// EndOfDay is the 24:00 marker accepted as a window end.
const EndOfDay Clock = 24 * 60

// Clock is a wall-clock time of day, in minutes since midnight.
type Clock int

// ParseClock parses "HH:MM" (24-hour). "24:00" is accepted as EndOfDay.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}

	hour, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}

	if hour == 24 && minute == 0 {
		return EndOfDay, nil
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Clock(hour*60 + minute), nil
}

// MustClock is ParseClock for literals; it panics on bad input.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) Before(o Clock) bool { return c < o }
func (c Clock) Equal(o Clock) bool  { return c == o }

// String formats the clock as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// Anchor resolves the wall-clock time c on the calendar date of day (year, month, day
// are read, location ignored) to an absolute instant in loc.
//
// A time skipped by a DST jump resolves to the instant the clocks jump to.
// A time repeated when clocks fall back resolves to its first occurrence when
// earliest is set, otherwise to the second.
func Anchor(day time.Time, c Clock, loc *time.Location, earliest bool) time.Time {
	want := time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), 0, 0, time.UTC)
	t := time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), 0, 0, loc)

	if !sameWall(t, want) {
		// Skipped: t sits in a neighbouring zone period, the gap edge is the jump.
		start, end := t.ZoneBounds()
		if wallOf(t).Before(want) {
			if !end.IsZero() {
				return end
			}
			return t
		}
		if !start.IsZero() {
			return start
		}
		return t
	}

	alt, ok := repeated(t, want)
	if !ok {
		return t
	}
	if earliest == alt.Before(t) {
		return alt
	}
	return t
}

// repeated looks for a second instant with the same wall clock as t across the
// nearest zone transitions.
func repeated(t, want time.Time) (time.Time, bool) {
	_, off := t.Zone()
	start, end := t.ZoneBounds()

	var probes []time.Time
	if !start.IsZero() {
		probes = append(probes, start.Add(-time.Second))
	}
	if !end.IsZero() {
		probes = append(probes, end)
	}

	for _, p := range probes {
		_, other := p.In(t.Location()).Zone()
		if other == off {
			continue
		}
		cand := t.Add(time.Duration(off-other) * time.Second)
		if sameWall(cand, want) {
			return cand, true
		}
	}
	return time.Time{}, false
}

func wallOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func sameWall(t, want time.Time) bool {
	return wallOf(t).Equal(want)
}

// MarshalText encodes the clock as HH:MM.
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses HH:MM.
func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
