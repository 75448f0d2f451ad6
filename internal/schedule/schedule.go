// Package schedule models an owner's recurring weekly availability.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"calendly/internal/interval"
)

var (
	ErrInvalidWindow   = errors.New("window start must be before end")
	ErrInvalidTimezone = errors.New("unknown timezone")
	ErrInvalidWeekday  = errors.New("unknown day of week")
	ErrMissingOwner    = errors.New("owner id is required")
)

// DaysOfWeekInOrder lists weekdays the way schedules are edited: Monday first.
var DaysOfWeekInOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// Window is a single availability window authored in the schedule's timezone.
type Window struct {
	Day   time.Weekday `json:"day_of_week"`
	Start Clock        `json:"start_time"`
	End   Clock        `json:"end_time"`
}

// ParseWindow builds a window from a weekday name and two HH:MM strings.
func ParseWindow(day, start, end string) (Window, error) {
	wd, err := ParseWeekday(day)
	if err != nil {
		return Window{}, err
	}
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("start_time: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("end_time: %w", err)
	}
	w := Window{Day: wd, Start: s, End: e}
	return w, w.Validate()
}

// Validate checks the window does not wrap past midnight.
func (w Window) Validate() error {
	if w.Day < time.Sunday || w.Day > time.Saturday {
		return ErrInvalidWeekday
	}
	if w.Start < 0 || w.End > EndOfDay || !w.Start.Before(w.End) {
		return fmt.Errorf("%w: %s %s-%s", ErrInvalidWindow, WeekdayName(w.Day), w.Start, w.End)
	}
	return nil
}

// Range returns the window as a wall-clock range.
func (w Window) Range() interval.Range[Clock] {
	return interval.New(w.Start, w.End)
}

// Schedule is the single weekly schedule of an owner.
type Schedule struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Timezone       string    `json:"timezone"`
	Availabilities []Window  `json:"availabilities"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks owner, timezone and every window.
func (s *Schedule) Validate() error {
	if strings.TrimSpace(s.OwnerID) == "" {
		return ErrMissingOwner
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	for _, w := range s.Availabilities {
		if err := w.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Location loads the schedule timezone.
func (s *Schedule) Location() (*time.Location, error) {
	if strings.TrimSpace(s.Timezone) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTimezone)
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, s.Timezone)
	}
	return loc, nil
}

// Weekly groups the schedule windows by weekday, merged.
func (s *Schedule) Weekly() Weekly {
	var raw [7][]interval.Range[Clock]
	for _, w := range s.Availabilities {
		if w.Validate() != nil {
			continue
		}
		raw[w.Day] = append(raw[w.Day], w.Range())
	}

	var wk Weekly
	for day := range raw {
		wk[day] = interval.MergeAll(raw[day])
	}
	return wk
}

// WindowsFor returns the merged, ordered windows of a weekday.
func (s *Schedule) WindowsFor(day time.Weekday) []interval.Range[Clock] {
	wk := s.Weekly()
	return wk.WindowsFor(day)
}

// Weekly is the fixed day -> windows table, indexed by time.Weekday.
type Weekly [7][]interval.Range[Clock]

// WindowsFor returns the windows for a weekday.
func (w Weekly) WindowsFor(day time.Weekday) []interval.Range[Clock] {
	if day < time.Sunday || day > time.Saturday {
		return nil
	}
	return w[day]
}

// WeekdayName returns the lower-case English weekday name used in storage.
func WeekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// ParseWeekday parses a weekday name, case-insensitive; three-letter forms are accepted.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := WeekdayName(d)
		if s == name || (len(s) == 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, s)
}
