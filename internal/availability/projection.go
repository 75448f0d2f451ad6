package availability

import (
	"fmt"
	"strings"
	"time"

	"calendly/internal/interval"
)

const dateLayout = "2006-01-02"

// DateRange is an inclusive range of calendar dates in the visitor's timezone.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses two YYYY-MM-DD dates.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(dateLayout, strings.TrimSpace(start))
	if err != nil {
		return DateRange{}, reasonErr(ReasonInvalidRange, ErrInvalidRange, "start must be in YYYY-MM-DD format")
	}
	e, err := time.Parse(dateLayout, strings.TrimSpace(end))
	if err != nil {
		return DateRange{}, reasonErr(ReasonInvalidRange, ErrInvalidRange, "end must be in YYYY-MM-DD format")
	}
	return DateRange{Start: s, End: e}, nil
}

// Days returns the number of calendar days covered, both ends included.
func (r DateRange) Days() int {
	return int(dateOf(r.End).Sub(dateOf(r.Start))/(24*time.Hour)) + 1
}

// Validate rejects empty, inverted and oversized ranges.
func (r DateRange) Validate(maxDays int) error {
	if r.Start.IsZero() || r.End.IsZero() {
		return reasonErr(ReasonInvalidRange, ErrInvalidRange, "start and end are required")
	}
	if dateOf(r.End).Before(dateOf(r.Start)) {
		return reasonErr(ReasonInvalidRange, ErrInvalidRange, "start date must be before or equal to end date")
	}
	if maxDays > 0 && r.Days() > maxDays {
		return reasonErr(ReasonInvalidRange, ErrInvalidRange, "date range cannot exceed %d days", maxDays)
	}
	return nil
}

// Window returns the absolute instants covered by the range in loc:
// local midnight of Start up to local midnight after End.
func (r DateRange) Window(loc *time.Location) interval.Range[time.Time] {
	start := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, loc)
	end := time.Date(r.End.Year(), r.End.Month(), r.End.Day()+1, 0, 0, 0, 0, loc)
	return interval.New(start, end)
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start.Format(dateLayout), r.End.Format(dateLayout))
}

// Slot is one bookable start, in UTC and as the visitor reads it.
type Slot struct {
	Start time.Time `json:"start"`
	Local time.Time `json:"local"`
}

// Project labels UTC starts with the visitor's clock and keeps only those that fall
// on a requested local date. The instants themselves are never altered.
func Project(starts []time.Time, loc *time.Location, dates DateRange) []Slot {
	window := dates.Window(loc)
	slots := make([]Slot, 0, len(starts))
	for _, t := range starts {
		if !window.ContainsPoint(t) {
			continue
		}
		slots = append(slots, Slot{Start: t.UTC(), Local: t.In(loc)})
	}
	return slots
}

// LoadVisitorLocation resolves an IANA timezone name supplied by a visitor.
func LoadVisitorLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, reasonErr(ReasonInvalidTimezone, ErrInvalidTimezone, "timezone is required")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, reasonErr(ReasonInvalidTimezone, ErrInvalidTimezone, "%q", name)
	}
	return loc, nil
}
