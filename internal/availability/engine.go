package availability

import (
	"sort"
	"time"

	"calendly/internal/conflicts"
	"calendly/internal/interval"
	"calendly/internal/schedule"
)

// Input is the read-only snapshot the slot engine works on.
type Input struct {
	Weekly   schedule.Weekly
	Location *time.Location // owner timezone
	// From and To are owner calendar dates, inclusive. Only year, month and day are read.
	From, To  time.Time
	Busy      []conflicts.Busy // sorted and merged
	Duration  time.Duration
	NotBefore time.Time
}

// Compute returns every bookable slot start in UTC, ascending and unique.
// Each owner date is sliced on its own, so a slot never runs past the end of the
// window it was cut from and the stride grid of a date does not depend on the
// other dates in the range.
func Compute(in Input) []time.Time {
	if in.Duration <= 0 || in.Location == nil {
		return nil
	}

	var starts []time.Time
	for day := dateOf(in.From); !day.After(dateOf(in.To)); day = day.AddDate(0, 0, 1) {
		for _, w := range anchorDay(in.Weekly, in.Location, day) {
			for _, free := range interval.Subtract(w, in.Busy) {
				for t := free.Start; !t.Add(in.Duration).After(free.End); t = t.Add(in.Duration) {
					if t.Before(in.NotBefore) {
						continue
					}
					starts = append(starts, t)
				}
			}
		}
	}
	return sortUnique(starts)
}

// anchorDay pins the weekly wall-clock windows of day to absolute UTC ranges.
func anchorDay(wk schedule.Weekly, loc *time.Location, day time.Time) []conflicts.Busy {
	var out []conflicts.Busy
	for _, w := range wk.WindowsFor(day.Weekday()) {
		start := schedule.Anchor(day, w.Start, loc, true).UTC()
		end := schedule.Anchor(day, w.End, loc, false).UTC()
		if start.Before(end) {
			out = append(out, interval.New(start, end))
		}
	}
	return interval.MergeAll(out)
}

// dateOf truncates t to its calendar date, expressed as UTC midnight.
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sortUnique(ts []time.Time) []time.Time {
	if len(ts) == 0 {
		return ts
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	out := ts[:1]
	for _, t := range ts[1:] {
		if !t.Equal(out[len(out)-1]) {
			out = append(out, t)
		}
	}
	return out
}
