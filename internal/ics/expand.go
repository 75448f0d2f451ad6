package ics

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"

	"calendly/internal/conflicts"
	"calendly/internal/interval"
)

const maxOccurrencesPerEvent = 5000

// expand turns parsed events into the busy intervals that intersect window.
// Cancelled and transparent events are ignored. An override (RECURRENCE-ID)
// replaces the occurrence it names.
func expand(events []vevent, window conflicts.Busy, logger zerolog.Logger) []conflicts.Busy {
	overrides := make(map[string][]vevent)
	var bases []vevent
	for _, ev := range events {
		if ev.isOverride() {
			overrides[ev.uid] = append(overrides[ev.uid], ev)
			continue
		}
		bases = append(bases, ev)
	}

	var out []conflicts.Busy
	add := func(start, end time.Time) {
		b := interval.New(start.UTC(), end.UTC())
		if !b.Empty() && interval.Intersects(b, window) {
			out = append(out, b)
		}
	}

	for _, ev := range bases {
		if !ev.blocks() {
			continue
		}
		if ev.rrule == "" {
			add(ev.start, ev.end)
			continue
		}

		occ, err := occurrences(ev, overrides[ev.uid], window)
		if err != nil {
			logger.Warn().Err(err).Str("uid", ev.uid).Msg("skipping event with bad RRULE")
			continue
		}
		for _, start := range occ {
			add(start, occurrenceEnd(ev, start))
		}
	}

	for _, list := range overrides {
		for _, ov := range list {
			if ov.blocks() {
				add(ov.start, ov.end)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// occurrences lists the starts of a recurring event whose span may reach window.
func occurrences(ev vevent, overrides []vevent, window conflicts.Busy) ([]time.Time, error) {
	opt, err := rrule.StrToROption(ev.rrule)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = ev.start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, err
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exdates {
		set.ExDate(ex.In(ev.start.Location()))
	}
	for _, ov := range overrides {
		set.ExDate(ov.recurrenceID.In(ev.start.Location()))
	}

	span := ev.end.Sub(ev.start)
	after := window.Start.Add(-span).In(ev.start.Location())
	before := window.End.In(ev.start.Location())

	times := set.Between(after, before, true)
	if len(times) > maxOccurrencesPerEvent {
		times = times[:maxOccurrencesPerEvent]
	}
	return times, nil
}

// occurrenceEnd keeps the event length; all-day events keep their length in calendar days.
func occurrenceEnd(ev vevent, start time.Time) time.Time {
	if ev.allDay {
		days := int(math.Round(ev.end.Sub(ev.start).Hours() / 24))
		if days < 1 {
			days = 1
		}
		return start.AddDate(0, 0, days)
	}
	return start.Add(ev.end.Sub(ev.start))
}
