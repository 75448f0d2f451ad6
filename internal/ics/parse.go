package ics

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// vevent is the subset of a VEVENT that decides busy time.
type vevent struct {
	uid          string
	start        time.Time
	end          time.Time
	allDay       bool
	rrule        string
	exdates      []time.Time
	recurrenceID *time.Time
	cancelled    bool
	transparent  bool
}

func (e vevent) isOverride() bool { return e.recurrenceID != nil }

// blocks reports whether the event occupies time on the calendar.
func (e vevent) blocks() bool { return !e.cancelled && !e.transparent }

// parse reads every VEVENT of an ICS payload. Floating and date-only values are
// read in loc. Events that cannot be parsed are returned in skipped.
func parse(body []byte, loc *time.Location) (events []vevent, skipped []error, err error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse calendar: %w", err)
	}

	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve, loc)
		if perr != nil {
			skipped = append(skipped, perr)
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (vevent, error) {
	var out vevent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("vevent: missing UID")
	}
	out.uid = uid.Value

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return out, fmt.Errorf("vevent %s: missing DTSTART", out.uid)
	}
	start, allDay, err := propTime(dtstart, dtstart.Value, loc)
	if err != nil {
		return out, fmt.Errorf("vevent %s: DTSTART: %w", out.uid, err)
	}
	out.start, out.allDay = start, allDay

	switch {
	case ve.GetProperty(ical.ComponentPropertyDtEnd) != nil:
		p := ve.GetProperty(ical.ComponentPropertyDtEnd)
		end, _, err := propTime(p, p.Value, loc)
		if err != nil {
			return out, fmt.Errorf("vevent %s: DTEND: %w", out.uid, err)
		}
		out.end = end
	case ve.GetProperty("DURATION") != nil:
		d, err := parseDuration(ve.GetProperty("DURATION").Value)
		if err != nil {
			return out, fmt.Errorf("vevent %s: %w", out.uid, err)
		}
		out.end = start.Add(d)
	case allDay:
		out.end = start.AddDate(0, 0, 1)
	default:
		out.end = start
	}

	if p := ve.GetProperty("STATUS"); p != nil {
		out.cancelled = strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED")
	}
	if p := ve.GetProperty("TRANSP"); p != nil {
		out.transparent = strings.EqualFold(strings.TrimSpace(p.Value), "TRANSPARENT")
	}
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rrule = strings.TrimSpace(p.Value)
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, _, err := propTime(p, part, loc)
			if err != nil {
				return out, fmt.Errorf("vevent %s: EXDATE: %w", out.uid, err)
			}
			out.exdates = append(out.exdates, t)
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		t, _, err := propTime(p, p.Value, loc)
		if err != nil {
			return out, fmt.Errorf("vevent %s: RECURRENCE-ID: %w", out.uid, err)
		}
		out.recurrenceID = &t
	}

	return out, nil
}

const (
	layoutUTC   = "20060102T150405Z"
	layoutLocal = "20060102T150405"
	layoutDate  = "20060102"
)

// propTime parses one DATE or DATE-TIME value of p, honouring its TZID and VALUE parameters.
func propTime(p *ical.IANAProperty, value string, loc *time.Location) (time.Time, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	if tzids := p.ICalParameters["TZID"]; len(tzids) > 0 {
		if tz, err := time.LoadLocation(strings.Trim(tzids[0], `"`)); err == nil {
			loc = tz
		}
	}

	isDate := len(value) == len(layoutDate)
	if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		isDate = true
	}

	switch {
	case isDate:
		t, err := time.ParseInLocation(layoutDate, value, loc)
		return t, true, err
	case strings.HasSuffix(value, "Z"):
		t, err := time.Parse(layoutUTC, value)
		return t, false, err
	default:
		t, err := time.ParseInLocation(layoutLocal, value, loc)
		return t, false, err
	}
}

var durationRe = regexp.MustCompile(`^([+-])?P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// parseDuration reads an RFC 5545 DURATION value such as PT1H30M or P1D.
func parseDuration(v string) (time.Duration, error) {
	m := durationRe.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil || v == "P" || strings.HasSuffix(v, "T") {
		return 0, fmt.Errorf("invalid DURATION %q", v)
	}

	units := []time.Duration{7 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, unit := range units {
		if m[i+2] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+2])
		if err != nil {
			return 0, fmt.Errorf("invalid DURATION %q: %w", v, err)
		}
		d += time.Duration(n) * unit
	}
	if m[1] == "-" {
		d = -d
	}
	return d, nil
}
