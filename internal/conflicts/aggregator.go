// Package conflicts consolidates an owner's busy time from bookings and external calendars.
package conflicts

import (
	"time"

	"calendly/internal/interval"
	"calendly/internal/model"
)

// Busy is an absolute busy interval.
type Busy = interval.Range[time.Time]

// Aggregate merges bookings and external busy intervals into one sorted,
// non-overlapping sequence. Inputs are instants already; nothing is converted
// beyond normalising the location label to UTC.
func Aggregate(bookings []model.Booking, external []Busy) []Busy {
	all := make([]Busy, 0, len(bookings)+len(external))
	for _, b := range bookings {
		all = append(all, interval.New(b.StartUTC.UTC(), b.EndUTC.UTC()))
	}
	for _, e := range external {
		all = append(all, interval.New(e.Start.UTC(), e.End.UTC()))
	}
	return interval.MergeAll(all)
}
