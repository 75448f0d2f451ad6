// Package interval implements half-open ranges [Start, End) over any ordered point type.
package interval

import (
	"errors"
	"sort"
)

// ErrDisjoint is returned by Merge when two ranges neither overlap nor touch.
var ErrDisjoint = errors.New("interval: ranges are disjoint")

// Point is a position on a timeline. time.Time satisfies it, as does schedule.Clock.
type Point[T any] interface {
	Before(T) bool
	Equal(T) bool
}

// Range is the half-open interval [Start, End).
type Range[T Point[T]] struct {
	Start T
	End   T
}

// New returns the range [start, end).
func New[T Point[T]](start, end T) Range[T] {
	return Range[T]{Start: start, End: end}
}

// Empty reports whether the range covers nothing.
func (r Range[T]) Empty() bool {
	return !r.Start.Before(r.End)
}

// Contains reports whether o lies entirely inside r.
func (r Range[T]) Contains(o Range[T]) bool {
	return !o.Start.Before(r.Start) && !r.End.Before(o.End)
}

// ContainsPoint reports whether p is in [Start, End).
func (r Range[T]) ContainsPoint(p T) bool {
	return !p.Before(r.Start) && p.Before(r.End)
}

// Intersects reports whether a and b share at least one point.
func Intersects[T Point[T]](a, b Range[T]) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Touches reports whether a and b overlap or are adjacent (a.End == b.Start or b.End == a.Start).
func Touches[T Point[T]](a, b Range[T]) bool {
	return Intersects(a, b) || a.End.Equal(b.Start) || b.End.Equal(a.Start)
}

// Merge returns the union of a and b. It fails with ErrDisjoint when the union
// would not be a single range.
func Merge[T Point[T]](a, b Range[T]) (Range[T], error) {
	if !Touches(a, b) {
		return Range[T]{}, ErrDisjoint
	}
	return Range[T]{Start: earliest(a.Start, b.Start), End: latest(a.End, b.End)}, nil
}

// MergeAll sorts ranges by start and folds overlapping or adjacent ones together.
// Empty ranges are dropped. The result does not depend on input order, and
// calling MergeAll on its own output returns the same ranges.
func MergeAll[T Point[T]](ranges []Range[T]) []Range[T] {
	sorted := make([]Range[T], 0, len(ranges))
	for _, r := range ranges {
		if !r.Empty() {
			sorted = append(sorted, r)
		}
	}
	if len(sorted) == 0 {
		return nil
	}

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].End.Before(sorted[j].End)
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Range[T]{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if m, err := Merge(*last, r); err == nil {
			*last = m
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Subtract returns the parts of a not covered by busy, in order.
// busy must be sorted and non-overlapping, as produced by MergeAll.
func Subtract[T Point[T]](a Range[T], busy []Range[T]) []Range[T] {
	if len(busy) == 0 {
		return []Range[T]{a}
	}

	var free []Range[T]
	cursor := a.Start
	for _, b := range busy {
		if !cursor.Before(b.End) {
			continue
		}
		if !b.Start.Before(a.End) {
			break
		}
		if cursor.Before(b.Start) {
			free = append(free, Range[T]{Start: cursor, End: b.Start})
		}
		cursor = b.End
	}
	if cursor.Before(a.End) {
		free = append(free, Range[T]{Start: cursor, End: a.End})
	}
	return free
}

func earliest[T Point[T]](a, b T) T {
	if b.Before(a) {
		return b
	}
	return a
}

func latest[T Point[T]](a, b T) T {
	if a.Before(b) {
		return b
	}
	return a
}
